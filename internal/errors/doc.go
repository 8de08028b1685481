// Package errors provides typed errors with exit codes for netbsd-imager.
//
// # Error Types
//
// ImagerError is the base error type that wraps an error with an exit code:
//
//	type ImagerError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
// Defined exit codes for different error categories:
//
//	ExitSuccess         = 0 // Success
//	ExitGeneralError    = 1 // General/unknown errors
//	ExitReleaseNotFound = 2 // No nightly build has the requested arch
//	ExitMirrorError     = 3 // FTP mirror unreachable or listing failed
//	ExitInstallFailed   = 4 // anita install failed
//	ExitCommandFailed   = 5 // A guest command returned non-zero
//	ExitEmulatorFailed  = 6 // QEMU could not be started or driven
//	ExitConfigError     = 7 // Configuration error
//	ExitImageError      = 8 // Conversion, archiving or compression failed
//	ExitSSHError        = 9 // SSH verification failed
//
// # Error Constructors
//
// Use the provided constructors for consistent error creation:
//
//	errors.ReleaseNotFound("netbsd-8", "amd64")
//	errors.CommandFailed("pkg_add git", 1)
//	errors.EmulatorFailed("boot", err)
//	errors.ImageError("convert", err)
//
// # Extracting Exit Codes
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
