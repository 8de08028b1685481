package errors

import (
	"errors"
	"fmt"
)

// Exit codes for netbsd-imager
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitReleaseNotFound = 2
	ExitMirrorError     = 3
	ExitInstallFailed   = 4
	ExitCommandFailed   = 5
	ExitEmulatorFailed  = 6
	ExitConfigError     = 7
	ExitImageError      = 8
	ExitSSHError        = 9
)

// ImagerError is the base error type for netbsd-imager
type ImagerError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ImagerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ImagerError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *ImagerError) ExitCode() int {
	return e.Code
}

// New creates a new ImagerError
func New(code int, message string) *ImagerError {
	return &ImagerError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an ImagerError
func Wrap(code int, message string, cause error) *ImagerError {
	return &ImagerError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CommandError reports a guest command that exited non-zero.
// It is kept distinct so callers can recover the command and status.
type CommandError struct {
	Command  string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
}

// Common error constructors

// ReleaseNotFound returns an error when no nightly build carries the arch
func ReleaseNotFound(branch, arch string) *ImagerError {
	return New(ExitReleaseNotFound, fmt.Sprintf("no release of %s found for %s", branch, arch))
}

// MirrorError returns an error for FTP mirror failures
func MirrorError(message string, cause error) *ImagerError {
	return Wrap(ExitMirrorError, message, cause)
}

// InstallFailed returns an error for a failed anita install
func InstallFailed(cause error) *ImagerError {
	return Wrap(ExitInstallFailed, "install failed", cause)
}

// CommandFailed returns an error for a guest command with a non-zero exit status
func CommandFailed(command string, exitCode int) *ImagerError {
	return Wrap(ExitCommandFailed, "command failed", &CommandError{Command: command, ExitCode: exitCode})
}

// EmulatorFailed returns an error for emulator operations
func EmulatorFailed(op string, cause error) *ImagerError {
	return Wrap(ExitEmulatorFailed, fmt.Sprintf("emulator %s failed", op), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *ImagerError {
	return Wrap(ExitConfigError, message, cause)
}

// ImageError returns an error for post-processing operations
func ImageError(op string, cause error) *ImagerError {
	return Wrap(ExitImageError, fmt.Sprintf("image %s failed", op), cause)
}

// SSHError returns an error for SSH verification
func SSHError(message string, cause error) *ImagerError {
	return Wrap(ExitSSHError, message, cause)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *ImagerError {
	return New(ExitGeneralError, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var imagerErr *ImagerError
	if errors.As(err, &imagerErr) {
		return imagerErr.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
