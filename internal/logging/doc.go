// Package logging provides logging utilities for netbsd-imager.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via zap)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written through a sugared zap logger and controlled by
// verbosity settings:
//
//	logging.Debug("booting image", "disk", disk, "memory", mem)
//	logging.Warn("guest did not power off", "timeout", timeout)
//
// Guest serial console output is mirrored line by line at debug level via
// ConsoleWriter, so -v shows the whole boot.
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Locating latest %s release...", branch)
//	logging.UserSuccess("Image written to %s", path)
//	logging.UserWarning("Disk image exists, skipping install")
//	logging.UserError("Build failed: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
