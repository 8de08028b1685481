package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestImagerError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *ImagerError
		wantMsg string
	}{
		{
			name:    "without cause",
			err:     New(ExitGeneralError, "something went wrong"),
			wantMsg: "something went wrong",
		},
		{
			name:    "with cause",
			err:     Wrap(ExitGeneralError, "operation failed", fmt.Errorf("underlying error")),
			wantMsg: "operation failed: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestImagerError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ExitGeneralError, "wrapped", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := New(ExitGeneralError, "no cause")
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestReleaseNotFound(t *testing.T) {
	err := ReleaseNotFound("netbsd-8", "amd64")

	if err.Code != ExitReleaseNotFound {
		t.Errorf("Code = %d, want %d", err.Code, ExitReleaseNotFound)
	}
	if err.Message != "no release of netbsd-8 found for amd64" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestCommandFailed(t *testing.T) {
	err := CommandFailed("pkg_add git", 2)

	if err.Code != ExitCommandFailed {
		t.Errorf("Code = %d, want %d", err.Code, ExitCommandFailed)
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatal("errors.As should find CommandError")
	}
	if cmdErr.Command != "pkg_add git" || cmdErr.ExitCode != 2 {
		t.Errorf("CommandError = %+v", cmdErr)
	}
	if got := err.Error(); got != `command failed: command "pkg_add git" exited with status 2` {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrappingConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")
	tests := []struct {
		name     string
		err      *ImagerError
		wantCode int
		wantMsg  string
	}{
		{"mirror", MirrorError("listing failed", cause), ExitMirrorError, "listing failed"},
		{"install", InstallFailed(cause), ExitInstallFailed, "install failed"},
		{"emulator", EmulatorFailed("boot", cause), ExitEmulatorFailed, "emulator boot failed"},
		{"config", ConfigError("bad config", cause), ExitConfigError, "bad config"},
		{"image", ImageError("convert", cause), ExitImageError, "image convert failed"},
		{"ssh", SSHError("dial failed", cause), ExitSSHError, "dial failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
			if tt.err.Cause != cause {
				t.Errorf("Cause = %v, want %v", tt.err.Cause, cause)
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "ImagerError",
			err:      ReleaseNotFound("netbsd-9", "i386"),
			wantCode: ExitReleaseNotFound,
		},
		{
			name:     "wrapped ImagerError",
			err:      fmt.Errorf("outer: %w", CommandFailed("true", 1)),
			wantCode: ExitCommandFailed,
		},
		{
			name:     "regular error",
			err:      fmt.Errorf("some error"),
			wantCode: ExitGeneralError,
		},
		{
			name:     "nil error",
			err:      nil,
			wantCode: ExitGeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.wantCode {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestIs(t *testing.T) {
	target := fmt.Errorf("target error")
	wrapped := fmt.Errorf("wrapped: %w", target)

	if !Is(wrapped, target) {
		t.Error("Is() should return true for wrapped error")
	}

	other := fmt.Errorf("other error")
	if Is(wrapped, other) {
		t.Error("Is() should return false for different error")
	}
}

func TestAs(t *testing.T) {
	outer := fmt.Errorf("wrapped: %w", ConfigError("bad", nil))

	var imagerErr *ImagerError
	if !As(outer, &imagerErr) {
		t.Fatal("As() should find ImagerError")
	}
	if imagerErr.Code != ExitConfigError {
		t.Errorf("Code = %d, want %d", imagerErr.Code, ExitConfigError)
	}
}
