// Package ssh builds OpenSSH client invocations for logging in to a guest
// through its forwarded port. The guest's host key changes with every
// install, so host key checking is off by default.
package ssh

import (
	"context"
	"fmt"

	"github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// Default SSH configuration values.
const (
	DefaultUser           = "root"
	DefaultHost           = "127.0.0.1"
	DefaultConnectTimeout = 5
	Binary                = "ssh"
)

// Options configures SSH connection parameters.
type Options struct {
	Port               int
	User               string
	Host               string
	StrictHostKeyCheck bool
	KnownHostsFile     string
	IdentityFile       string
	ConnectTimeout     int
	BatchMode          bool
	RequestTTY         bool
}

// DefaultOptions returns Options for a guest forwarded to port on this host.
func DefaultOptions(port int) Options {
	return Options{
		Port:           port,
		User:           DefaultUser,
		Host:           DefaultHost,
		KnownHostsFile: "/dev/null",
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// WithUser returns a copy logging in as user.
func (o Options) WithUser(user string) Options {
	o.User = user
	return o
}

// WithIdentity returns a copy authenticating with the given key file.
func (o Options) WithIdentity(path string) Options {
	o.IdentityFile = path
	return o
}

// WithBatchMode returns a copy with batch mode enabled.
func (o Options) WithBatchMode() Options {
	o.BatchMode = true
	return o
}

// WithTTY returns a copy with TTY requested.
func (o Options) WithTTY() Options {
	o.RequestTTY = true
	return o
}

// WithTimeout returns a copy with the specified connect timeout.
func (o Options) WithTimeout(seconds int) Options {
	o.ConnectTimeout = seconds
	return o
}

// BaseArgs returns the common SSH arguments (options only, no user@host).
func (o Options) BaseArgs() []string {
	args := []string{
		"-p", fmt.Sprintf("%d", o.Port),
	}

	if !o.StrictHostKeyCheck {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}

	if o.KnownHostsFile != "" {
		args = append(args, "-o", fmt.Sprintf("UserKnownHostsFile=%s", o.KnownHostsFile))
	}

	if o.IdentityFile != "" {
		args = append(args, "-i", o.IdentityFile)
	}

	if o.BatchMode {
		args = append(args, "-o", "BatchMode=yes")
	}

	if o.ConnectTimeout > 0 {
		args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", o.ConnectTimeout))
	}

	if o.RequestTTY {
		args = append(args, "-t")
	}

	return args
}

// Destination returns the user@host string.
func (o Options) Destination() string {
	return fmt.Sprintf("%s@%s", o.User, o.Host)
}

// BuildArgs returns complete SSH arguments for executing a command.
func (o Options) BuildArgs(command ...string) []string {
	args := o.BaseArgs()
	args = append(args, o.Destination())
	args = append(args, command...)
	return args
}

// CommandLine returns the invocation as a shell command a user can paste.
func (o Options) CommandLine(command ...string) string {
	return shellquote.Join(append([]string{Binary}, o.BuildArgs(command...)...)...)
}

// Interactive starts an SSH session on the user's terminal. With no
// command the guest's login shell runs.
func Interactive(ctx context.Context, exec system.CommandExecutor, o Options, command ...string) error {
	if _, err := exec.LookPath(Binary); err != nil {
		return fmt.Errorf("ssh not found: %w", err)
	}
	if len(command) > 0 {
		o = o.WithTTY()
	}
	return exec.ExecuteInteractive(ctx, Binary, o.BuildArgs(command...)...)
}

// Run executes a command in batch mode and returns its combined output.
func Run(ctx context.Context, exec system.CommandExecutor, o Options, command ...string) (string, error) {
	out, err := exec.Execute(ctx, Binary, o.WithBatchMode().BuildArgs(command...)...)
	return string(out), err
}
