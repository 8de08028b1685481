package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	imgerrors "github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
)

// ErrTimeout is returned when the console does not produce the expected
// output in time.
var ErrTimeout = errors.New("timed out waiting for console")

// ShutdownCommand halts and powers off the guest after flushing disks.
const ShutdownCommand = "sync; shutdown -hp now"

const (
	DefaultBootTimeout     = 10 * time.Minute
	DefaultCommandTimeout  = 1200 * time.Second
	DefaultShutdownTimeout = 5 * time.Minute

	// loginTimeout bounds each step after the login prompt appeared.
	loginTimeout = 2 * time.Minute
)

var (
	loginRe       = regexp.MustCompile(`login: $`)
	passwordRe    = regexp.MustCompile(`(?i)password: ?$`)
	shellPromptRe = regexp.MustCompile(`[#$%>] $`)
)

// Console is a serial console the driver can type into and read from.
type Console interface {
	// Send writes s to the console.
	Send(s string) error

	// Expect reads until re matches the output read so far and returns
	// the submatches. A timeout is reported as ErrTimeout.
	Expect(re *regexp.Regexp, timeout time.Duration) ([]string, error)

	// ExpectEOF reads until the console closes.
	ExpectEOF(timeout time.Duration) error

	Close() error
}

// Guest is a running emulator process.
type Guest interface {
	Console() Console

	// Wait blocks until the emulator exits or ctx is done.
	Wait(ctx context.Context) error

	// Kill terminates the emulator. It is safe to call more than once.
	Kill() error
}

// Booter starts an emulator.
type Booter interface {
	Boot(ctx context.Context) (Guest, error)
}

// Driver boots a guest and runs batches of commands on its console.
type Driver struct {
	Booter   Booter
	User     string
	Password string

	BootTimeout     time.Duration
	CommandTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// NewDriver creates a Driver with the default timeouts.
func NewDriver(booter Booter, user, password string) *Driver {
	return &Driver{
		Booter:          booter,
		User:            user,
		Password:        password,
		BootTimeout:     DefaultBootTimeout,
		CommandTimeout:  DefaultCommandTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Session is a logged-in shell on a running guest.
type Session struct {
	driver   *Driver
	guest    Guest
	console  Console
	prompt   string
	promptRe *regexp.Regexp
	statusRe *regexp.Regexp

	// unwatch stops killing the guest when the start context ends.
	unwatch func() bool
}

// Start boots a guest and logs in. The guest is killed if login fails, and
// whenever ctx ends before the session is shut down or killed.
func (d *Driver) Start(ctx context.Context) (*Session, error) {
	logging.Debug("booting guest")
	guest, err := d.Booter.Boot(ctx)
	if err != nil {
		return nil, imgerrors.EmulatorFailed("boot", err)
	}

	s := newSession(d, guest)
	s.unwatch = context.AfterFunc(ctx, s.kill)
	if err := s.Login(ctx); err != nil {
		s.Kill()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, imgerrors.EmulatorFailed("login", err)
	}

	return s, nil
}

// RunBatch boots a guest, runs commands in order, and shuts it down. The
// first command with a non-zero exit status aborts the batch. Any failure
// kills the emulator before returning.
func (d *Driver) RunBatch(ctx context.Context, name string, commands []string) error {
	log := logging.With("batch", name)

	s, err := d.Start(ctx)
	if err != nil {
		return err
	}

	for i, cmd := range commands {
		log.Infow("running command", "step", i+1, "of", len(commands), "command", cmd)

		rc, err := s.Run(ctx, cmd, d.CommandTimeout)
		if err != nil {
			s.Kill()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return imgerrors.EmulatorFailed("command", fmt.Errorf("%q: %w", cmd, err))
		}
		if rc != 0 {
			log.Errorw("command failed", "command", cmd, "status", rc)
			s.Kill()
			return imgerrors.CommandFailed(cmd, rc)
		}
	}

	return s.Shutdown(ctx)
}

func newSession(d *Driver, guest Guest) *Session {
	prompt := "imager-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "# "
	quoted := regexp.QuoteMeta(prompt)
	return &Session{
		driver:   d,
		guest:    guest,
		console:  guest.Console(),
		prompt:   prompt,
		promptRe: regexp.MustCompile(quoted + `$`),
		statusRe: regexp.MustCompile(`\n(\d+)\r?\n` + quoted + `$`),
		unwatch:  func() bool { return false },
	}
}

// Prompt returns the unique shell prompt of this session.
func (s *Session) Prompt() string {
	return s.prompt
}

// Login waits for the login prompt, authenticates, and switches to a
// Bourne shell with a prompt unique to this session.
func (s *Session) Login(ctx context.Context) error {
	if _, err := s.console.Expect(loginRe, s.driver.BootTimeout); err != nil {
		return fmt.Errorf("waiting for login prompt: %w", err)
	}
	logging.Debug("login prompt reached", "user", s.driver.User)

	if err := s.console.Send(s.driver.User + "\n"); err != nil {
		return err
	}

	if s.driver.Password != "" {
		if _, err := s.console.Expect(passwordRe, loginTimeout); err != nil {
			return fmt.Errorf("waiting for password prompt: %w", err)
		}
		if err := s.console.Send(s.driver.Password + "\n"); err != nil {
			return err
		}
	}

	if _, err := s.console.Expect(shellPromptRe, loginTimeout); err != nil {
		return fmt.Errorf("waiting for shell prompt: %w", err)
	}

	// The quotes split the prompt so its echo cannot match it.
	head, tail := s.prompt[:len("imager-")], s.prompt[len("imager-"):]
	setup := fmt.Sprintf("exec /bin/sh\nPS1='%s''%s'\n", head, tail)
	if err := s.console.Send(setup); err != nil {
		return err
	}
	if _, err := s.console.Expect(s.promptRe, loginTimeout); err != nil {
		return fmt.Errorf("waiting for session prompt: %w", err)
	}

	return ctx.Err()
}

// Run executes cmd in the guest shell and returns its exit status.
func (s *Session) Run(ctx context.Context, cmd string, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if timeout <= 0 {
		timeout = s.driver.CommandTimeout
	}
	timeout = clampToDeadline(ctx, timeout)

	if err := s.console.Send(cmd + "\n"); err != nil {
		return 0, err
	}
	if _, err := s.console.Expect(s.promptRe, timeout); err != nil {
		return 0, err
	}

	if err := s.console.Send("echo $?\n"); err != nil {
		return 0, err
	}
	m, err := s.console.Expect(s.statusRe, loginTimeout)
	if err != nil {
		return 0, fmt.Errorf("reading exit status: %w", err)
	}

	rc, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parsing exit status %q: %w", m[1], err)
	}
	logging.Debug("command finished", "command", cmd, "status", rc)
	return rc, nil
}

// Shutdown powers the guest off and waits for the emulator to exit. A
// guest that does not power off in time is killed with a warning.
func (s *Session) Shutdown(ctx context.Context) error {
	if err := s.console.Send(ShutdownCommand + "\n"); err != nil {
		s.Kill()
		return imgerrors.EmulatorFailed("shutdown", err)
	}

	timeout := s.driver.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	// Console EOF is the normal outcome of a halt.
	if err := s.console.ExpectEOF(clampToDeadline(ctx, timeout)); err != nil {
		if errors.Is(err, ErrTimeout) {
			logging.Warn("guest did not power off, killing emulator", "timeout", timeout)
			s.Kill()
			return ctx.Err()
		}
		logging.Debug("console closed", "error", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.guest.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			s.Kill()
			return ctx.Err()
		}
		if waitCtx.Err() != nil {
			logging.Warn("emulator did not exit after shutdown, killing it", "timeout", timeout)
			s.Kill()
			return nil
		}
		return imgerrors.EmulatorFailed("shutdown", err)
	}

	s.unwatch()
	if err := ctx.Err(); err != nil {
		s.kill()
		return err
	}
	_ = s.console.Close()
	logging.Debug("guest powered off")
	return nil
}

// Kill terminates the emulator and releases the console.
func (s *Session) Kill() {
	s.unwatch()
	s.kill()
}

func (s *Session) kill() {
	if err := s.guest.Kill(); err != nil {
		logging.Debug("killing emulator", "error", err)
	}
	_ = s.console.Close()
}

func clampToDeadline(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			if left <= 0 {
				return time.Millisecond
			}
			return left
		}
	}
	return timeout
}
