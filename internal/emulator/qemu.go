package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	expect "github.com/Netflix/go-expect"

	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/session"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// QEMU boots a Spec with its serial console on a pseudo-terminal.
type QEMU struct {
	Spec *Spec

	// Exec resolves the emulator binary. Defaults to system.DefaultExecutor().
	Exec system.CommandExecutor

	// ConsoleLog receives a copy of everything the guest prints. Defaults
	// to the debug log.
	ConsoleLog io.Writer
}

var _ session.Booter = (*QEMU)(nil)

// NewQEMU creates a QEMU booter for spec.
func NewQEMU(spec *Spec) *QEMU {
	return &QEMU{Spec: spec}
}

// Boot starts the emulator. The process is not tied to ctx; callers end it
// through the returned Guest.
func (q *QEMU) Boot(ctx context.Context) (session.Guest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	executor := q.Exec
	if executor == nil {
		executor = system.DefaultExecutor()
	}
	bin, err := executor.LookPath(q.Spec.Binary)
	if err != nil {
		return nil, fmt.Errorf("emulator not available: %w", err)
	}

	var mirror io.Writer
	var consoleLog *logging.ConsoleWriter
	if q.ConsoleLog != nil {
		mirror = q.ConsoleLog
	} else {
		consoleLog = logging.NewConsoleWriter("console")
		mirror = consoleLog
	}

	c, err := expect.NewConsole(expect.WithStdout(mirror))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate console: %w", err)
	}

	args := q.Spec.Args()
	logging.Debug("starting emulator", "cmd", system.CommandLine(bin, args...))

	cmd := exec.Command(bin, args...)
	cmd.Stdin = c.Tty()
	cmd.Stdout = c.Tty()
	cmd.Stderr = c.Tty()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start %s: %w", bin, err)
	}

	// Only the emulator holds the terminal now, so its exit reads as EOF.
	_ = c.Tty().Close()

	g := &guest{
		cmd:        cmd,
		console:    &console{c: c},
		consoleLog: consoleLog,
		done:       make(chan struct{}),
	}
	go g.wait()

	return g, nil
}

type guest struct {
	cmd        *exec.Cmd
	console    *console
	consoleLog *logging.ConsoleWriter

	done    chan struct{}
	waitErr error

	killOnce sync.Once
}

func (g *guest) wait() {
	g.waitErr = g.cmd.Wait()
	logging.Debug("emulator exited", "pid", g.cmd.Process.Pid, "error", g.waitErr)
	close(g.done)
}

func (g *guest) Console() session.Console {
	return g.console
}

func (g *guest) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		if g.consoleLog != nil {
			_ = g.consoleLog.Close()
		}
		return g.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *guest) Kill() error {
	var err error
	g.killOnce.Do(func() {
		select {
		case <-g.done:
			return
		default:
		}
		logging.Debug("killing emulator", "pid", g.cmd.Process.Pid)
		if kerr := g.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = kerr
			return
		}
		<-g.done
	})
	_ = g.console.Close()
	if g.consoleLog != nil {
		_ = g.consoleLog.Close()
	}
	return err
}

// console adapts an expect.Console to session.Console.
type console struct {
	c         *expect.Console
	closeOnce sync.Once
}

func (c *console) Send(s string) error {
	_, err := c.c.Send(s)
	return err
}

func (c *console) Expect(re *regexp.Regexp, timeout time.Duration) ([]string, error) {
	out, err := c.expect(timeout, expect.Regexp(re))
	if err != nil {
		return nil, err
	}
	m := re.FindStringSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("console output matched %s but submatches were lost", re)
	}
	return m, nil
}

func (c *console) ExpectEOF(timeout time.Duration) error {
	_, err := c.expect(timeout, expect.EOF, expect.PTSClosed)
	return err
}

// expect bounds one Expect call by timeout in total. go-expect re-arms its
// read deadline for every rune, so on its own it only catches silence. When
// the deadline passes the console is closed, which unblocks the read.
func (c *console) expect(timeout time.Duration, opts ...expect.ExpectOpt) (string, error) {
	var expired atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		expired.Store(true)
		_ = c.Close()
	})
	defer timer.Stop()

	out, err := c.c.Expect(append(opts, expect.WithTimeout(timeout))...)
	if err != nil {
		if expired.Load() {
			return out, fmt.Errorf("%w after %s: %v", session.ErrTimeout, timeout, err)
		}
		return out, consoleErr(err)
	}
	return out, nil
}

func (c *console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.c.Close()
	})
	return err
}

func consoleErr(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", session.ErrTimeout, err)
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return fmt.Errorf("%w: %v", session.ErrTimeout, err)
	}
	return err
}
