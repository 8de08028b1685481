// Package sessiontest provides a scripted guest for testing code that
// drives a session.Console.
package sessiontest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/firefly-engineering/netbsd-imager/internal/session"
)

// Result is the scripted outcome of one guest command.
type Result struct {
	Output string
	Status int
}

// Shell simulates a NetBSD console: a login prompt, a root shell, and
// command results looked up by the exact command line.
type Shell struct {
	mu sync.Mutex

	// Password, when set, makes login ask for it.
	Password string

	// Results maps command lines to their outcome. Unlisted commands
	// succeed with no output.
	Results map[string]Result

	// NoLogin keeps the guest from ever printing a login prompt.
	NoLogin bool

	// IgnoreShutdown keeps the guest running after a shutdown command.
	IgnoreShutdown bool

	// Hang names a command that never returns to the prompt.
	Hang string

	// OnCommand is called with every command the shell runs, with the
	// shell locked.
	OnCommand func(cmd string)

	out        strings.Builder
	prompt     string
	loggedIn   bool
	askedPass  bool
	lastStatus int
	poweredOff bool
	closed     bool
	killed     bool
	commands   []string
	sent       []string
}

// NewShell creates a Shell with no scripted results.
func NewShell() *Shell {
	return &Shell{Results: make(map[string]Result)}
}

// Commands returns the commands run in the session shell, in order,
// excluding the driver's own plumbing (exit status reads and shutdown).
func (s *Shell) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Sent returns every line typed on the console.
func (s *Shell) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// Killed reports whether the guest was killed.
func (s *Shell) Killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

// PoweredOff reports whether the guest halted on its own.
func (s *Shell) PoweredOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poweredOff
}

func (s *Shell) boot() {
	s.out.Reset()
	s.prompt = "# "
	s.loggedIn = false
	s.askedPass = false
	s.poweredOff = false
	s.closed = false
	s.killed = false
	s.out.WriteString("NetBSD/amd64 (Amnesiac) (constty)\r\n\r\n")
	if !s.NoLogin {
		s.out.WriteString("login: ")
	}
}

// Send implements session.Console.
func (s *Shell) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.poweredOff {
		return io.ErrClosedPipe
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		s.line(strings.TrimSuffix(line, "\n"))
	}
	return nil
}

func (s *Shell) line(line string) {
	s.sent = append(s.sent, line)

	if !s.loggedIn {
		switch {
		case s.Password != "" && !s.askedPass:
			s.askedPass = true
			s.out.WriteString(line + "\r\nPassword:")
			return
		case s.Password != "" && line != s.Password:
			s.askedPass = false
			s.out.WriteString("\r\nLogin incorrect\r\nlogin: ")
			return
		case s.Password != "":
			// Passwords are not echoed.
			s.out.WriteString("\r\n")
		default:
			s.out.WriteString(line + "\r\n")
		}
		s.loggedIn = true
		s.out.WriteString("Copyright (c) 1996-2018 The NetBSD Foundation, Inc.\r\n\r\n" + s.prompt)
		return
	}

	// The echo comes first, as a tty would produce it.
	s.out.WriteString(line + "\r\n")

	switch {
	case line == "exec /bin/sh":
		s.out.WriteString("# ")
		return
	case strings.HasPrefix(line, "PS1="):
		s.prompt = strings.ReplaceAll(strings.TrimPrefix(line, "PS1="), "'", "")
		s.out.WriteString(s.prompt)
		return
	case line == "echo $?":
		s.out.WriteString(fmt.Sprintf("%d\r\n%s", s.lastStatus, s.prompt))
		return
	case line == session.ShutdownCommand:
		if !s.IgnoreShutdown {
			s.out.WriteString("syncing disks... done\r\npowering off...\r\n")
			s.poweredOff = true
		}
		return
	}

	s.commands = append(s.commands, line)
	if s.OnCommand != nil {
		s.OnCommand(line)
	}
	if line == s.Hang {
		return
	}

	r := s.Results[line]
	if r.Output != "" {
		s.out.WriteString(strings.ReplaceAll(r.Output, "\n", "\r\n"))
		if !strings.HasSuffix(r.Output, "\n") {
			s.out.WriteString("\r\n")
		}
	}
	s.lastStatus = r.Status
	s.out.WriteString(s.prompt)
}

// Expect implements session.Console. Output is produced synchronously, so
// a pattern that does not match what is buffered times out immediately.
func (s *Shell) Expect(re *regexp.Regexp, _ time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.out.String()
	// Console readers match at the earliest possible point, so try every
	// prefix and stop at the first that matches.
	for end := 1; end <= len(buf); end++ {
		if m := re.FindStringSubmatch(buf[:end]); m != nil {
			s.out.Reset()
			s.out.WriteString(buf[end:])
			return m, nil
		}
	}

	if s.closed {
		return nil, io.EOF
	}
	return nil, fmt.Errorf("%w: %s not in %q", session.ErrTimeout, re, buf)
}

// ExpectEOF implements session.Console.
func (s *Shell) ExpectEOF(time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poweredOff || s.closed {
		s.out.Reset()
		return nil
	}
	return session.ErrTimeout
}

// Close implements session.Console.
func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Guest is a session.Guest backed by a Shell.
type Guest struct {
	shell *Shell
}

// Console implements session.Guest.
func (g *Guest) Console() session.Console {
	return g.shell
}

// Wait implements session.Guest.
func (g *Guest) Wait(ctx context.Context) error {
	g.shell.mu.Lock()
	done := g.shell.poweredOff || g.shell.killed
	g.shell.mu.Unlock()
	if done {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// Kill implements session.Guest.
func (g *Guest) Kill() error {
	g.shell.mu.Lock()
	defer g.shell.mu.Unlock()
	g.shell.killed = true
	g.shell.closed = true
	return nil
}

// Booter boots Guests backed by a single Shell and counts the boots.
type Booter struct {
	Shell *Shell
	Err   error

	mu    sync.Mutex
	boots int
}

// NewBooter creates a Booter around shell.
func NewBooter(shell *Shell) *Booter {
	return &Booter{Shell: shell}
}

// Boot implements session.Booter.
func (b *Booter) Boot(ctx context.Context) (session.Guest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.Err != nil {
		return nil, b.Err
	}

	b.mu.Lock()
	b.boots++
	b.mu.Unlock()

	b.Shell.mu.Lock()
	b.Shell.boot()
	b.Shell.mu.Unlock()

	return &Guest{shell: b.Shell}, nil
}

// Boots returns how many times the guest was booted.
func (b *Booter) Boots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boots
}
