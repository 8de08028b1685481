// Package emulator builds QEMU command lines for a NetBSD disk image and
// boots them with the serial console attached to a pseudo-terminal.
package emulator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kballard/go-shellquote"
	"github.com/mattn/go-shellwords"

	"github.com/firefly-engineering/netbsd-imager/internal/config"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// Arch maps NetBSD port names to the QEMU system emulator that runs them.
var Arch = map[string]string{
	"amd64": "qemu-system-x86_64",
	"i386":  "qemu-system-i386",
}

// Spec describes one emulator invocation.
type Spec struct {
	Binary    string
	Accel     string
	MemoryMB  int64
	CPUs      int
	Disk      string
	Snapshot  bool
	SSHPort   int
	ExtraArgs []string
}

// BinaryFor returns the emulator for arch, preferring override when set.
func BinaryFor(arch, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	bin, ok := Arch[arch]
	if !ok {
		return "", fmt.Errorf("no emulator known for %s; set machine.qemu", arch)
	}
	return bin, nil
}

// FromConfig builds the Spec for booting disk under cfg.
func FromConfig(cfg *config.Config, disk string, snapshot bool) (*Spec, error) {
	bin, err := BinaryFor(cfg.Arch, cfg.Machine.QEMU)
	if err != nil {
		return nil, err
	}

	extra, err := shellwords.Parse(cfg.Machine.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid machine.extra_args: %w", err)
	}

	return &Spec{
		Binary:    bin,
		Accel:     cfg.Machine.Accel,
		MemoryMB:  cfg.MemoryMB(),
		CPUs:      cfg.Machine.CPUs,
		Disk:      disk,
		Snapshot:  snapshot,
		SSHPort:   cfg.Machine.SSHPort,
		ExtraArgs: extra,
	}, nil
}

// Args returns the emulator arguments. The serial console is the process's
// stdio and the guest's port 22 is forwarded to SSHPort on the host.
func (s *Spec) Args() []string {
	snapshot := "off"
	if s.Snapshot {
		snapshot = "on"
	}

	args := []string{
		"-m", strconv.FormatInt(s.MemoryMB, 10),
	}
	if s.CPUs > 1 {
		args = append(args, "-smp", strconv.Itoa(s.CPUs))
	}
	args = append(args,
		"-drive", fmt.Sprintf("file=%s,format=raw,media=disk,snapshot=%s", s.Disk, snapshot),
		"-nographic",
		"-nic", fmt.Sprintf("user,hostfwd=tcp::%d-:22", s.SSHPort),
	)
	if s.Accel != "" {
		args = append(args, "-accel", s.Accel)
	}
	return append(args, s.ExtraArgs...)
}

// CommandLine returns the invocation as a shell command a user can paste.
func CommandLine(s *Spec) string {
	return shellquote.Join(append([]string{s.Binary}, s.Args()...)...)
}

// RunInteractive boots the image with the console on the user's terminal.
func RunInteractive(ctx context.Context, exec system.CommandExecutor, s *Spec) error {
	if _, err := exec.LookPath(s.Binary); err != nil {
		return fmt.Errorf("emulator not available: %w", err)
	}
	return exec.ExecuteInteractive(ctx, s.Binary, s.Args()...)
}
