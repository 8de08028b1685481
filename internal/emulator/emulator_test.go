package emulator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/netbsd-imager/internal/config"
	"github.com/firefly-engineering/netbsd-imager/internal/session"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

func TestSpec_Args(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{
			name: "classic build",
			spec: Spec{Binary: "qemu-system-x86_64", MemoryMB: 4096, CPUs: 1, Disk: "work/wd0.img", SSHPort: 2222},
			want: []string{
				"-m", "4096",
				"-drive", "file=work/wd0.img,format=raw,media=disk,snapshot=off",
				"-nographic",
				"-nic", "user,hostfwd=tcp::2222-:22",
			},
		},
		{
			name: "snapshot with accel and extras",
			spec: Spec{
				Binary: "qemu-system-x86_64", MemoryMB: 2048, CPUs: 4, Disk: "/d.img",
				Snapshot: true, SSHPort: 2022, Accel: "kvm", ExtraArgs: []string{"-vga", "none"},
			},
			want: []string{
				"-m", "2048",
				"-smp", "4",
				"-drive", "file=/d.img,format=raw,media=disk,snapshot=on",
				"-nographic",
				"-nic", "user,hostfwd=tcp::2022-:22",
				"-accel", "kvm",
				"-vga", "none",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Args())
		})
	}
}

func TestCommandLine(t *testing.T) {
	spec := &Spec{Binary: "qemu-system-x86_64", MemoryMB: 4096, CPUs: 1, Disk: "work-netbsd-8-amd64/wd0.img", SSHPort: 2222}

	assert.Equal(t,
		"qemu-system-x86_64 -m 4096 -drive file=work-netbsd-8-amd64/wd0.img,format=raw,media=disk,snapshot=off -nographic -nic user,hostfwd=tcp::2222-:22",
		CommandLine(spec))

	spec.Disk = "my disk.img"
	assert.Contains(t, CommandLine(spec), `'file=my disk.img,format=raw,media=disk,snapshot=off'`)
}

func TestBinaryFor(t *testing.T) {
	bin, err := BinaryFor("amd64", "")
	require.NoError(t, err)
	assert.Equal(t, "qemu-system-x86_64", bin)

	bin, err = BinaryFor("i386", "")
	require.NoError(t, err)
	assert.Equal(t, "qemu-system-i386", bin)

	bin, err = BinaryFor("sparc64", "/opt/qemu/bin/qemu-system-sparc64")
	require.NoError(t, err)
	assert.Equal(t, "/opt/qemu/bin/qemu-system-sparc64", bin)

	_, err = BinaryFor("sparc64", "")
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Machine.ExtraArgs = `-vga none -name "netbsd build"`
	cfg.Machine.CPUs = 2

	spec, err := FromConfig(cfg, "/w/wd0.img", true)
	require.NoError(t, err)

	assert.Equal(t, "qemu-system-x86_64", spec.Binary)
	assert.Equal(t, int64(4096), spec.MemoryMB)
	assert.Equal(t, 2, spec.CPUs)
	assert.Equal(t, 2222, spec.SSHPort)
	assert.True(t, spec.Snapshot)
	assert.Equal(t, []string{"-vga", "none", "-name", "netbsd build"}, spec.ExtraArgs)
}

func TestFromConfig_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Machine.ExtraArgs = `-name "unterminated`
	_, err := FromConfig(cfg, "/w/wd0.img", false)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Arch = "vax"
	_, err = FromConfig(cfg, "/w/wd0.img", false)
	assert.Error(t, err)
}

func TestRunInteractive(t *testing.T) {
	mock := system.NewMockExecutor()
	spec := &Spec{Binary: "qemu-system-x86_64", MemoryMB: 4096, CPUs: 1, Disk: "wd0.img", SSHPort: 2222}

	require.NoError(t, RunInteractive(context.Background(), mock, spec))

	cmd, ok := mock.LastCommand()
	require.True(t, ok)
	assert.True(t, cmd.Interactive)
	assert.Equal(t, "qemu-system-x86_64", cmd.Name)
	assert.Equal(t, spec.Args(), cmd.Args)
}

func TestRunInteractive_MissingBinary(t *testing.T) {
	mock := system.NewMockExecutor()
	mock.MissingBinaries["qemu-system-x86_64"] = true
	spec := &Spec{Binary: "qemu-system-x86_64", MemoryMB: 4096, Disk: "wd0.img", SSHPort: 2222}

	err := RunInteractive(context.Background(), mock, spec)
	assert.Error(t, err)
	assert.Empty(t, mock.Commands)
}

func TestQEMU_BootMissingBinary(t *testing.T) {
	mock := system.NewMockExecutor()
	mock.MissingBinaries["qemu-system-x86_64"] = true

	q := NewQEMU(&Spec{Binary: "qemu-system-x86_64", MemoryMB: 64, Disk: "wd0.img", SSHPort: 2222})
	q.Exec = mock

	_, err := q.Boot(context.Background())
	assert.Error(t, err)
}

func TestQEMU_BootCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQEMU(&Spec{Binary: "qemu-system-x86_64"}).Boot(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConsoleErr(t *testing.T) {
	err := consoleErr(&timeoutErr{})
	assert.ErrorIs(t, err, session.ErrTimeout)

	plain := errors.New("read /dev/ptmx: input/output error")
	assert.Equal(t, plain, consoleErr(plain))
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
