package ssh

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions(2222)

	if opts.Port != 2222 {
		t.Errorf("Port = %d, want 2222", opts.Port)
	}
	if opts.Host != DefaultHost {
		t.Errorf("Host = %q, want %q", opts.Host, DefaultHost)
	}
	if opts.User != DefaultUser {
		t.Errorf("User = %q, want %q", opts.User, DefaultUser)
	}
	if opts.StrictHostKeyCheck {
		t.Error("StrictHostKeyCheck should be false by default")
	}
	if opts.BatchMode || opts.RequestTTY {
		t.Error("BatchMode and RequestTTY should be off by default")
	}
}

func TestOptionsCopies(t *testing.T) {
	base := DefaultOptions(2222)
	opts := base.WithUser("builder").WithBatchMode().WithTimeout(10).WithIdentity("/tmp/key")

	if opts.User != "builder" || !opts.BatchMode || opts.ConnectTimeout != 10 || opts.IdentityFile != "/tmp/key" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if base.User != DefaultUser || base.BatchMode {
		t.Error("With* must not modify the receiver")
	}
}

func TestBuildArgs(t *testing.T) {
	args := DefaultOptions(2222).WithBatchMode().WithTTY().BuildArgs("uname", "-sr")
	got := strings.Join(args, " ")

	want := "-p 2222 -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o BatchMode=yes -o ConnectTimeout=5 -t root@127.0.0.1 uname -sr"
	if got != want {
		t.Errorf("BuildArgs() =\n  %s\nwant\n  %s", got, want)
	}
}

func TestBuildArgs_StrictHostKey(t *testing.T) {
	opts := DefaultOptions(22)
	opts.StrictHostKeyCheck = true
	opts.KnownHostsFile = ""

	got := strings.Join(opts.BuildArgs(), " ")
	if strings.Contains(got, "StrictHostKeyChecking") || strings.Contains(got, "UserKnownHostsFile") {
		t.Errorf("BuildArgs() = %q, want no host key overrides", got)
	}
}

func TestCommandLine(t *testing.T) {
	got := DefaultOptions(2222).CommandLine("echo", "hello world")
	if !strings.HasPrefix(got, "ssh -p 2222 ") {
		t.Errorf("CommandLine() = %q", got)
	}
	if !strings.HasSuffix(got, "root@127.0.0.1 echo 'hello world'") {
		t.Errorf("CommandLine() = %q, want quoted command", got)
	}
}

func TestInteractive(t *testing.T) {
	mock := system.NewMockExecutor()

	if err := Interactive(context.Background(), mock, DefaultOptions(2222)); err != nil {
		t.Fatalf("Interactive failed: %v", err)
	}
	cmd, ok := mock.LastCommand()
	if !ok || !cmd.Interactive || cmd.Name != "ssh" {
		t.Fatalf("LastCommand() = %+v", cmd)
	}
	if strings.Contains(strings.Join(cmd.Args, " "), "-t") {
		t.Error("a login shell should not force a TTY")
	}

	if err := Interactive(context.Background(), mock, DefaultOptions(2222), "top"); err != nil {
		t.Fatalf("Interactive failed: %v", err)
	}
	cmd, _ = mock.LastCommand()
	if !strings.Contains(strings.Join(cmd.Args, " "), " -t ") {
		t.Error("a command should request a TTY")
	}
}

func TestInteractive_MissingSSH(t *testing.T) {
	mock := system.NewMockExecutor()
	mock.MissingBinaries["ssh"] = true

	if err := Interactive(context.Background(), mock, DefaultOptions(2222)); err == nil {
		t.Error("expected error when ssh is missing")
	}
}

func TestRun(t *testing.T) {
	mock := system.NewMockExecutor()
	mock.AddResponse("ssh", []byte("NetBSD 8.1\n"), nil)

	out, err := Run(context.Background(), mock, DefaultOptions(2222), "uname", "-sr")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out != "NetBSD 8.1\n" {
		t.Errorf("Run() = %q", out)
	}
	cmd, _ := mock.LastCommand()
	if !strings.Contains(cmd.String(), "BatchMode=yes") {
		t.Errorf("Run should use batch mode: %s", cmd.String())
	}

	mock.AddResponse("ssh", nil, errors.New("exit status 255"))
	if _, err := Run(context.Background(), mock, DefaultOptions(2222), "true"); err == nil {
		t.Error("expected error")
	}
}
