package system

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMockExecutor_Execute(t *testing.T) {
	exec := NewMockExecutor()
	exec.AddResponse("qemu-img", []byte("ok\n"), nil)

	output, err := exec.Execute(context.Background(), "qemu-img", "convert", "-f", "raw")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if string(output) != "ok\n" {
		t.Errorf("Output = %q, want %q", string(output), "ok\n")
	}

	cmd, ok := exec.LastCommand()
	if !ok {
		t.Fatal("No command recorded")
	}
	if cmd.String() != "qemu-img convert -f raw" {
		t.Errorf("Command = %q", cmd.String())
	}
}

func TestMockExecutor_PatternPrecedence(t *testing.T) {
	exec := NewMockExecutor()
	exec.AddResponse("tar", []byte("name"), nil)
	exec.AddResponse("tar -Szcf", []byte("first-arg"), nil)
	exec.AddResponse("tar -Szcf out.tar.gz disk.raw", []byte("full"), nil)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-Szcf", "out.tar.gz", "disk.raw"}, "full"},
		{[]string{"-Szcf", "other.tar.gz"}, "first-arg"},
		{[]string{"-tf", "x"}, "name"},
	}

	for _, tt := range tests {
		out, _ := exec.Execute(context.Background(), "tar", tt.args...)
		if string(out) != tt.want {
			t.Errorf("tar %v = %q, want %q", tt.args, out, tt.want)
		}
	}
}

func TestMockExecutor_DefaultResponse(t *testing.T) {
	exec := NewMockExecutor()
	exec.DefaultResponse = MockResponse{Output: []byte("default"), Err: nil}

	output, err := exec.Execute(context.Background(), "unknown", "command")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if string(output) != "default" {
		t.Errorf("Output = %q, want %q", string(output), "default")
	}
}

func TestMockExecutor_Streaming(t *testing.T) {
	exec := NewMockExecutor()
	wantErr := errors.New("anita failed")
	exec.AddResponse("anita", []byte("sysinst output"), wantErr)

	var buf bytes.Buffer
	err := exec.ExecuteStreaming(context.Background(), &buf, "anita", "install")
	if err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if buf.String() != "sysinst output" {
		t.Errorf("streamed = %q", buf.String())
	}
}

func TestMockExecutor_OnExecute(t *testing.T) {
	exec := NewMockExecutor()
	var seen []string
	exec.OnExecute = func(cmd MockCommand) { seen = append(seen, cmd.String()) }

	_, _ = exec.Execute(context.Background(), "a", "1")
	_ = exec.ExecuteStreaming(context.Background(), nil, "b")

	if len(seen) != 2 || seen[0] != "a 1" || seen[1] != "b" {
		t.Errorf("hook saw %v", seen)
	}
}

func TestMockExecutor_LookPath(t *testing.T) {
	exec := NewMockExecutor()
	exec.Paths["anita"] = "/opt/anita/bin/anita"
	exec.MissingBinaries["qemu-system-sparc64"] = true

	if p, err := exec.LookPath("anita"); err != nil || p != "/opt/anita/bin/anita" {
		t.Errorf("LookPath(anita) = %q, %v", p, err)
	}
	if p, err := exec.LookPath("tar"); err != nil || p != "/usr/bin/tar" {
		t.Errorf("LookPath(tar) = %q, %v", p, err)
	}
	if _, err := exec.LookPath("qemu-system-sparc64"); err == nil {
		t.Error("LookPath should fail for missing binary")
	}
}

func TestMockExecutor_Interactive(t *testing.T) {
	exec := NewMockExecutor()
	exec.InteractiveErr = errors.New("exit status 1")

	if err := exec.ExecuteInteractive(context.Background(), "qemu-system-x86_64", "-nographic"); err == nil {
		t.Error("expected InteractiveErr")
	}
	cmd, _ := exec.LastCommand()
	if !cmd.Interactive {
		t.Error("command should be marked interactive")
	}
}

func TestMockExecutor_Reset(t *testing.T) {
	exec := NewMockExecutor()
	exec.Execute(context.Background(), "cmd1")
	exec.Execute(context.Background(), "cmd2")

	if len(exec.Commands) != 2 {
		t.Errorf("Commands length = %d, want 2", len(exec.Commands))
	}

	exec.Reset()

	if len(exec.Commands) != 0 {
		t.Errorf("Commands length after reset = %d, want 0", len(exec.Commands))
	}
}

func TestCommandLine(t *testing.T) {
	if got := CommandLine("true"); got != "true" {
		t.Errorf("CommandLine(true) = %q", got)
	}
	if got := CommandLine("qemu-img", "info", "wd0.img"); got != "qemu-img info wd0.img" {
		t.Errorf("CommandLine = %q", got)
	}
}
