package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/session/sessiontest"
	"github.com/firefly-engineering/netbsd-imager/internal/testutil"
)

const pkgAddGit = `env PKG_PATH="http://cdn.NetBSD.org/pub/pkgsrc/packages/NetBSD/amd64/8.1/All/" pkg_add git`

// resetFlags restores every flag to its default so one test's flags do
// not leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(args ...string) (string, string, error) {
	resetFlags(rootCmd)

	cmd := rootCmd
	cmd.SetArgs(args)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()

	// Reset args for next test
	cmd.SetArgs(nil)
	cmd.SetOut(nil)
	cmd.SetErr(nil)

	return stdout.String(), stderr.String(), err
}

func newEnv(t *testing.T) *testutil.TestEnv {
	t.Helper()
	env := testutil.NewTestEnv(t)
	t.Cleanup(env.Cleanup)
	return env
}

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	require.NoError(t, err)

	assert.Contains(t, stdout, "netbsd-imager")
	assert.Contains(t, stdout, "NetBSD")
	for _, sub := range []string{"locate", "releases", "install", "provision", "export", "verify", "build", "run", "ssh", "status", "history", "config"} {
		assert.Contains(t, stdout, sub)
	}
}

func TestBuildCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("build", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--release", "--latest", "--pick", "--force", "--verify", "--batch", "--format", "--compress"} {
		assert.Contains(t, stdout, flag)
	}
}

func TestLocate(t *testing.T) {
	newEnv(t)

	stdout, _, err := executeCommand("locate")
	require.NoError(t, err)
	assert.Equal(t, "https://nycdn.netbsd.org/pub/NetBSD-daily/netbsd-8/202001031504Z/amd64/\n", stdout)
}

func TestLocate_PinnedRelease(t *testing.T) {
	env := newEnv(t)

	stdout, _, err := executeCommand("locate", "--release", "202001021504Z")
	require.NoError(t, err)
	assert.Contains(t, stdout, "/202001021504Z/amd64/")
	assert.Equal(t, []string{"202001021504Z"}, env.Locator.Resolved)
}

func TestReleases(t *testing.T) {
	newEnv(t)

	stdout, _, err := executeCommand("releases")
	require.NoError(t, err)
	assert.Contains(t, stdout, "netbsd-8 releases")
	assert.Contains(t, stdout, "202001031504Z")
	assert.Contains(t, stdout, "202001021504Z")

	stdout, _, err = executeCommand("releases", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "202001031504Z")
	assert.NotContains(t, stdout, "202001021504Z")
}

func TestBuild(t *testing.T) {
	env := newEnv(t)

	stdout, _, err := executeCommand("build")
	require.NoError(t, err)

	disk := filepath.Join(env.WorkDir(), "wd0.img")
	assert.Contains(t, stdout, "To run the image:")
	assert.Contains(t, stdout, "qemu-system-x86_64 -m 4096 -drive file="+disk+",format=raw,media=disk,snapshot=off")
	assert.Contains(t, stdout, "ssh -p 2222 ")
	assert.Contains(t, stdout, "qemu-img convert -f raw "+disk+" -O qcow2 netbsd-8-amd64.qcow2")
	assert.Contains(t, stdout, filepath.Join(env.WorkDir(), "netbsd-8-amd64-202001031504Z.qcow2"))

	state := env.State()
	assert.Equal(t, "202001031504Z", state.Release)
	assert.Equal(t, []string{"network", "packages", "settle"}, state.CompletedBatches)
	assert.Contains(t, env.Shell.Commands(), pkgAddGit)
}

func TestBuild_FailureResumes(t *testing.T) {
	env := newEnv(t)
	env.Shell.Results[pkgAddGit] = sessiontest.Result{Output: "pkg_add: no pkg found for 'git', sorry.", Status: 1}

	_, _, err := executeCommand("build")
	require.Error(t, err)
	assert.Equal(t, errors.ExitCommandFailed, errors.GetExitCode(err))
	assert.Equal(t, []string{"network"}, env.State().CompletedBatches)

	delete(env.Shell.Results, pkgAddGit)
	_, _, err = executeCommand("build")
	require.NoError(t, err)
	assert.Equal(t, []string{"network", "packages", "settle"}, env.State().CompletedBatches)
}

func TestBuild_MutuallyExclusiveReleaseFlags(t *testing.T) {
	newEnv(t)

	_, _, err := executeCommand("build", "--release", "202001021504Z", "--latest")
	assert.Error(t, err)
}

func TestInstallAndStatus(t *testing.T) {
	env := newEnv(t)

	stdout, _, err := executeCommand("status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Release: none")

	_, _, err = executeCommand("install", "--release", "202001021504Z")
	require.NoError(t, err)

	stdout, _, err = executeCommand("status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Release: 202001021504Z")
	assert.Contains(t, stdout, "Disk: ✓")
	assert.Contains(t, stdout, "(24 GiB)")
	assert.Contains(t, stdout, "✗ network")
	assert.Contains(t, stdout, "✗ settle")

	_, _, err = executeCommand("provision", "--batch", "network")
	require.NoError(t, err)

	stdout, _, err = executeCommand("status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ network")
	assert.Contains(t, stdout, "✗ packages")
	assert.Equal(t, 1, env.Booter.Boots())
}

func TestStatus_ShowsExport(t *testing.T) {
	newEnv(t)

	_, _, err := executeCommand("build")
	require.NoError(t, err)

	stdout, _, err := executeCommand("status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Export: build ")
	assert.Contains(t, stdout, "Checksums: ✓")
}

func TestProvision_RequiresDisk(t *testing.T) {
	env := newEnv(t)

	_, _, err := executeCommand("provision")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run install first")
	assert.Equal(t, 0, env.Booter.Boots())
}

func TestExport(t *testing.T) {
	env := newEnv(t)
	env.CreateDisk()

	out := filepath.Join(env.TmpDir, "out.img")
	stdout, _, err := executeCommand("export", "--format", "raw", "--output", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, out)

	cmd, ok := env.Exec.LastCommand()
	require.True(t, ok)
	assert.Contains(t, cmd.String(), "-O raw")
}

func TestExport_InvalidFormat(t *testing.T) {
	env := newEnv(t)
	env.CreateDisk()

	_, _, err := executeCommand("export", "--format", "vmdk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRun_Print(t *testing.T) {
	env := newEnv(t)
	disk := env.CreateDisk()

	stdout, _, err := executeCommand("run", "--print", "--snapshot")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "qemu-system-x86_64 "))
	assert.Contains(t, stdout, "file="+disk+",format=raw,media=disk,snapshot=on")
	assert.Contains(t, stdout, "hostfwd=tcp::2222-:22")
	assert.Empty(t, env.Exec.Commands)
}

func TestRun_Interactive(t *testing.T) {
	env := newEnv(t)
	env.CreateDisk()

	_, _, err := executeCommand("run")
	require.NoError(t, err)

	cmd, ok := env.Exec.LastCommand()
	require.True(t, ok)
	assert.True(t, cmd.Interactive)
	assert.Equal(t, "qemu-system-x86_64", cmd.Name)
}

func TestConfigShow(t *testing.T) {
	newEnv(t)

	stdout, _, err := executeCommand("config", "show", "--branch", "netbsd-9")
	require.NoError(t, err)
	assert.Contains(t, stdout, `branch = "netbsd-9"`)
	assert.Contains(t, stdout, `disk_size = "24G"`)
}

func TestConfigFile(t *testing.T) {
	env := newEnv(t)

	cfg, err := testutil.ValidConfig()
	require.NoError(t, err)
	cfg.WorkDir = filepath.Join(env.TmpDir, "from-file")
	path := env.WriteConfig(cfg)

	stdout, _, err := executeCommand("config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `branch = "netbsd-9"`)
	assert.Contains(t, stdout, `format = "gce"`)
	assert.Contains(t, stdout, "from-file")
}

func TestConfigFile_Invalid(t *testing.T) {
	env := newEnv(t)

	cfg, err := testutil.InvalidConfig()
	require.NoError(t, err)
	path := env.WriteConfig(cfg)

	_, _, err = executeCommand("status", "--config", path)
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfigError, errors.GetExitCode(err))
}

func TestSSH_Interactive(t *testing.T) {
	env := newEnv(t)

	_, _, err := executeCommand("ssh")
	require.NoError(t, err)

	cmd, ok := env.Exec.LastCommand()
	require.True(t, ok)
	assert.True(t, cmd.Interactive)
	assert.Equal(t, "ssh", cmd.Name)
	assert.Contains(t, cmd.String(), "-p 2222")
	assert.Contains(t, cmd.String(), "root@127.0.0.1")
}

func TestSSH_Batch(t *testing.T) {
	env := newEnv(t)
	env.Exec.AddResponse("ssh", []byte("NetBSD 8.1\n"), nil)

	stdout, _, err := executeCommand("ssh", "--batch", "--port", "2300", "--", "uname", "-sr")
	require.NoError(t, err)
	assert.Equal(t, "NetBSD 8.1\n", stdout)

	cmd, ok := env.Exec.LastCommand()
	require.True(t, ok)
	assert.Contains(t, cmd.String(), "-p 2300")
	assert.Contains(t, cmd.String(), "BatchMode=yes")
	assert.True(t, strings.HasSuffix(cmd.String(), "uname -sr"))
}

func TestSSH_BatchNeedsCommand(t *testing.T) {
	newEnv(t)

	_, _, err := executeCommand("ssh", "--batch")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	newEnv(t)

	_, _, err := executeCommand("history")
	require.NoError(t, err)

	_, _, err = executeCommand("build")
	require.NoError(t, err)

	stdout, _, err := executeCommand("history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "install  202001031504Z")
	assert.Contains(t, stdout, "batch    202001031504Z (settle)")

	stdout, _, err = executeCommand("history", "--raw")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"type":"export"`)
}

func TestHistory_ClearedByForcedBuild(t *testing.T) {
	newEnv(t)

	_, _, err := executeCommand("build")
	require.NoError(t, err)
	_, _, err = executeCommand("build", "--force")
	require.NoError(t, err)

	stdout, _, err := executeCommand("history")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "install  202001031504Z"))
}
