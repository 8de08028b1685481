// Package testutil provides test utilities for command-level tests
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/config"
	"github.com/firefly-engineering/netbsd-imager/internal/emulator"
	"github.com/firefly-engineering/netbsd-imager/internal/release"
	"github.com/firefly-engineering/netbsd-imager/internal/session"
	"github.com/firefly-engineering/netbsd-imager/internal/session/sessiontest"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// DefaultHTTPBase is the mirror URL FakeLocator builds release URLs from.
const DefaultHTTPBase = "https://nycdn.netbsd.org/pub/NetBSD-daily"

// FakeLocator serves releases from memory, newest first.
type FakeLocator struct {
	mu       sync.Mutex
	Branch   string
	Arch     string
	Releases []string
	Resolved []string
}

// NewFakeLocator creates a locator for branch/arch serving names.
func NewFakeLocator(branch, arch string, names ...string) *FakeLocator {
	return &FakeLocator{Branch: branch, Arch: arch, Releases: names}
}

func (f *FakeLocator) release(name string) release.Release {
	r := release.Release{
		Branch:  f.Branch,
		Arch:    f.Arch,
		Name:    name,
		ArchDir: f.Arch,
		URL:     DefaultHTTPBase + "/" + f.Branch + "/" + name + "/" + f.Arch + "/",
	}
	if t, err := release.ParseReleaseTime(name); err == nil {
		r.Time = t
	}
	return r
}

// Latest returns the first release.
func (f *FakeLocator) Latest(_ context.Context, branch, arch string) (*release.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Releases) == 0 {
		return nil, release.ErrReleaseNotFound
	}
	r := f.release(f.Releases[0])
	return &r, nil
}

// Resolve returns the named release.
func (f *FakeLocator) Resolve(_ context.Context, branch, arch, name string) (*release.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resolved = append(f.Resolved, name)
	r := f.release(name)
	return &r, nil
}

// List returns every release.
func (f *FakeLocator) List(_ context.Context, branch string) ([]release.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]release.Release, 0, len(f.Releases))
	for _, name := range f.Releases {
		r := f.release(name)
		r.Arch, r.ArchDir, r.URL = "", "", ""
		out = append(out, r)
	}
	return out, nil
}

// TestEnv holds the test environment
type TestEnv struct {
	T       *testing.T
	TmpDir  string
	Config  *config.Config
	Exec    *system.MockExecutor
	Shell   *sessiontest.Shell
	Booter  *sessiontest.Booter
	Locator *FakeLocator
	App     *app.App
	Specs   []*emulator.Spec
	cleanup func()
}

// NewTestEnv creates a test environment whose host tools and guest are
// fakes. anita and qemu-img create the files they would produce.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.WorkDir = filepath.Join(tmpDir, "work")
	cfg.Packages.Names = []string{"git"}
	cfg.Session.ShutdownTimeout = "50ms"

	exec := system.NewMockExecutor()
	exec.OnExecute = func(cmd system.MockCommand) {
		switch cmd.Name {
		case cfg.Installer.Anita:
			if len(cmd.Args) > 1 {
				_ = os.WriteFile(filepath.Join(cmd.Args[1], config.DiskImageName), []byte("disk"), 0644)
			}
		case cfg.Machine.QEMUImg:
			if len(cmd.Args) > 0 {
				_ = os.WriteFile(cmd.Args[len(cmd.Args)-1], []byte("image"), 0644)
			}
		}
	}

	env := &TestEnv{
		T:       t,
		TmpDir:  tmpDir,
		Config:  cfg,
		Exec:    exec,
		Shell:   sessiontest.NewShell(),
		Locator: NewFakeLocator(cfg.Branch, cfg.Arch, "202001031504Z", "202001021504Z"),
	}
	env.Booter = sessiontest.NewBooter(env.Shell)

	env.App = app.New(
		app.WithConfig(cfg),
		app.WithExecutor(exec),
		app.WithLocator(env.Locator),
		app.WithBooter(func(spec *emulator.Spec) session.Booter {
			env.Specs = append(env.Specs, spec)
			return env.Booter
		}),
	)

	// Save original default and set test app
	originalDefault := app.Default
	app.SetDefault(env.App)
	env.cleanup = func() {
		app.SetDefault(originalDefault)
	}

	return env
}

// Cleanup restores the original app default
func (e *TestEnv) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

// WorkDir returns the work directory of the build.
func (e *TestEnv) WorkDir() string {
	return e.Config.EffectiveWorkDir()
}

// CreateDisk writes a placeholder installed disk.
func (e *TestEnv) CreateDisk() string {
	e.T.Helper()

	if err := os.MkdirAll(e.WorkDir(), 0755); err != nil {
		e.T.Fatalf("Failed to create work dir: %v", err)
	}
	path := filepath.Join(e.WorkDir(), config.DiskImageName)
	if err := os.WriteFile(path, []byte("disk"), 0644); err != nil {
		e.T.Fatalf("Failed to write disk: %v", err)
	}
	return path
}

// SaveState writes the build state of the work directory.
func (e *TestEnv) SaveState(state *config.BuildState) {
	e.T.Helper()

	if err := config.SaveState(e.WorkDir(), state); err != nil {
		e.T.Fatalf("Failed to save state: %v", err)
	}
}

// State loads the build state of the work directory.
func (e *TestEnv) State() *config.BuildState {
	e.T.Helper()

	state, err := config.LoadState(e.WorkDir(), e.Config.Branch, e.Config.Arch)
	if err != nil {
		e.T.Fatalf("Failed to load state: %v", err)
	}
	return state
}

// WriteConfig writes cfg as TOML into the temp dir and returns its path.
func (e *TestEnv) WriteConfig(cfg *config.Config) string {
	e.T.Helper()

	path := filepath.Join(e.TmpDir, "imager.toml")
	f, err := os.Create(path)
	if err != nil {
		e.T.Fatalf("Failed to create config: %v", err)
	}
	defer func() { _ = f.Close() }()
	if err := cfg.Encode(f); err != nil {
		e.T.Fatalf("Failed to encode config: %v", err)
	}
	return path
}
