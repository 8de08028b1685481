// Package pipeline runs the image build stages in order:
//
//	locate → install → provision → export → verify
//
// Progress is recorded in the work directory's build state, so a failed
// or interrupted build resumes where it stopped.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/netbsd-imager/internal/audit"
	"github.com/firefly-engineering/netbsd-imager/internal/config"
	"github.com/firefly-engineering/netbsd-imager/internal/emulator"
	imgerrors "github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/image"
	"github.com/firefly-engineering/netbsd-imager/internal/installer"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/port"
	"github.com/firefly-engineering/netbsd-imager/internal/provision"
	"github.com/firefly-engineering/netbsd-imager/internal/release"
	"github.com/firefly-engineering/netbsd-imager/internal/session"
	"github.com/firefly-engineering/netbsd-imager/internal/sshcheck"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// Locator finds releases on the mirror.
type Locator interface {
	Latest(ctx context.Context, branch, arch string) (*release.Release, error)
	Resolve(ctx context.Context, branch, arch, name string) (*release.Release, error)
}

// BooterFunc creates a booter for an emulator spec.
type BooterFunc func(spec *emulator.Spec) session.Booter

// Builder runs build stages for one configuration.
type Builder struct {
	Config  *config.Config
	Exec    system.CommandExecutor
	Locator Locator

	// NewBooter creates the emulator for each boot. Defaults to QEMU.
	NewBooter BooterFunc
}

// Options control a build.
type Options struct {
	// Release pins a release directory.
	Release string

	// Latest locates the newest release even when the work directory
	// already records one.
	Latest bool

	// Force reinstalls the disk and re-runs every batch.
	Force bool

	// Batches restricts provisioning to the named batches.
	Batches []string

	// Verify boots the finished image and logs in over SSH.
	Verify bool
}

// Result summarises a build.
type Result struct {
	Release      *release.Release
	Install      installer.Outcome
	Applied      []string
	Skipped      []string
	Manifest     *image.Manifest
	VerifyOutput string

	// RunCommand boots the finished disk by hand.
	RunCommand string

	// ConvertCommand converts the raw disk by hand.
	ConvertCommand string

	Duration time.Duration
}

// New creates a Builder.
func New(cfg *config.Config, exec system.CommandExecutor, locator Locator) *Builder {
	return &Builder{Config: cfg, Exec: exec, Locator: locator}
}

func (b *Builder) workDir() string {
	return b.Config.EffectiveWorkDir()
}

// DiskPath returns the raw disk image path.
func (b *Builder) DiskPath() (string, error) {
	return config.WorkPath(b.workDir(), config.DiskImageName)
}

// State loads the build state.
func (b *Builder) State() (*config.BuildState, error) {
	state, err := config.LoadState(b.workDir(), b.Config.Branch, b.Config.Arch)
	if err != nil {
		return nil, imgerrors.ConfigError("failed to load build state", err)
	}
	return state, nil
}

// Events returns the event log of the work directory.
func (b *Builder) Events() *audit.Logger {
	return audit.NewLogger(b.workDir())
}

// record appends an event; a failed write is logged, not returned.
func (b *Builder) record(t audit.EventType, release, details string) {
	if err := b.Events().LogEvent(t, release, details); err != nil {
		logging.Warn("failed to record event", "type", t, "error", err)
	}
}

// fail records err against stage and returns it.
func (b *Builder) fail(stage, release string, err error) error {
	b.record(audit.EventError, release, fmt.Sprintf("%s: %v", stage, err))
	return err
}

func (b *Builder) saveState(state *config.BuildState) error {
	if err := config.SaveState(b.workDir(), state); err != nil {
		return imgerrors.ConfigError("failed to save build state", err)
	}
	return nil
}

// Locate finds the release to build. A pinned name wins; otherwise the
// release recorded in the work directory is reused unless latest is set.
func (b *Builder) Locate(ctx context.Context, pin string, latest bool) (*release.Release, error) {
	cfg := b.Config
	if pin == "" {
		pin = cfg.Mirror.Release
	}

	if pin != "" {
		logging.Info("resolving pinned release", "branch", cfg.Branch, "arch", cfg.Arch, "release", pin)
		return b.Locator.Resolve(ctx, cfg.Branch, cfg.Arch, pin)
	}

	if !latest {
		state, err := b.State()
		if err != nil {
			return nil, err
		}
		if state.Release != "" && state.ReleaseURL != "" {
			logging.Info("resuming recorded release", "release", state.Release)
			return recordedRelease(state), nil
		}
	}

	logging.Info("locating latest release", "branch", cfg.Branch, "arch", cfg.Arch)
	return b.Locator.Latest(ctx, cfg.Branch, cfg.Arch)
}

func recordedRelease(state *config.BuildState) *release.Release {
	r := &release.Release{
		Branch: state.Branch,
		Arch:   state.Arch,
		Name:   state.Release,
		URL:    state.ReleaseURL,
	}
	parts := strings.Split(strings.TrimSuffix(state.ReleaseURL, "/"), "/")
	r.ArchDir = parts[len(parts)-1]
	if t, err := release.ParseReleaseTime(state.Release); err == nil {
		r.Time = t
	}
	return r
}

// Install installs r into the work directory. Changing release, or
// force, replaces an existing disk.
func (b *Builder) Install(ctx context.Context, r *release.Release, force bool) (installer.Outcome, error) {
	state, err := b.State()
	if err != nil {
		return "", err
	}

	if state.Release != "" && state.Release != r.Name {
		logging.Warn("release changed, reinstalling", "from", state.Release, "to", r.Name)
		force = true
	}
	state.SetRelease(r.Name, r.URL)
	if force {
		state.Reset()
		// Events of the replaced disk no longer describe it.
		if err := b.Events().Remove(); err != nil {
			logging.Warn("failed to clear event log", "error", err)
		}
	}

	inst, err := installer.FromConfig(b.Config, b.Exec)
	if err != nil {
		return "", imgerrors.ConfigError("invalid installer configuration", err)
	}

	outcome, err := inst.Install(ctx, r, force)
	if err != nil {
		return "", b.fail("install", r.Name, err)
	}
	if outcome == installer.Installed {
		b.record(audit.EventInstall, r.Name, r.URL)
	}

	if outcome == installer.Installed || !state.Installed() {
		state.InstalledAt = time.Now().UTC()
	}
	if err := b.saveState(state); err != nil {
		return "", err
	}
	return outcome, nil
}

// Plan returns the provisioning batches for the configuration.
func (b *Builder) Plan() ([]provision.Batch, error) {
	keys, err := b.Config.ResolveAuthorizedKeys()
	if err != nil {
		return nil, imgerrors.ConfigError("failed to read authorized keys", err)
	}
	return provision.DefaultPlan(b.Config, keys), nil
}

// Provision runs the provisioning batches on the installed disk and
// returns the batches it applied and skipped.
func (b *Builder) Provision(ctx context.Context, names []string, force bool) (applied, skipped []string, err error) {
	disk, err := b.requireDisk()
	if err != nil {
		return nil, nil, err
	}

	plan, err := b.Plan()
	if err != nil {
		return nil, nil, err
	}
	plan, err = provision.Select(plan, names)
	if err != nil {
		return nil, nil, imgerrors.ValidationError(err.Error())
	}

	state, err := b.State()
	if err != nil {
		return nil, nil, err
	}

	driver, _, err := b.driver(disk, false)
	if err != nil {
		return nil, nil, err
	}

	done := func(name string) bool {
		if !force && state.HasBatch(name) {
			skipped = append(skipped, name)
			return true
		}
		return false
	}
	completed := func(name string) error {
		applied = append(applied, name)
		b.record(audit.EventBatch, state.Release, name)
		state.MarkBatch(name)
		// The disk changed, so an earlier export no longer matches it.
		state.Manifest = ""
		return b.saveState(state)
	}

	if err = provision.Apply(ctx, driver, plan, done, completed); err != nil {
		return applied, skipped, b.fail("provision", state.Release, err)
	}
	return applied, skipped, nil
}

// ExportPath returns the artifact path for r under the configured format.
func (b *Builder) ExportPath(r *release.Release) (string, image.Format, error) {
	format, err := image.ParseFormat(b.Config.Output.Format)
	if err != nil {
		return "", "", imgerrors.ValidationError(err.Error())
	}
	if b.Config.Output.Path != "" {
		return b.Config.Output.Path, format, nil
	}
	return image.DefaultOutput(b.workDir(), r, format), format, nil
}

// Export produces the configured artifact and records its manifest.
func (b *Builder) Export(ctx context.Context) (*image.Manifest, error) {
	disk, err := b.requireDisk()
	if err != nil {
		return nil, err
	}

	state, err := b.State()
	if err != nil {
		return nil, err
	}
	r := recordedRelease(state)
	r.Branch, r.Arch = b.Config.Branch, b.Config.Arch

	output, format, err := b.ExportPath(r)
	if err != nil {
		return nil, err
	}
	manifestPath, err := config.WorkPath(b.workDir(), config.ManifestFileName)
	if err != nil {
		return nil, imgerrors.ImageError("export", err)
	}

	exporter := image.NewExporter(b.Exec, b.Config.Machine.QEMUImg)
	m, err := exporter.Export(ctx, image.Options{
		Disk:         disk,
		Format:       format,
		Output:       output,
		Compress:     b.Config.Output.Compress,
		Release:      r,
		ManifestPath: manifestPath,
	})
	if err != nil {
		return nil, b.fail("export", r.Name, err)
	}
	for _, a := range m.Artifacts {
		b.record(audit.EventExport, r.Name, a.Path)
	}

	state.Manifest = manifestPath
	if err := b.saveState(state); err != nil {
		return nil, err
	}
	return m, nil
}

// Verify boots a snapshot of the disk and logs in over SSH.
func (b *Builder) Verify(ctx context.Context) (string, error) {
	disk, err := b.requireDisk()
	if err != nil {
		return "", err
	}

	driver, spec, err := b.driver(disk, true)
	if err != nil {
		return "", err
	}

	v := &sshcheck.Verifier{
		Driver:  driver,
		User:    b.Config.Session.User,
		Addr:    fmt.Sprintf("127.0.0.1:%d", spec.SSHPort),
		Timeout: b.Config.VerifyTimeout(),
	}
	logging.Info("verifying ssh access", "addr", v.Addr, "user", v.User)

	var name string
	if state, err := b.State(); err == nil {
		name = state.Release
	}
	out, err := v.Verify(ctx)
	if err != nil {
		return "", b.fail("verify", name, err)
	}
	b.record(audit.EventVerify, name, strings.TrimSpace(out))
	return out, nil
}

// Build runs every stage.
func (b *Builder) Build(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{}

	r, err := b.Locate(ctx, opts.Release, opts.Latest || opts.Force)
	if err != nil {
		return nil, err
	}
	res.Release = r
	logging.Info("building release", "release", r.Name, "url", r.URL)

	if res.Install, err = b.Install(ctx, r, opts.Force); err != nil {
		return nil, err
	}

	if res.Applied, res.Skipped, err = b.Provision(ctx, opts.Batches, opts.Force); err != nil {
		return nil, err
	}

	if res.Manifest, err = b.Export(ctx); err != nil {
		return nil, err
	}

	if opts.Verify {
		if res.VerifyOutput, err = b.Verify(ctx); err != nil {
			return nil, err
		}
	}

	if res.RunCommand, res.ConvertCommand, err = b.Hints(); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Hints returns the commands that boot and convert the raw disk by hand.
func (b *Builder) Hints() (run, convert string, err error) {
	disk, err := b.DiskPath()
	if err != nil {
		return "", "", err
	}
	spec, err := emulator.FromConfig(b.Config, disk, false)
	if err != nil {
		return "", "", imgerrors.ConfigError("invalid machine configuration", err)
	}
	run = emulator.CommandLine(spec)

	out := fmt.Sprintf("netbsd-%s-%s.qcow2", strings.TrimPrefix(b.Config.Branch, "netbsd-"), b.Config.Arch)
	convert = shellquote.Join(b.Config.Machine.QEMUImg, "convert", "-f", "raw", disk, "-O", "qcow2", out)
	return run, convert, nil
}

// RunSpec returns the emulator spec for booting the disk interactively.
func (b *Builder) RunSpec(snapshot bool) (*emulator.Spec, error) {
	disk, err := b.requireDisk()
	if err != nil {
		return nil, err
	}
	spec, err := emulator.FromConfig(b.Config, disk, snapshot)
	if err != nil {
		return nil, imgerrors.ConfigError("invalid machine configuration", err)
	}
	return spec, nil
}

func (b *Builder) requireDisk() (string, error) {
	disk, err := b.DiskPath()
	if err != nil {
		return "", imgerrors.ConfigError("invalid work directory", err)
	}
	if _, err := os.Stat(disk); err != nil {
		return "", imgerrors.ValidationError(fmt.Sprintf("no disk image at %s; run install first", disk))
	}
	return disk, nil
}

func (b *Builder) driver(disk string, snapshot bool) (*session.Driver, *emulator.Spec, error) {
	spec, err := emulator.FromConfig(b.Config, disk, snapshot)
	if err != nil {
		return nil, nil, imgerrors.ConfigError("invalid machine configuration", err)
	}

	p, err := port.Resolve(spec.SSHPort, port.DefaultSpan)
	if err != nil {
		return nil, nil, imgerrors.EmulatorFailed("port forward", err)
	}
	if p != spec.SSHPort {
		logging.Warn("ssh port in use, forwarding another", "configured", spec.SSHPort, "port", p)
		spec.SSHPort = p
	}

	newBooter := b.NewBooter
	if newBooter == nil {
		newBooter = func(s *emulator.Spec) session.Booter {
			q := emulator.NewQEMU(s)
			q.Exec = b.Exec
			return q
		}
	}

	d := session.NewDriver(newBooter(spec), b.Config.Session.User, b.Config.Session.Password)
	d.BootTimeout = b.Config.BootTimeout()
	d.CommandTimeout = b.Config.CommandTimeout()
	d.ShutdownTimeout = b.Config.ShutdownTimeout()
	return d, spec, nil
}
