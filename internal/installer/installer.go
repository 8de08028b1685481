// Package installer runs the NetBSD installer against a fresh disk image.
//
// The sysinst dialogue itself is driven by anita; this package only
// decides whether an install is needed and assembles the anita call.
package installer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-shellwords"

	"github.com/firefly-engineering/netbsd-imager/internal/config"
	imgerrors "github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/release"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// Outcome reports what Install did.
type Outcome string

const (
	Installed Outcome = "installed"
	Skipped   Outcome = "skipped"
)

// Installer installs a release into <WorkDir>/wd0.img with anita.
type Installer struct {
	Exec       system.CommandExecutor
	Anita      string
	WorkDir    string
	DiskSize   string
	MemorySize string
	ExtraArgs  []string

	// Output receives anita's progress. Defaults to the debug log.
	Output io.Writer
}

// FromConfig creates an Installer for cfg.
func FromConfig(cfg *config.Config, exec system.CommandExecutor) (*Installer, error) {
	extra, err := shellwords.Parse(cfg.Installer.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid installer.extra_args: %w", err)
	}
	return &Installer{
		Exec:       exec,
		Anita:      cfg.Installer.Anita,
		WorkDir:    cfg.EffectiveWorkDir(),
		DiskSize:   cfg.Machine.DiskSize,
		MemorySize: cfg.Machine.MemorySize,
		ExtraArgs:  extra,
	}, nil
}

// DiskPath returns the raw disk image path.
func (i *Installer) DiskPath() (string, error) {
	return config.WorkPath(i.WorkDir, config.DiskImageName)
}

// Args returns the anita arguments for installing from url.
func (i *Installer) Args(url string) []string {
	args := []string{
		"--workdir", i.WorkDir,
		"--disk-size", i.DiskSize,
		"--memory-size", i.MemorySize,
		"--persist",
	}
	args = append(args, i.ExtraArgs...)
	return append(args, "install", url)
}

// Install installs r unless a disk image already exists and force is false.
func (i *Installer) Install(ctx context.Context, r *release.Release, force bool) (Outcome, error) {
	disk, err := i.DiskPath()
	if err != nil {
		return "", imgerrors.InstallFailed(err)
	}

	if _, err := os.Stat(disk); err == nil {
		if !force {
			logging.Info("disk image exists, skipping install", "disk", disk)
			return Skipped, nil
		}
		logging.Info("removing existing disk image", "disk", disk)
		if err := os.Remove(disk); err != nil {
			return "", imgerrors.InstallFailed(err)
		}
	}

	if _, err := i.Exec.LookPath(i.Anita); err != nil {
		return "", imgerrors.InstallFailed(fmt.Errorf("anita not available: %w", err))
	}

	if err := os.MkdirAll(i.WorkDir, 0755); err != nil {
		return "", imgerrors.InstallFailed(fmt.Errorf("failed to create work directory: %w", err))
	}

	out := i.Output
	if out == nil {
		w := logging.NewConsoleWriter("anita")
		defer w.Close()
		out = w
	}

	logging.Info("installing release", "release", r.Name, "url", r.URL, "workdir", i.WorkDir)
	if err := i.Exec.ExecuteStreaming(ctx, out, i.Anita, i.Args(r.URL)...); err != nil {
		return "", imgerrors.InstallFailed(err)
	}

	if _, err := os.Stat(disk); err != nil {
		return "", imgerrors.InstallFailed(fmt.Errorf("anita finished but %s is missing: %w", disk, err))
	}

	return Installed, nil
}
