// Package image turns the raw disk left by installation and provisioning
// into distributable artifacts: qcow2 or raw images (optionally xz
// compressed) and Google Compute Engine tarballs.
package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// Format is an output artifact format.
type Format string

const (
	FormatRaw   Format = "raw"
	FormatQCOW2 Format = "qcow2"
	FormatGCE   Format = "gce"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatRaw, FormatQCOW2, FormatGCE:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (must be raw, qcow2, or gce)", s)
}

// Ext returns the file extension artifacts of this format carry.
func (f Format) Ext() string {
	switch f {
	case FormatQCOW2:
		return ".qcow2"
	case FormatGCE:
		return ".tar.gz"
	default:
		return ".img"
	}
}

// gceDiskName is the file name GCE expects inside an image tarball.
const gceDiskName = "disk.raw"

// Converter converts raw disks with qemu-img.
type Converter struct {
	Exec    system.CommandExecutor
	QEMUImg string
}

// Convert writes src (raw) to dst in format.
func (c *Converter) Convert(ctx context.Context, src, dst string, format Format) error {
	if format == FormatGCE {
		return fmt.Errorf("gce is not a qemu-img format")
	}
	if _, err := c.Exec.LookPath(c.QEMUImg); err != nil {
		return fmt.Errorf("qemu-img not available: %w", err)
	}

	logging.Info("converting disk", "src", src, "dst", dst, "format", format)
	_, err := c.Exec.Execute(ctx, c.QEMUImg, "convert", "-f", "raw", "-O", string(format), src, dst)
	return err
}

// Archiver packs raw disks into GCE image tarballs.
type Archiver struct {
	Exec system.CommandExecutor
	Tar  string
	Cp   string
}

// GCETarball writes dst, a gzipped tarball holding src as disk.raw.
// Holes in the raw image are preserved.
func (a *Archiver) GCETarball(ctx context.Context, src, dst string) error {
	staging, err := os.MkdirTemp(filepath.Dir(dst), ".gce-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	staged := filepath.Join(staging, gceDiskName)
	if err := os.Link(src, staged); err != nil {
		logging.Debug("hard link failed, copying", "src", src, "error", err)
		if _, err := a.Exec.Execute(ctx, a.Cp, "--sparse=always", src, staged); err != nil {
			return fmt.Errorf("failed to stage disk: %w", err)
		}
	}

	logging.Info("creating gce tarball", "src", src, "dst", dst)
	_, err = a.Exec.Execute(ctx, a.Tar, "--format=oldgnu", "-Szcf", dst, "-C", staging, gceDiskName)
	return err
}
