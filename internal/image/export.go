package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	imgerrors "github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/release"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// Options selects what Export produces.
type Options struct {
	// Disk is the raw source image.
	Disk string

	Format Format

	// Output is the artifact path. Compression appends ".xz".
	Output string

	// Compress is "" or "none" for no compression, or "xz".
	Compress string

	// Release identifies the build in the manifest.
	Release *release.Release

	// ManifestPath is where the manifest is written; empty skips it.
	ManifestPath string
}

// Exporter produces artifacts from a raw disk.
type Exporter struct {
	Converter *Converter
	Archiver  *Archiver
}

// NewExporter creates an Exporter that runs host tools through exec.
func NewExporter(exec system.CommandExecutor, qemuImg string) *Exporter {
	return &Exporter{
		Converter: &Converter{Exec: exec, QEMUImg: qemuImg},
		Archiver:  &Archiver{Exec: exec, Tar: "tar", Cp: "cp"},
	}
}

// DefaultOutput returns the artifact path used when none is configured.
func DefaultOutput(dir string, r *release.Release, format Format) string {
	name := fmt.Sprintf("netbsd-%s-%s", strings.TrimPrefix(r.Branch, "netbsd-"), r.Arch)
	if r.Name != "" {
		name += "-" + r.Name
	}
	return filepath.Join(dir, name+format.Ext())
}

// Export writes the artifact and its manifest.
func (e *Exporter) Export(ctx context.Context, opts Options) (*Manifest, error) {
	if _, err := os.Stat(opts.Disk); err != nil {
		return nil, imgerrors.ImageError("export", fmt.Errorf("source disk: %w", err))
	}
	if opts.Output == "" {
		return nil, imgerrors.ImageError("export", fmt.Errorf("no output path"))
	}
	if err := os.MkdirAll(filepath.Dir(opts.Output), 0755); err != nil {
		return nil, imgerrors.ImageError("export", err)
	}

	switch opts.Format {
	case FormatRaw, FormatQCOW2:
		if err := e.Converter.Convert(ctx, opts.Disk, opts.Output, opts.Format); err != nil {
			return nil, imgerrors.ImageError("convert", err)
		}
	case FormatGCE:
		if err := e.Archiver.GCETarball(ctx, opts.Disk, opts.Output); err != nil {
			return nil, imgerrors.ImageError("archive", err)
		}
	default:
		return nil, imgerrors.ImageError("export", fmt.Errorf("unknown format %q", opts.Format))
	}

	artifact := Artifact{Path: opts.Output, Format: opts.Format}

	switch opts.Compress {
	case "", "none":
	case "xz":
		if opts.Format == FormatGCE {
			return nil, imgerrors.ImageError("compress", fmt.Errorf("gce tarballs are already compressed"))
		}
		compressed := opts.Output + ".xz"
		logging.Info("compressing artifact", "src", opts.Output, "dst", compressed)
		if err := CompressXZ(opts.Output, compressed); err != nil {
			return nil, imgerrors.ImageError("compress", err)
		}
		if err := os.Remove(opts.Output); err != nil {
			return nil, imgerrors.ImageError("compress", err)
		}
		artifact.Path = compressed
		artifact.Compressed = "xz"
	default:
		return nil, imgerrors.ImageError("compress", fmt.Errorf("unknown compression %q", opts.Compress))
	}

	info, err := os.Stat(artifact.Path)
	if err != nil {
		return nil, imgerrors.ImageError("export", err)
	}
	artifact.Size = info.Size()

	sums, err := ChecksumAll(ctx, []string{artifact.Path})
	if err != nil {
		return nil, imgerrors.ImageError("checksum", err)
	}
	artifact.SHA256 = sums[0]

	r := opts.Release
	if r == nil {
		r = &release.Release{}
	}
	m := NewManifest(r.Branch, r.Arch, r.Name, r.URL)
	m.Artifacts = append(m.Artifacts, artifact)

	if opts.ManifestPath != "" {
		if err := m.Write(opts.ManifestPath); err != nil {
			return nil, imgerrors.ImageError("manifest", err)
		}
	}

	logging.Info("exported image", "path", artifact.Path, "size", artifact.HumanSize(), "sha256", artifact.SHA256)
	return m, nil
}
