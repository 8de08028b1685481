package image

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Artifact is one file produced by an export.
type Artifact struct {
	Path       string `json:"path"`
	Format     Format `json:"format"`
	Compressed string `json:"compressed,omitempty"`
	Size       int64  `json:"size"`
	SHA256     string `json:"sha256"`
}

// HumanSize returns the artifact size for display.
func (a Artifact) HumanSize() string {
	return humanize.IBytes(uint64(a.Size))
}

// Manifest describes an export and the build it came from.
type Manifest struct {
	BuildID   string     `json:"buildId"`
	Branch    string     `json:"branch"`
	Arch      string     `json:"arch"`
	Release   string     `json:"release"`
	URL       string     `json:"url,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	Artifacts []Artifact `json:"artifacts"`
}

// NewManifest starts a manifest with a fresh build ID.
func NewManifest(branch, arch, release, url string) *Manifest {
	return &Manifest{
		BuildID:   uuid.NewString(),
		Branch:    branch,
		Arch:      arch,
		Release:   release,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
}

// Write saves the manifest as indented JSON.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if _, err := uuid.Parse(m.BuildID); err != nil {
		return nil, fmt.Errorf("manifest %s has invalid build id: %w", path, err)
	}
	return &m, nil
}

// Check re-hashes every artifact and reports the first that is missing
// or no longer matches its recorded digest.
func (m *Manifest) Check(ctx context.Context) error {
	paths := make([]string, len(m.Artifacts))
	for i, a := range m.Artifacts {
		paths[i] = a.Path
	}

	sums, err := ChecksumAll(ctx, paths)
	if err != nil {
		return err
	}
	for i, a := range m.Artifacts {
		if sums[i] != a.SHA256 {
			return fmt.Errorf("%s: sha256 %s does not match manifest %s", a.Path, sums[i], a.SHA256)
		}
	}
	return nil
}
