package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	// StateFileName is the build state file inside the work directory.
	StateFileName = "build.json"

	// DiskImageName is the raw disk anita leaves in the work directory.
	DiskImageName = "wd0.img"

	// ManifestFileName is the artifact manifest written by export.
	ManifestFileName = "manifest.json"
)

// WorkPath joins name onto the work directory, refusing to escape it.
func WorkPath(workDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("name cannot be an absolute path")
	}
	p, err := securejoin.SecureJoin(workDir, name)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", name, err)
	}
	return p, nil
}

// BuildState records pipeline progress so an interrupted build resumes.
type BuildState struct {
	Branch           string    `json:"branch"`
	Arch             string    `json:"arch"`
	Release          string    `json:"release,omitempty"`
	ReleaseURL       string    `json:"releaseUrl,omitempty"`
	InstalledAt      time.Time `json:"installedAt,omitzero"`
	CompletedBatches []string  `json:"completedBatches,omitempty"`
	Manifest         string    `json:"manifest,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitzero"`
}

// Installed reports whether the disk image was installed for this state's release.
func (s *BuildState) Installed() bool {
	return !s.InstalledAt.IsZero()
}

// HasBatch reports whether the named batch already completed.
func (s *BuildState) HasBatch(name string) bool {
	return slices.Contains(s.CompletedBatches, name)
}

// MarkBatch records a completed batch.
func (s *BuildState) MarkBatch(name string) {
	if !s.HasBatch(name) {
		s.CompletedBatches = append(s.CompletedBatches, name)
	}
}

// SetRelease records the release being built. A different release
// invalidates everything recorded for the previous one.
func (s *BuildState) SetRelease(name, url string) {
	if s.Release == name {
		s.ReleaseURL = url
		return
	}
	s.Release = name
	s.ReleaseURL = url
	s.Reset()
}

// Reset forgets the install and everything done to the disk since.
func (s *BuildState) Reset() {
	s.InstalledAt = time.Time{}
	s.CompletedBatches = nil
	s.Manifest = ""
}

// LoadState loads the build state from workDir. A missing file yields an
// empty state for branch/arch.
func LoadState(workDir, branch, arch string) (*BuildState, error) {
	statePath, err := WorkPath(workDir, StateFileName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &BuildState{Branch: branch, Arch: arch}, nil
		}
		return nil, fmt.Errorf("failed to read build state: %w", err)
	}

	var state BuildState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse build state: %w", err)
	}

	if state.Branch != branch || state.Arch != arch {
		return nil, fmt.Errorf("work directory %s belongs to %s/%s, not %s/%s",
			workDir, state.Branch, state.Arch, branch, arch)
	}

	return &state, nil
}

// SaveState writes the build state to workDir.
func SaveState(workDir string, state *BuildState) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	statePath, err := WorkPath(workDir, StateFileName)
	if err != nil {
		return err
	}

	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal build state: %w", err)
	}

	tmp := statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write build state: %w", err)
	}
	if err := os.Rename(tmp, statePath); err != nil {
		return fmt.Errorf("failed to write build state: %w", err)
	}

	return nil
}
