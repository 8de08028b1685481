package release

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	imgerrors "github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
)

// TimeLayout is the naming convention of dated release directories.
const TimeLayout = "200601021504Z"

// ErrReleaseNotFound is the cause of a ReleaseNotFound error.
var ErrReleaseNotFound = errors.New("no build lists the architecture")

// Release is one nightly build of a branch for one architecture.
type Release struct {
	Branch  string    `json:"branch"`
	Arch    string    `json:"arch,omitempty"`
	Name    string    `json:"name"`
	ArchDir string    `json:"archDir,omitempty"`
	URL     string    `json:"url,omitempty"`
	Time    time.Time `json:"time,omitzero"`
}

// Dated reports whether the release directory follows the dated convention.
func (r *Release) Dated() bool {
	return !r.Time.IsZero()
}

// Lister lists a mirror directory with NLST semantics: entries may come
// back bare or prefixed by the directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
	Close() error
}

// Mirror describes the mirror layout.
type Mirror struct {
	// Root is the FTP path holding one directory per branch.
	Root string

	// HTTPBase is the HTTP(S) URL serving the same tree.
	HTTPBase string

	// AllowUndated admits entries that are not named YYYYMMDDhhmmZ.
	AllowUndated bool
}

// Locator finds releases on a mirror.
type Locator struct {
	lister Lister
	mirror Mirror
}

// NewLocator creates a Locator.
func NewLocator(lister Lister, mirror Mirror) *Locator {
	return &Locator{lister: lister, mirror: mirror}
}

// ParseReleaseTime parses a dated release directory name.
func ParseReleaseTime(name string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("release %q is not named %s: %w", name, TimeLayout, err)
	}
	return t, nil
}

// Latest returns the newest release of branch that carries arch.
func (l *Locator) Latest(ctx context.Context, branch, arch string) (*Release, error) {
	defer l.close()

	releases, err := l.list(ctx, branch)
	if err != nil {
		return nil, err
	}

	for _, r := range releases {
		archDir, err := l.findArch(ctx, branch, r.Name, arch)
		if err != nil {
			return nil, err
		}
		if archDir == "" {
			logging.Debug("release lacks architecture", "release", r.Name, "arch", arch)
			continue
		}
		return l.complete(r, arch, archDir), nil
	}

	notFound := imgerrors.ReleaseNotFound(branch, arch)
	notFound.Cause = fmt.Errorf("%w under %s", ErrReleaseNotFound, l.branchDir(branch))
	return nil, notFound
}

// List returns the releases of branch, newest first, without probing
// architectures.
func (l *Locator) List(ctx context.Context, branch string) ([]Release, error) {
	defer l.close()
	return l.list(ctx, branch)
}

// Resolve pins a named release of branch and checks that it carries arch.
func (l *Locator) Resolve(ctx context.Context, branch, arch, name string) (*Release, error) {
	defer l.close()

	r := Release{Branch: branch, Name: name}
	if t, err := ParseReleaseTime(name); err == nil {
		r.Time = t
	} else if !l.mirror.AllowUndated {
		return nil, imgerrors.ValidationError(err.Error())
	}

	archDir, err := l.findArch(ctx, branch, name, arch)
	if err != nil {
		return nil, err
	}
	if archDir == "" {
		notFound := imgerrors.ReleaseNotFound(branch, arch)
		notFound.Cause = fmt.Errorf("%w in %s", ErrReleaseNotFound, path.Join(l.branchDir(branch), name))
		return nil, notFound
	}

	return l.complete(r, arch, archDir), nil
}

func (l *Locator) list(ctx context.Context, branch string) ([]Release, error) {
	dir := l.branchDir(branch)
	entries, err := l.lister.List(ctx, dir)
	if err != nil {
		return nil, imgerrors.MirrorError(fmt.Sprintf("failed to list %s", dir), err)
	}

	releases := make([]Release, 0, len(entries))
	for _, entry := range entries {
		name := baseName(entry)
		if name == "" {
			continue
		}
		r := Release{Branch: branch, Name: name}
		t, err := ParseReleaseTime(name)
		if err != nil {
			if !l.mirror.AllowUndated {
				logging.Debug("skipping undated entry", "entry", name)
				continue
			}
		} else {
			r.Time = t
		}
		releases = append(releases, r)
	}

	sort.Slice(releases, func(i, j int) bool {
		return releases[i].Name > releases[j].Name
	})

	return releases, nil
}

// findArch returns the entry of a release directory whose name ends with
// arch, or "" when there is none.
func (l *Locator) findArch(ctx context.Context, branch, name, arch string) (string, error) {
	dir := path.Join(l.branchDir(branch), name)
	entries, err := l.lister.List(ctx, dir)
	if err != nil {
		return "", imgerrors.MirrorError(fmt.Sprintf("failed to list %s", dir), err)
	}

	for _, entry := range entries {
		if base := baseName(entry); base != "" && strings.HasSuffix(base, arch) {
			return base, nil
		}
	}
	return "", nil
}

func (l *Locator) complete(r Release, arch, archDir string) *Release {
	r.Arch = arch
	r.ArchDir = archDir
	r.URL = fmt.Sprintf("%s/%s/%s/%s/", strings.TrimRight(l.mirror.HTTPBase, "/"), r.Branch, r.Name, archDir)
	return &r
}

func (l *Locator) branchDir(branch string) string {
	return path.Join(l.mirror.Root, branch)
}

func (l *Locator) close() {
	if err := l.lister.Close(); err != nil {
		logging.Debug("closing mirror connection", "error", err)
	}
}

func baseName(entry string) string {
	name := path.Base(strings.TrimRight(strings.TrimSpace(entry), "/"))
	switch name {
	case ".", "..", "/", "":
		return ""
	}
	return name
}
