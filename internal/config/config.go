package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// nameRegex validates branch and arch names. Both end up in FTP paths and
// in the default work directory name.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

const (
	DefaultBranch          = "netbsd-8"
	DefaultArch            = "amd64"
	DefaultFTPHost         = "nyftp.netbsd.org:21"
	DefaultFTPRoot         = "/pub/NetBSD-daily"
	DefaultHTTPBase        = "https://nycdn.netbsd.org/pub/NetBSD-daily"
	DefaultFTPUser         = "anonymous"
	DefaultFTPPassword     = "anonymous"
	DefaultFTPTimeout      = "60s"
	DefaultDiskSize        = "24G"
	DefaultMemorySize      = "4G"
	DefaultCPUs            = 1
	DefaultSSHPort         = 2222
	DefaultAnita           = "anita"
	DefaultQEMUImg         = "qemu-img"
	DefaultSessionUser     = "root"
	DefaultBootTimeout     = "10m"
	DefaultCommandTimeout  = "1200s"
	DefaultShutdownTimeout = "5m"
	DefaultVerifyTimeout   = "5m"
	DefaultPkgPath         = "http://cdn.NetBSD.org/pub/pkgsrc/packages/NetBSD/amd64/8.1/All/"
	DefaultOutputFormat    = "qcow2"
)

// DefaultPackages is the package set installed by the packages batch.
var DefaultPackages = []string{
	"cmake", "swig3", "curl", "python37", "vim",
	"ccache", "ninja-build", "mozilla-rootcerts", "git",
}

// Config is the build configuration, read from TOML or YAML.
type Config struct {
	Branch    string          `toml:"branch" yaml:"branch"`
	Arch      string          `toml:"arch" yaml:"arch"`
	WorkDir   string          `toml:"workdir,omitempty" yaml:"workdir,omitempty"`
	Mirror    MirrorConfig    `toml:"mirror" yaml:"mirror"`
	Machine   MachineConfig   `toml:"machine" yaml:"machine"`
	Installer InstallerConfig `toml:"installer" yaml:"installer"`
	Session   SessionConfig   `toml:"session" yaml:"session"`
	Packages  PackagesConfig  `toml:"packages" yaml:"packages"`
	SSH       SSHConfig       `toml:"ssh" yaml:"ssh"`
	Provision ProvisionConfig `toml:"provision" yaml:"provision"`
	Output    OutputConfig    `toml:"output" yaml:"output"`
}

// MirrorConfig points at the nightly build mirror.
type MirrorConfig struct {
	FTPHost  string `toml:"ftp_host" yaml:"ftp_host"`
	FTPRoot  string `toml:"ftp_root" yaml:"ftp_root"`
	HTTPBase string `toml:"http_base" yaml:"http_base"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	Timeout  string `toml:"timeout" yaml:"timeout"`

	// AllowUndated admits directory entries that do not follow the
	// YYYYMMDDhhmmZ naming convention (e.g. a "latest" symlink).
	AllowUndated bool `toml:"allow_undated" yaml:"allow_undated"`

	// Release pins a release directory instead of locating the newest.
	Release string `toml:"release,omitempty" yaml:"release,omitempty"`
}

// MachineConfig describes the emulated machine.
type MachineConfig struct {
	QEMU       string `toml:"qemu,omitempty" yaml:"qemu,omitempty"`
	QEMUImg    string `toml:"qemu_img" yaml:"qemu_img"`
	DiskSize   string `toml:"disk_size" yaml:"disk_size"`
	MemorySize string `toml:"memory_size" yaml:"memory_size"`
	CPUs       int    `toml:"cpus" yaml:"cpus"`
	Accel      string `toml:"accel,omitempty" yaml:"accel,omitempty"`
	ExtraArgs  string `toml:"extra_args,omitempty" yaml:"extra_args,omitempty"`
	SSHPort    int    `toml:"ssh_port" yaml:"ssh_port"`
}

// InstallerConfig configures the anita invocation.
type InstallerConfig struct {
	Anita     string `toml:"anita" yaml:"anita"`
	ExtraArgs string `toml:"extra_args,omitempty" yaml:"extra_args,omitempty"`
}

// SessionConfig configures the console session.
type SessionConfig struct {
	User            string `toml:"user" yaml:"user"`
	Password        string `toml:"password,omitempty" yaml:"password,omitempty"`
	BootTimeout     string `toml:"boot_timeout" yaml:"boot_timeout"`
	CommandTimeout  string `toml:"command_timeout" yaml:"command_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PackagesConfig is the binary package set.
type PackagesConfig struct {
	Path  string   `toml:"path" yaml:"path"`
	Names []string `toml:"names" yaml:"names"`
}

// SSHConfig configures SSH access to the image.
type SSHConfig struct {
	AuthorizedKeys      []string `toml:"authorized_keys,omitempty" yaml:"authorized_keys,omitempty"`
	AuthorizedKeysFiles []string `toml:"authorized_keys_files,omitempty" yaml:"authorized_keys_files,omitempty"`
	VerifyTimeout       string   `toml:"verify_timeout" yaml:"verify_timeout"`
}

// ProvisionConfig adds batches after the built-in ones.
type ProvisionConfig struct {
	SkipDefaults bool          `toml:"skip_defaults,omitempty" yaml:"skip_defaults,omitempty"`
	Batches      []BatchConfig `toml:"batch,omitempty" yaml:"batch,omitempty"`
}

// BatchConfig is one boot's worth of commands.
type BatchConfig struct {
	Name     string   `toml:"name" yaml:"name"`
	Commands []string `toml:"commands" yaml:"commands"`
}

// OutputConfig selects the distributable artifact.
type OutputConfig struct {
	Format   string `toml:"format" yaml:"format"`
	Path     string `toml:"path,omitempty" yaml:"path,omitempty"`
	Compress string `toml:"compress,omitempty" yaml:"compress,omitempty"`
}

// Default returns the stock configuration: a netbsd-8 amd64 image with
// the usual build toolchain packages.
func Default() *Config {
	return &Config{
		Branch: DefaultBranch,
		Arch:   DefaultArch,
		Mirror: MirrorConfig{
			FTPHost:  DefaultFTPHost,
			FTPRoot:  DefaultFTPRoot,
			HTTPBase: DefaultHTTPBase,
			User:     DefaultFTPUser,
			Password: DefaultFTPPassword,
			Timeout:  DefaultFTPTimeout,
		},
		Machine: MachineConfig{
			QEMUImg:    DefaultQEMUImg,
			DiskSize:   DefaultDiskSize,
			MemorySize: DefaultMemorySize,
			CPUs:       DefaultCPUs,
			SSHPort:    DefaultSSHPort,
		},
		Installer: InstallerConfig{
			Anita: DefaultAnita,
		},
		Session: SessionConfig{
			User:            DefaultSessionUser,
			BootTimeout:     DefaultBootTimeout,
			CommandTimeout:  DefaultCommandTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Packages: PackagesConfig{
			Path:  DefaultPkgPath,
			Names: append([]string(nil), DefaultPackages...),
		},
		SSH: SSHConfig{
			VerifyTimeout: DefaultVerifyTimeout,
		},
		Output: OutputConfig{
			Format: DefaultOutputFormat,
		},
	}
}

// Load reads a configuration file on top of the defaults. The format is
// chosen by extension: .yaml/.yml for YAML, anything else for TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Encode writes the configuration as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks that the Config is valid.
func (c *Config) Validate() error {
	if !nameRegex.MatchString(c.Branch) {
		return fmt.Errorf("invalid branch %q", c.Branch)
	}
	if !nameRegex.MatchString(c.Arch) {
		return fmt.Errorf("invalid arch %q", c.Arch)
	}
	if c.Mirror.Release != "" && !nameRegex.MatchString(c.Mirror.Release) {
		return fmt.Errorf("invalid release %q", c.Mirror.Release)
	}

	if err := c.Mirror.Validate(); err != nil {
		return fmt.Errorf("mirror: %w", err)
	}
	if err := c.Machine.Validate(); err != nil {
		return fmt.Errorf("machine: %w", err)
	}
	if c.Installer.Anita == "" {
		return fmt.Errorf("installer: anita is required")
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if _, err := parseDuration("verify_timeout", c.SSH.VerifyTimeout); err != nil {
		return fmt.Errorf("ssh: %w", err)
	}
	if len(c.Packages.Names) > 0 && c.Packages.Path == "" {
		return fmt.Errorf("packages: path is required when names are set")
	}
	if err := c.Provision.Validate(); err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	return nil
}

// Validate checks that the MirrorConfig is valid.
func (m *MirrorConfig) Validate() error {
	if m.FTPHost == "" {
		return fmt.Errorf("ftp_host is required")
	}
	if !strings.HasPrefix(m.FTPRoot, "/") {
		return fmt.Errorf("ftp_root must be absolute (got %q)", m.FTPRoot)
	}
	if !strings.HasPrefix(m.HTTPBase, "http://") && !strings.HasPrefix(m.HTTPBase, "https://") {
		return fmt.Errorf("http_base must be an http(s) URL (got %q)", m.HTTPBase)
	}
	_, err := parseDuration("timeout", m.Timeout)
	return err
}

// Validate checks that the MachineConfig is valid.
func (m *MachineConfig) Validate() error {
	if _, err := parseSize("disk_size", m.DiskSize); err != nil {
		return err
	}
	if _, err := parseSize("memory_size", m.MemorySize); err != nil {
		return err
	}
	if m.CPUs < 1 {
		return fmt.Errorf("cpus must be at least 1 (got %d)", m.CPUs)
	}
	if m.SSHPort < 1 || m.SSHPort > 65535 {
		return fmt.Errorf("ssh_port must be between 1 and 65535 (got %d)", m.SSHPort)
	}
	if m.QEMUImg == "" {
		return fmt.Errorf("qemu_img is required")
	}
	return nil
}

// Validate checks that the SessionConfig is valid.
func (s *SessionConfig) Validate() error {
	if s.User == "" {
		return fmt.Errorf("user is required")
	}
	for _, d := range []struct{ name, value string }{
		{"boot_timeout", s.BootTimeout},
		{"command_timeout", s.CommandTimeout},
		{"shutdown_timeout", s.ShutdownTimeout},
	} {
		if _, err := parseDuration(d.name, d.value); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the ProvisionConfig is valid.
func (p *ProvisionConfig) Validate() error {
	seen := make(map[string]bool)
	for i, b := range p.Batches {
		if b.Name == "" {
			return fmt.Errorf("batch %d: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("batch %q defined twice", b.Name)
		}
		seen[b.Name] = true
		if len(b.Commands) == 0 {
			return fmt.Errorf("batch %q has no commands", b.Name)
		}
	}
	return nil
}

// Validate checks that the OutputConfig is valid.
func (o *OutputConfig) Validate() error {
	switch o.Format {
	case "raw", "qcow2", "gce":
	default:
		return fmt.Errorf("invalid format %q (must be raw, qcow2, or gce)", o.Format)
	}
	switch o.Compress {
	case "", "none":
	case "xz":
		if o.Format == "gce" {
			return fmt.Errorf("xz compression does not apply to gce tarballs")
		}
	default:
		return fmt.Errorf("invalid compress %q (must be none or xz)", o.Compress)
	}
	return nil
}

// EffectiveWorkDir returns the work directory, defaulting to
// work-<branch>-<arch> in the current directory.
func (c *Config) EffectiveWorkDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return fmt.Sprintf("work-%s-%s", c.Branch, c.Arch)
}

// DiskBytes returns the disk size in bytes.
func (c *Config) DiskBytes() int64 {
	n, _ := parseSize("disk_size", c.Machine.DiskSize)
	return n
}

// MemoryMB returns the memory size in MiB, the unit qemu's -m takes.
func (c *Config) MemoryMB() int64 {
	n, _ := parseSize("memory_size", c.Machine.MemorySize)
	return n / units.MiB
}

// BootTimeout returns the time allowed for the guest to reach a login prompt.
func (c *Config) BootTimeout() time.Duration {
	d, _ := parseDuration("boot_timeout", c.Session.BootTimeout)
	return d
}

// CommandTimeout returns the per-command timeout.
func (c *Config) CommandTimeout() time.Duration {
	d, _ := parseDuration("command_timeout", c.Session.CommandTimeout)
	return d
}

// ShutdownTimeout returns the time allowed for the guest to power off.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration("shutdown_timeout", c.Session.ShutdownTimeout)
	return d
}

// FTPTimeout returns the mirror dial timeout.
func (c *Config) FTPTimeout() time.Duration {
	d, _ := parseDuration("timeout", c.Mirror.Timeout)
	return d
}

// VerifyTimeout returns how long SSH verification may take.
func (c *Config) VerifyTimeout() time.Duration {
	d, _ := parseDuration("verify_timeout", c.SSH.VerifyTimeout)
	return d
}

// ResolveAuthorizedKeys returns the inline keys followed by the non-empty,
// non-comment lines of every authorized_keys_files entry.
func (c *Config) ResolveAuthorizedKeys() ([]string, error) {
	keys := make([]string, 0, len(c.SSH.AuthorizedKeys))
	for _, k := range c.SSH.AuthorizedKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	for _, path := range c.SSH.AuthorizedKeysFiles {
		data, err := os.ReadFile(expandHome(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read authorized keys %s: %w", path, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			keys = append(keys, line)
		}
	}

	return keys, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func parseSize(field, value string) (int64, error) {
	n, err := units.RAMInBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %q)", field, value)
	}
	return n, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %q)", field, value)
	}
	return d, nil
}
