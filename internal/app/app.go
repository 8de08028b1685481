// Package app provides the application context for netbsd-imager.
// It allows dependency injection for testing.
package app

import (
	"context"

	"github.com/firefly-engineering/netbsd-imager/internal/config"
	"github.com/firefly-engineering/netbsd-imager/internal/pipeline"
	"github.com/firefly-engineering/netbsd-imager/internal/release"
	"github.com/firefly-engineering/netbsd-imager/internal/system"
)

// Locator finds and lists releases on the mirror.
type Locator interface {
	pipeline.Locator
	List(ctx context.Context, branch string) ([]release.Release, error)
}

// App holds the application dependencies
type App struct {
	// Config is the effective build configuration
	Config *config.Config

	// Exec runs host tools
	Exec system.CommandExecutor

	// Locator finds releases; built from Config.Mirror when nil
	Locator Locator

	// NewBooter creates emulators; QEMU when nil
	NewBooter pipeline.BooterFunc

	ownLocator bool
}

// Option is a function that configures the App
type Option func(*App)

// WithConfig sets the configuration
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithExecutor sets a custom command executor
func WithExecutor(exec system.CommandExecutor) Option {
	return func(a *App) {
		a.Exec = exec
	}
}

// WithLocator sets a custom release locator
func WithLocator(l Locator) Option {
	return func(a *App) {
		a.Locator = l
	}
}

// WithBooter sets a custom emulator factory
func WithBooter(f pipeline.BooterFunc) Option {
	return func(a *App) {
		a.NewBooter = f
	}
}

// New creates a new App with the given options.
func New(opts ...Option) *App {
	app := &App{
		Config: config.Default(),
		Exec:   system.DefaultExecutor(),
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

// SetConfig replaces the configuration. A locator derived from the old
// configuration is dropped; an injected one is kept.
func (a *App) SetConfig(cfg *config.Config) {
	a.Config = cfg
	if a.ownLocator {
		a.Locator = nil
		a.ownLocator = false
	}
}

// ReleaseLocator returns the locator, creating an FTP one from the
// mirror configuration on first use.
func (a *App) ReleaseLocator() Locator {
	if a.Locator == nil {
		m := a.Config.Mirror
		lister := release.NewFTPLister(m.FTPHost, m.User, m.Password, a.Config.FTPTimeout())
		a.Locator = release.NewLocator(lister, release.Mirror{
			Root:         m.FTPRoot,
			HTTPBase:     m.HTTPBase,
			AllowUndated: m.AllowUndated,
		})
		a.ownLocator = true
	}
	return a.Locator
}

// Builder returns a pipeline builder wired to the app's dependencies.
func (a *App) Builder() *pipeline.Builder {
	b := pipeline.New(a.Config, a.Exec, a.ReleaseLocator())
	b.NewBooter = a.NewBooter
	return b
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
