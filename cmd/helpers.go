package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/config"
	"github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/pipeline"
)

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)

// defaultConfigFiles are tried in order when --config is not given.
var defaultConfigFiles = []string{"netbsd-imager.toml", "netbsd-imager.yaml", "netbsd-imager.yml"}

// loadConfig reads the configuration file, applies flag overrides, and
// installs the result on the default app.
func loadConfig(cmd *cobra.Command) error {
	path := configPath
	if path == "" {
		for _, name := range defaultConfigFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return errors.ConfigError("failed to load configuration", err)
		}
		logging.Debug("loaded configuration", "path", path)
		app.Default.SetConfig(cfg)
	}

	cfg := app.Default.Config
	flags := cmd.Flags()
	if flags.Changed("workdir") {
		cfg.WorkDir = workDir
	}
	if flags.Changed("branch") {
		cfg.Branch = branch
	}
	if flags.Changed("arch") {
		cfg.Arch = arch
	}
	if err := cfg.Validate(); err != nil {
		return errors.ConfigError("invalid configuration", err)
	}
	return nil
}

// builder returns the pipeline builder of the default app.
func builder() *pipeline.Builder {
	return app.Default.Builder()
}

// signalContext returns the command context, cancelled on SIGINT or
// SIGTERM so a running guest is killed rather than orphaned.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func boolStatus(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
