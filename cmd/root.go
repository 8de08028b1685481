package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configPath string
	workDir    string
	branch     string
	arch       string
)

var rootCmd = &cobra.Command{
	Use:   "netbsd-imager",
	Short: "Build NetBSD VM images from nightly snapshots",
	Long: `netbsd-imager builds ready-to-boot NetBSD virtual machine images.

A build runs these stages, each resumable on its own:
  - locate: find the newest nightly release on the mirror
  - install: run anita against the release to produce a raw disk
  - provision: boot the disk in QEMU and run command batches on the console
  - export: convert the disk with qemu-img, or pack a GCE tarball
  - verify: boot a snapshot and log in over SSH

Settings come from netbsd-imager.toml (or .yaml) in the current
directory, or the file named by --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		return loadConfig(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (mirrors the guest console)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (TOML or YAML)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "w", "", "Work directory (default work-<branch>-<arch>)")
	rootCmd.PersistentFlags().StringVar(&branch, "branch", "", "NetBSD branch, e.g. netbsd-9 or HEAD")
	rootCmd.PersistentFlags().StringVar(&arch, "arch", "", "Target architecture, e.g. amd64")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
