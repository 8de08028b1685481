package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/installer"
)

var (
	installRelease string
	installLatest  bool
	installForce   bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install a release onto a raw disk with anita",
	Long: `Locates the release and runs anita to install it onto wd0.img in the
work directory.

An existing disk is kept unless --force is given or the release differs
from the one recorded in the work directory. Without --release or
--latest the recorded release is reused.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installRelease, "release", "r", "", "Install a named release")
	installCmd.Flags().BoolVar(&installLatest, "latest", false, "Locate the newest release even if one is recorded")
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "Reinstall over an existing disk")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	b := builder()
	r, err := b.Locate(ctx, installRelease, installLatest || installForce)
	if err != nil {
		return err
	}

	logInfo("Installing %s from %s", r.Name, r.URL)
	outcome, err := b.Install(ctx, r, installForce)
	if err != nil {
		return err
	}

	disk, _ := b.DiskPath()
	if outcome == installer.Skipped {
		logInfo("Disk %s already installed; use --force to reinstall", disk)
		return nil
	}
	logSuccess("Installed %s to %s", r.Name, disk)
	return nil
}
