package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	provisionBatches []string
	provisionForce   bool
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Boot the disk and run the provisioning batches",
	Long: `Boots the installed disk once per batch, logs in on the serial console,
and runs the batch's commands, stopping at the first that fails.

Built-in batches:
  network   enable sshd and dhcpcd (IPv4 only)
  packages  pkg_add the configured packages, install root certificates
  settle    one more boot so first-boot services settle

Completed batches are recorded and skipped on the next run unless
--force is given.`,
	Args: cobra.NoArgs,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringSliceVarP(&provisionBatches, "batch", "b", nil, "Run only the named batches (repeatable)")
	provisionCmd.Flags().BoolVarP(&provisionForce, "force", "f", false, "Re-run batches already completed")
	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	applied, skipped, err := builder().Provision(ctx, provisionBatches, provisionForce)
	if err != nil {
		return err
	}

	if len(skipped) > 0 {
		logInfo("Already completed: %s", strings.Join(skipped, ", "))
	}
	if len(applied) == 0 {
		logInfo("Nothing to provision; use --force to re-run")
		return nil
	}
	logSuccess("Provisioned: %s", strings.Join(applied, ", "))
	return nil
}
