package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Boot a snapshot of the disk and log in over SSH",
	Long: `Boots the disk with snapshot=on, installs an ephemeral key for the
session user over the console, and connects to the forwarded SSH port
until the login succeeds or ssh.verify_timeout expires.

The disk is left unchanged.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	out, err := builder().Verify(ctx)
	if err != nil {
		return err
	}
	logSuccess("SSH login succeeded: %s", strings.TrimSpace(out))
	return nil
}
