package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/release"
)

var locateRelease string

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the URL of the newest release for the branch and architecture",
	Long: `Lists the branch directory on the mirror and prints the install URL
of the newest dated release that carries the architecture.

With --release the named release is checked instead.`,
	Args: cobra.NoArgs,
	RunE: runLocate,
}

func init() {
	locateCmd.Flags().StringVarP(&locateRelease, "release", "r", "", "Check a named release instead of the newest")
	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	cfg := app.Default.Config
	locator := app.Default.ReleaseLocator()

	var (
		r   *release.Release
		err error
	)
	if locateRelease != "" {
		r, err = locator.Resolve(ctx, cfg.Branch, cfg.Arch, locateRelease)
	} else {
		r, err = locator.Latest(ctx, cfg.Branch, cfg.Arch)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), r.URL)
	return nil
}
