package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/release"
	"github.com/firefly-engineering/netbsd-imager/internal/tui"
)

var (
	releasesLimit int
	releasesPick  bool
)

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List the releases of the branch, newest first",
	Long: `Lists the release directories of the branch on the mirror.

Architectures are not probed; a listed release may lack the configured
architecture. Use locate to check.

With --pick an interactive picker opens. Use arrow keys or j/k to
navigate, / to filter, Enter to choose, q/Esc to quit.`,
	Args: cobra.NoArgs,
	RunE: runReleases,
}

func init() {
	releasesCmd.Flags().IntVarP(&releasesLimit, "limit", "n", 10, "Show at most N releases (0 for all)")
	releasesCmd.Flags().BoolVar(&releasesPick, "pick", false, "Choose a release interactively")
	rootCmd.AddCommand(releasesCmd)
}

func runReleases(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	cfg := app.Default.Config
	releases, err := app.Default.ReleaseLocator().List(ctx, cfg.Branch)
	if err != nil {
		return err
	}
	if releasesLimit > 0 && len(releases) > releasesLimit {
		releases = releases[:releasesLimit]
	}

	current := currentRelease()

	if !releasesPick {
		fmt.Fprint(cmd.OutOrStdout(), tui.SimpleList(cfg.Branch, releases, current))
		return nil
	}

	r, err := pickRelease(releases, current)
	if err != nil || r == nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), r.Name)
	logInfo("Build it with: netbsd-imager build --release %s", r.Name)
	return nil
}

// currentRelease returns the release recorded in the work directory, or "".
func currentRelease() string {
	state, err := builder().State()
	if err != nil {
		logging.Debug("no build state", "error", err)
		return ""
	}
	return state.Release
}

// pickRelease runs the picker and returns the chosen release, or nil
// when the user quit.
func pickRelease(releases []release.Release, current string) (*release.Release, error) {
	if len(releases) == 0 {
		logWarning("No releases found on the mirror")
		return nil, nil
	}

	result, err := tui.RunPicker(releases, current)
	if err != nil {
		return nil, fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)

	if result.Action != tui.ActionSelect || result.Release == nil {
		return nil, nil
	}
	return result.Release, nil
}
