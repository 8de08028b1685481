package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/installer"
	"github.com/firefly-engineering/netbsd-imager/internal/pipeline"
)

var (
	buildRelease  string
	buildLatest   bool
	buildPick     bool
	buildForce    bool
	buildVerify   bool
	buildBatches  []string
	buildFormat   string
	buildOutput   string
	buildCompress string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full pipeline: locate, install, provision, export",
	Long: `Builds an image end to end.

Each stage records its progress in build.json in the work directory. An
interrupted build resumes where it stopped: the recorded release is
reused, an installed disk is kept, and completed batches are skipped.
--latest looks for a newer release (a new release reinstalls); --force
starts over.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildRelease, "release", "r", "", "Build a named release")
	buildCmd.Flags().BoolVar(&buildLatest, "latest", false, "Locate the newest release even if one is recorded")
	buildCmd.Flags().BoolVar(&buildPick, "pick", false, "Choose the release interactively")
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "Reinstall and re-run every batch")
	buildCmd.Flags().BoolVar(&buildVerify, "verify", false, "Verify SSH access after export")
	buildCmd.Flags().StringSliceVarP(&buildBatches, "batch", "b", nil, "Run only the named batches (repeatable)")
	addOutputFlags(buildCmd, &buildFormat, &buildOutput, &buildCompress)
	buildCmd.MarkFlagsMutuallyExclusive("release", "pick", "latest")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := applyOutputFlags(cmd, buildFormat, buildOutput, buildCompress); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	name := buildRelease
	if buildPick {
		cfg := app.Default.Config
		releases, err := app.Default.ReleaseLocator().List(ctx, cfg.Branch)
		if err != nil {
			return err
		}
		r, err := pickRelease(releases, currentRelease())
		if err != nil || r == nil {
			return err
		}
		name = r.Name
	}

	res, err := builder().Build(ctx, pipeline.Options{
		Release: name,
		Latest:  buildLatest,
		Force:   buildForce,
		Batches: buildBatches,
		Verify:  buildVerify,
	})
	if err != nil {
		return err
	}

	displayBuildResult(cmd, res)
	return nil
}

// displayBuildResult shows build results to the user.
func displayBuildResult(cmd *cobra.Command, res *pipeline.Result) {
	if res.Install == installer.Skipped {
		logInfo("Reused installed disk for %s", res.Release.Name)
	} else {
		logSuccess("Installed %s", res.Release.Name)
	}
	if len(res.Skipped) > 0 {
		logInfo("Already completed: %s", strings.Join(res.Skipped, ", "))
	}
	if len(res.Applied) > 0 {
		logSuccess("Provisioned: %s", strings.Join(res.Applied, ", "))
	}
	printArtifacts(cmd, res.Manifest)
	if res.VerifyOutput != "" {
		logSuccess("SSH login succeeded: %s", strings.TrimSpace(res.VerifyOutput))
	}
	logSuccess("Build finished in %s", res.Duration.Round(time.Second))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To run the image:")
	fmt.Fprintf(out, "  %s\n", res.RunCommand)
	fmt.Fprintln(out, "To log in once it is running:")
	fmt.Fprintf(out, "  %s\n", sshCommandLine(app.Default.Config.Machine.SSHPort))
	fmt.Fprintln(out, "To convert the raw disk yourself:")
	fmt.Fprintf(out, "  %s\n", res.ConvertCommand)
}
