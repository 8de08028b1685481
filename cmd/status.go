package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/image"
	"github.com/firefly-engineering/netbsd-imager/internal/provision"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the build state of the work directory",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := app.Default.Config
	b := builder()
	out := cmd.OutOrStdout()

	state, err := b.State()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Branch: %s\n", cfg.Branch)
	fmt.Fprintf(out, "Arch: %s\n", cfg.Arch)
	fmt.Fprintf(out, "Work dir: %s\n", cfg.EffectiveWorkDir())

	if state.Release == "" {
		fmt.Fprintln(out, "Release: none (run install or build)")
		return nil
	}
	fmt.Fprintf(out, "Release: %s\n", state.Release)
	fmt.Fprintf(out, "URL: %s\n", state.ReleaseURL)

	disk, _ := b.DiskPath()
	_, diskErr := os.Stat(disk)
	fmt.Fprintf(out, "Disk: %s %s (%s)\n", boolStatus(diskErr == nil), disk, humanize.IBytes(uint64(cfg.DiskBytes())))
	if state.Installed() {
		fmt.Fprintf(out, "Installed: %s\n", state.InstalledAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	plan, err := b.Plan()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Batches:")
	for _, name := range provision.Names(plan) {
		fmt.Fprintf(out, "  %s %s\n", boolStatus(state.HasBatch(name)), name)
	}

	if state.Manifest == "" {
		return nil
	}
	fmt.Fprintln(out)

	m, err := image.ReadManifest(state.Manifest)
	if err != nil {
		fmt.Fprintf(out, "Export: %s %v\n", boolStatus(false), err)
		return nil
	}
	fmt.Fprintf(out, "Export: build %s at %s\n", m.BuildID, m.CreatedAt.Format(time.RFC3339))
	for _, a := range m.Artifacts {
		fmt.Fprintf(out, "  %s (%s, %s)\n", a.Path, a.Format, a.HumanSize())
	}
	if err := m.Check(cmd.Context()); err != nil {
		fmt.Fprintf(out, "  Checksums: %s %v\n", boolStatus(false), err)
	} else {
		fmt.Fprintf(out, "  Checksums: %s\n", boolStatus(true))
	}

	return nil
}
