package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/image"
)

var (
	exportFormat   string
	exportOutput   string
	exportCompress string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Convert the disk into a distributable image",
	Long: `Converts the raw disk with qemu-img (qcow2 or raw), or packs it as a
GCE tarball (disk.raw inside a sparse oldgnu tar.gz), and writes a
manifest with the size and sha256 of each artifact.

Raw and qcow2 images can be xz-compressed with --compress xz.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	addOutputFlags(exportCmd, &exportFormat, &exportOutput, &exportCompress)
	rootCmd.AddCommand(exportCmd)
}

func addOutputFlags(cmd *cobra.Command, format, output, compress *string) {
	cmd.Flags().StringVar(format, "format", "", "Output format: qcow2, raw, or gce")
	cmd.Flags().StringVarP(output, "output", "o", "", "Output path (default in the work directory)")
	cmd.Flags().StringVar(compress, "compress", "", "Compress raw or qcow2 output: none or xz")
}

// applyOutputFlags copies changed output flags onto the configuration.
func applyOutputFlags(cmd *cobra.Command, format, output, compress string) error {
	out := &app.Default.Config.Output
	if cmd.Flags().Changed("format") {
		out.Format = format
	}
	if cmd.Flags().Changed("output") {
		out.Path = output
	}
	if cmd.Flags().Changed("compress") {
		out.Compress = compress
	}
	if err := out.Validate(); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := applyOutputFlags(cmd, exportFormat, exportOutput, exportCompress); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	m, err := builder().Export(ctx)
	if err != nil {
		return err
	}
	printArtifacts(cmd, m)
	return nil
}

func printArtifacts(cmd *cobra.Command, m *image.Manifest) {
	for _, a := range m.Artifacts {
		logSuccess("Wrote %s (%s, %s)", a.Path, a.Format, a.HumanSize())
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", a.SHA256, a.Path)
	}
}
