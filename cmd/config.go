package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Long: `Prints the configuration after defaults, the configuration file, and
flag overrides are applied. The output is a valid configuration file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Default.Config.Encode(cmd.OutOrStdout())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
