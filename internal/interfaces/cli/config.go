package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command
func NewConfigCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show every configuration value and where it came from.

Sources in order of precedence: command-line flags, HH_* environment
variables, the YAML config file, defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			renderConfig(cmd.OutOrStdout(), container.Config)
			return nil
		},
	}
}
