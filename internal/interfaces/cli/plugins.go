package cli

import (
	"github.com/spf13/cobra"
)

// NewPluginsCommand creates the plugins command
func NewPluginsCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List loaded modules and their options",
		Example: `  # Load a module binary next to the built-in backend
  hhminer --plugin builtin:cpu --plugin exec:./hh-plugin-gpu plugins`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := pluginsView{
				Modules:    container.Plugins.Plugins(),
				Options:    container.Schema.Options(),
				Problems:   container.Schema.Problems(),
				Discovered: container.Discovered,
				Builtins:   container.Builtins,
			}
			specs, err := container.Plugins.BuildWorkerSpecs()
			if err != nil {
				container.Logger.Warn("active plugin cannot produce worker specs", "error", err)
				view.ActiveSpecs = -1
			} else {
				view.ActiveSpecs = len(specs)
			}
			renderPlugins(cmd.OutOrStdout(), view)
			return nil
		},
	}
}
