package cli

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"heavyhash.dev/miner/internal/application/services"
	configdomain "heavyhash.dev/miner/internal/core/domain/config"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/schema"
	"heavyhash.dev/miner/internal/infrastructure/plugins"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	Config *configdomain.Config
	// Schema is the final schema returned by the last module load.
	Schema     *schema.Schema
	Plugins    *plugins.Manager
	Discovered []pluginports.DiscoveredModule
	Builtins   []string
	Bench      *services.BenchService
	Metrics    prometheus.Gatherer
	Logger     hclog.Logger
}

// NewRootCommand builds the command tree. Module options are realised as
// persistent flags, so they are accepted before or after any subcommand.
func NewRootCommand(container *CLIContainer) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "hhminer",
		Short: "Pluggable kHeavyHash miner",
		Long: `hhminer loads hashing backends as modules: shared objects, module
binaries (exec:<path>) or backends linked into the host (builtin:<name>).

Each module adds its own options to the command line. Run 'hhminer plugins'
to see which modules are loaded and the options they registered.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return dispatchOptions(cmd, container)
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	addHostFlags(rootCmd.PersistentFlags())
	if err := container.Schema.Apply(rootCmd.PersistentFlags()); err != nil {
		return nil, fmt.Errorf("failed to register module options: %w", err)
	}

	rootCmd.AddCommand(NewBenchCommand(container))
	rootCmd.AddCommand(NewPluginsCommand(container))
	rootCmd.AddCommand(NewConfigCommand(container))

	return rootCmd, nil
}

// dispatchOptions hands the parsed module options to every plugin
func dispatchOptions(cmd *cobra.Command, container *CLIContainer) error {
	args, err := schema.ArgsFromFlags(cmd.Flags(), container.Schema)
	if err != nil {
		return err
	}
	return container.Plugins.DispatchOptions(args)
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the command line against the loaded modules
func Execute(ctx context.Context, container *CLIContainer, args []string) error {
	rootCmd, err := NewRootCommand(container)
	if err != nil {
		return err
	}
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
