package di

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"heavyhash.dev/miner/internal/application/services"
	"heavyhash.dev/miner/internal/backends/cpu"
	configdomain "heavyhash.dev/miner/internal/core/domain/config"
	plugindomain "heavyhash.dev/miner/internal/core/domain/plugin"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/core/schema"
	configinfra "heavyhash.dev/miner/internal/infrastructure/config"
	"heavyhash.dev/miner/internal/infrastructure/monitoring"
	"heavyhash.dev/miner/internal/infrastructure/plugins"
	"heavyhash.dev/miner/internal/infrastructure/plugins/discovery"
	"heavyhash.dev/miner/internal/interfaces/cli"
	"heavyhash.dev/miner/internal/logging"
)

// matrixCacheSize bounds the matrices kept for recent block templates
const matrixCacheSize = 16

// Builtins are the modules linked into the host binary
func Builtins() map[string]pluginports.EntryPoint {
	return map[string]pluginports.EntryPoint{
		cpu.Name: cpu.PluginCreate,
	}
}

// DefaultModules are loaded when neither configuration nor discovery names a
// module
var DefaultModules = []string{plugindomain.BuiltinPrefix + cpu.Name}

// Container holds all application dependencies
type Container struct {
	Config   *configdomain.Config
	Logger   hclog.Logger
	Plugins  *plugins.Manager
	Registry *prometheus.Registry

	CLIContainer *cli.CLIContainer
}

// NewContainer loads configuration and every module named by it. args are
// the raw command-line arguments; only host flags are read from them here.
func NewContainer(ctx context.Context, args []string) (*Container, error) {
	boot := cli.NewBootstrapFlagSet()
	if err := boot.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	configPath, err := boot.GetString(configinfra.FlagConfig)
	if err != nil {
		return nil, err
	}

	loader := configinfra.NewUnifiedLoader(
		configinfra.NewFlagLoader(boot),
		configinfra.NewEnvLoader(),
		configinfra.NewFileLoader(configPath),
	)
	cfg, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config: cfg,
		Logger: logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON}),
	}
	if err := c.initializeComponents(ctx); err != nil {
		if shutdownErr := c.Shutdown(); shutdownErr != nil {
			c.Logger.Error("failed to release modules", "error", shutdownErr)
		}
		return nil, err
	}
	return c, nil
}

func (c *Container) initializeComponents(ctx context.Context) error {
	// 1. Find modules
	finder := discovery.NewFileSystemDiscovery(c.Config.PluginDirs, c.Logger.Named("discovery"))
	discovered, err := finder.Discover(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover modules: %w", err)
	}
	paths := modulePaths(c.Config.Plugins, discovered)

	// 2. Load them, threading the schema through each
	opener := plugins.NewOpener(Builtins(), c.Logger.Named("plugins"))
	s, manager, err := plugins.LoadAll(schema.New(cli.HostOptions()), paths, opener, c.Logger.Named("plugins"))
	c.Plugins = manager
	if err != nil {
		return fmt.Errorf("failed to load modules: %w", err)
	}
	if problems := s.Problems(); c.Config.StrictOptions && len(problems) > 0 {
		lines := make([]string, 0, len(problems))
		for _, p := range problems {
			lines = append(lines, p.String())
		}
		return fmt.Errorf("modules registered conflicting options (set strict_options to false to continue):\n  %s",
			strings.Join(lines, "\n  "))
	}

	// 3. Metrics and services
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector())
	metrics := monitoring.NewCollector(c.Registry)

	matrices, err := pow.NewMatrixCache(matrixCacheSize)
	if err != nil {
		return err
	}
	bench := services.NewBenchService(manager, matrices, metrics, c.Logger.Named("bench"))

	// 4. CLI
	c.CLIContainer = &cli.CLIContainer{
		Config:     c.Config,
		Schema:     s,
		Plugins:    manager,
		Discovered: discovered,
		Builtins:   opener.Builtin.Names(),
		Bench:      bench,
		Metrics:    c.Registry,
		Logger:     c.Logger,
	}

	c.Logger.Debug("container initialized", "modules", len(paths))
	return nil
}

// modulePaths lists configured modules first, then discovered ones not
// already configured
func modulePaths(configured []string, discovered []pluginports.DiscoveredModule) []string {
	paths := slices.Clone(configured)
	for _, d := range discovered {
		if !slices.Contains(paths, d.Path) {
			paths = append(paths, d.Path)
		}
	}
	if len(paths) == 0 {
		return slices.Clone(DefaultModules)
	}
	return paths
}

// GetCLIContainer returns the CLI container for command execution
func (c *Container) GetCLIContainer() *cli.CLIContainer {
	return c.CLIContainer
}

// Shutdown releases every loaded module
func (c *Container) Shutdown() error {
	if c.Plugins == nil {
		return nil
	}
	return c.Plugins.Close()
}
