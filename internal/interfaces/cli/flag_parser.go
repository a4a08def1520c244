package cli

import (
	"io"

	"github.com/spf13/pflag"

	"heavyhash.dev/miner/internal/core/schema"
	configinfra "heavyhash.dev/miner/internal/infrastructure/config"
)

// Bench command flag names
const (
	flagDuration   = "duration"
	flagTargetBits = "target-bits"
	flagMaxFaults  = "max-faults"
)

// HostOptions are the names the host reserves in the schema before any
// module is loaded, so a module can never take over a host flag.
func HostOptions() schema.OptionSet {
	return schema.OptionSet{
		{Name: configinfra.FlagConfig, Kind: schema.KindString, Usage: "config file path"},
		{Name: configinfra.FlagPlugin, Kind: schema.KindString, Usage: "module to load"},
		{Name: configinfra.FlagPluginDir, Kind: schema.KindString, Usage: "directory scanned for modules"},
		{Name: configinfra.FlagLogLevel, Kind: schema.KindString, Default: "info", Usage: "log level"},
		{Name: configinfra.FlagLogJSON, Kind: schema.KindBool, Default: "false", Usage: "log as JSON"},
		{Name: configinfra.FlagStrictOptions, Kind: schema.KindBool, Default: "true", Usage: "treat module option conflicts as fatal"},
		{Name: configinfra.FlagMetricsAddr, Kind: schema.KindString, Usage: "address serving /metrics"},
		{Name: "help", Shorthand: "h", Kind: schema.KindBool, Default: "false", Usage: "help"},
		{Name: "version", Shorthand: "v", Kind: schema.KindBool, Default: "false", Usage: "version"},
		{Name: flagDuration, Kind: schema.KindDuration, Default: "10s", Usage: "bench duration"},
		{Name: flagTargetBits, Kind: schema.KindUint64, Default: "0", Usage: "bench target"},
		{Name: flagMaxFaults, Kind: schema.KindInt, Default: "3", Usage: "bench fault budget"},
	}
}

// addHostFlags defines the persistent host flags on fs
func addHostFlags(fs *pflag.FlagSet) {
	fs.String(configinfra.FlagConfig, "", "config file path (default ~/.config/hhminer/config.yaml)")
	fs.StringArray(configinfra.FlagPlugin, nil, "module to load: a .so path, exec:<binary> or builtin:<name> (repeatable)")
	fs.StringArray(configinfra.FlagPluginDir, nil, "directory scanned for hh-plugin-* modules (repeatable)")
	fs.String(configinfra.FlagLogLevel, "info", "log level: trace, debug, info, warn, error or off")
	fs.Bool(configinfra.FlagLogJSON, false, "log as JSON")
	fs.Bool(configinfra.FlagStrictOptions, true, "treat module option conflicts as fatal")
	fs.String(configinfra.FlagMetricsAddr, "", "address serving Prometheus /metrics during bench")
}

// NewBootstrapFlagSet parses the host flags that decide which modules to
// load. Module options cannot be known yet, so unknown flags are skipped.
func NewBootstrapFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	addHostFlags(fs)
	fs.BoolP("help", "h", false, "")
	fs.BoolP("version", "v", false, "")
	return fs
}
