package configinfra

import (
	"context"

	"github.com/spf13/pflag"

	configdomain "heavyhash.dev/miner/internal/core/domain/config"
	configports "heavyhash.dev/miner/internal/core/ports/config"
)

// Host flag names
const (
	FlagConfig        = "config"
	FlagPlugin        = "plugin"
	FlagPluginDir     = "plugin-dir"
	FlagLogLevel      = "log-level"
	FlagLogJSON       = "log-json"
	FlagStrictOptions = "strict-options"
	FlagMetricsAddr   = "metrics-addr"
)

// FlagLoader turns explicitly set host flags into a snapshot (priority 1)
type FlagLoader struct {
	flags *pflag.FlagSet
}

func NewFlagLoader(flags *pflag.FlagSet) *FlagLoader {
	return &FlagLoader{flags: flags}
}

func (l *FlagLoader) Name() string { return "flags" }

func (l *FlagLoader) Load(ctx context.Context) (configdomain.Snapshot, error) {
	snap := make(configdomain.Snapshot)
	add := func(flag, field string, get func(string) (interface{}, error)) error {
		f := l.flags.Lookup(flag)
		if f == nil || !f.Changed {
			return nil
		}
		v, err := get(flag)
		if err != nil {
			return err
		}
		snap[field] = configdomain.Entry{Key: field, Value: v, Source: "cli", SourcePath: "--" + flag, Priority: configdomain.PriorityFlag}
		return nil
	}

	stringArray := func(name string) (interface{}, error) { return l.flags.GetStringArray(name) }
	str := func(name string) (interface{}, error) { return l.flags.GetString(name) }
	boolean := func(name string) (interface{}, error) { return l.flags.GetBool(name) }

	for _, m := range []struct {
		flag, field string
		get         func(string) (interface{}, error)
	}{
		{FlagPlugin, configdomain.FieldPlugins, stringArray},
		{FlagPluginDir, configdomain.FieldPluginDirs, stringArray},
		{FlagLogLevel, configdomain.FieldLogLevel, str},
		{FlagLogJSON, configdomain.FieldLogJSON, boolean},
		{FlagStrictOptions, configdomain.FieldStrictOptions, boolean},
		{FlagMetricsAddr, configdomain.FieldMetricsAddr, str},
	} {
		if err := add(m.flag, m.field, m.get); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

var _ configports.Loader = (*FlagLoader)(nil)
