package configdomain

import (
	"fmt"
	"sort"
	"strings"
)

// Field names, shared by every configuration source
const (
	FieldPlugins       = "plugins"
	FieldPluginDirs    = "plugin_dirs"
	FieldLogLevel      = "log_level"
	FieldLogJSON       = "log_json"
	FieldStrictOptions = "strict_options"
	FieldMetricsAddr   = "metrics_addr"
)

// Source priorities (lower number wins)
const (
	PriorityFlag    = 1
	PriorityEnv     = 2
	PriorityFile    = 3
	PriorityDefault = 100
)

// Entry represents a single configuration value with provenance and priority.
type Entry struct {
	Key        string
	Value      interface{}
	Source     string
	SourcePath string
	Priority   int
}

// Snapshot is a collection of config entries keyed by field name.
type Snapshot map[string]Entry

// Merge merges another snapshot into this one respecting priority
// (lower number indicates higher priority).
func (s Snapshot) Merge(other Snapshot) {
	for k, e := range other {
		if existing, ok := s[k]; !ok || e.Priority <= existing.Priority {
			s[k] = e
		}
	}
}

// Config is the effective host configuration
type Config struct {
	// Plugins are module paths loaded in order, before discovered modules.
	Plugins []string
	// PluginDirs are scanned for hh-plugin-* modules.
	PluginDirs    []string
	LogLevel      string
	LogJSON       bool
	StrictOptions bool
	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string

	Sources Snapshot
}

// Defaults returns the snapshot every other source is merged over
func Defaults() Snapshot {
	def := func(field string, v interface{}) Entry {
		return Entry{Key: field, Value: v, Source: "default", Priority: PriorityDefault}
	}
	return Snapshot{
		FieldPlugins:       def(FieldPlugins, []string{}),
		FieldPluginDirs:    def(FieldPluginDirs, []string{"~/.config/hhminer/plugins"}),
		FieldLogLevel:      def(FieldLogLevel, "info"),
		FieldLogJSON:       def(FieldLogJSON, false),
		FieldStrictOptions: def(FieldStrictOptions, true),
		FieldMetricsAddr:   def(FieldMetricsAddr, ""),
	}
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "off": true,
}

// FromSnapshot builds the effective configuration. Fields missing from snap
// take their defaults; values of the wrong type are rejected.
func FromSnapshot(snap Snapshot) (*Config, error) {
	merged := Defaults()
	merged.Merge(snap)

	cfg := &Config{Sources: merged}
	for field, e := range merged {
		var ok bool
		switch field {
		case FieldPlugins:
			cfg.Plugins, ok = e.Value.([]string)
		case FieldPluginDirs:
			cfg.PluginDirs, ok = e.Value.([]string)
		case FieldLogLevel:
			cfg.LogLevel, ok = e.Value.(string)
			cfg.LogLevel = strings.ToLower(cfg.LogLevel)
		case FieldLogJSON:
			cfg.LogJSON, ok = e.Value.(bool)
		case FieldStrictOptions:
			cfg.StrictOptions, ok = e.Value.(bool)
		case FieldMetricsAddr:
			cfg.MetricsAddr, ok = e.Value.(string)
		default:
			return nil, fmt.Errorf("unknown config field: %s", field)
		}
		if !ok {
			return nil, fmt.Errorf("config field %s from %s has type %T", field, e.Source, e.Value)
		}
	}

	if !logLevels[cfg.LogLevel] {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return cfg, nil
}

// Fields lists the configured field names in lexical order
func (c *Config) Fields() []string {
	fields := make([]string, 0, len(c.Sources))
	for f := range c.Sources {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
