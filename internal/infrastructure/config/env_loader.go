package configinfra

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	configdomain "heavyhash.dev/miner/internal/core/domain/config"
	configports "heavyhash.dev/miner/internal/core/ports/config"
)

// EnvPrefix prefixes every environment variable the host reads
const EnvPrefix = "HH_"

type EnvLoader struct{}

func NewEnvLoader() *EnvLoader { return &EnvLoader{} }

func (l *EnvLoader) Name() string { return "env" }

// Load builds a snapshot from HH_* environment variables (priority 2).
// Lists are comma separated.
func (l *EnvLoader) Load(ctx context.Context) (configdomain.Snapshot, error) {
	snap := make(configdomain.Snapshot)
	var errs []string
	add := func(key, field string, convert func(string) (interface{}, error)) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		val, err := convert(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return
		}
		snap[field] = configdomain.Entry{Key: field, Value: val, Source: "env", SourcePath: key, Priority: configdomain.PriorityEnv}
	}

	add(EnvPrefix+"PLUGINS", configdomain.FieldPlugins, asList)
	add(EnvPrefix+"PLUGIN_DIRS", configdomain.FieldPluginDirs, asList)
	add(EnvPrefix+"LOG_LEVEL", configdomain.FieldLogLevel, asString)
	add(EnvPrefix+"LOG_JSON", configdomain.FieldLogJSON, asBool)
	add(EnvPrefix+"STRICT_OPTIONS", configdomain.FieldStrictOptions, asBool)
	add(EnvPrefix+"METRICS_ADDR", configdomain.FieldMetricsAddr, asString)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return snap, nil
}

func asString(s string) (interface{}, error) { return s, nil }

func asBool(s string) (interface{}, error) { return strconv.ParseBool(s) }

func asList(s string) (interface{}, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

var _ configports.Loader = (*EnvLoader)(nil)
