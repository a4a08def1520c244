package configinfra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	configdomain "heavyhash.dev/miner/internal/core/domain/config"
	configports "heavyhash.dev/miner/internal/core/ports/config"
)

// FileLoader reads the YAML config file (priority 3). An explicitly named
// file must exist; the default location is optional.
type FileLoader struct {
	path     string
	explicit bool
}

// NewFileLoader reads path, or DefaultConfigPath when path is empty
func NewFileLoader(path string) *FileLoader {
	if path == "" {
		return &FileLoader{path: DefaultConfigPath()}
	}
	return &FileLoader{path: path, explicit: true}
}

// DefaultConfigPath is ~/.config/hhminer/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "hhminer", "config.yaml")
	}
	return filepath.Join(home, ".config", "hhminer", "config.yaml")
}

func (l *FileLoader) Name() string { return "file" }

// Path returns the file this loader reads
func (l *FileLoader) Path() string { return l.path }

// fileConfig mirrors the YAML layout; nil fields were not set
type fileConfig struct {
	Plugins       []string `yaml:"plugins"`
	PluginDirs    []string `yaml:"plugin_dirs"`
	LogLevel      *string  `yaml:"log_level"`
	LogJSON       *bool    `yaml:"log_json"`
	StrictOptions *bool    `yaml:"strict_options"`
	MetricsAddr   *string  `yaml:"metrics_addr"`
}

func (l *FileLoader) Load(ctx context.Context) (configdomain.Snapshot, error) {
	snap := make(configdomain.Snapshot)

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !l.explicit {
			return snap, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}

	toEntry := func(field string, v interface{}) {
		snap[field] = configdomain.Entry{Key: field, Value: v, Source: "file", SourcePath: l.path, Priority: configdomain.PriorityFile}
	}
	if fc.Plugins != nil {
		toEntry(configdomain.FieldPlugins, fc.Plugins)
	}
	if fc.PluginDirs != nil {
		toEntry(configdomain.FieldPluginDirs, fc.PluginDirs)
	}
	if fc.LogLevel != nil {
		toEntry(configdomain.FieldLogLevel, *fc.LogLevel)
	}
	if fc.LogJSON != nil {
		toEntry(configdomain.FieldLogJSON, *fc.LogJSON)
	}
	if fc.StrictOptions != nil {
		toEntry(configdomain.FieldStrictOptions, *fc.StrictOptions)
	}
	if fc.MetricsAddr != nil {
		toEntry(configdomain.FieldMetricsAddr, *fc.MetricsAddr)
	}
	return snap, nil
}

var _ configports.Loader = (*FileLoader)(nil)
