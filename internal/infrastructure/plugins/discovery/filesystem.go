package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	plugindomain "heavyhash.dev/miner/internal/core/domain/plugin"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
)

// ModulePrefix marks module files in plugin directories
const ModulePrefix = "hh-plugin-"

// FileSystemDiscovery finds modules by scanning directories for files named
// hh-plugin-*. Shared objects (*.so) are returned as plain paths and
// executables with the exec: prefix. Results are ordered by directory, then
// lexically by file name.
type FileSystemDiscovery struct {
	directories []string
	logger      hclog.Logger
}

// NewFileSystemDiscovery creates a filesystem-based module discovery
func NewFileSystemDiscovery(directories []string, logger hclog.Logger) *FileSystemDiscovery {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FileSystemDiscovery{
		directories: directories,
		logger:      logger,
	}
}

// Discover scans every configured directory. Missing directories are skipped.
func (d *FileSystemDiscovery) Discover(ctx context.Context) ([]pluginports.DiscoveredModule, error) {
	var found []pluginports.DiscoveredModule

	for _, dir := range d.directories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		expanded := ExpandPath(dir)
		if _, err := os.Stat(expanded); os.IsNotExist(err) {
			d.logger.Debug("plugin directory does not exist", "dir", expanded)
			continue
		}

		modules, err := d.scanDirectory(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", expanded, err)
		}
		found = append(found, modules...)
	}

	d.logger.Debug("discovered modules", "count", len(found))
	return found, nil
}

func (d *FileSystemDiscovery) scanDirectory(dir string) ([]pluginports.DiscoveredModule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var modules []pluginports.DiscoveredModule
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, ModulePrefix) || strings.HasSuffix(name, manifestSuffix) {
			continue
		}

		path := filepath.Join(dir, name)
		module, err := d.inspect(path)
		if err != nil {
			d.logger.Warn("skipping module", "path", path, "error", err)
			continue
		}
		modules = append(modules, *module)
		d.logger.Debug("found module", "name", module.Name, "version", module.Version, "path", module.Path)
	}
	return modules, nil
}

// inspect classifies a module file and reads its manifest, if any
func (d *FileSystemDiscovery) inspect(path string) (*pluginports.DiscoveredModule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("module file not found: %w", err)
	}

	modulePath := path
	if filepath.Ext(path) != ".so" {
		if info.Mode()&0111 == 0 {
			return nil, fmt.Errorf("module file is not executable")
		}
		modulePath = plugindomain.ExecPrefix + path
	}

	module := &pluginports.DiscoveredModule{
		Name:    moduleName(path),
		Version: "unknown",
		Path:    modulePath,
	}

	mf, err := loadManifest(manifestPath(path))
	switch {
	case err == nil:
		if mf.Name != "" {
			module.Name = mf.Name
		}
		if mf.Version != "" {
			module.Version = mf.Version
		}
		module.Description = mf.Description
	case !os.IsNotExist(err):
		d.logger.Warn("ignoring unreadable manifest", "path", path, "error", err)
	}
	return module, nil
}

const manifestSuffix = ".manifest.json"

type manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	return &m, nil
}

// ExpandPath expands a leading ~/ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// manifestPath returns hh-plugin-<name>.manifest.json next to the module
func manifestPath(path string) string {
	return filepath.Join(filepath.Dir(path), ModulePrefix+moduleName(path)+manifestSuffix)
}

func moduleName(path string) string {
	name := strings.TrimPrefix(filepath.Base(path), ModulePrefix)
	if idx := strings.LastIndex(name, "."); idx != -1 {
		name = name[:idx]
	}
	return name
}
