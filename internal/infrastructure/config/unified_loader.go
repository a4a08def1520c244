package configinfra

import (
	"context"
	"fmt"

	configdomain "heavyhash.dev/miner/internal/core/domain/config"
	configports "heavyhash.dev/miner/internal/core/ports/config"
)

// UnifiedLoader merges every source by priority into the effective config
type UnifiedLoader struct {
	loaders []configports.Loader
}

// NewUnifiedLoader creates a loader over the given sources
func NewUnifiedLoader(loaders ...configports.Loader) *UnifiedLoader {
	return &UnifiedLoader{loaders: loaders}
}

// Load runs all sources. Any source failing fails the load; a broken config
// file is not silently skipped.
func (l *UnifiedLoader) Load(ctx context.Context) (*configdomain.Config, error) {
	merged := make(configdomain.Snapshot)
	for _, loader := range l.loaders {
		snap, err := loader.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s configuration: %w", loader.Name(), err)
		}
		merged.Merge(snap)
	}
	return configdomain.FromSnapshot(merged)
}
