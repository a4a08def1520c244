package configports

import (
	"context"

	configdomain "heavyhash.dev/miner/internal/core/domain/config"
)

// Loader reads one configuration source
type Loader interface {
	Load(ctx context.Context) (configdomain.Snapshot, error)
	Name() string
}
