package pluginports

import (
	"context"
	"errors"
	"fmt"

	plugindomain "heavyhash.dev/miner/internal/core/domain/plugin"
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/core/schema"
)

// EntrySymbol is the name every module exports its EntryPoint under
const EntrySymbol = "PluginCreate"

// EntryPoint is the registration contract of a module. It takes ownership of
// the schema built so far and returns the schema extended with the module's
// options together with a new Plugin. Returning an invalid schema or a nil
// plugin fails the load.
type EntryPoint func(s *schema.Schema) (*schema.Schema, Plugin)

// EntryInvoker is an entry point reached over a transport that can fail
// independently of the module, such as a subprocess connection.
type EntryInvoker interface {
	Invoke(s *schema.Schema) (*schema.Schema, Plugin, error)
}

// Plugin is the capability a loaded module hands back to the host
type Plugin interface {
	// Name identifies the plugin in logs, errors and option ownership
	Name() string

	// WorkerSpecs describes the workers this plugin can build
	WorkerSpecs() ([]WorkerSpec, error)

	// ProcessOptions receives the parsed values of the merged schema
	ProcessOptions(args schema.Args) error
}

// WorkerSpec is an inert description of a worker, such as a device and its
// workload
type WorkerSpec interface {
	Build() (Worker, error)
}

// Worker drives one hashing unit. A worker cycles through
// LoadBlockConstants, CalculateHash, Sync and CopyOutputTo, and may be reused
// for successive nonce batches. It is not safe for concurrent use; distinct
// workers may be driven from distinct goroutines.
type Worker interface {
	ID() string

	// LoadBlockConstants configures the worker for a block template
	LoadBlockConstants(header *pow.Header, matrix *pow.Matrix, target *pow.Target)

	// CalculateHash starts a batch. A nil nonces slice hashes a full workload
	// of the worker's own nonces. Failures are reported by the following Sync.
	CalculateHash(nonces []uint64)

	// Sync blocks until the last batch completes
	Sync() error

	// Workload is the number of nonces in a full batch
	Workload() int

	// CopyOutputTo appends the nonces of the last synced batch that met the
	// target to dst. A batch's results are handed out once; calling it again,
	// or before Sync, appends nothing.
	CopyOutputTo(dst []uint64) ([]uint64, error)

	// Close releases the worker's resources, waiting for an unsynced batch
	Close() error
}

// ErrNotConfigured is reported by Sync when a batch was started before
// LoadBlockConstants.
var ErrNotConfigured = errors.New("worker has no block constants")

// SyncFaultError is a backend fault reported by Worker.Sync
type SyncFaultError struct {
	WorkerID string
	Err      error
}

func (e *SyncFaultError) Error() string {
	return fmt.Sprintf("worker %s sync fault: %v", e.WorkerID, e.Err)
}

func (e *SyncFaultError) Unwrap() error {
	return e.Err
}

// Module is a loaded module image
type Module interface {
	Path() string
	Kind() plugindomain.ModuleKind

	// Lookup resolves an exported symbol. A missing symbol is an error.
	Lookup(symbol string) (any, error)

	// Close releases the image. Only called once nothing derived from the
	// module is reachable.
	Close() error
}

// ModuleOpener opens module images
type ModuleOpener interface {
	Open(path string) (Module, error)
}

// DiscoveredModule is a module found on disk
type DiscoveredModule struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	// Path is in the form accepted by ModuleOpener
	Path string `json:"path"`
}

// ModuleDiscovery finds modules in configured locations
type ModuleDiscovery interface {
	Discover(ctx context.Context) ([]DiscoveredModule, error)
}
