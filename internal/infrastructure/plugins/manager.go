package plugins

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	plugindomain "heavyhash.dev/miner/internal/core/domain/plugin"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/schema"
)

// Manager owns every loaded module and the plugin each one produced.
//
// Loading is sequential and the manager is only mutated while loading, so
// it holds no locks. Modules are released together by Close, never one at a
// time.
type Manager struct {
	opener  pluginports.ModuleOpener
	logger  hclog.Logger
	records []*record
	state   plugindomain.ManagerState
	closed  bool
}

type entryFunc func(*schema.Schema) (*schema.Schema, pluginports.Plugin, error)

// NewManager creates an empty manager
func NewManager(opener pluginports.ModuleOpener, logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		opener: opener,
		logger: logger,
		state:  plugindomain.StateEmpty,
	}
}

// LoadAll loads paths in order, threading the schema through each module.
// On failure it returns the schema as of the last successful load and the
// partially loaded manager, which the caller must still Close.
func LoadAll(s *schema.Schema, paths []string, opener pluginports.ModuleOpener, logger hclog.Logger) (*schema.Schema, *Manager, error) {
	m := NewManager(opener, logger)
	for _, path := range paths {
		var err error
		s, err = m.Load(s, path)
		if err != nil {
			return s, m, err
		}
	}
	return s, m, nil
}

// Load opens one module, hands it the schema and keeps the module and its
// plugin. s is moved into the entry point and the returned schema replaces
// it. When the load fails the returned schema equals s as it was before the
// call.
func (m *Manager) Load(s *schema.Schema, path string) (*schema.Schema, error) {
	if m.closed {
		return s, plugindomain.ErrManagerClosed
	}
	if m.state == plugindomain.StateFailed {
		return s, fmt.Errorf("refusing to load %s: %w", path, plugindomain.ErrLoadAborted)
	}
	if !s.Valid() {
		return s, schema.ErrSchemaMoved
	}
	m.state = plugindomain.StateLoading
	log := m.logger.With("path", path)
	log.Debug("loading module")

	mod, err := m.opener.Open(path)
	if err != nil {
		return s, m.fail(&plugindomain.LoadError{Kind: plugindomain.CannotOpenModule, Path: path, Err: err})
	}

	sym, err := mod.Lookup(pluginports.EntrySymbol)
	if err != nil {
		m.discard(mod)
		return s, m.fail(&plugindomain.LoadError{Kind: plugindomain.MissingEntryPoint, Path: path, Err: err})
	}
	entry, err := resolveEntry(sym)
	if err != nil {
		m.discard(mod)
		return s, m.fail(&plugindomain.LoadError{Kind: plugindomain.InvalidEntryPoint, Path: path, Err: err})
	}

	checkpoint, err := s.Checkpoint()
	if err != nil {
		m.discard(mod)
		return s, err
	}
	known := len(checkpoint.Problems())

	moved, err := s.Transfer()
	if err != nil {
		m.discard(mod)
		return checkpoint, err
	}
	out, plugin, err := invoke(entry, moved)
	if err == nil && plugin == nil {
		err = errors.New("entry point returned no plugin")
	}
	if err == nil && !out.Valid() {
		err = fmt.Errorf("entry point returned an unusable schema: %w", schema.ErrSchemaMoved)
	}
	if err == nil {
		err = checkExtends(checkpoint, out)
	}
	if err != nil {
		// The entry point ran module code, so the image stays until teardown.
		m.records = append(m.records, &record{index: len(m.records), module: mod})
		return checkpoint, m.fail(&plugindomain.LoadError{Kind: plugindomain.EntryPointFailed, Path: path, Err: err})
	}

	// Any handle the module kept dies here.
	out, _ = out.Transfer()
	m.records = append(m.records, &record{index: len(m.records), module: mod, plugin: plugin})
	if problems := out.Problems(); len(problems) > known {
		for _, p := range problems[known:] {
			log.Warn("option not registered as declared", "problem", p.String())
		}
	}
	m.state = plugindomain.StateReady
	log.Info("module loaded", "kind", mod.Kind(), "plugin", plugin.Name(), "options", out.Len())
	return out, nil
}

// BuildWorkerSpecs returns the worker specs of the most recently loaded
// plugin only. Specs of earlier plugins are not aggregated; running several
// backends at once is not supported by this call.
func (m *Manager) BuildWorkerSpecs() ([]pluginports.WorkerSpec, error) {
	if m.closed {
		return nil, plugindomain.ErrManagerClosed
	}
	rec := m.lastLoaded()
	if rec == nil {
		return nil, plugindomain.ErrNoPlugins
	}

	specs, err := rec.plugin.WorkerSpecs()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker specs from %s: %w", rec.plugin.Name(), err)
	}
	tracked := make([]pluginports.WorkerSpec, 0, len(specs))
	for _, spec := range specs {
		tracked = append(tracked, &trackedSpec{rec: rec, inner: spec})
	}
	m.logger.Debug("built worker specs", "plugin", rec.plugin.Name(), "count", len(tracked))
	return tracked, nil
}

// DispatchOptions hands parsed option values to every plugin in load order.
// The first rejection stops dispatch; later plugins never see their options.
func (m *Manager) DispatchOptions(args schema.Args) error {
	if m.closed {
		return plugindomain.ErrManagerClosed
	}
	for _, rec := range m.records {
		if rec.plugin == nil {
			continue
		}
		if err := rec.plugin.ProcessOptions(args); err != nil {
			return &plugindomain.OptionProcessingError{Plugin: rec.plugin.Name(), Err: err}
		}
		m.logger.Debug("options dispatched", "plugin", rec.plugin.Name())
	}
	return nil
}

// Plugins describes the loaded modules in load order
func (m *Manager) Plugins() []plugindomain.Descriptor {
	out := make([]plugindomain.Descriptor, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, plugindomain.Descriptor{
			Index:       rec.index,
			Path:        rec.module.Path(),
			Kind:        rec.module.Kind(),
			Plugin:      rec.pluginName(),
			LiveWorkers: int(rec.live.Load()),
		})
	}
	return out
}

// State reports where the manager is in its loading sequence
func (m *Manager) State() plugindomain.ManagerState {
	return m.state
}

// Close releases every module in reverse load order. It refuses while any
// worker built from a module's specs is still open.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}

	live := map[string]int{}
	for _, rec := range m.records {
		if n := rec.live.Load(); n > 0 {
			live[rec.module.Path()] = int(n)
		}
	}
	if len(live) > 0 {
		return &plugindomain.LiveWorkersError{Modules: live}
	}

	var errs []error
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		rec.released.Store(true)
		if err := rec.module.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close module %s: %w", rec.module.Path(), err))
		}
	}
	m.records = nil
	m.closed = true
	m.logger.Debug("plugin manager closed")
	return errors.Join(errs...)
}

func (m *Manager) lastLoaded() *record {
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].plugin != nil {
			return m.records[i]
		}
	}
	return nil
}

func (m *Manager) fail(err error) error {
	m.state = plugindomain.StateFailed
	m.logger.Error("module load failed", "error", err)
	return err
}

// discard closes a module whose code never ran
func (m *Manager) discard(mod pluginports.Module) {
	if err := mod.Close(); err != nil {
		m.logger.Warn("failed to close module", "path", mod.Path(), "error", err)
	}
}

func resolveEntry(sym any) (entryFunc, error) {
	var entry pluginports.EntryPoint
	switch e := sym.(type) {
	case pluginports.EntryInvoker:
		return e.Invoke, nil
	case pluginports.EntryPoint:
		entry = e
	case *pluginports.EntryPoint:
		if e != nil {
			entry = *e
		}
	case func(*schema.Schema) (*schema.Schema, pluginports.Plugin):
		entry = e
	case *func(*schema.Schema) (*schema.Schema, pluginports.Plugin):
		if e != nil {
			entry = *e
		}
	default:
		return nil, fmt.Errorf("symbol %s has type %T", pluginports.EntrySymbol, sym)
	}
	if entry == nil {
		return nil, fmt.Errorf("symbol %s is nil", pluginports.EntrySymbol)
	}
	return func(s *schema.Schema) (*schema.Schema, pluginports.Plugin, error) {
		out, p := entry(s)
		return out, p, nil
	}, nil
}

// checkExtends verifies that a module kept every option registered before it
func checkExtends(before, after *schema.Schema) error {
	for _, o := range before.Options() {
		got, ok := after.Lookup(o.Name)
		if !ok || got.Owner != o.Owner {
			return fmt.Errorf("entry point dropped option --%s registered by %s", o.Name, o.Owner)
		}
	}
	return nil
}

func invoke(entry entryFunc, s *schema.Schema) (out *schema.Schema, p pluginports.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry point panicked: %v", r)
		}
	}()
	return entry(s)
}
