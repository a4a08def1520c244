package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"heavyhash.dev/miner/internal/backends/cpu"
	plugindomain "heavyhash.dev/miner/internal/core/domain/plugin"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/core/schema"
)

// MockPlugin for testing
type MockPlugin struct {
	mock.Mock
	name string
}

func (m *MockPlugin) Name() string { return m.name }

func (m *MockPlugin) WorkerSpecs() ([]pluginports.WorkerSpec, error) {
	args := m.Called()
	specs, _ := args.Get(0).([]pluginports.WorkerSpec)
	return specs, args.Error(1)
}

func (m *MockPlugin) ProcessOptions(a schema.Args) error {
	return m.Called(a).Error(0)
}

// fakeModule is an in-memory module image
type fakeModule struct {
	path     string
	symbols  map[string]any
	closed   bool
	closeErr error
	onClose  func(path string)
}

func (m *fakeModule) Path() string                  { return m.path }
func (m *fakeModule) Kind() plugindomain.ModuleKind { return plugindomain.KindBuiltin }

func (m *fakeModule) Lookup(symbol string) (any, error) {
	sym, ok := m.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}
	return sym, nil
}

func (m *fakeModule) Close() error {
	m.closed = true
	if m.onClose != nil {
		m.onClose(m.path)
	}
	return m.closeErr
}

type fakeOpener struct {
	modules map[string]*fakeModule
	opened  []string
}

func (o *fakeOpener) Open(path string) (pluginports.Module, error) {
	o.opened = append(o.opened, path)
	m, ok := o.modules[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return m, nil
}

func newFakeOpener(modules ...*fakeModule) *fakeOpener {
	o := &fakeOpener{modules: map[string]*fakeModule{}}
	for _, m := range modules {
		o.modules[m.path] = m
	}
	return o
}

// idSpec builds workers whose id names the spec
type idSpec string

func (s idSpec) Build() (pluginports.Worker, error) {
	return &idleWorker{id: string(s)}, nil
}

type idleWorker struct {
	id     string
	closed bool
}

func (w *idleWorker) ID() string                                               { return w.id }
func (w *idleWorker) LoadBlockConstants(*pow.Header, *pow.Matrix, *pow.Target) {}
func (w *idleWorker) CalculateHash([]uint64)                                   {}
func (w *idleWorker) Sync() error                                              { return nil }
func (w *idleWorker) Workload() int                                            { return 1 }
func (w *idleWorker) CopyOutputTo(dst []uint64) ([]uint64, error)              { return dst, nil }
func (w *idleWorker) Close() error                                             { w.closed = true; return nil }

// staticPlugin registers opts and hands out fixed specs
type staticPlugin struct {
	name  string
	specs []string
}

func (p *staticPlugin) Name() string { return p.name }

func (p *staticPlugin) WorkerSpecs() ([]pluginports.WorkerSpec, error) {
	var specs []pluginports.WorkerSpec
	for _, s := range p.specs {
		specs = append(specs, idSpec(s))
	}
	return specs, nil
}

func (p *staticPlugin) ProcessOptions(schema.Args) error { return nil }

func entryFor(p pluginports.Plugin, opts schema.OptionSet) pluginports.EntryPoint {
	return func(s *schema.Schema) (*schema.Schema, pluginports.Plugin) {
		out, err := s.Augment(p.Name(), opts)
		if err != nil {
			return nil, p
		}
		return out, p
	}
}

func moduleFor(path string, p pluginports.Plugin, opts schema.OptionSet) *fakeModule {
	return &fakeModule{path: path, symbols: map[string]any{pluginports.EntrySymbol: entryFor(p, opts)}}
}

func hostSchema() *schema.Schema {
	return schema.New(schema.OptionSet{{Name: "config"}, {Name: "plugin"}})
}

func owners(s *schema.Schema) map[string]string {
	out := map[string]string{}
	for _, o := range s.Options() {
		out[o.Name] = o.Owner
	}
	return out
}

// TestLoadAll_OrderOnlyChangesDuplicateOwners tests that swapping load order
// changes the holder of a shared option name and nothing else
func TestLoadAll_OrderOnlyChangesDuplicateOwners(t *testing.T) {
	optsA := schema.OptionSet{{Name: "device"}, {Name: "a-only"}}
	optsB := schema.OptionSet{{Name: "device"}, {Name: "b-only"}}
	modA := func() *fakeModule { return moduleFor("a.so", &staticPlugin{name: "a"}, optsA) }
	modB := func() *fakeModule { return moduleFor("b.so", &staticPlugin{name: "b"}, optsB) }

	ab, mAB, err := LoadAll(hostSchema(), []string{"a.so", "b.so"}, newFakeOpener(modA(), modB()), nil)
	require.NoError(t, err)
	defer mAB.Close()
	ba, mBA, err := LoadAll(hostSchema(), []string{"b.so", "a.so"}, newFakeOpener(modA(), modB()), nil)
	require.NoError(t, err)
	defer mBA.Close()

	ownersAB, ownersBA := owners(ab), owners(ba)
	assert.Equal(t, "a", ownersAB["device"], "first registration wins")
	assert.Equal(t, "b", ownersBA["device"], "first registration wins")

	delete(ownersAB, "device")
	delete(ownersBA, "device")
	assert.Equal(t, ownersAB, ownersBA, "non-conflicting options are never dropped")
	assert.Contains(t, ownersAB, "a-only")
	assert.Contains(t, ownersAB, "b-only")

	require.Len(t, ab.Problems(), 1)
	assert.Equal(t, schema.DuplicateOption, ab.Problems()[0].Kind)
	assert.Equal(t, "b", ab.Problems()[0].Owner)
}

func TestLoad_DuplicateOptionsAreLoggedAtMerge(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})

	opener := newFakeOpener(
		moduleFor("a.so", &staticPlugin{name: "a"}, schema.OptionSet{{Name: "device"}}),
		moduleFor("b.so", &staticPlugin{name: "b"}, schema.OptionSet{{Name: "device"}}),
	)
	_, m, err := LoadAll(hostSchema(), []string{"a.so", "b.so"}, opener, logger)
	require.NoError(t, err)
	defer m.Close()

	assert.Contains(t, buf.String(), "option not registered as declared")
	assert.Contains(t, buf.String(), "already registered by a")
}

// TestBuildWorkerSpecs_ReturnsOnlyLastPlugin guards the narrow aggregation
// policy: earlier plugins' specs are never included
func TestBuildWorkerSpecs_ReturnsOnlyLastPlugin(t *testing.T) {
	opener := newFakeOpener(
		moduleFor("a.so", &staticPlugin{name: "a", specs: []string{"a-0", "a-1"}}, nil),
		moduleFor("b.so", &staticPlugin{name: "b", specs: []string{"b-0"}}, nil),
	)
	_, m, err := LoadAll(hostSchema(), []string{"a.so", "b.so"}, opener, nil)
	require.NoError(t, err)

	specs, err := m.BuildWorkerSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)

	w, err := specs[0].Build()
	require.NoError(t, err)
	assert.Equal(t, "b-0", w.ID())
	require.NoError(t, w.Close())
	require.NoError(t, m.Close())
}

func TestBuildWorkerSpecs_NoPlugins(t *testing.T) {
	_, m, err := LoadAll(hostSchema(), nil, newFakeOpener(), nil)
	require.NoError(t, err)
	assert.Equal(t, plugindomain.StateEmpty, m.State())

	_, err = m.BuildWorkerSpecs()
	assert.ErrorIs(t, err, plugindomain.ErrNoPlugins)
}

func TestBuildWorkerSpecs_PropagatesPluginError(t *testing.T) {
	p := &MockPlugin{name: "broken"}
	p.On("WorkerSpecs").Return(nil, errors.New("no devices"))

	_, m, err := LoadAll(hostSchema(), []string{"x.so"}, newFakeOpener(moduleFor("x.so", p, nil)), nil)
	require.NoError(t, err)

	_, err = m.BuildWorkerSpecs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no devices")
	p.AssertExpectations(t)
}

// TestLoadAll_MissingEntryPointLeavesSchemaUnchanged tests that a failing
// module neither mutates the schema nor lets later modules load
func TestLoadAll_MissingEntryPointLeavesSchemaUnchanged(t *testing.T) {
	good := moduleFor("a.so", &staticPlugin{name: "a"}, schema.OptionSet{{Name: "a-opt"}})
	broken := &fakeModule{path: "broken.so", symbols: map[string]any{}}
	later := moduleFor("c.so", &staticPlugin{name: "c"}, schema.OptionSet{{Name: "c-opt"}})
	opener := newFakeOpener(good, broken, later)

	expected, _, err := LoadAll(hostSchema(), []string{"a.so"}, newFakeOpener(moduleFor("a.so", &staticPlugin{name: "a"}, schema.OptionSet{{Name: "a-opt"}})), nil)
	require.NoError(t, err)

	got, m, err := LoadAll(hostSchema(), []string{"a.so", "broken.so", "c.so"}, opener, nil)
	require.Error(t, err)

	var loadErr *plugindomain.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, plugindomain.MissingEntryPoint, loadErr.Kind)
	assert.Equal(t, "broken.so", loadErr.Path)

	require.True(t, got.Valid())
	assert.Equal(t, expected.Options(), got.Options())
	assert.Equal(t, expected.Problems(), got.Problems())

	assert.Equal(t, []string{"a.so", "broken.so"}, opener.opened, "loading stops at the first failure")
	assert.True(t, broken.closed, "a module whose entry point never ran is released")
	assert.Equal(t, plugindomain.StateFailed, m.State())
	assert.Len(t, m.Plugins(), 1, "modules loaded before the failure are retained")

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
}

func TestLoad_Failures(t *testing.T) {
	nilEntry := (*pluginports.EntryPoint)(nil)
	tests := []struct {
		name         string
		symbol       any
		hasSymbol    bool
		expectKind   plugindomain.LoadErrorKind
		expectClosed bool
		description  string
	}{
		{
			name:         "WrongType_ShouldBeInvalid",
			symbol:       42,
			hasSymbol:    true,
			expectKind:   plugindomain.InvalidEntryPoint,
			expectClosed: true,
			description:  "symbols of other types are rejected before any module code runs",
		},
		{
			name:         "NilPointer_ShouldBeInvalid",
			symbol:       nilEntry,
			hasSymbol:    true,
			expectKind:   plugindomain.InvalidEntryPoint,
			expectClosed: true,
			description:  "a nil entry point cannot be called",
		},
		{
			name: "Panic_ShouldFailEntryPoint",
			symbol: pluginports.EntryPoint(func(*schema.Schema) (*schema.Schema, pluginports.Plugin) {
				panic("kernel compile failed")
			}),
			hasSymbol:   true,
			expectKind:  plugindomain.EntryPointFailed,
			description: "a panicking entry point is reported, not propagated",
		},
		{
			name: "NilPlugin_ShouldFailEntryPoint",
			symbol: pluginports.EntryPoint(func(s *schema.Schema) (*schema.Schema, pluginports.Plugin) {
				return s, nil
			}),
			hasSymbol:   true,
			expectKind:  plugindomain.EntryPointFailed,
			description: "every module must produce a plugin",
		},
		{
			name: "MovedSchema_ShouldFailEntryPoint",
			symbol: pluginports.EntryPoint(func(s *schema.Schema) (*schema.Schema, pluginports.Plugin) {
				_, _ = s.Transfer()
				return s, &staticPlugin{name: "x"}
			}),
			hasSymbol:   true,
			expectKind:  plugindomain.EntryPointFailed,
			description: "returning the handle it moved from is detected",
		},
		{
			name: "DroppedOption_ShouldFailEntryPoint",
			symbol: pluginports.EntryPoint(func(s *schema.Schema) (*schema.Schema, pluginports.Plugin) {
				return schema.New(nil), &staticPlugin{name: "x"}
			}),
			hasSymbol:   true,
			expectKind:  plugindomain.EntryPointFailed,
			description: "a module must extend the schema it was given",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := &fakeModule{path: "x.so", symbols: map[string]any{}}
			if tt.hasSymbol {
				mod.symbols[pluginports.EntrySymbol] = tt.symbol
			}
			m := NewManager(newFakeOpener(mod), nil)

			before := hostSchema()
			expected := before.Options()

			after, err := m.Load(before, "x.so")
			require.Error(t, err, tt.description)

			var loadErr *plugindomain.LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, tt.expectKind, loadErr.Kind, tt.description)
			assert.Equal(t, expected, after.Options(), "schema must equal the one before the failed load")
			assert.Equal(t, tt.expectClosed, mod.closed)
			assert.Equal(t, plugindomain.StateFailed, m.State())

			if !tt.expectClosed {
				require.Len(t, m.Plugins(), 1, "a module whose code ran is kept until teardown")
				assert.Empty(t, m.Plugins()[0].Plugin)
			}
			require.NoError(t, m.Close())
			assert.True(t, mod.closed)
		})
	}
}

func TestLoad_CannotOpen(t *testing.T) {
	m := NewManager(newFakeOpener(), nil)
	s, err := m.Load(hostSchema(), "missing.so")

	var loadErr *plugindomain.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, plugindomain.CannotOpenModule, loadErr.Kind)
	assert.Contains(t, err.Error(), "missing.so")
	assert.True(t, s.Valid())
	assert.Empty(t, m.Plugins())
}

func TestLoad_AfterFailureIsRefused(t *testing.T) {
	opener := newFakeOpener(moduleFor("a.so", &staticPlugin{name: "a"}, nil))
	m := NewManager(opener, nil)

	s, err := m.Load(hostSchema(), "missing.so")
	require.Error(t, err)

	_, err = m.Load(s, "a.so")
	assert.ErrorIs(t, err, plugindomain.ErrLoadAborted)
	assert.Equal(t, []string{"missing.so"}, opener.opened)
}

func TestLoad_RejectsMovedSchema(t *testing.T) {
	m := NewManager(newFakeOpener(moduleFor("a.so", &staticPlugin{name: "a"}, nil)), nil)
	s := hostSchema()
	_, err := s.Transfer()
	require.NoError(t, err)

	_, err = m.Load(s, "a.so")
	assert.ErrorIs(t, err, schema.ErrSchemaMoved)
	assert.Equal(t, plugindomain.StateEmpty, m.State())
}

// TestLoad_TakesOwnershipOfSchema tests that the caller's handle is moved
// into the entry point and that a handle the module kept cannot reach the
// schema the host gets back
func TestLoad_TakesOwnershipOfSchema(t *testing.T) {
	var kept *schema.Schema
	hoarding := pluginports.EntryPoint(func(s *schema.Schema) (*schema.Schema, pluginports.Plugin) {
		kept = s
		return s, &staticPlugin{name: "h"}
	})
	mod := &fakeModule{path: "h.so", symbols: map[string]any{pluginports.EntrySymbol: hoarding}}
	m := NewManager(newFakeOpener(mod), nil)

	host := hostSchema()
	out, err := m.Load(host, "h.so")
	require.NoError(t, err)

	assert.False(t, host.Valid(), "the caller's handle is consumed by a successful load")
	assert.NotSame(t, host, out)
	assert.NotSame(t, kept, out)
	assert.False(t, kept.Valid(), "the module's handle is released when the host takes the schema back")

	_, err = kept.Augment("h", schema.OptionSet{{Name: "late"}})
	assert.ErrorIs(t, err, schema.ErrSchemaMoved)
	require.True(t, out.Valid(), "a late augment by the module cannot take the schema back")
	_, ok := out.Lookup("late")
	assert.False(t, ok)
	assert.Equal(t, owners(hostSchema()), owners(out))

	require.NoError(t, m.Close())
}

type invokerEntry struct {
	plugin pluginports.Plugin
	err    error
}

func (e invokerEntry) Invoke(s *schema.Schema) (*schema.Schema, pluginports.Plugin, error) {
	if e.err != nil {
		_, _ = s.Export()
		return nil, nil, e.err
	}
	out, err := s.Augment(e.plugin.Name(), nil)
	return out, e.plugin, err
}

func TestLoad_AcceptedEntryPointForms(t *testing.T) {
	entry := entryFor(&staticPlugin{name: "p"}, schema.OptionSet{{Name: "p-opt"}})
	raw := (func(*schema.Schema) (*schema.Schema, pluginports.Plugin))(entry)

	tests := []struct {
		name   string
		symbol any
	}{
		{name: "EntryPoint", symbol: entry},
		{name: "PointerToEntryPoint", symbol: &entry},
		{name: "Func", symbol: raw},
		{name: "PointerToFunc", symbol: &raw},
		{name: "Invoker", symbol: invokerEntry{plugin: &staticPlugin{name: "p"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := &fakeModule{path: "p.so", symbols: map[string]any{pluginports.EntrySymbol: tt.symbol}}
			m := NewManager(newFakeOpener(mod), nil)

			s, err := m.Load(hostSchema(), "p.so")
			require.NoError(t, err)
			assert.True(t, s.Valid())
			assert.Equal(t, plugindomain.StateReady, m.State())

			plugins := m.Plugins()
			require.Len(t, plugins, 1)
			assert.Equal(t, "p", plugins[0].Plugin)
			assert.Equal(t, "p.so", plugins[0].Path)
			require.NoError(t, m.Close())
		})
	}
}

func TestLoad_InvokerFailureRestoresSchema(t *testing.T) {
	mod := &fakeModule{path: "x", symbols: map[string]any{pluginports.EntrySymbol: invokerEntry{err: errors.New("connection reset")}}}
	m := NewManager(newFakeOpener(mod), nil)

	before := hostSchema()
	expected := before.Options()
	after, err := m.Load(before, "x")

	var loadErr *plugindomain.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, plugindomain.EntryPointFailed, loadErr.Kind)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, expected, after.Options())
}

// TestDispatchOptions_StopsAtFirstFailure tests that plugin 2 of 3 failing
// applies plugin 1, skips plugin 3 and names plugin 2
func TestDispatchOptions_StopsAtFirstFailure(t *testing.T) {
	p1 := &MockPlugin{name: "p1"}
	p2 := &MockPlugin{name: "p2"}
	p3 := &MockPlugin{name: "p3"}
	p1.On("ProcessOptions", mock.Anything).Return(nil)
	p2.On("ProcessOptions", mock.Anything).Return(errors.New("unknown device 9"))

	opener := newFakeOpener(moduleFor("1.so", p1, nil), moduleFor("2.so", p2, nil), moduleFor("3.so", p3, nil))
	_, m, err := LoadAll(hostSchema(), []string{"1.so", "2.so", "3.so"}, opener, nil)
	require.NoError(t, err)

	args := schema.Args{Values: map[string]string{"device": "9"}}
	err = m.DispatchOptions(args)
	require.Error(t, err)

	var optErr *plugindomain.OptionProcessingError
	require.True(t, errors.As(err, &optErr))
	assert.Equal(t, "p2", optErr.Plugin)
	assert.Contains(t, err.Error(), "unknown device 9")

	p1.AssertCalled(t, "ProcessOptions", args)
	p2.AssertCalled(t, "ProcessOptions", args)
	p3.AssertNotCalled(t, "ProcessOptions", mock.Anything)
}

func TestDispatchOptions_AllPlugins(t *testing.T) {
	p1 := &MockPlugin{name: "p1"}
	p2 := &MockPlugin{name: "p2"}
	p1.On("ProcessOptions", mock.Anything).Return(nil).Once()
	p2.On("ProcessOptions", mock.Anything).Return(nil).Once()

	_, m, err := LoadAll(hostSchema(), []string{"1.so", "2.so"}, newFakeOpener(moduleFor("1.so", p1, nil), moduleFor("2.so", p2, nil)), nil)
	require.NoError(t, err)

	require.NoError(t, m.DispatchOptions(schema.Args{}))
	p1.AssertExpectations(t)
	p2.AssertExpectations(t)
}

// TestClose_RefusesWhileWorkersLive tests the lifetime guard: a module cannot
// be released while a worker built from it is open
func TestClose_RefusesWhileWorkersLive(t *testing.T) {
	var order []string
	a := moduleFor("a.so", &staticPlugin{name: "a"}, nil)
	b := moduleFor("b.so", &staticPlugin{name: "b", specs: []string{"b-0", "b-1"}}, nil)
	a.onClose = func(p string) { order = append(order, p) }
	b.onClose = func(p string) { order = append(order, p) }

	_, m, err := LoadAll(hostSchema(), []string{"a.so", "b.so"}, newFakeOpener(a, b), nil)
	require.NoError(t, err)

	specs, err := m.BuildWorkerSpecs()
	require.NoError(t, err)
	w0, err := specs[0].Build()
	require.NoError(t, err)
	w1, err := specs[1].Build()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Plugins()[1].LiveWorkers)

	err = m.Close()
	var liveErr *plugindomain.LiveWorkersError
	require.True(t, errors.As(err, &liveErr))
	assert.Equal(t, map[string]int{"b.so": 2}, liveErr.Modules)
	assert.False(t, a.closed)
	assert.False(t, b.closed)

	require.NoError(t, w0.Close())
	require.NoError(t, w0.Close(), "closing twice releases the slot once")
	assert.Error(t, m.Close(), "one worker is still live")

	require.NoError(t, w1.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, []string{"b.so", "a.so"}, order, "modules are released in reverse load order")

	_, err = specs[0].Build()
	assert.Error(t, err, "specs cannot outlive their module")
	_, err = m.BuildWorkerSpecs()
	assert.ErrorIs(t, err, plugindomain.ErrManagerClosed)
	assert.NoError(t, m.Close(), "close is idempotent")
}

func TestClose_JoinsModuleErrors(t *testing.T) {
	a := moduleFor("a.so", &staticPlugin{name: "a"}, nil)
	b := moduleFor("b.so", &staticPlugin{name: "b"}, nil)
	a.closeErr = errors.New("a busy")
	b.closeErr = errors.New("b busy")

	_, m, err := LoadAll(hostSchema(), []string{"a.so", "b.so"}, newFakeOpener(a, b), nil)
	require.NoError(t, err)

	err = m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a busy")
	assert.Contains(t, err.Error(), "b busy")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestManager_BuiltinCPU(t *testing.T) {
	opener := NewOpener(map[string]pluginports.EntryPoint{cpu.Name: cpu.PluginCreate}, nil)

	s, m, err := LoadAll(hostSchema(), []string{"builtin:cpu"}, opener, nil)
	require.NoError(t, err)

	fs := pflag.NewFlagSet("hhminer", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.StringSlice("plugin", nil, "")
	require.NoError(t, s.Apply(fs))
	require.NoError(t, fs.Parse([]string{"--cpu-workers", "2", "--cpu-workload", "16", "--cpu-seed", "1"}))

	args, err := schema.ArgsFromFlags(fs, s)
	require.NoError(t, err)
	require.NoError(t, m.DispatchOptions(args))

	specs, err := m.BuildWorkerSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 2)

	w, err := specs[1].Build()
	require.NoError(t, err)
	assert.Equal(t, "cpu-1", w.ID())

	var prePow pow.Hash
	hdr := pow.NewHeader(prePow, 0)
	target := pow.Target{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}
	w.LoadBlockConstants(&hdr, pow.GenerateMatrix(prePow), &target)
	w.CalculateHash(nil)
	require.NoError(t, w.Sync())
	out, err := w.CopyOutputTo(nil)
	require.NoError(t, err)
	assert.Len(t, out, 16)

	assert.Error(t, m.Close())
	require.NoError(t, w.Close())
	require.NoError(t, m.Close())
}

func TestOpener_UnknownBuiltin(t *testing.T) {
	opener := NewOpener(map[string]pluginports.EntryPoint{cpu.Name: cpu.PluginCreate}, nil)
	_, err := opener.Open("builtin:gpu")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "gpu"))
	assert.Equal(t, []string{"cpu"}, opener.Builtin.Names())
}

func TestOpener_SharedObjectMissingFile(t *testing.T) {
	_, err := NewOpener(nil, nil).Open("/nonexistent/hh-plugin-x.so")
	assert.Error(t, err)
}
