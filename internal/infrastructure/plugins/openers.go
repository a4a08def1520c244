package plugins

import (
	"fmt"
	"os/exec"
	"plugin"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	plugindomain "heavyhash.dev/miner/internal/core/domain/plugin"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/pkg/pluginrpc"
)

// Opener routes a module path to the loader for its kind: "builtin:<name>",
// "exec:<path>", and anything else as a shared object.
type Opener struct {
	Builtin      *BuiltinOpener
	Executable   *ExecOpener
	SharedObject *SharedObjectOpener
}

// NewOpener creates an opener for all three module kinds
func NewOpener(builtins map[string]pluginports.EntryPoint, logger hclog.Logger) *Opener {
	return &Opener{
		Builtin:      NewBuiltinOpener(builtins),
		Executable:   NewExecOpener(logger),
		SharedObject: &SharedObjectOpener{},
	}
}

func (o *Opener) Open(path string) (pluginports.Module, error) {
	switch {
	case strings.HasPrefix(path, plugindomain.BuiltinPrefix):
		return o.Builtin.Open(path)
	case strings.HasPrefix(path, plugindomain.ExecPrefix):
		return o.Executable.Open(path)
	default:
		return o.SharedObject.Open(path)
	}
}

// BuiltinOpener serves entry points linked into the host binary
type BuiltinOpener struct {
	entries map[string]pluginports.EntryPoint
}

// NewBuiltinOpener creates an opener over the given entry points
func NewBuiltinOpener(entries map[string]pluginports.EntryPoint) *BuiltinOpener {
	return &BuiltinOpener{entries: entries}
}

// Names lists the built-in modules in lexical order
func (o *BuiltinOpener) Names() []string {
	names := make([]string, 0, len(o.entries))
	for name := range o.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *BuiltinOpener) Open(path string) (pluginports.Module, error) {
	name := strings.TrimPrefix(path, plugindomain.BuiltinPrefix)
	entry, ok := o.entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in module %q", name)
	}
	return &builtinModule{path: path, entry: entry}, nil
}

type builtinModule struct {
	path  string
	entry pluginports.EntryPoint
}

func (m *builtinModule) Path() string                  { return m.path }
func (m *builtinModule) Kind() plugindomain.ModuleKind { return plugindomain.KindBuiltin }
func (m *builtinModule) Close() error                  { return nil }

func (m *builtinModule) Lookup(symbol string) (any, error) {
	if symbol != pluginports.EntrySymbol || m.entry == nil {
		return nil, fmt.Errorf("symbol %s not found in %s", symbol, m.path)
	}
	return m.entry, nil
}

// SharedObjectOpener loads Go plugins built with -buildmode=plugin
type SharedObjectOpener struct{}

func (o *SharedObjectOpener) Open(path string) (pluginports.Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return &sharedObject{path: path, p: p}, nil
}

type sharedObject struct {
	path string
	p    *plugin.Plugin
}

func (m *sharedObject) Path() string                  { return m.path }
func (m *sharedObject) Kind() plugindomain.ModuleKind { return plugindomain.KindSharedObject }

func (m *sharedObject) Lookup(symbol string) (any, error) {
	return m.p.Lookup(symbol)
}

// Close is a no-op: the Go runtime never unmaps a loaded plugin, so the image
// outlives every object derived from it.
func (m *sharedObject) Close() error {
	return nil
}

// ExecOpener starts module binaries and talks to them over go-plugin's
// net/rpc protocol
type ExecOpener struct {
	logger hclog.Logger
}

// NewExecOpener creates an opener whose module output is logged via logger
func NewExecOpener(logger hclog.Logger) *ExecOpener {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ExecOpener{logger: logger}
}

func (o *ExecOpener) Open(path string) (pluginports.Module, error) {
	bin := strings.TrimPrefix(path, plugindomain.ExecPrefix)

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  pluginrpc.Handshake,
		Plugins:          pluginrpc.PluginMap(),
		Cmd:              exec.Command(bin),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           o.logger.Named("module"),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to module: %w", err)
	}

	raw, err := rpcClient.Dispense(pluginrpc.PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense module: %w", err)
	}

	mc, ok := raw.(*pluginrpc.ModuleClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("module dispensed unexpected type %T", raw)
	}
	return &execModule{path: path, client: client, module: mc}, nil
}

type execModule struct {
	path   string
	client *goplugin.Client
	module *pluginrpc.ModuleClient
}

func (m *execModule) Path() string                  { return m.path }
func (m *execModule) Kind() plugindomain.ModuleKind { return plugindomain.KindExecutable }

func (m *execModule) Lookup(symbol string) (any, error) {
	if symbol != pluginports.EntrySymbol {
		return nil, fmt.Errorf("symbol %s not found in %s", symbol, m.path)
	}
	return m.module, nil
}

func (m *execModule) Close() error {
	m.client.Kill()
	return nil
}
