// Package pluginrpc carries the module entry point and the objects it
// produces across a process boundary using hashicorp/go-plugin's net/rpc
// protocol. Module binaries call Serve; the host dispenses a ModuleClient.
package pluginrpc

import (
	"net/rpc"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
)

// PluginName is the key the module is dispensed under
const PluginName = "module"

// Handshake is shared by the host and every module binary
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "HHMINER_PLUGIN",
	MagicCookieValue: "heavyhash_hashing_module",
}

// PluginMap returns the plugin set the host dispenses from
func PluginMap() map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginName: &ModulePlugin{},
	}
}

// ModulePlugin implements plugin.Plugin for the net/rpc protocol. Entry is
// only needed on the module side.
type ModulePlugin struct {
	Entry pluginports.EntryPoint
}

func (p *ModulePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return NewModuleServer(p.Entry), nil
}

func (*ModulePlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ModuleClient{client: c}, nil
}

// Serve runs a module binary exposing entry. It blocks until the host
// disconnects.
func Serve(entry pluginports.EntryPoint) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &ModulePlugin{Entry: entry},
		},
		Logger: hclog.New(&hclog.LoggerOptions{
			Level:      hclog.Trace,
			Output:     os.Stderr,
			JSONFormat: true,
		}),
	})
}
