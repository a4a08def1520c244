// Command hh-plugin-cpu packages the CPU backend as a loadable module.
//
// Built with -buildmode=plugin it is opened as a shared object and the host
// looks up PluginCreate. Built normally it is launched by the host through an
// exec: path and serves the same entry point over RPC.
package main

import (
	"heavyhash.dev/miner/internal/backends/cpu"
	"heavyhash.dev/miner/pkg/pluginrpc"
)

// PluginCreate is the module entry point
var PluginCreate = cpu.PluginCreate

func main() {
	pluginrpc.Serve(PluginCreate)
}
