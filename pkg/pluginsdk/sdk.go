// Package pluginsdk is the module-side view of the host's plugin contract.
// Modules import this package instead of the host's internal packages.
package pluginsdk

import (
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/core/schema"
)

// Re-export the capability interfaces
type Plugin = pluginports.Plugin
type WorkerSpec = pluginports.WorkerSpec
type Worker = pluginports.Worker
type EntryPoint = pluginports.EntryPoint
type SyncFaultError = pluginports.SyncFaultError

// Re-export schema types
type Schema = schema.Schema
type Option = schema.Option
type OptionSet = schema.OptionSet
type OptionKind = schema.OptionKind
type Args = schema.Args

// Re-export block constant shapes
type Header = pow.Header
type Matrix = pow.Matrix
type Target = pow.Target

const (
	EntrySymbol = pluginports.EntrySymbol

	KindString   = schema.KindString
	KindBool     = schema.KindBool
	KindInt      = schema.KindInt
	KindUint64   = schema.KindUint64
	KindFloat64  = schema.KindFloat64
	KindDuration = schema.KindDuration
)

var (
	ErrNotConfigured = pluginports.ErrNotConfigured
	ErrSchemaMoved   = schema.ErrSchemaMoved
)

// MakePlugin builds a module's entry point from a plugin constructor and the
// options the module adds to the command line. The options are registered
// under the plugin's name.
//
// A shared-object module exports the result as
//
//	var PluginCreate = pluginsdk.MakePlugin(newPlugin, options)
func MakePlugin[P Plugin](constructor func() P, options OptionSet) EntryPoint {
	return func(s *Schema) (*Schema, Plugin) {
		p := constructor()
		extended, err := s.Augment(p.Name(), options)
		if err != nil {
			return nil, p
		}
		return extended, p
	}
}
