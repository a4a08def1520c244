// Package cpu is the reference hashing backend. It evaluates kHeavyHash on
// goroutines and serves as a built-in module, a shared object and a module
// binary.
package cpu

import (
	"fmt"
	"math/rand/v2"

	"heavyhash.dev/miner/internal/core/xoshiro"
	"heavyhash.dev/miner/pkg/pluginsdk"
)

const Name = "cpu"

// Option names
const (
	OptWorkers  = "cpu-workers"
	OptWorkload = "cpu-workload"
	OptSeed     = "cpu-seed"
)

// Options is the command-line surface the backend adds
var Options = pluginsdk.OptionSet{
	{Name: OptWorkers, Kind: pluginsdk.KindInt, Default: "1", Usage: "number of CPU workers"},
	{Name: OptWorkload, Kind: pluginsdk.KindInt, Default: "4096", Usage: "nonces per CPU batch"},
	{Name: OptSeed, Kind: pluginsdk.KindUint64, Default: "0", Usage: "nonce generator seed (0 picks one at random)"},
}

// PluginCreate is the backend's entry point
var PluginCreate = pluginsdk.MakePlugin(New, Options)

// Plugin is the CPU backend
type Plugin struct {
	workers  int
	workload int
	seed     uint64
}

// New creates the backend with its default settings
func New() *Plugin {
	return &Plugin{workers: 1, workload: 4096}
}

func (p *Plugin) Name() string {
	return Name
}

func (p *Plugin) ProcessOptions(args pluginsdk.Args) error {
	workers, err := args.Int(OptWorkers)
	if err != nil {
		return err
	}
	workload, err := args.Int(OptWorkload)
	if err != nil {
		return err
	}
	seed, err := args.Uint64(OptSeed)
	if err != nil {
		return err
	}
	if workers < 1 {
		return fmt.Errorf("--%s must be at least 1, got %d", OptWorkers, workers)
	}
	if workload < 1 {
		return fmt.Errorf("--%s must be at least 1, got %d", OptWorkload, workload)
	}

	p.workers, p.workload, p.seed = workers, workload, seed
	return nil
}

// WorkerSpecs returns one spec per configured worker. Each spec owns a nonce
// stream jumped 2^128 outputs past the previous one.
func (p *Plugin) WorkerSpecs() ([]pluginsdk.WorkerSpec, error) {
	seed := p.seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	gen := xoshiro.NewStarStar([4]uint64{seed, seed ^ 0x9e3779b97f4a7c15, ^seed, seed + 1})

	specs := make([]pluginsdk.WorkerSpec, 0, p.workers)
	for i := 0; i < p.workers; i++ {
		specs = append(specs, &Spec{Index: i, Workload: p.workload, stream: gen.Clone()})
		gen.Jump()
	}
	return specs, nil
}

// Spec describes one CPU worker
type Spec struct {
	Index    int
	Workload int
	stream   *xoshiro.StarStar
}

func (s *Spec) Build() (pluginsdk.Worker, error) {
	if s.Workload < 1 {
		return nil, fmt.Errorf("cpu worker %d: workload must be positive", s.Index)
	}
	return newWorker(fmt.Sprintf("cpu-%d", s.Index), s.Workload, s.stream.Clone()), nil
}
