package pluginrpc

import (
	"errors"
	"fmt"
	"net/rpc"

	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/core/schema"
)

// ModuleClient is the host-side view of a module served over net/rpc. It
// implements pluginports.EntryInvoker.
type ModuleClient struct {
	client *rpc.Client
}

// Invoke transfers s into the module process and returns the extended schema
// and a proxy for the module's plugin. s is consumed even when the call fails.
func (c *ModuleClient) Invoke(s *schema.Schema) (*schema.Schema, pluginports.Plugin, error) {
	st, err := s.Export()
	if err != nil {
		return nil, nil, err
	}

	var reply CreateReply
	if err := c.client.Call("Plugin.Create", CreateArgs{Schema: st}, &reply); err != nil {
		return nil, nil, fmt.Errorf("failed to invoke remote entry point: %w", err)
	}
	return schema.FromState(reply.Schema), &remotePlugin{client: c.client, name: reply.Name}, nil
}

type remotePlugin struct {
	client *rpc.Client
	name   string
}

func (p *remotePlugin) Name() string {
	return p.name
}

func (p *remotePlugin) ProcessOptions(args schema.Args) error {
	var resp interface{}
	return p.client.Call("Plugin.ProcessOptions", args, &resp)
}

func (p *remotePlugin) WorkerSpecs() ([]pluginports.WorkerSpec, error) {
	var handles []uint64
	if err := p.client.Call("Plugin.WorkerSpecs", new(interface{}), &handles); err != nil {
		return nil, err
	}
	specs := make([]pluginports.WorkerSpec, 0, len(handles))
	for _, h := range handles {
		specs = append(specs, &remoteSpec{client: p.client, handle: h})
	}
	return specs, nil
}

// remoteSpec is valid until the next WorkerSpecs call on the same plugin.
type remoteSpec struct {
	client *rpc.Client
	handle uint64
}

func (s *remoteSpec) Build() (pluginports.Worker, error) {
	var reply BuildReply
	if err := s.client.Call("Plugin.Build", s.handle, &reply); err != nil {
		return nil, err
	}
	return &remoteWorker{client: s.client, handle: reply.Handle, id: reply.ID, workload: reply.Workload}, nil
}

// remoteWorker forwards to a worker in the module process. Transport errors
// in LoadBlockConstants and CalculateHash are held until the next Sync.
type remoteWorker struct {
	client   *rpc.Client
	handle   uint64
	id       string
	workload int
	pending  error
}

func (w *remoteWorker) ID() string {
	return w.id
}

func (w *remoteWorker) Workload() int {
	return w.workload
}

func (w *remoteWorker) LoadBlockConstants(header *pow.Header, matrix *pow.Matrix, target *pow.Target) {
	var resp interface{}
	args := LoadArgs{Handle: w.handle, Header: *header, Matrix: *matrix, Target: *target}
	w.hold(w.client.Call("Plugin.LoadBlockConstants", args, &resp))
}

func (w *remoteWorker) CalculateHash(nonces []uint64) {
	var resp interface{}
	args := CalculateArgs{Handle: w.handle, Nonces: nonces, Full: nonces == nil}
	w.hold(w.client.Call("Plugin.CalculateHash", args, &resp))
}

func (w *remoteWorker) Sync() error {
	if w.pending != nil {
		err := w.pending
		w.pending = nil
		return &pluginports.SyncFaultError{WorkerID: w.id, Err: err}
	}

	var reply SyncReply
	if err := w.client.Call("Plugin.Sync", w.handle, &reply); err != nil {
		return &pluginports.SyncFaultError{WorkerID: w.id, Err: err}
	}
	switch {
	case reply.NotConfigured:
		return &pluginports.SyncFaultError{WorkerID: w.id, Err: pluginports.ErrNotConfigured}
	case reply.Fault != "":
		return &pluginports.SyncFaultError{WorkerID: w.id, Err: errors.New(reply.Fault)}
	}
	return nil
}

func (w *remoteWorker) CopyOutputTo(dst []uint64) ([]uint64, error) {
	var reply OutputReply
	if err := w.client.Call("Plugin.CopyOutput", w.handle, &reply); err != nil {
		return dst, err
	}
	return append(dst, reply.Nonces...), nil
}

func (w *remoteWorker) Close() error {
	var resp interface{}
	return w.client.Call("Plugin.CloseWorker", w.handle, &resp)
}

func (w *remoteWorker) hold(err error) {
	if err != nil && w.pending == nil {
		w.pending = err
	}
}
