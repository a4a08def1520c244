package pluginrpc

import (
	"errors"
	"fmt"
	"sync"

	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/core/schema"
)

// CreateArgs carries the host's schema into the module.
type CreateArgs struct {
	Schema schema.State
}

// CreateReply carries the extended schema back.
type CreateReply struct {
	Schema schema.State
	Name   string
}

// BuildReply describes a worker built in the module process.
type BuildReply struct {
	Handle   uint64
	ID       string
	Workload int
}

// LoadArgs carries block constants to a worker.
type LoadArgs struct {
	Handle uint64
	Header pow.Header
	Matrix pow.Matrix
	Target pow.Target
}

// CalculateArgs starts a batch. Full distinguishes a nil nonce list from an
// empty one, which gob does not preserve.
type CalculateArgs struct {
	Handle uint64
	Nonces []uint64
	Full   bool
}

// SyncReply reports the outcome of a batch.
type SyncReply struct {
	Fault         string
	NotConfigured bool
}

// OutputReply carries found nonces.
type OutputReply struct {
	Nonces []uint64
}

// ModuleServer is the module-side RPC receiver. Specs and workers live in the
// module process and are addressed by handle. Only the specs of the latest
// WorkerSpecs call can be built.
type ModuleServer struct {
	entry pluginports.EntryPoint

	mu      sync.Mutex
	plugin  pluginports.Plugin
	specs   map[uint64]pluginports.WorkerSpec
	workers map[uint64]pluginports.Worker
	next    uint64
}

// NewModuleServer creates a receiver around a module's entry point
func NewModuleServer(entry pluginports.EntryPoint) *ModuleServer {
	return &ModuleServer{
		entry:   entry,
		specs:   make(map[uint64]pluginports.WorkerSpec),
		workers: make(map[uint64]pluginports.Worker),
	}
}

func (s *ModuleServer) Create(args CreateArgs, reply *CreateReply) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plugin != nil {
		return errors.New("entry point already invoked")
	}
	if s.entry == nil {
		return errors.New("module has no entry point")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry point panicked: %v", r)
		}
	}()

	out, p := s.entry(schema.FromState(args.Schema))
	if p == nil {
		return errors.New("entry point returned no plugin")
	}
	st, err := out.Export()
	if err != nil {
		return fmt.Errorf("entry point returned an unusable schema: %w", err)
	}

	s.plugin = p
	*reply = CreateReply{Schema: st, Name: p.Name()}
	return nil
}

func (s *ModuleServer) ProcessOptions(args schema.Args, resp *interface{}) error {
	p, err := s.created()
	if err != nil {
		return err
	}
	return p.ProcessOptions(args)
}

func (s *ModuleServer) WorkerSpecs(args interface{}, reply *[]uint64) error {
	p, err := s.created()
	if err != nil {
		return err
	}
	specs, err := p.WorkerSpecs()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Specs handed out by an earlier call are dropped. Workers already built
	// from them live on until CloseWorker.
	s.specs = make(map[uint64]pluginports.WorkerSpec, len(specs))
	handles := make([]uint64, 0, len(specs))
	for _, spec := range specs {
		s.next++
		s.specs[s.next] = spec
		handles = append(handles, s.next)
	}
	*reply = handles
	return nil
}

func (s *ModuleServer) Build(handle uint64, reply *BuildReply) error {
	s.mu.Lock()
	spec, ok := s.specs[handle]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown worker spec %d", handle)
	}

	w, err := spec.Build()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.workers[s.next] = w
	*reply = BuildReply{Handle: s.next, ID: w.ID(), Workload: w.Workload()}
	return nil
}

func (s *ModuleServer) LoadBlockConstants(args LoadArgs, resp *interface{}) error {
	w, err := s.worker(args.Handle)
	if err != nil {
		return err
	}
	w.LoadBlockConstants(&args.Header, &args.Matrix, &args.Target)
	return nil
}

func (s *ModuleServer) CalculateHash(args CalculateArgs, resp *interface{}) error {
	w, err := s.worker(args.Handle)
	if err != nil {
		return err
	}
	if args.Full {
		w.CalculateHash(nil)
		return nil
	}
	nonces := args.Nonces
	if nonces == nil {
		nonces = []uint64{}
	}
	w.CalculateHash(nonces)
	return nil
}

func (s *ModuleServer) Sync(handle uint64, reply *SyncReply) error {
	w, err := s.worker(handle)
	if err != nil {
		return err
	}
	if err := w.Sync(); err != nil {
		var fault *pluginports.SyncFaultError
		if errors.As(err, &fault) {
			err = fault.Err
		}
		*reply = SyncReply{Fault: err.Error(), NotConfigured: errors.Is(err, pluginports.ErrNotConfigured)}
	}
	return nil
}

func (s *ModuleServer) CopyOutput(handle uint64, reply *OutputReply) error {
	w, err := s.worker(handle)
	if err != nil {
		return err
	}
	nonces, err := w.CopyOutputTo(nil)
	if err != nil {
		return err
	}
	reply.Nonces = nonces
	return nil
}

func (s *ModuleServer) CloseWorker(handle uint64, resp *interface{}) error {
	s.mu.Lock()
	w, ok := s.workers[handle]
	delete(s.workers, handle)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown worker %d", handle)
	}
	return w.Close()
}

func (s *ModuleServer) created() (pluginports.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plugin == nil {
		return nil, errors.New("entry point has not been invoked")
	}
	return s.plugin, nil
}

func (s *ModuleServer) worker(handle uint64) (pluginports.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[handle]
	if !ok {
		return nil, fmt.Errorf("unknown worker %d", handle)
	}
	return w, nil
}
