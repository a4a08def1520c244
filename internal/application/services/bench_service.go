package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"heavyhash.dev/miner/internal/application/commands"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/infrastructure/monitoring"
)

// SpecSource hands out the worker specs of the active plugin
type SpecSource interface {
	BuildWorkerSpecs() ([]pluginports.WorkerSpec, error)
}

// SpecSourceFunc adapts a function to SpecSource
type SpecSourceFunc func() ([]pluginports.WorkerSpec, error)

func (f SpecSourceFunc) BuildWorkerSpecs() ([]pluginports.WorkerSpec, error) { return f() }

// ErrAllWorkersDiscarded is returned when no worker survived the run
var ErrAllWorkersDiscarded = errors.New("every worker was discarded after repeated sync faults")

// BenchService drives workers against a synthetic block template and checks
// every nonce they report on the host
type BenchService struct {
	specs    SpecSource
	matrices *pow.MatrixCache
	metrics  *monitoring.Collector
	logger   hclog.Logger
}

// NewBenchService creates a new bench service
func NewBenchService(specs SpecSource, matrices *pow.MatrixCache, metrics *monitoring.Collector, logger hclog.Logger) *BenchService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &BenchService{
		specs:    specs,
		matrices: matrices,
		metrics:  metrics,
		logger:   logger,
	}
}

// blockTemplate is the constant data shared by every worker in a run
type blockTemplate struct {
	header pow.Header
	matrix *pow.Matrix
	target pow.Target
	state  *pow.State
}

// Run builds one worker per spec and drives each on its own goroutine until
// cmd.Duration elapses or ctx is cancelled. Workers are closed before Run
// returns.
func (s *BenchService) Run(ctx context.Context, cmd *commands.BenchCommand) (*commands.BenchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("command validation failed: %w", err)
	}

	specs, err := s.specs.BuildWorkerSpecs()
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, errors.New("active plugin offers no workers")
	}

	workers, err := buildWorkers(specs)
	if err != nil {
		return nil, err
	}
	defer s.closeWorkers(workers)

	prePow := pow.Hash(sha3.Sum256([]byte(cmd.ID)))
	tmpl := &blockTemplate{
		header: pow.NewHeader(prePow, uint64(time.Now().UnixMilli())),
		matrix: s.matrices.Get(prePow),
		target: pow.TargetFromBits(cmd.TargetBits),
	}
	tmpl.state = pow.NewState(&tmpl.header, tmpl.matrix, &tmpl.target)

	log := s.logger.With("run", cmd.ID)
	log.Info("bench started", "workers", len(workers), "duration", cmd.Duration, "target_bits", fmt.Sprintf("0x%08x", cmd.TargetBits))

	runCtx, cancel := context.WithTimeout(ctx, cmd.Duration)
	defer cancel()

	reports := make([]commands.WorkerReport, len(workers))
	s.metrics.WorkersActive.Set(float64(len(workers)))
	defer s.metrics.WorkersActive.Set(0)

	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for i, w := range workers {
		g.Go(func() error {
			var err error
			reports[i], err = s.drive(gctx, w, tmpl, cmd.MaxFaults, log)
			return err
		})
	}
	err = g.Wait()

	result := &commands.BenchResult{
		RunID:      cmd.ID,
		PrePowHash: prePow.String(),
		Elapsed:    time.Since(start),
		Workers:    reports,
	}
	if err != nil {
		return result, err
	}

	for _, r := range reports {
		if !r.Discarded {
			log.Info("bench finished", "hashes", result.Hashes(), "found", result.Found(), "hashrate", result.HashRate())
			return result, nil
		}
	}
	return result, ErrAllWorkersDiscarded
}

// drive runs full-workload batches on w until ctx is done or the worker has
// faulted more than maxFaults times
func (s *BenchService) drive(ctx context.Context, w pluginports.Worker, tmpl *blockTemplate, maxFaults int, log hclog.Logger) (commands.WorkerReport, error) {
	rep := commands.WorkerReport{ID: w.ID()}
	w.LoadBlockConstants(&tmpl.header, tmpl.matrix, &tmpl.target)

	var out []uint64
	for ctx.Err() == nil {
		began := time.Now()
		w.CalculateHash(nil)
		if err := w.Sync(); err != nil {
			rep.Faults++
			rep.LastFault = err.Error()
			s.metrics.SyncFault(rep.ID)
			log.Warn("sync fault", "worker", rep.ID, "faults", rep.Faults, "error", err)
			if rep.Faults > maxFaults {
				rep.Discarded = true
				s.metrics.WorkersActive.Dec()
				log.Error("discarding worker", "worker", rep.ID, "faults", rep.Faults)
				return rep, nil
			}
			w.LoadBlockConstants(&tmpl.header, tmpl.matrix, &tmpl.target)
			continue
		}

		var err error
		out, err = w.CopyOutputTo(out[:0])
		if err != nil {
			return rep, fmt.Errorf("worker %s: failed to copy output: %w", rep.ID, err)
		}

		found, rejected := 0, 0
		for _, nonce := range out {
			if tmpl.state.Check(nonce) {
				found++
				continue
			}
			rejected++
			log.Warn("worker reported a nonce that misses the target", "worker", rep.ID, "nonce", nonce)
		}

		rep.Batches++
		rep.Hashes += uint64(w.Workload())
		rep.Found += found
		rep.Rejected += rejected
		s.metrics.ObserveBatch(rep.ID, w.Workload(), found, rejected, time.Since(began))
	}
	return rep, nil
}

func buildWorkers(specs []pluginports.WorkerSpec) ([]pluginports.Worker, error) {
	workers := make([]pluginports.Worker, 0, len(specs))
	for i, spec := range specs {
		w, err := spec.Build()
		if err != nil {
			for _, built := range workers {
				_ = built.Close()
			}
			return nil, fmt.Errorf("failed to build worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func (s *BenchService) closeWorkers(workers []pluginports.Worker) {
	for _, w := range workers {
		if err := w.Close(); err != nil {
			s.logger.Warn("failed to close worker", "worker", w.ID(), "error", err)
		}
	}
}
