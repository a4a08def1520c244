package cpu

import (
	"heavyhash.dev/miner/internal/core/pow"
	"heavyhash.dev/miner/internal/core/xoshiro"
	"heavyhash.dev/miner/pkg/pluginsdk"
)

type batch struct {
	done  chan struct{}
	found []uint64
	err   error
}

// worker hashes one batch at a time on its own goroutine
type worker struct {
	id       string
	workload int
	nonces   *xoshiro.StarStar

	state    *pow.State
	inflight *batch
	ready    *batch
}

func newWorker(id string, workload int, nonces *xoshiro.StarStar) *worker {
	return &worker{id: id, workload: workload, nonces: nonces}
}

func (w *worker) ID() string {
	return w.id
}

func (w *worker) Workload() int {
	return w.workload
}

func (w *worker) LoadBlockConstants(header *pow.Header, matrix *pow.Matrix, target *pow.Target) {
	w.state = pow.NewState(header, matrix, target)
	w.ready = nil
}

func (w *worker) CalculateHash(nonces []uint64) {
	w.await()
	w.ready = nil

	b := &batch{done: make(chan struct{})}
	w.inflight = b
	if w.state == nil {
		b.err = pluginsdk.ErrNotConfigured
		close(b.done)
		return
	}

	if nonces == nil {
		nonces = make([]uint64, w.workload)
		for i := range nonces {
			nonces[i] = w.nonces.Uint64()
		}
	} else {
		nonces = append([]uint64(nil), nonces...)
	}

	st := w.state
	go func() {
		defer close(b.done)
		for _, n := range nonces {
			if st.Check(n) {
				b.found = append(b.found, n)
			}
		}
	}()
}

func (w *worker) Sync() error {
	b := w.inflight
	if b == nil {
		return nil
	}
	<-b.done
	w.inflight = nil
	if b.err != nil {
		return &pluginsdk.SyncFaultError{WorkerID: w.id, Err: b.err}
	}
	w.ready = b
	return nil
}

func (w *worker) CopyOutputTo(dst []uint64) ([]uint64, error) {
	if w.ready == nil {
		return dst, nil
	}
	dst = append(dst, w.ready.found...)
	w.ready = nil
	return dst, nil
}

func (w *worker) Close() error {
	w.await()
	w.ready = nil
	return nil
}

func (w *worker) await() {
	if w.inflight != nil {
		<-w.inflight.done
		w.inflight = nil
	}
}
