package plugins

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
)

// record owns one loaded module for the rest of the manager's life. Workers
// built from the module's specs are counted here so the image is never
// released while one of them can still dispatch into it.
type record struct {
	index  int
	module pluginports.Module
	// plugin is nil when the entry point failed.
	plugin pluginports.Plugin

	live     atomic.Int64
	released atomic.Bool
}

var errModuleReleased = errors.New("module has been released")

func (r *record) pluginName() string {
	if r.plugin == nil {
		return ""
	}
	return r.plugin.Name()
}

// trackedSpec ties a spec to the record of the module that produced it
type trackedSpec struct {
	rec   *record
	inner pluginports.WorkerSpec
}

func (s *trackedSpec) Build() (pluginports.Worker, error) {
	if s.rec.released.Load() {
		return nil, fmt.Errorf("cannot build worker from %s: %w", s.rec.module.Path(), errModuleReleased)
	}
	w, err := s.inner.Build()
	if err != nil {
		return nil, err
	}
	s.rec.live.Add(1)
	return &trackedWorker{Worker: w, rec: s.rec}, nil
}

// trackedWorker releases its slot in the record on Close
type trackedWorker struct {
	pluginports.Worker
	rec  *record
	once sync.Once
}

func (w *trackedWorker) Close() error {
	err := w.Worker.Close()
	w.once.Do(func() { w.rec.live.Add(-1) })
	return err
}
