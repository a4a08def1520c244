package commands

import (
	"fmt"
	"time"

	"heavyhash.dev/miner/internal/core/pow"
)

// DefaultTargetBits is an easy compact target, so a benchmark finds nonces
// at a steady rate
const DefaultTargetBits uint32 = 0x1e7fffff

// BenchCommand drives every worker of the active plugin against a synthetic
// block template
type BenchCommand struct {
	BaseCommand
	Duration   time.Duration `json:"duration"`
	TargetBits uint32        `json:"target_bits"`
	// MaxFaults is how many Sync faults a worker may report before it is
	// discarded. Zero discards on the first fault.
	MaxFaults int `json:"max_faults"`
}

// NewBenchCommand creates a bench command with a fresh run id
func NewBenchCommand(duration time.Duration, targetBits uint32, maxFaults int) *BenchCommand {
	return &BenchCommand{
		BaseCommand: NewBaseCommand("bench"),
		Duration:    duration,
		TargetBits:  targetBits,
		MaxFaults:   maxFaults,
	}
}

func (c *BenchCommand) Validate() error {
	if err := c.BaseCommand.Validate(); err != nil {
		return err
	}
	if c.Duration <= 0 {
		return NewValidationError("duration must be greater than 0")
	}
	if c.MaxFaults < 0 {
		return NewValidationError("max faults must be 0 or greater")
	}
	if pow.TargetFromBits(c.TargetBits) == (pow.Target{}) {
		return NewValidationError(fmt.Sprintf("target bits 0x%08x do not encode a positive target", c.TargetBits))
	}
	return nil
}

// WorkerReport is one worker's share of a bench run
type WorkerReport struct {
	ID        string `json:"id"`
	Batches   int    `json:"batches"`
	Hashes    uint64 `json:"hashes"`
	Found     int    `json:"found"`
	Rejected  int    `json:"rejected"`
	Faults    int    `json:"faults"`
	Discarded bool   `json:"discarded"`
	// LastFault is the most recent Sync error, if any.
	LastFault string `json:"last_fault,omitempty"`
}

// BenchResult summarises a bench run
type BenchResult struct {
	RunID      string         `json:"run_id"`
	PrePowHash string         `json:"pre_pow_hash"`
	Elapsed    time.Duration  `json:"elapsed"`
	Workers    []WorkerReport `json:"workers"`
}

// Hashes totals the nonces hashed by every worker
func (r *BenchResult) Hashes() uint64 {
	var n uint64
	for _, w := range r.Workers {
		n += w.Hashes
	}
	return n
}

// Found totals the host-verified nonces
func (r *BenchResult) Found() int {
	n := 0
	for _, w := range r.Workers {
		n += w.Found
	}
	return n
}

// HashRate is hashes per second over the whole run
func (r *BenchResult) HashRate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Hashes()) / r.Elapsed.Seconds()
}
