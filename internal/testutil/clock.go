// Package testutil holds deterministic stand-ins for the engine's clock and
// run ID generator, used by the harness and golden tests.
package testutil

import "sync"

// DeterministicClock stamps trace events 1, 2, 3... for a single scenario
// run. The harness builds a fresh one per run, so two runs of one scenario
// produce identical seqs and golden files stay stable. It satisfies
// engine.SeqClock.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new seq.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last seq handed out, or 0 before the first Next.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}
