package engine

import "sync/atomic"

// Clock stamps trace events with seq numbers. Seqs are the only ordering the
// trace has: concurrent sends never share one, and a run resumed against the
// journal picks up after the last seq it stored.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock for a new run; its first stamp is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first stamp is last+1.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the most recent stamp without taking a new one.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
