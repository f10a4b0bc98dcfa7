package engine

import "sync/atomic"

// Clock is a monotonic logical counter.
//
// The engine keeps two: one hands out model ids, the other numbers digest
// passes. Trace records carry these numbers, never wall-clock time, so two
// runs of the same program produce identical traces.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value. The first call on a
// new clock returns 1.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
