package kernel

import "sync/atomic"

// Clock is the monotonic logical clock stamping trace records and chain
// activity. All ordering in the kernel is logical; wall-clock time is never
// consulted.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the engine's single-writer design means only one goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, strictly increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
