package reconcile

import "sync/atomic"

// Clock is a monotonic logical clock numbering reconciliation passes.
//
// Pass numbers are strictly increasing and independent of wall-clock time,
// so the pass log orders the same way on replay.
//
// Clock is safe for concurrent use, although only the single writer
// normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after a known sequence number, e.g.
// the last pass recorded in the store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
