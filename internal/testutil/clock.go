// Package testutil provides deterministic doubles for the runtime's
// clock and executor, so timer-driven behaviour can be tested without
// sleeping.
package testutil

import "sync"

// FixedClock is a controllable wall clock for tests. It reports a fixed
// time in milliseconds since epoch until advanced or set.
//
// Thread-safety: all methods are safe for concurrent use.
type FixedClock struct {
	mu  sync.Mutex
	now int64
}

// NewFixedClock creates a clock frozen at now (milliseconds since epoch).
func NewFixedClock(now int64) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the current fixed time.
func (c *FixedClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by ms milliseconds.
func (c *FixedClock) Advance(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// Set jumps the clock to now.
func (c *FixedClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
