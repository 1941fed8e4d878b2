package fsm

import "time"

// Clock supplies the current wall time in milliseconds since epoch.
// Delayed signals are scheduled relative to this clock, so a test double
// can drive timer behaviour deterministically.
type Clock interface {
	Now() int64
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current time in milliseconds since epoch.
func (SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}
