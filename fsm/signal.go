package fsm

// Signal is an event targeted at an entity, optionally with a fire-at
// time. FireAt is milliseconds since epoch; zero means deliver as soon
// as the drain reaches it.
type Signal struct {
	Class  string
	ID     string
	Event  any
	FireAt int64
}

// NewSignal creates a non-delayed signal.
func NewSignal(class, id string, event any) Signal {
	return Signal{Class: class, ID: id, Event: event}
}

// NewDelayedSignal creates a signal to be delivered at fireAt
// (milliseconds since epoch).
func NewDelayedSignal(class, id string, event any, fireAt int64) Signal {
	return Signal{Class: class, ID: id, Event: event, FireAt: fireAt}
}

// Delayed reports whether the signal carries a fire-at time.
func (s Signal) Delayed() bool {
	return s.FireAt > 0
}
