package fsm

import "fmt"

// State is a state value of a machine. Its String form is the name
// persisted in the entity row and accepted by Behaviour.From.
type State interface {
	fmt.Stringer
}

// Machine is an immutable state machine snapshot. Signal is a pure
// transition: it returns a new machine and leaves the receiver
// untouched, so a failed apply cycle can be retried from the persisted
// snapshot without side effects.
type Machine interface {
	// Signal applies one event and returns the machine positioned after
	// the transition. Events with no transition from the current state
	// leave the machine unchanged (and emit nothing).
	Signal(event any) Machine

	// Current returns the entity snapshot, if the machine has produced
	// one. A machine that has only seen Create and not yet materialized
	// an entity returns ok=false and nothing is persisted for it.
	Current() (entity any, ok bool)

	// State returns the current state value.
	State() State

	// SelfSignals returns the events the last transition emitted to this
	// entity, in emission order. They are cascaded synchronously within
	// the same apply transaction.
	SelfSignals() []any

	// OtherSignals returns the signals the last transition emitted to
	// other entities (or delayed signals to itself), in emission order.
	OtherSignals() []Signal

	// Class returns the registered class name of the entity.
	Class() string

	// ID returns the entity id.
	ID() string
}

// Behaviour adapts one entity class to the runtime.
type Behaviour interface {
	// Create returns a fresh machine for id, not yet signalled.
	Create(id string) Machine

	// Replay returns a machine positioned at state with the given entity
	// snapshot, as read from the store.
	Replay(id string, entity any, state State) Machine

	// From parses a persisted state name back into a state value.
	From(stateName string) (State, error)
}

// BehaviourFactory resolves the Behaviour for a class name. ok is false
// when the class is unknown.
type BehaviourFactory func(class string) (Behaviour, bool)
