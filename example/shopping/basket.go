package shopping

import (
	"fmt"

	"github.com/statemill/statemill/fsm"
)

// Item is one line of a basket.
type Item struct {
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

// Basket is the basket entity snapshot persisted between signals.
type Basket struct {
	ID    string `json:"id"`
	Items []Item `json:"items"`
}

// TotalCents returns the basket total.
func (b Basket) TotalCents() int64 {
	var total int64
	for _, item := range b.Items {
		total += item.PriceCents * int64(item.Quantity)
	}
	return total
}

// Basket events.
type (
	// Change replaces the basket's items.
	Change struct {
		Items []Item `json:"items"`
	}
	// Checkout freezes the basket for payment.
	Checkout struct{}
	// Payment pays for a checked-out basket.
	Payment struct {
		AmountCents int64 `json:"amountCents"`
	}
	// Clear empties the basket.
	Clear struct{}
	// Timeout expires a basket left too long in Changed or CheckedOut.
	Timeout struct{}
)

// BasketState is a basket machine state. Its string form is the
// persisted state name.
type BasketState string

// String implements fsm.State.
func (s BasketState) String() string { return string(s) }

// Basket states.
const (
	BasketCreated    BasketState = "Created"
	BasketEmpty      BasketState = "Empty"
	BasketChanged    BasketState = "Changed"
	BasketCheckedOut BasketState = "CheckedOut"
	BasketPaid       BasketState = "Paid"
	BasketTimedOut   BasketState = "TimedOut"
)

// basketInitial is the pre-Create pseudo-state of a fresh machine. It is
// never persisted: the runtime always delivers Create first.
const basketInitial BasketState = ""

// BasketBehaviour adapts the Basket state machine to the runtime.
//
// Transitions (entry actions in parentheses):
//
//	Create:   initial    -> Created     (send Clear to self)
//	Clear:    Created    -> Empty
//	          Changed    -> Empty
//	          TimedOut   -> Empty
//	Change:   Empty      -> Changed     (update items; Clear to self when
//	          Changed    -> Changed      empty; Timeout to self in 1 day)
//	Checkout: Changed    -> CheckedOut  (Timeout to self in 1 day)
//	Payment:  CheckedOut -> Paid        (cancel timeout; place Order)
//	Timeout:  Changed    -> TimedOut
//	          CheckedOut -> TimedOut
//
// Events with no transition from the current state are ignored.
type BasketBehaviour struct {
	clock fsm.Clock
}

// NewBasketBehaviour creates the basket behaviour. The clock stamps the
// fire-at of the one-day timeout.
func NewBasketBehaviour(clock fsm.Clock) *BasketBehaviour {
	return &BasketBehaviour{clock: clock}
}

// Create returns a fresh, unsignalled basket machine.
func (b *BasketBehaviour) Create(id string) fsm.Machine {
	return basketMachine{id: id, state: basketInitial, clock: b.clock}
}

// Replay returns a machine positioned at state with the given snapshot.
func (b *BasketBehaviour) Replay(id string, entity any, state fsm.State) fsm.Machine {
	return basketMachine{
		id:      id,
		basket:  entity.(Basket),
		present: true,
		state:   state.(BasketState),
		clock:   b.clock,
	}
}

// From parses a persisted state name.
func (b *BasketBehaviour) From(stateName string) (fsm.State, error) {
	switch s := BasketState(stateName); s {
	case BasketCreated, BasketEmpty, BasketChanged, BasketCheckedOut, BasketPaid, BasketTimedOut:
		return s, nil
	}
	return nil, fmt.Errorf("shopping: unknown basket state %q", stateName)
}

// basketMachine is an immutable basket snapshot. Signal returns a new
// value; self and other hold only the last transition's emissions.
type basketMachine struct {
	id      string
	basket  Basket
	present bool
	state   BasketState
	clock   fsm.Clock

	self  []any
	other []fsm.Signal
}

func (m basketMachine) Class() string { return BasketClass }

func (m basketMachine) ID() string { return m.id }

func (m basketMachine) State() fsm.State { return m.state }

func (m basketMachine) Current() (any, bool) {
	if !m.present {
		return nil, false
	}
	return m.basket, true
}

func (m basketMachine) SelfSignals() []any { return m.self }

func (m basketMachine) OtherSignals() []fsm.Signal { return m.other }

func (m basketMachine) Signal(event any) fsm.Machine {
	next := m
	next.self = nil
	next.other = nil

	switch ev := event.(type) {
	case fsm.Create:
		if m.state == basketInitial {
			next.state = BasketCreated
			next.basket = Basket{ID: m.id}
			next.present = true
			next.self = []any{Clear{}}
		}

	case Clear:
		switch m.state {
		case BasketCreated, BasketChanged, BasketTimedOut:
			next.state = BasketEmpty
			next.basket.Items = nil
		}

	case Change:
		switch m.state {
		case BasketEmpty, BasketChanged:
			next.state = BasketChanged
			next.basket.Items = ev.Items
			if len(ev.Items) == 0 {
				next.self = []any{Clear{}}
			}
			next.other = []fsm.Signal{m.timeoutSignal()}
		}

	case Checkout:
		if m.state == BasketChanged {
			next.state = BasketCheckedOut
			next.other = []fsm.Signal{m.timeoutSignal()}
		}

	case Payment:
		if m.state == BasketCheckedOut {
			next.state = BasketPaid
			next.other = []fsm.Signal{
				fsm.NewSignal(BasketClass, m.id, fsm.CancelTimedSignal{
					FromClass: BasketClass,
					FromID:    m.id,
				}),
				fsm.NewSignal(OrderClass, m.id, Place{
					BasketID:   m.id,
					TotalCents: m.basket.TotalCents(),
				}),
			}
		}

	case Timeout:
		switch m.state {
		case BasketChanged, BasketCheckedOut:
			next.state = BasketTimedOut
		}
	}

	return next
}

// timeoutSignal is the delayed self-signal scheduled on entry to Changed
// and CheckedOut. Re-entering either state replaces the outstanding row
// (same cancellation key).
func (m basketMachine) timeoutSignal() fsm.Signal {
	return fsm.NewDelayedSignal(BasketClass, m.id, Timeout{}, m.clock.Now()+TimeoutDelayMs)
}
