package shopping

import (
	"fmt"

	"github.com/statemill/statemill/fsm"
)

// Order is the entity a paid basket places.
type Order struct {
	ID         string `json:"id"`
	BasketID   string `json:"basketId"`
	TotalCents int64  `json:"totalCents"`
}

// Place records the paid basket on the order.
type Place struct {
	BasketID   string `json:"basketId"`
	TotalCents int64  `json:"totalCents"`
}

// OrderState is an order machine state.
type OrderState string

// String implements fsm.State.
func (s OrderState) String() string { return string(s) }

// Order states.
const (
	OrderCreated OrderState = "Created"
	OrderPlaced  OrderState = "Placed"
)

const orderInitial OrderState = ""

// OrderBehaviour adapts the Order state machine: Create -> Created,
// Place -> Placed.
type OrderBehaviour struct{}

// NewOrderBehaviour creates the order behaviour.
func NewOrderBehaviour() *OrderBehaviour {
	return &OrderBehaviour{}
}

// Create returns a fresh, unsignalled order machine.
func (b *OrderBehaviour) Create(id string) fsm.Machine {
	return orderMachine{id: id, state: orderInitial}
}

// Replay returns a machine positioned at state with the given snapshot.
func (b *OrderBehaviour) Replay(id string, entity any, state fsm.State) fsm.Machine {
	return orderMachine{
		id:      id,
		order:   entity.(Order),
		present: true,
		state:   state.(OrderState),
	}
}

// From parses a persisted state name.
func (b *OrderBehaviour) From(stateName string) (fsm.State, error) {
	switch s := OrderState(stateName); s {
	case OrderCreated, OrderPlaced:
		return s, nil
	}
	return nil, fmt.Errorf("shopping: unknown order state %q", stateName)
}

type orderMachine struct {
	id      string
	order   Order
	present bool
	state   OrderState

	self  []any
	other []fsm.Signal
}

func (m orderMachine) Class() string { return OrderClass }

func (m orderMachine) ID() string { return m.id }

func (m orderMachine) State() fsm.State { return m.state }

func (m orderMachine) Current() (any, bool) {
	if !m.present {
		return nil, false
	}
	return m.order, true
}

func (m orderMachine) SelfSignals() []any { return m.self }

func (m orderMachine) OtherSignals() []fsm.Signal { return m.other }

func (m orderMachine) Signal(event any) fsm.Machine {
	next := m
	next.self = nil
	next.other = nil

	switch ev := event.(type) {
	case fsm.Create:
		if m.state == orderInitial {
			next.state = OrderCreated
			next.order = Order{ID: m.id}
			next.present = true
		}

	case Place:
		if m.state == OrderCreated {
			next.state = OrderPlaced
			next.order.BasketID = ev.BasketID
			next.order.TotalCents = ev.TotalCents
		}
	}

	return next
}
