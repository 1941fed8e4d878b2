// Package shopping is the reference entity model for the runtime: a
// shopping Basket driven by a state machine, plus the Order it places
// when paid. It exercises self-signal cascades, delayed timeouts with
// replacement, timed-signal cancellation and cross-entity emission.
package shopping

import (
	"strconv"

	"github.com/statemill/statemill/fsm"
)

// Class names persisted in entity and signal rows. Renaming one is a
// data migration.
const (
	BasketClass = "shopping.Basket"
	OrderClass  = "shopping.Order"
)

// TimeoutDelayMs is how long a basket may sit in Changed or CheckedOut
// before it times out: one day.
const TimeoutDelayMs = int64(24 * 60 * 60 * 1000)

// NewRegistry returns a registry with every shopping entity and event
// type registered under its stable name.
func NewRegistry() *fsm.Registry {
	reg := fsm.NewRegistry()
	reg.Register(BasketClass, Basket{})
	reg.Register(OrderClass, Order{})
	reg.Register("shopping.Change", Change{})
	reg.Register("shopping.Checkout", Checkout{})
	reg.Register("shopping.Payment", Payment{})
	reg.Register("shopping.Clear", Clear{})
	reg.Register("shopping.Timeout", Timeout{})
	reg.Register("shopping.Place", Place{})
	return reg
}

// Behaviours resolves the behaviour for each shopping class. The clock
// stamps delayed-timeout fire-at times.
func Behaviours(clock fsm.Clock) fsm.BehaviourFactory {
	basket := NewBasketBehaviour(clock)
	order := NewOrderBehaviour()
	return func(class string) (fsm.Behaviour, bool) {
		switch class {
		case BasketClass:
			return basket, true
		case OrderClass:
			return order, true
		}
		return nil, false
	}
}

// Properties projects the secondary-index rows for shopping entities:
// baskets index their item count and numeric total, orders their
// originating basket.
func Properties(entity any) map[string]string {
	switch e := entity.(type) {
	case Basket:
		return map[string]string{
			"size":  strconv.Itoa(len(e.Items)),
			"total": strconv.FormatInt(e.TotalCents(), 10),
		}
	case Order:
		return map[string]string{
			"basket": e.BasketID,
		}
	}
	return nil
}
