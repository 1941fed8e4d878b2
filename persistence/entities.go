package persistence

import (
	"context"
	"sync/atomic"

	"github.com/statemill/statemill/fsm"
)

// Entities is the read-only query surface available to behaviours while
// their machine is being driven. It is the interface a behaviour should
// depend on; Persistence implements it.
type Entities interface {
	// Get returns the entity for (class, id), if present.
	Get(class, id string) (any, bool, error)

	// GetWithState returns the entity and its state value, if present.
	GetWithState(class, id string) (any, fsm.State, bool, error)

	// List returns all entities of class as (id, entity) pairs ordered
	// by id.
	List(class string) ([]EntityWithID, error)

	// GetByProperty returns the entities of class holding the property.
	GetByProperty(class, name, value string) ([]EntityWithID, error)

	// GetByProperties combines several property predicates with AND or OR.
	GetByProperties(class string, properties map[string]string, combine Combine) ([]EntityWithID, error)

	// GetByPropertyRange returns entities matching (name, value) whose
	// numeric rangeName property falls within the bounds, ordered by id,
	// at most limit rows, starting after lastID when non-empty.
	GetByPropertyRange(class, name, value string, r Range) ([]EntityWithID, error)
}

// txEntities is the Entities view installed in the current-entities
// slot during an apply cycle. Its queries run on the apply's own
// transaction: the pooled connection is held by that transaction for
// the whole cycle, so a behaviour query routed through the pool would
// wait on itself. Reading through the transaction also lets a
// behaviour see the cycle's earlier uncommitted writes.
type txEntities struct {
	p *Persistence
	q querier
}

func (e *txEntities) Get(class, id string) (any, bool, error) {
	return e.p.getEntity(context.Background(), e.q, class, id)
}

func (e *txEntities) GetWithState(class, id string) (any, fsm.State, bool, error) {
	return e.p.getEntityWithState(context.Background(), e.q, class, id)
}

func (e *txEntities) List(class string) ([]EntityWithID, error) {
	return e.p.listEntities(context.Background(), e.q, class)
}

func (e *txEntities) GetByProperty(class, name, value string) ([]EntityWithID, error) {
	return e.p.getByProperty(context.Background(), e.q, class, name, value)
}

func (e *txEntities) GetByProperties(class string, properties map[string]string, combine Combine) ([]EntityWithID, error) {
	return e.p.getByProperties(context.Background(), e.q, class, properties, combine)
}

func (e *txEntities) GetByPropertyRange(class, name, value string, r Range) ([]EntityWithID, error) {
	return e.p.getByPropertyRange(context.Background(), e.q, class, name, value, r)
}

// currentEntities is the process-wide slot holding the Entities view of
// the apply cycle that is executing. It is set on worker entry and
// cleared on exit; with the default single-worker executor at most one
// apply is in flight per process.
var currentEntities atomic.Pointer[entitiesSlot]

type entitiesSlot struct {
	entities Entities
}

// CurrentEntities returns the Entities view of the apply cycle
// currently driving a machine. Behaviours call this for nested queries
// during their transitions; the queries run inside the apply's
// transaction. Outside an apply cycle it returns a configuration
// error.
func CurrentEntities() (Entities, error) {
	slot := currentEntities.Load()
	if slot == nil {
		return nil, newError(ErrCodeConfiguration, "no apply cycle in progress", nil)
	}
	return slot.entities, nil
}

func setCurrentEntities(e Entities) {
	currentEntities.Store(&entitiesSlot{entities: e})
}

func clearCurrentEntities() {
	currentEntities.Store(nil)
}
