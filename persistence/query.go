package persistence

import (
	"context"
	"fmt"
	"sort"

	"github.com/statemill/statemill/fsm"
)

// EntityWithID pairs an entity value with its id.
type EntityWithID struct {
	ID     string
	Entity any
}

// Combine selects how multiple property predicates compose.
type Combine int

const (
	// And keeps entities matching every predicate.
	And Combine = iota
	// Or keeps entities matching at least one predicate.
	Or
)

// Range bounds the numeric range predicate of GetByPropertyRange. The
// range property's value is interpreted as a 64-bit integer. LastID is
// the exclusive pagination cursor: the last id seen in the previous
// page, empty for the first page.
type Range struct {
	Name           string
	Start          int64
	StartInclusive bool
	End            int64
	EndInclusive   bool
	Limit          int
	LastID         string
}

// The public query surface runs on the pooled handle. The same
// operations are reachable inside an apply cycle via CurrentEntities,
// where they run on the apply's own transaction instead (the pool's
// connection is held for the duration of the apply).

// Get returns the entity for (class, id), if present.
func (p *Persistence) Get(class, id string) (any, bool, error) {
	return p.getEntity(context.Background(), p.db, class, id)
}

// GetWithState returns the entity and its state value, if present. The
// persisted state name is parsed by the class's behaviour.
func (p *Persistence) GetWithState(class, id string) (any, fsm.State, bool, error) {
	return p.getEntityWithState(context.Background(), p.db, class, id)
}

// List returns all entities of class as (id, entity) pairs ordered by id.
func (p *Persistence) List(class string) ([]EntityWithID, error) {
	return p.listEntities(context.Background(), p.db, class)
}

// GetByProperty returns the entities of class holding property
// name=value, ordered by id.
func (p *Persistence) GetByProperty(class, name, value string) ([]EntityWithID, error) {
	return p.getByProperty(context.Background(), p.db, class, name, value)
}

// GetByProperties combines several property predicates with AND or OR.
// Results are ordered by id. An empty property map yields no entities.
func (p *Persistence) GetByProperties(class string, properties map[string]string, combine Combine) ([]EntityWithID, error) {
	return p.getByProperties(context.Background(), p.db, class, properties, combine)
}

// GetByPropertyRange returns entities of class matching property
// name=value whose numeric r.Name property lies within the range bounds.
// Results are ordered by id; pagination is deterministic via the
// exclusive r.LastID cursor.
func (p *Persistence) GetByPropertyRange(class, name, value string, r Range) ([]EntityWithID, error) {
	return p.getByPropertyRange(context.Background(), p.db, class, name, value, r)
}

func (p *Persistence) getEntity(ctx context.Context, q querier, class, id string) (any, bool, error) {
	var bytes []byte
	err := q.QueryRowContext(ctx, p.sql.ReadEntity, class, id).Scan(&bytes)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, storageError("get entity", err)
	}
	entity, err := p.entitySerializer.Deserialize(class, bytes)
	if err != nil {
		return nil, false, err
	}
	return entity, true, nil
}

func (p *Persistence) getEntityWithState(ctx context.Context, q querier, class, id string) (any, fsm.State, bool, error) {
	row, found, err := p.readEntityRow(ctx, q, class, id)
	if err != nil || !found {
		return nil, nil, false, err
	}
	entity, err := p.entitySerializer.Deserialize(class, row.bytes)
	if err != nil {
		return nil, nil, false, err
	}
	behaviour, ok := p.behaviours(class)
	if !ok {
		return nil, nil, false, newError(ErrCodeBehaviourResolution,
			fmt.Sprintf("no behaviour for class %q", class), nil)
	}
	state, err := behaviour.From(row.state)
	if err != nil {
		return nil, nil, false, serializationError(
			fmt.Sprintf("parse state %q for class %q", row.state, class), err)
	}
	return entity, state, true, nil
}

func (p *Persistence) listEntities(ctx context.Context, q querier, class string) ([]EntityWithID, error) {
	rows, err := q.QueryContext(ctx, p.sql.ReadAllEntities, class)
	if err != nil {
		return nil, storageError("list entities", err)
	}
	defer rows.Close()

	var out []EntityWithID
	for rows.Next() {
		var id string
		var bytes []byte
		if err := rows.Scan(&id, &bytes); err != nil {
			return nil, storageError("scan entity", err)
		}
		entity, err := p.entitySerializer.Deserialize(class, bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, EntityWithID{ID: id, Entity: entity})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list entities", err)
	}
	return out, nil
}

func (p *Persistence) getByProperty(ctx context.Context, q querier, class, name, value string) ([]EntityWithID, error) {
	ids, byID, err := p.queryByProperty(ctx, q, class, name, value)
	if err != nil {
		return nil, err
	}
	return collect(ids, byID), nil
}

func (p *Persistence) getByProperties(ctx context.Context, q querier, class string, properties map[string]string, combine Combine) ([]EntityWithID, error) {
	var resultIDs map[string]bool
	entities := make(map[string]any)
	first := true
	for name, value := range properties {
		ids, byID, err := p.queryByProperty(ctx, q, class, name, value)
		if err != nil {
			return nil, err
		}
		matched := make(map[string]bool, len(ids))
		for _, id := range ids {
			matched[id] = true
			entities[id] = byID[id]
		}
		if first {
			resultIDs = matched
			first = false
			continue
		}
		switch combine {
		case And:
			for id := range resultIDs {
				if !matched[id] {
					delete(resultIDs, id)
				}
			}
		case Or:
			for id := range matched {
				resultIDs[id] = true
			}
		}
	}

	ids := make([]string, 0, len(resultIDs))
	for id := range resultIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return collect(ids, entities), nil
}

func (p *Persistence) getByPropertyRange(ctx context.Context, q querier, class, name, value string, r Range) ([]EntityWithID, error) {
	hasLast := r.LastID != ""
	stmt := p.sql.ReadEntitiesByPropertyRange(r.StartInclusive, r.EndInclusive, hasLast)

	args := []any{class, name, value, r.Name, r.Start, r.End}
	if hasLast {
		args = append(args, r.LastID)
	}
	args = append(args, r.Limit)

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, storageError("ranged property query", err)
	}
	defer rows.Close()

	var out []EntityWithID
	for rows.Next() {
		var id string
		var bytes []byte
		if err := rows.Scan(&id, &bytes); err != nil {
			return nil, storageError("scan entity", err)
		}
		entity, err := p.entitySerializer.Deserialize(class, bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, EntityWithID{ID: id, Entity: entity})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("ranged property query", err)
	}
	return out, nil
}

// queryByProperty runs one property lookup and returns ids in sorted
// order plus an id->entity map.
func (p *Persistence) queryByProperty(ctx context.Context, q querier, class, name, value string) ([]string, map[string]any, error) {
	rows, err := q.QueryContext(ctx, p.sql.ReadEntitiesByProperty, class, name, value)
	if err != nil {
		return nil, nil, storageError("property query", err)
	}
	defer rows.Close()

	var ids []string
	byID := make(map[string]any)
	for rows.Next() {
		var id string
		var bytes []byte
		if err := rows.Scan(&id, &bytes); err != nil {
			return nil, nil, storageError("scan entity", err)
		}
		entity, err := p.entitySerializer.Deserialize(class, bytes)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		byID[id] = entity
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storageError("property query", err)
	}
	sort.Strings(ids)
	return ids, byID, nil
}

func collect(ids []string, byID map[string]any) []EntityWithID {
	out := make([]EntityWithID, 0, len(ids))
	for _, id := range ids {
		out = append(out, EntityWithID{ID: id, Entity: byID[id]})
	}
	return out
}
