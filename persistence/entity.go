package persistence

import (
	"context"
)

// entityRow is an entity record as stored: opaque serialized bytes plus
// the persisted state name.
type entityRow struct {
	bytes []byte
	state string
}

// readEntityRow reads the entity record for (cls, id). ok is false when
// no row exists.
func (p *Persistence) readEntityRow(ctx context.Context, q querier, cls, id string) (entityRow, bool, error) {
	var r entityRow
	err := q.QueryRowContext(ctx, p.sql.ReadEntityAndState, cls, id).Scan(&r.bytes, &r.state)
	if err == nil {
		return r, true, nil
	}
	if isNoRows(err) {
		return entityRow{}, false, nil
	}
	return entityRow{}, false, storageError("read entity", err)
}

// saveEntityRow writes the entity record for (cls, id):
// update-if-exists-else-insert, idempotent with respect to the key.
func (p *Persistence) saveEntityRow(ctx context.Context, q querier, cls, id string, bytes []byte, state string) error {
	res, err := q.ExecContext(ctx, p.sql.UpdateEntity, bytes, state, cls, id)
	if err != nil {
		return storageError("update entity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError("update entity: rows affected", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := q.ExecContext(ctx, p.sql.InsertEntity, cls, id, bytes, state); err != nil {
		return storageError("insert entity", err)
	}
	return nil
}

// saveProperties rebuilds the property rows for (cls, id): delete all,
// then insert one row per map entry. An empty map leaves the entity with
// no property rows.
func (p *Persistence) saveProperties(ctx context.Context, q querier, cls, id string, properties map[string]string) error {
	if _, err := q.ExecContext(ctx, p.sql.DeleteEntityProperties, cls, id); err != nil {
		return storageError("delete entity properties", err)
	}
	for name, value := range properties {
		if _, err := q.ExecContext(ctx, p.sql.InsertEntityProperty, cls, id, name, value); err != nil {
			return storageError("insert entity property", err)
		}
	}
	return nil
}

// appendSignalStore appends one processed event to the audit log. Called
// inside the apply transaction, once per event that reaches the entity,
// iff storeSignals is enabled. The runtime never reads this table.
func (p *Persistence) appendSignalStore(ctx context.Context, q querier, cls, id, eventCls string, eventBytes []byte) error {
	if _, err := q.ExecContext(ctx, p.sql.AddToSignalStore, cls, id, eventCls, eventBytes); err != nil {
		return storageError("append signal store", err)
	}
	return nil
}
