package persistence

import (
	_ "embed"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// SQL is the catalog of named parameterized statements the runtime
// executes. Statement names and their parameter shapes are the contract;
// the text is replaceable to target another SQL dialect. DefaultSQL
// targets SQLite.
type SQL struct {
	// CreateSchema is a ';'-delimited script executed by Create.
	CreateSchema string

	// AddToSignalQueue params: cls, id, event_cls, event_bytes.
	// The assigned sequence number is read from the insert result.
	AddToSignalQueue string

	// SignalExists params: seq.
	SignalExists string

	// DeleteSignal params: seq.
	DeleteSignal string

	// SelectAllSignals has no params; yields
	// (seq, cls, id, event_cls, event_bytes) in ascending seq order.
	SelectAllSignals string

	// AddDelayedSignal params: from_cls, from_id, cls, id, event_cls,
	// event_bytes, times. Always preceded by DeleteDelayedSignalByKey so
	// at most one live row exists per cancellation key.
	AddDelayedSignal string

	// DeleteDelayedSignalByKey params: from_cls, from_id, cls, id.
	DeleteDelayedSignalByKey string

	// DelayedSignalExists params: seq.
	DelayedSignalExists string

	// DeleteDelayedSignal params: seq.
	DeleteDelayedSignal string

	// SelectDelayedSignals has no params; yields
	// (seq, cls, id, event_cls, event_bytes, times).
	SelectDelayedSignals string

	// ReadEntity params: cls, id; yields (bytes).
	ReadEntity string

	// ReadEntityAndState params: cls, id; yields (bytes, state).
	ReadEntityAndState string

	// ReadAllEntities params: cls; yields (id, bytes) ordered by id.
	ReadAllEntities string

	// UpdateEntity params: bytes, state, cls, id.
	UpdateEntity string

	// InsertEntity params: cls, id, bytes, state.
	InsertEntity string

	// DeleteEntityProperties params: cls, id.
	DeleteEntityProperties string

	// InsertEntityProperty params: cls, id, name, value.
	InsertEntityProperty string

	// ReadEntitiesByProperty params: cls, name, value; yields (id, bytes).
	ReadEntitiesByProperty string

	// ReadEntitiesByPropertyRange builds the ranged lookup. Params of the
	// built statement, in order: cls, name, value, rangeName, rangeStart,
	// rangeEnd, then lastId when hasLast, then limit. Yields (id, bytes)
	// ordered by id.
	ReadEntitiesByPropertyRange func(startInclusive, endInclusive, hasLast bool) string

	// AddToSignalStore params: cls, id, event_cls, event_bytes.
	AddToSignalStore string
}

// DefaultSQL returns the catalog for SQLite.
func DefaultSQL() SQL {
	return SQL{
		CreateSchema: schemaSQL,

		AddToSignalQueue: `
			INSERT INTO signal_queue (cls, id, event_cls, event_bytes)
			VALUES (?, ?, ?, ?)`,
		SignalExists: `
			SELECT 1 FROM signal_queue WHERE seq = ?`,
		DeleteSignal: `
			DELETE FROM signal_queue WHERE seq = ?`,
		SelectAllSignals: `
			SELECT seq, cls, id, event_cls, event_bytes
			FROM signal_queue ORDER BY seq`,

		AddDelayedSignal: `
			INSERT INTO delayed_signal_queue
			(from_cls, from_id, cls, id, event_cls, event_bytes, times)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		DeleteDelayedSignalByKey: `
			DELETE FROM delayed_signal_queue
			WHERE from_cls = ? AND from_id = ? AND cls = ? AND id = ?`,
		DelayedSignalExists: `
			SELECT 1 FROM delayed_signal_queue WHERE seq = ?`,
		DeleteDelayedSignal: `
			DELETE FROM delayed_signal_queue WHERE seq = ?`,
		SelectDelayedSignals: `
			SELECT seq, cls, id, event_cls, event_bytes, times
			FROM delayed_signal_queue ORDER BY seq`,

		ReadEntity: `
			SELECT bytes FROM entity WHERE cls = ? AND id = ?`,
		ReadEntityAndState: `
			SELECT bytes, state FROM entity WHERE cls = ? AND id = ?`,
		ReadAllEntities: `
			SELECT id, bytes FROM entity WHERE cls = ? ORDER BY id`,
		UpdateEntity: `
			UPDATE entity SET bytes = ?, state = ? WHERE cls = ? AND id = ?`,
		InsertEntity: `
			INSERT INTO entity (cls, id, bytes, state) VALUES (?, ?, ?, ?)`,

		DeleteEntityProperties: `
			DELETE FROM entity_property WHERE cls = ? AND id = ?`,
		InsertEntityProperty: `
			INSERT INTO entity_property (cls, id, name, value)
			VALUES (?, ?, ?, ?)`,
		ReadEntitiesByProperty: `
			SELECT e.id, e.bytes
			FROM entity e
			JOIN entity_property p ON p.cls = e.cls AND p.id = e.id
			WHERE e.cls = ? AND p.name = ? AND p.value = ?`,

		ReadEntitiesByPropertyRange: defaultRangeStatement,

		AddToSignalStore: `
			INSERT INTO signal_store (cls, id, event_cls, event_bytes)
			VALUES (?, ?, ?, ?)`,
	}
}

// defaultRangeStatement builds the ranged property lookup for SQLite.
// The range property's value is compared numerically.
func defaultRangeStatement(startInclusive, endInclusive, hasLast bool) string {
	var b strings.Builder
	b.WriteString(`
		SELECT e.id, e.bytes
		FROM entity e
		JOIN entity_property p ON p.cls = e.cls AND p.id = e.id
		JOIN entity_property r ON r.cls = e.cls AND r.id = e.id
		WHERE e.cls = ? AND p.name = ? AND p.value = ?
		AND r.name = ?`)
	if startInclusive {
		b.WriteString(" AND CAST(r.value AS INTEGER) >= ?")
	} else {
		b.WriteString(" AND CAST(r.value AS INTEGER) > ?")
	}
	if endInclusive {
		b.WriteString(" AND CAST(r.value AS INTEGER) <= ?")
	} else {
		b.WriteString(" AND CAST(r.value AS INTEGER) < ?")
	}
	if hasLast {
		b.WriteString(" AND e.id > ?")
	}
	b.WriteString(" ORDER BY e.id LIMIT ?")
	return b.String()
}

// splitScript breaks a ';'-delimited script into individual statements,
// dropping empty fragments.
func splitScript(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
