package persistence

import (
	"context"

	"github.com/statemill/statemill/fsm"
)

// numberedSignal pairs a signal with its durable sequence number. It is
// the ephemeral handle the drain scheduler works with.
type numberedSignal struct {
	signal fsm.Signal
	seq    int64
}

// delayedRow is one row of the delayed signal queue as read at startup.
type delayedRow struct {
	seq        int64
	cls        string
	id         string
	eventCls   string
	eventBytes []byte
	fireAt     int64
}

// queuedRow is one row of the non-delayed signal queue as read at startup.
type queuedRow struct {
	seq        int64
	cls        string
	id         string
	eventCls   string
	eventBytes []byte
}

// enqueueSignal inserts one row into the signal queue and returns the
// assigned sequence number. Sequence numbers are strictly increasing for
// the life of the store (AUTOINCREMENT, never reused).
func (p *Persistence) enqueueSignal(ctx context.Context, q querier, cls, id, eventCls string, eventBytes []byte) (int64, error) {
	res, err := q.ExecContext(ctx, p.sql.AddToSignalQueue, cls, id, eventCls, eventBytes)
	if err != nil {
		return 0, storageError("enqueue signal", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, storageError("enqueue signal: sequence number", err)
	}
	return seq, nil
}

// signalExists checks the queue holding sig: the delayed table when the
// signal carries a fire-at, the non-delayed table otherwise.
func (p *Persistence) signalExists(ctx context.Context, q querier, sig *numberedSignal) (bool, error) {
	stmt := p.sql.SignalExists
	if sig.signal.Delayed() {
		stmt = p.sql.DelayedSignalExists
	}
	var one int
	err := q.QueryRowContext(ctx, stmt, sig.seq).Scan(&one)
	if err == nil {
		return true, nil
	}
	if isNoRows(err) {
		return false, nil
	}
	return false, storageError("signal exists", err)
}

// deleteSignal removes sig's row from whichever queue holds it.
func (p *Persistence) deleteSignal(ctx context.Context, q querier, sig *numberedSignal) error {
	stmt := p.sql.DeleteSignal
	if sig.signal.Delayed() {
		stmt = p.sql.DeleteDelayedSignal
	}
	if _, err := q.ExecContext(ctx, stmt, sig.seq); err != nil {
		return storageError("delete signal", err)
	}
	return nil
}

// insertDelayedSignal replaces any outstanding delayed signal with the
// same cancellation key (fromCls, fromId, cls, id), then inserts the new
// row and returns its sequence number.
func (p *Persistence) insertDelayedSignal(ctx context.Context, q querier, fromCls, fromID, cls, id, eventCls string, eventBytes []byte, fireAt int64) (int64, error) {
	if err := p.deleteDelayedSignalByKey(ctx, q, fromCls, fromID, cls, id); err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, p.sql.AddDelayedSignal,
		fromCls, fromID, cls, id, eventCls, eventBytes, fireAt)
	if err != nil {
		return 0, storageError("insert delayed signal", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, storageError("insert delayed signal: sequence number", err)
	}
	return seq, nil
}

// deleteDelayedSignalByKey removes the delayed signal keyed by
// (fromCls, fromId) -> (cls, id), if one exists.
func (p *Persistence) deleteDelayedSignalByKey(ctx context.Context, q querier, fromCls, fromID, cls, id string) error {
	if _, err := q.ExecContext(ctx, p.sql.DeleteDelayedSignalByKey, fromCls, fromID, cls, id); err != nil {
		return storageError("delete delayed signal by key", err)
	}
	return nil
}

// selectDelayedSignals reads the whole delayed queue in ascending seq
// order. Used by Initialize.
func (p *Persistence) selectDelayedSignals(ctx context.Context, q querier) ([]delayedRow, error) {
	rows, err := q.QueryContext(ctx, p.sql.SelectDelayedSignals)
	if err != nil {
		return nil, storageError("select delayed signals", err)
	}
	defer rows.Close()

	var out []delayedRow
	for rows.Next() {
		var r delayedRow
		if err := rows.Scan(&r.seq, &r.cls, &r.id, &r.eventCls, &r.eventBytes, &r.fireAt); err != nil {
			return nil, storageError("scan delayed signal", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("select delayed signals", err)
	}
	return out, nil
}

// selectQueuedSignals reads the whole non-delayed queue in ascending seq
// order. Used by Initialize to recover signals orphaned by a crash.
func (p *Persistence) selectQueuedSignals(ctx context.Context, q querier) ([]queuedRow, error) {
	rows, err := q.QueryContext(ctx, p.sql.SelectAllSignals)
	if err != nil {
		return nil, storageError("select queued signals", err)
	}
	defer rows.Close()

	var out []queuedRow
	for rows.Next() {
		var r queuedRow
		if err := rows.Scan(&r.seq, &r.cls, &r.id, &r.eventCls, &r.eventBytes); err != nil {
			return nil, storageError("scan queued signal", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("select queued signals", err)
	}
	return out, nil
}
