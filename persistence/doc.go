// Package persistence implements a durable, transactional runtime for
// finite-state machines whose inputs are persisted in a relational
// store and delivered asynchronously.
//
// ARCHITECTURE:
//
// Single-Worker Drain:
// Publishers insert signal rows durably and offer numbered handles to a
// process-local queue. An atomic work-indicator counter guarantees that
// exactly one drain task runs at a time and that a publish concurrent
// with a running drain is never lost: only the transition from zero
// schedules a task, and the task loops until the counter returns to
// zero.
//
// Apply Cycle:
// Each signal is processed in one database transaction: verify the
// signal row still exists, rehydrate the target machine, drive it
// through the input event and its synchronous self-signal cascade,
// persist the entity, its property index rows, the audit log, and every
// emitted outbound signal, then delete the input row and commit. Any
// failure rolls the whole cycle back; the input row survives, so the
// work is retried after the configured interval.
//
// Delayed Signals:
// A machine may emit a signal with a fire-at time. Delayed rows live in
// their own table keyed by (from entity -> target entity): re-emitting
// under the same key replaces the outstanding row, and the distinguished
// CancelTimedSignal event removes it without driving any machine. On
// startup, Initialize schedules every delayed row at its fire-at and
// re-offers non-delayed rows orphaned by a crash.
//
// Ordering:
// Sequence numbers are assigned by the store and strictly increase for
// its whole life. Signals published without intervening failures are
// applied in ascending sequence order; self-signals cascade head-first
// within their apply transaction.
package persistence
