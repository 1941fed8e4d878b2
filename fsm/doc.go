// Package fsm declares the contracts between the persistence runtime and
// user-supplied state machines.
//
// An entity class is identified by a stable registered string name (the
// name is persisted in entity and signal rows, so renaming a class is a
// data migration, not a code change). For each class a Behaviour knows
// how to create a fresh machine, rehydrate one from a persisted entity
// snapshot and state name, and parse state names back into state values.
//
// A Machine is a pure value: Signal returns a new machine positioned
// after the transition, together with the events the transition emitted.
// Events to the machine's own entity (SelfSignals) are processed
// synchronously inside the same apply transaction; events to other
// entities (OtherSignals) are durably queued and delivered after commit,
// optionally at a future time.
//
// Two distinguished events are understood by every behaviour:
//
//   - Create: synthesized by the runtime when a signal arrives for an
//     entity that has no persisted row yet.
//   - CancelTimedSignal: consumed by the runtime itself; removes the
//     delayed signal keyed by (from entity -> target entity) without
//     invoking the machine.
package fsm
