package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/statemill/statemill/fsm"
)

// process runs one apply cycle for sig and hands the produced signals
// back to the scheduler. Returns false when the cycle failed and a retry
// has been scheduled; the signal row remains, so the work is retriable.
//
// Called only from the drain task on the single worker.
func (p *Persistence) process(sig *numberedSignal) bool {
	toOther, delayed, err := p.apply(context.Background(), sig)
	if err != nil {
		p.errorHandler(err)
		p.scheduleRetry()
		return false
	}
	p.retry.Reset()
	for _, out := range toOther {
		p.offer(out)
	}
	for _, out := range delayed {
		p.schedule(out)
	}
	return true
}

// apply is the per-signal transactional cycle: read the entity, drive
// the machine through the input event and its self-signal cascade, and
// persist the results and every emitted signal atomically. Either all
// effects commit or none do.
func (p *Persistence) apply(ctx context.Context, sig *numberedSignal) (toOther, delayed []*numberedSignal, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storageError("begin apply transaction", err)
	}
	defer tx.Rollback() // no-op after commit

	// A signal already consumed by an earlier (committed) apply is not
	// reprocessed: absence from its queue means done.
	exists, err := p.signalExists(ctx, tx, sig)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, nil
	}

	// Cancellation is handled before any machine involvement: drop the
	// delayed row keyed by (from entity -> this signal's target), consume
	// the input row, commit.
	if cancel, ok := cancellationEvent(sig.signal.Event); ok {
		if err := p.deleteDelayedSignalByKey(ctx, tx, cancel.FromClass, cancel.FromID, sig.signal.Class, sig.signal.ID); err != nil {
			return nil, nil, err
		}
		if err := p.deleteSignal(ctx, tx, sig); err != nil {
			return nil, nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, storageError("commit cancellation", err)
		}
		return nil, nil, nil
	}

	behaviour, ok := p.behaviours(sig.signal.Class)
	if !ok {
		return nil, nil, newError(ErrCodeBehaviourResolution,
			fmt.Sprintf("no behaviour for class %q", sig.signal.Class), nil)
	}

	machine, self, err := p.restoreMachine(ctx, tx, behaviour, sig)
	if err != nil {
		return nil, nil, err
	}

	machine, processed, toOtherSignals := p.cascade(tx, machine, self)

	if p.storeSignals {
		for _, ev := range processed {
			name, bytes, serr := p.encodeEvent(ev)
			if serr != nil {
				return nil, nil, serr
			}
			if err := p.appendSignalStore(ctx, tx, sig.signal.Class, sig.signal.ID, name, bytes); err != nil {
				return nil, nil, err
			}
		}
	}

	for _, out := range toOtherSignals {
		name, bytes, serr := p.encodeEvent(out.Event)
		if serr != nil {
			return nil, nil, serr
		}
		if !out.Delayed() {
			seq, err := p.enqueueSignal(ctx, tx, out.Class, out.ID, name, bytes)
			if err != nil {
				return nil, nil, err
			}
			toOther = append(toOther, &numberedSignal{signal: out, seq: seq})
		} else {
			seq, err := p.insertDelayedSignal(ctx, tx,
				machine.Class(), machine.ID(), out.Class, out.ID, name, bytes, out.FireAt)
			if err != nil {
				return nil, nil, err
			}
			delayed = append(delayed, &numberedSignal{signal: out, seq: seq})
		}
	}

	if err := p.deleteSignal(ctx, tx, sig); err != nil {
		return nil, nil, err
	}

	if entity, ok := machine.Current(); ok {
		bytes, serr := p.entitySerializer.Serialize(entity)
		if serr != nil {
			return nil, nil, serr
		}
		if err := p.saveEntityRow(ctx, tx, machine.Class(), machine.ID(), bytes, machine.State().String()); err != nil {
			return nil, nil, err
		}
		if err := p.saveProperties(ctx, tx, machine.Class(), machine.ID(), p.propertiesFactory(entity)); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, storageError("commit apply", err)
	}

	slog.Debug("signal applied",
		"class", sig.signal.Class,
		"id", sig.signal.ID,
		"seq", sig.seq,
		"state", machine.State().String(),
		"emitted", len(toOther),
		"emitted_delayed", len(delayed),
	)
	return toOther, delayed, nil
}

// restoreMachine rehydrates the machine for the signal's target and
// returns the initial self deque. A missing entity row gets a fresh
// machine and a synthetic Create prepended, so the machine always
// observes Create exactly once before any other event.
func (p *Persistence) restoreMachine(ctx context.Context, q querier, behaviour fsm.Behaviour, sig *numberedSignal) (fsm.Machine, []any, error) {
	row, found, err := p.readEntityRow(ctx, q, sig.signal.Class, sig.signal.ID)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		machine := behaviour.Create(sig.signal.ID)
		if _, isCreate := sig.signal.Event.(fsm.Create); isCreate {
			return machine, []any{sig.signal.Event}, nil
		}
		return machine, []any{fsm.Create{}, sig.signal.Event}, nil
	}

	entityClass := sig.signal.Class
	entity, err := p.entitySerializer.Deserialize(entityClass, row.bytes)
	if err != nil {
		return nil, nil, err
	}
	state, err := behaviour.From(row.state)
	if err != nil {
		return nil, nil, serializationError(
			fmt.Sprintf("parse state %q for class %q", row.state, entityClass), err)
	}
	return behaviour.Replay(sig.signal.ID, entity, state), []any{sig.signal.Event}, nil
}

// cascade drives the machine through the self deque. Self-signals
// emitted by a transition are pushed to the head in emission order, so
// the first emitted event is processed next and a later emission sees
// the machine state after earlier cascaded emissions. Other-signals are
// appended in emission order.
//
// The deque is an explicit slice, not recursion: the cascade depth is
// bounded by memory, not the stack.
//
// The current-Entities slot is set for the duration so behaviours can
// run nested queries; the view is bound to the apply transaction, which
// holds the pool's connection until commit.
func (p *Persistence) cascade(tx querier, machine fsm.Machine, self []any) (fsm.Machine, []any, []fsm.Signal) {
	setCurrentEntities(&txEntities{p: p, q: tx})
	defer clearCurrentEntities()

	var processed []any
	var toOther []fsm.Signal
	for len(self) > 0 {
		ev := self[0]
		self = self[1:]
		processed = append(processed, ev)
		machine = machine.Signal(ev)
		if emitted := machine.SelfSignals(); len(emitted) > 0 {
			head := make([]any, 0, len(emitted)+len(self))
			head = append(head, emitted...)
			self = append(head, self...)
		}
		toOther = append(toOther, machine.OtherSignals()...)
	}
	return machine, processed, toOther
}

// encodeEvent resolves the registered event class name and serializes
// the event.
func (p *Persistence) encodeEvent(ev any) (string, []byte, error) {
	name, err := p.registry.NameOf(ev)
	if err != nil {
		return "", nil, serializationError("event class name", err)
	}
	bytes, err := p.eventSerializer.Serialize(ev)
	if err != nil {
		return "", nil, err
	}
	return name, bytes, nil
}

// cancellationEvent matches the distinguished cancellation event,
// whether carried by value or pointer.
func cancellationEvent(ev any) (fsm.CancelTimedSignal, bool) {
	switch c := ev.(type) {
	case fsm.CancelTimedSignal:
		return c, true
	case *fsm.CancelTimedSignal:
		return *c, true
	}
	return fsm.CancelTimedSignal{}, false
}
