package persistence

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/statemill/statemill/fsm"
)

// DefaultRetryInterval is the delay before the drain resumes after a
// failed apply.
const DefaultRetryInterval = 30 * time.Second

// ErrorHandler is invoked with every apply-cycle failure after the
// transaction has rolled back. The default logs and continues; the
// signal row remains queued and the drain retries it.
type ErrorHandler func(error)

// LogHandler is the default ErrorHandler.
func LogHandler(err error) {
	slog.Error("apply cycle failed", "error", err)
}

// RethrowHandler panics. Only useful in tests that want the drain to
// abort on the first failure; a panicking handler stops the worker.
func RethrowHandler(err error) {
	panic(err)
}

// Persistence is the durable FSM runtime: it hosts entity instances of
// registered classes, delivers persisted signals to their machines one
// at a time on a single worker, and answers entity queries.
type Persistence struct {
	db                *sql.DB
	registry          *fsm.Registry
	behaviours        fsm.BehaviourFactory
	clock             fsm.Clock
	executor          Executor
	sql               SQL
	entitySerializer  Serializer
	eventSerializer   Serializer
	storeSignals      bool
	errorHandler      ErrorHandler
	retry             backoff.BackOff
	propertiesFactory func(entity any) map[string]string

	queue signalQueue
	wip   atomic.Int64

	ownsExecutor bool
}

// Option configures optional runtime parameters.
type Option func(*Persistence)

// WithClock replaces the wall clock used for delayed-signal scheduling.
func WithClock(clock fsm.Clock) Option {
	return func(p *Persistence) { p.clock = clock }
}

// WithExecutor replaces the default serial executor. The caller owns the
// supplied executor; Close will not stop it.
func WithExecutor(executor Executor) Option {
	return func(p *Persistence) {
		p.executor = executor
		p.ownsExecutor = false
	}
}

// WithSQL replaces the statement catalog, e.g. to target another
// dialect.
func WithSQL(catalog SQL) Option {
	return func(p *Persistence) { p.sql = catalog }
}

// WithEntitySerializer replaces the entity codec (default JSON).
func WithEntitySerializer(s Serializer) Option {
	return func(p *Persistence) { p.entitySerializer = s }
}

// WithEventSerializer replaces the event codec (default JSON).
func WithEventSerializer(s Serializer) Option {
	return func(p *Persistence) { p.eventSerializer = s }
}

// WithStoreSignals controls the append-only audit log of processed
// events (default on).
func WithStoreSignals(store bool) Option {
	return func(p *Persistence) { p.storeSignals = store }
}

// WithErrorHandler replaces the apply-failure handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(p *Persistence) { p.errorHandler = h }
}

// WithRetryInterval sets a constant retry delay after a failed apply.
func WithRetryInterval(d time.Duration) Option {
	return WithRetryPolicy(backoff.NewConstantBackOff(d))
}

// WithRetryPolicy replaces the retry policy wholesale, e.g. with an
// exponential backoff. The policy is consulted only from the worker.
func WithRetryPolicy(b backoff.BackOff) Option {
	return func(p *Persistence) { p.retry = b }
}

// WithPropertiesFactory sets the projection from an entity value to its
// secondary-index property rows, rebuilt on every entity save.
func WithPropertiesFactory(f func(entity any) map[string]string) Option {
	return func(p *Persistence) { p.propertiesFactory = f }
}

// New creates a runtime over db. The registry names the entity and event
// types; behaviours resolves a Behaviour per class. The schema must
// exist (see Create).
func New(db *sql.DB, registry *fsm.Registry, behaviours fsm.BehaviourFactory, opts ...Option) (*Persistence, error) {
	if db == nil {
		return nil, newError(ErrCodeConfiguration, "db is required", nil)
	}
	if registry == nil {
		return nil, newError(ErrCodeConfiguration, "registry is required", nil)
	}
	if behaviours == nil {
		return nil, newError(ErrCodeConfiguration, "behaviour factory is required", nil)
	}

	p := &Persistence{
		db:                db,
		registry:          registry,
		behaviours:        behaviours,
		clock:             fsm.SystemClock{},
		sql:               DefaultSQL(),
		storeSignals:      true,
		errorHandler:      LogHandler,
		retry:             backoff.NewConstantBackOff(DefaultRetryInterval),
		propertiesFactory: func(any) map[string]string { return nil },
	}
	p.entitySerializer = JSON(registry)
	p.eventSerializer = JSON(registry)

	for _, opt := range opts {
		opt(p)
	}
	if p.executor == nil {
		p.executor = NewSerialExecutor()
		p.ownsExecutor = true
	}
	return p, nil
}

// Create bootstraps the storage schema from the bundled script.
// Idempotent: every statement is created IF NOT EXISTS.
func (p *Persistence) Create() error {
	return p.CreateFromScript(p.sql.CreateSchema)
}

// CreateFromScript executes a ';'-delimited schema script.
func (p *Persistence) CreateFromScript(script string) error {
	ctx := context.Background()
	for _, stmt := range splitScript(script) {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return schemaError("execute schema statement", err)
		}
	}
	return nil
}

// Signal durably publishes a non-delayed signal to (class, id) and
// offers it to the drain scheduler. Once Signal returns, the event
// survives a crash: it stays queued until an apply cycle consumes it.
func (p *Persistence) Signal(class, id string, event any) error {
	return p.SignalNow(fsm.NewSignal(class, id, event))
}

// SignalNow publishes a signal. Only the non-delayed variant is
// supported from this entrypoint; delayed publication originates from
// machine emission only.
func (p *Persistence) SignalNow(sig fsm.Signal) error {
	if sig.Delayed() {
		return newError(ErrCodeUnsupported, "delayed signals cannot be published directly", nil)
	}
	name, bytes, err := p.encodeEvent(sig.Event)
	if err != nil {
		return err
	}

	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin publish transaction", err)
	}
	defer tx.Rollback()

	seq, err := p.enqueueSignal(ctx, tx, sig.Class, sig.ID, name, bytes)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError("commit publish", err)
	}

	p.offer(&numberedSignal{signal: sig, seq: seq})
	return nil
}

// Initialize recovers durable work after a restart: every delayed row is
// scheduled at its fire-at (immediately when overdue), and every
// non-delayed row orphaned by a crash is offered to the drain in
// ascending sequence order.
func (p *Persistence) Initialize() error {
	ctx := context.Background()

	queued, err := p.selectQueuedSignals(ctx, p.db)
	if err != nil {
		return err
	}
	delayed, err := p.selectDelayedSignals(ctx, p.db)
	if err != nil {
		return err
	}

	for _, row := range queued {
		event, err := p.eventSerializer.Deserialize(row.eventCls, row.eventBytes)
		if err != nil {
			return err
		}
		p.offer(&numberedSignal{
			signal: fsm.NewSignal(row.cls, row.id, event),
			seq:    row.seq,
		})
	}
	for _, row := range delayed {
		event, err := p.eventSerializer.Deserialize(row.eventCls, row.eventBytes)
		if err != nil {
			return err
		}
		p.schedule(&numberedSignal{
			signal: fsm.NewDelayedSignal(row.cls, row.id, event, row.fireAt),
			seq:    row.seq,
		})
	}

	slog.Info("initialized", "queued", len(queued), "delayed", len(delayed))
	return nil
}

// QueueLen returns the number of signals waiting in the in-memory drain
// queue. Useful for monitoring and tests.
func (p *Persistence) QueueLen() int {
	return p.queue.len()
}

// Close stops the runtime's own executor. An executor supplied via
// WithExecutor is left running; the database handle is the caller's.
func (p *Persistence) Close() {
	if p.ownsExecutor {
		if e, ok := p.executor.(*SerialExecutor); ok {
			e.Close()
		}
	}
}
