package persistence

import (
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statemill/statemill/fsm"
	"github.com/statemill/statemill/internal/testutil"
)

// The trace fixture: a single-state machine that appends a log line per
// event, so tests can assert exactly which events reached the entity and
// in which order. Some events cascade, emit to other entities or arm a
// delayed ping.
const traceClass = "test.Trace"

type trace struct {
	ID  string   `json:"id"`
	Log []string `json:"log"`
}

type (
	// tAlpha cascades: self [tBeta, tGamma]; tBeta cascades self [tDelta].
	tAlpha struct{}
	tBeta  struct{}
	tGamma struct{}
	tDelta struct{}

	// tArm emits a delayed tPing to the same entity at FireAt.
	tArm struct {
		FireAt int64 `json:"fireAt"`
	}
	tPing struct{}

	// tSpawn emits tPoke to another trace entity.
	tSpawn struct {
		TargetID string `json:"targetId"`
	}
	tPoke struct{}

	// tLookup reads another trace entity through the current-entities
	// view during its own transition.
	tLookup struct {
		TargetID string `json:"targetId"`
	}

	// tScan counts traces whose "last" property matches Value through
	// the current-entities view.
	tScan struct {
		Value string `json:"value"`
	}
)

type traceState string

func (s traceState) String() string { return string(s) }

const traceActive traceState = "Active"

type traceBehaviour struct{}

func (traceBehaviour) Create(id string) fsm.Machine {
	return traceMachine{id: id}
}

func (traceBehaviour) Replay(id string, entity any, state fsm.State) fsm.Machine {
	return traceMachine{id: id, trace: entity.(trace), present: true, state: state.(traceState)}
}

func (traceBehaviour) From(stateName string) (fsm.State, error) {
	if stateName == string(traceActive) {
		return traceActive, nil
	}
	return nil, newError(ErrCodeSerialization, "unknown trace state "+stateName, nil)
}

type traceMachine struct {
	id      string
	trace   trace
	present bool
	state   traceState

	self  []any
	other []fsm.Signal
}

func (m traceMachine) Class() string { return traceClass }

func (m traceMachine) ID() string { return m.id }

func (m traceMachine) State() fsm.State { return m.state }

func (m traceMachine) SelfSignals() []any { return m.self }

func (m traceMachine) OtherSignals() []fsm.Signal { return m.other }

func (m traceMachine) Current() (any, bool) {
	if !m.present {
		return nil, false
	}
	return m.trace, true
}

func (m traceMachine) Signal(event any) fsm.Machine {
	next := m
	next.self = nil
	next.other = nil

	log := func(line string) {
		entries := make([]string, len(next.trace.Log), len(next.trace.Log)+1)
		copy(entries, next.trace.Log)
		next.trace.Log = append(entries, line)
	}

	switch ev := event.(type) {
	case fsm.Create:
		next.state = traceActive
		next.trace = trace{ID: m.id, Log: []string{"created"}}
		next.present = true
	case tAlpha:
		log("alpha")
		next.self = []any{tBeta{}, tGamma{}}
	case tBeta:
		log("beta")
		next.self = []any{tDelta{}}
	case tGamma:
		log("gamma")
	case tDelta:
		log("delta")
	case tPing:
		log("ping")
	case tArm:
		log("armed")
		next.other = []fsm.Signal{fsm.NewDelayedSignal(traceClass, m.id, tPing{}, ev.FireAt)}
	case tSpawn:
		log("spawned")
		next.other = []fsm.Signal{fsm.NewSignal(traceClass, ev.TargetID, tPoke{})}
	case tPoke:
		log("poked")
	case tLookup:
		ents, err := CurrentEntities()
		if err != nil {
			log("lookup:" + err.Error())
			break
		}
		entity, found, err := ents.Get(traceClass, ev.TargetID)
		switch {
		case err != nil:
			log("lookup:" + err.Error())
		case !found:
			log("lookup:missing")
		default:
			log("lookup:found:" + strconv.Itoa(len(entity.(trace).Log)))
		}
	case tScan:
		ents, err := CurrentEntities()
		if err != nil {
			log("scan:" + err.Error())
			break
		}
		matches, err := ents.GetByProperty(traceClass, "last", ev.Value)
		if err != nil {
			log("scan:" + err.Error())
			break
		}
		log("scan:" + strconv.Itoa(len(matches)))
	}
	return next
}

func newTraceRegistry() *fsm.Registry {
	reg := fsm.NewRegistry()
	reg.Register(traceClass, trace{})
	reg.Register("test.Alpha", tAlpha{})
	reg.Register("test.Beta", tBeta{})
	reg.Register("test.Gamma", tGamma{})
	reg.Register("test.Delta", tDelta{})
	reg.Register("test.Arm", tArm{})
	reg.Register("test.Ping", tPing{})
	reg.Register("test.Spawn", tSpawn{})
	reg.Register("test.Poke", tPoke{})
	reg.Register("test.Lookup", tLookup{})
	reg.Register("test.Scan", tScan{})
	return reg
}

func traceBehaviours() fsm.BehaviourFactory {
	return func(class string) (fsm.Behaviour, bool) {
		if class == traceClass {
			return traceBehaviour{}, true
		}
		return nil, false
	}
}

func traceProperties(entity any) map[string]string {
	tr, ok := entity.(trace)
	if !ok {
		return nil
	}
	props := map[string]string{
		"len": strconv.Itoa(len(tr.Log)),
	}
	if n := len(tr.Log); n > 0 {
		props["last"] = tr.Log[n-1]
	}
	return props
}

// traceEnv is a runtime over a trace fixture with a manual executor and
// a fixed clock, fully deterministic.
type traceEnv struct {
	db    *sql.DB
	p     *Persistence
	exec  *testutil.ManualExecutor
	clock *testutil.FixedClock
}

const traceEpochMs = int64(1_700_000_000_000)

func newTraceEnv(t *testing.T, opts ...Option) *traceEnv {
	t.Helper()
	return newTraceEnvAt(t, filepath.Join(t.TempDir(), "test.db"), opts...)
}

func newTraceEnvAt(t *testing.T, path string, opts ...Option) *traceEnv {
	t.Helper()
	db, err := Open(path)
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { db.Close() })

	env := &traceEnv{
		db:    db,
		exec:  testutil.NewManualExecutor(),
		clock: testutil.NewFixedClock(traceEpochMs),
	}
	all := []Option{
		WithClock(env.clock),
		WithExecutor(env.exec),
		WithPropertiesFactory(traceProperties),
	}
	all = append(all, opts...)

	env.p, err = New(db, newTraceRegistry(), traceBehaviours(), all...)
	require.NoError(t, err, "New() failed")
	require.NoError(t, env.p.Create(), "Create() failed")
	t.Cleanup(env.p.Close)
	return env
}

// traceLog reads the persisted log of (traceClass, id).
func (env *traceEnv) traceLog(t *testing.T, id string) []string {
	t.Helper()
	entity, found, err := env.p.Get(traceClass, id)
	require.NoError(t, err)
	require.True(t, found, "entity %s not found", id)
	return entity.(trace).Log
}

// countRows counts the rows of a runtime table.
func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	require.NoError(t, err)
	return n
}

// storedEvents reads the signal store's event class names in append order.
func storedEvents(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT event_cls FROM signal_store ORDER BY seq")
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cls string
		require.NoError(t, rows.Scan(&cls))
		out = append(out, cls)
	}
	require.NoError(t, rows.Err())
	return out
}

// flakySerializer fails the first n Serialize calls, then delegates.
type flakySerializer struct {
	inner    Serializer
	failures int
}

func (s *flakySerializer) Serialize(v any) ([]byte, error) {
	if s.failures > 0 {
		s.failures--
		return nil, serializationError("induced failure", nil)
	}
	return s.inner.Serialize(v)
}

func (s *flakySerializer) Deserialize(typeName string, data []byte) (any, error) {
	return s.inner.Deserialize(typeName, data)
}

// discardExecutor accepts tasks and never runs them. Used to leave
// durable rows behind as if the process had crashed mid-queue.
type discardExecutor struct{}

func (discardExecutor) Execute(func()) bool            { return true }
func (discardExecutor) Schedule(time.Duration, func()) {}
