package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statemill/statemill/fsm"
)

func TestNew_RequiredArguments(t *testing.T) {
	env := newTraceEnv(t)

	_, err := New(nil, newTraceRegistry(), traceBehaviours())
	assert.True(t, IsConfiguration(err), "nil db should be a configuration error")

	_, err = New(env.db, nil, traceBehaviours())
	assert.True(t, IsConfiguration(err), "nil registry should be a configuration error")

	_, err = New(env.db, newTraceRegistry(), nil)
	assert.True(t, IsConfiguration(err), "nil behaviour factory should be a configuration error")
}

func TestCreate_Idempotent(t *testing.T) {
	env := newTraceEnv(t)

	// Already created by the env; creating again must not fail.
	require.NoError(t, env.p.Create())
	require.NoError(t, env.p.Create())
}

func TestSignal_CreatesEntity(t *testing.T) {
	env := newTraceEnv(t)

	require.NoError(t, env.p.Signal(traceClass, "t-1", tGamma{}))

	// The manual executor drains synchronously: the signal is consumed
	// and the entity materialized by the time Signal returns.
	assert.Equal(t, []string{"created", "gamma"}, env.traceLog(t, "t-1"))
	assert.Equal(t, 0, env.p.QueueLen())
	assert.Equal(t, 0, countRows(t, env.db, "signal_queue"))

	_, state, found, err := env.p.GetWithState(traceClass, "t-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Active", state.String())
}

func TestSignal_ExplicitCreateNotDoubled(t *testing.T) {
	env := newTraceEnv(t)

	// Publishing Create to a fresh entity must deliver it exactly once.
	require.NoError(t, env.p.Signal(traceClass, "t-1", fsm.Create{}))
	assert.Equal(t, []string{"created"}, env.traceLog(t, "t-1"))
}

func TestSignal_ExistingEntityReplayed(t *testing.T) {
	env := newTraceEnv(t)

	require.NoError(t, env.p.Signal(traceClass, "t-1", tGamma{}))
	require.NoError(t, env.p.Signal(traceClass, "t-1", tDelta{}))

	// The second signal replays the persisted snapshot: no second Create.
	assert.Equal(t, []string{"created", "gamma", "delta"}, env.traceLog(t, "t-1"))
}

func TestSignalNow_RejectsDelayed(t *testing.T) {
	env := newTraceEnv(t)

	err := env.p.SignalNow(fsm.NewDelayedSignal(traceClass, "t-1", tPing{}, env.clock.Now()+1000))
	assert.True(t, IsUnsupported(err), "delayed publication should be unsupported, got %v", err)
}

func TestSignal_UnregisteredEventRejected(t *testing.T) {
	env := newTraceEnv(t)

	type unregistered struct{}
	err := env.p.Signal(traceClass, "t-1", unregistered{})
	assert.True(t, IsSerialization(err), "expected serialization error, got %v", err)

	// Nothing was enqueued.
	assert.Equal(t, 0, countRows(t, env.db, "signal_queue"))
}

func TestApply_CascadeHeadFirst(t *testing.T) {
	env := newTraceEnv(t)

	// Alpha emits [Beta, Gamma] to self; Beta emits [Delta]. Head-first
	// cascading processes Beta's emission before Gamma.
	require.NoError(t, env.p.Signal(traceClass, "t-1", tAlpha{}))
	assert.Equal(t,
		[]string{"created", "alpha", "beta", "delta", "gamma"},
		env.traceLog(t, "t-1"))
}

func TestApply_CrossEntityEmission(t *testing.T) {
	env := newTraceEnv(t)

	require.NoError(t, env.p.Signal(traceClass, "t-1", tSpawn{TargetID: "t-2"}))

	assert.Equal(t, []string{"created", "spawned"}, env.traceLog(t, "t-1"))
	assert.Equal(t, []string{"created", "poked"}, env.traceLog(t, "t-2"))
	assert.Equal(t, 0, countRows(t, env.db, "signal_queue"))
}

func TestApply_UnknownClassFailsResolution(t *testing.T) {
	var captured error
	env := newTraceEnv(t, WithErrorHandler(func(err error) { captured = err }))

	// The registry must know the class name for publish to encode it, but
	// the behaviour factory does not resolve it.
	require.NoError(t, env.p.Signal(traceClass+".Unknown", "x-1", tGamma{}))

	require.Error(t, captured)
	assert.True(t, IsBehaviourResolution(captured), "got %v", captured)
	// The signal row survives for a later retry.
	assert.Equal(t, 1, countRows(t, env.db, "signal_queue"))
}

func TestApply_ConsumedSignalIsNoOp(t *testing.T) {
	env := newTraceEnv(t)

	// seq 999 does not exist in the queue: the apply must succeed without
	// touching the entity.
	toOther, delayed, err := env.p.apply(context.Background(),
		&numberedSignal{signal: fsm.NewSignal(traceClass, "t-1", tGamma{}), seq: 999})
	require.NoError(t, err)
	assert.Empty(t, toOther)
	assert.Empty(t, delayed)

	_, found, err := env.p.Get(traceClass, "t-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSignalStore_RecordsCascadedEvents(t *testing.T) {
	env := newTraceEnv(t)

	require.NoError(t, env.p.Signal(traceClass, "t-1", tAlpha{}))

	assert.Equal(t,
		[]string{"fsm.Create", "test.Alpha", "test.Beta", "test.Delta", "test.Gamma"},
		storedEvents(t, env.db))
}

func TestSignalStore_Disabled(t *testing.T) {
	env := newTraceEnv(t, WithStoreSignals(false))

	require.NoError(t, env.p.Signal(traceClass, "t-1", tAlpha{}))
	assert.Empty(t, storedEvents(t, env.db))
}

func TestCurrentEntities_QueryDuringApply(t *testing.T) {
	env := newTraceEnv(t)

	// t-2 exists with a two-line log before t-1's lookup runs.
	require.NoError(t, env.p.Signal(traceClass, "t-2", tGamma{}))

	// The transition reads t-2 through CurrentEntities while t-1's
	// apply transaction is open; the query must complete and see the
	// committed entity.
	require.NoError(t, env.p.Signal(traceClass, "t-1", tLookup{TargetID: "t-2"}))
	assert.Equal(t, []string{"created", "lookup:found:2"}, env.traceLog(t, "t-1"))

	require.NoError(t, env.p.Signal(traceClass, "t-1", tLookup{TargetID: "ghost"}))
	assert.Equal(t, []string{"created", "lookup:found:2", "lookup:missing"}, env.traceLog(t, "t-1"))

	// Outside an apply cycle the slot is empty.
	_, err := CurrentEntities()
	assert.True(t, IsConfiguration(err), "got %v", err)
}

func TestCurrentEntities_PropertyQueryDuringApply(t *testing.T) {
	env := newTraceEnv(t)

	require.NoError(t, env.p.Signal(traceClass, "t-2", tGamma{}))
	require.NoError(t, env.p.Signal(traceClass, "t-3", tGamma{}))

	// Both committed traces end on "gamma"; the transition counts them
	// via the property index from inside its own apply transaction.
	require.NoError(t, env.p.Signal(traceClass, "t-1", tScan{Value: "gamma"}))
	assert.Equal(t, []string{"created", "scan:2"}, env.traceLog(t, "t-1"))
}

func TestProperties_RebuiltOnSave(t *testing.T) {
	env := newTraceEnv(t)

	require.NoError(t, env.p.Signal(traceClass, "t-1", tGamma{}))
	got, err := env.p.GetByProperty(traceClass, "last", "gamma")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t-1", got[0].ID)

	// The next save replaces the property rows wholesale.
	require.NoError(t, env.p.Signal(traceClass, "t-1", tDelta{}))
	got, err = env.p.GetByProperty(traceClass, "last", "gamma")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = env.p.GetByProperty(traceClass, "last", "delta")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t-1", got[0].ID)
}
