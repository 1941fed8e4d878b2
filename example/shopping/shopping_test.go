package shopping

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statemill/statemill/fsm"
	"github.com/statemill/statemill/internal/testutil"
	"github.com/statemill/statemill/persistence"
)

// shopEnv is a full runtime over the shopping model with deterministic
// time and scheduling.
type shopEnv struct {
	db    *sql.DB
	p     *persistence.Persistence
	exec  *testutil.ManualExecutor
	clock *testutil.FixedClock
}

func newShopEnv(t *testing.T) *shopEnv {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &shopEnv{
		db:    db,
		exec:  testutil.NewManualExecutor(),
		clock: testutil.NewFixedClock(testNowMs),
	}
	env.p, err = persistence.New(db, NewRegistry(), Behaviours(env.clock),
		persistence.WithClock(env.clock),
		persistence.WithExecutor(env.exec),
		persistence.WithPropertiesFactory(Properties),
	)
	require.NoError(t, err)
	require.NoError(t, env.p.Create())
	require.NoError(t, env.p.Initialize())
	t.Cleanup(env.p.Close)
	return env
}

func (env *shopEnv) basketState(t *testing.T, id string) (Basket, string) {
	t.Helper()
	entity, state, found, err := env.p.GetWithState(BasketClass, id)
	require.NoError(t, err)
	require.True(t, found, "basket %s not found", id)
	return entity.(Basket), state.String()
}

// oneDay advances the fixed clock and the manual executor by the
// basket's timeout delay.
func (env *shopEnv) oneDay() {
	env.clock.Advance(TimeoutDelayMs)
	env.exec.Advance(time.Duration(TimeoutDelayMs) * time.Millisecond)
}

func (env *shopEnv) delayedRows(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, env.db.QueryRow("SELECT COUNT(*) FROM delayed_signal_queue").Scan(&n))
	return n
}

func TestShopping_CreateCascadesToEmpty(t *testing.T) {
	env := newShopEnv(t)

	// Create enters Created, whose entry action self-signals Clear; the
	// cascade lands the basket in Empty within the same transaction.
	require.NoError(t, env.p.Signal(BasketClass, "b-42", fsm.Create{}))
	basket, state := env.basketState(t, "b-42")
	assert.Equal(t, "Empty", state)
	assert.Empty(t, basket.Items)

	// Both cascaded events are in the audit log, in processing order.
	rows, err := env.db.Query("SELECT event_cls FROM signal_store ORDER BY seq")
	require.NoError(t, err)
	defer rows.Close()
	var events []string
	for rows.Next() {
		var cls string
		require.NoError(t, rows.Scan(&cls))
		events = append(events, cls)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"fsm.Create", "shopping.Clear"}, events)
}

func TestShopping_ChangeArmsOneTimeout(t *testing.T) {
	env := newShopEnv(t)

	require.NoError(t, env.p.Signal(BasketClass, "b-1", Change{Items: twoItems()}))
	assert.Equal(t, 1, env.delayedRows(t))

	// A second change within the day replaces the pending timeout row
	// rather than adding one.
	require.NoError(t, env.p.Signal(BasketClass, "b-1", Change{Items: twoItems()[:1]}))
	assert.Equal(t, 1, env.delayedRows(t))
}

func TestShopping_PurchaseLifecycle(t *testing.T) {
	env := newShopEnv(t)

	// The first signal both creates the basket and applies the change:
	// the runtime cascades Create -> Clear -> Change in one transaction.
	require.NoError(t, env.p.Signal(BasketClass, "b-1", Change{Items: twoItems()}))
	basket, state := env.basketState(t, "b-1")
	assert.Equal(t, "Changed", state)
	assert.Len(t, basket.Items, 2)

	require.NoError(t, env.p.Signal(BasketClass, "b-1", Checkout{}))
	_, state = env.basketState(t, "b-1")
	assert.Equal(t, "CheckedOut", state)

	require.NoError(t, env.p.Signal(BasketClass, "b-1", Payment{AmountCents: 1250}))
	_, state = env.basketState(t, "b-1")
	assert.Equal(t, "Paid", state)

	// Payment placed an order under the basket's id.
	order, orderState, found, err := env.p.GetWithState(OrderClass, "b-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Placed", orderState.String())
	assert.Equal(t, Order{ID: "b-1", BasketID: "b-1", TotalCents: 1250}, order)

	// The pending timeout was cancelled: a day later the basket is still
	// paid.
	env.oneDay()
	_, state = env.basketState(t, "b-1")
	assert.Equal(t, "Paid", state)
}

func TestShopping_BasketTimesOut(t *testing.T) {
	env := newShopEnv(t)

	require.NoError(t, env.p.Signal(BasketClass, "b-1", Change{Items: twoItems()}))

	env.oneDay()
	_, state := env.basketState(t, "b-1")
	assert.Equal(t, "TimedOut", state)

	// A timed-out basket is reusable after a clear.
	require.NoError(t, env.p.Signal(BasketClass, "b-1", Clear{}))
	basket, state := env.basketState(t, "b-1")
	assert.Equal(t, "Empty", state)
	assert.Empty(t, basket.Items)
}

func TestShopping_CheckoutExtendsTimeout(t *testing.T) {
	env := newShopEnv(t)

	require.NoError(t, env.p.Signal(BasketClass, "b-1", Change{Items: twoItems()}))

	// Half a day later the shopper checks out, re-arming the timeout.
	halfDay := TimeoutDelayMs / 2
	env.clock.Advance(halfDay)
	env.exec.Advance(time.Duration(halfDay) * time.Millisecond)
	require.NoError(t, env.p.Signal(BasketClass, "b-1", Checkout{}))

	// The original deadline passes without effect.
	env.clock.Advance(halfDay)
	env.exec.Advance(time.Duration(halfDay) * time.Millisecond)
	_, state := env.basketState(t, "b-1")
	assert.Equal(t, "CheckedOut", state)

	// The extended deadline fires.
	env.clock.Advance(halfDay)
	env.exec.Advance(time.Duration(halfDay) * time.Millisecond)
	_, state = env.basketState(t, "b-1")
	assert.Equal(t, "TimedOut", state)
}

func TestShopping_PropertyQueries(t *testing.T) {
	env := newShopEnv(t)

	require.NoError(t, env.p.Signal(BasketClass, "b-1", Change{Items: twoItems()}))
	require.NoError(t, env.p.Signal(BasketClass, "b-2", Change{Items: twoItems()[:1]}))

	bySize, err := env.p.GetByProperty(BasketClass, "size", "2")
	require.NoError(t, err)
	require.Len(t, bySize, 1)
	assert.Equal(t, "b-1", bySize[0].ID)

	// Numeric range over the indexed total: b-1 is 1250, b-2 is 1000.
	inRange, err := env.p.GetByPropertyRange(BasketClass, "size", "1", persistence.Range{
		Name:           "total",
		Start:          500,
		StartInclusive: true,
		End:            1100,
		EndInclusive:   true,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, "b-2", inRange[0].ID)
}
