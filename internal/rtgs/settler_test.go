package rtgs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rtgsim/internal/domain"
	"rtgsim/internal/eventlog"
	"rtgsim/internal/ledger"
	"rtgsim/internal/queue"
	"rtgsim/pkg/logger"
)

type fixture struct {
	led      *ledger.Ledger
	store    *queue.Store
	log      *eventlog.Log
	deferred *queue.DeferredCredits
	settler  *Settler
}

func newFixture(t *testing.T, deferOn bool, agents []domain.AgentConfig) *fixture {
	t.Helper()
	led := ledger.New(agents)
	store := queue.NewStore(len(agents))
	log := eventlog.New()
	deferred := queue.NewDeferredCredits()
	return &fixture{
		led:      led,
		store:    store,
		log:      log,
		deferred: deferred,
		settler:  NewSettler(led, store, log, deferred, deferOn, logger.NewNop()),
	}
}

func (f *fixture) newTx(from, to domain.AgentID, amount, deadline int64) *domain.Transaction {
	return f.store.NewTransaction(from, to, amount, 0, 0, deadline, false, 0)
}

func TestSubmitImmediate(t *testing.T) {
	t.Run("settles when liquidity covers", func(t *testing.T) {
		f := newFixture(t, false, []domain.AgentConfig{
			{Name: "A", Balance: 1000}, {Name: "B"},
		})
		tx := f.newTx(0, 1, 600, 100)

		assert.NoError(t, f.settler.SubmitImmediate(0, []*domain.Transaction{tx}))

		assert.Equal(t, domain.StatusSettled, tx.Status)
		a, _ := f.led.Account(0)
		b, _ := f.led.Account(1)
		assert.Equal(t, int64(400), a.Balance)
		assert.Equal(t, int64(600), b.Balance)

		events := f.log.Events()
		assert.Len(t, events, 1)
		assert.Equal(t, domain.EventSettledImmediate, events[0].Type)
		assert.Equal(t, []domain.BalanceDelta{{Agent: 0, Delta: -600}, {Agent: 1, Delta: 600}}, events[0].Deltas)
	})

	t.Run("queues on shortfall", func(t *testing.T) {
		f := newFixture(t, false, []domain.AgentConfig{
			{Name: "A", Balance: 100}, {Name: "B"},
		})
		tx := f.newTx(0, 1, 600, 100)

		assert.NoError(t, f.settler.SubmitImmediate(3, []*domain.Transaction{tx}))

		assert.Equal(t, domain.StatusQueued, tx.Status)
		assert.Equal(t, int64(3), tx.QueuedTick)
		assert.Equal(t, []domain.TxID{tx.ID}, f.store.Post(0))

		events := f.log.Events()
		assert.Len(t, events, 1)
		assert.Equal(t, domain.EventQueued, events[0].Type)
	})

	t.Run("credit and collateral count toward liquidity", func(t *testing.T) {
		f := newFixture(t, false, []domain.AgentConfig{
			{Name: "A", Balance: 100, CreditLimit: 300, PostedCollateral: 200}, {Name: "B"},
		})
		tx := f.newTx(0, 1, 600, 100)

		assert.NoError(t, f.settler.SubmitImmediate(0, []*domain.Transaction{tx}))
		assert.Equal(t, domain.StatusSettled, tx.Status)

		a, _ := f.led.Account(0)
		assert.Equal(t, int64(-500), a.Balance)
	})
}

func TestDeferredCrediting(t *testing.T) {
	f := newFixture(t, true, []domain.AgentConfig{
		{Name: "A", Balance: 1000}, {Name: "B"},
	})
	tx := f.newTx(0, 1, 600, 100)

	assert.NoError(t, f.settler.SubmitImmediate(0, []*domain.Transaction{tx}))

	// Sender debited now; receiver's credit parks in the accumulator.
	a, _ := f.led.Account(0)
	b, _ := f.led.Account(1)
	assert.Equal(t, int64(400), a.Balance)
	assert.Equal(t, int64(0), b.Balance)
	assert.Equal(t, int64(600), f.deferred.Total())

	events := f.log.Events()
	assert.Equal(t, []domain.BalanceDelta{{Agent: 0, Delta: -600}}, events[0].Deltas)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t, false, []domain.AgentConfig{{Name: "A"}, {Name: "B"}})
	tx := f.newTx(0, 1, 600, 5)
	f.store.Enqueue(tx, 0)

	f.settler.MarkOverdue(5)
	assert.Equal(t, domain.StatusQueued, tx.Status, "deadline tick itself is not overdue")

	f.settler.MarkOverdue(6)
	assert.Equal(t, domain.StatusOverdue, tx.Status)
	assert.Equal(t, int64(6), tx.OverdueTick)
	assert.True(t, tx.Outstanding(), "overdue stays settleable")

	f.settler.MarkOverdue(7)
	assert.Equal(t, int64(6), tx.OverdueTick, "transition happens once")
}

func TestReleasePassFixpoint(t *testing.T) {
	// B cannot pay A until C pays B. B is scanned before C, so only the
	// second sweep of the fixpoint loop can release B's payment.
	f := newFixture(t, false, []domain.AgentConfig{
		{Name: "A"}, {Name: "B"}, {Name: "C", Balance: 500},
	})

	txBA := f.newTx(1, 0, 400, 100)
	f.store.Enqueue(txBA, 0)
	txCB := f.newTx(2, 1, 500, 100)
	f.store.Enqueue(txCB, 0)

	settled, removed, err := f.settler.ReleasePass(1)
	assert.NoError(t, err)
	assert.Equal(t, 2, settled)
	assert.Equal(t, 2, removed)
	assert.Equal(t, domain.StatusSettled, txBA.Status)
	assert.Equal(t, domain.StatusSettled, txCB.Status)
	assert.Zero(t, f.store.PostDepth())
}

func TestReleasePassDeferredSinglePass(t *testing.T) {
	// Under deferred crediting the same chain cannot cascade: B's inflow
	// parks until tick end, so only C's payment settles this tick.
	f := newFixture(t, true, []domain.AgentConfig{
		{Name: "A"}, {Name: "B"}, {Name: "C", Balance: 500},
	})

	txBA := f.newTx(1, 0, 400, 100)
	f.store.Enqueue(txBA, 0)
	txCB := f.newTx(2, 1, 500, 100)
	f.store.Enqueue(txCB, 0)

	settled, _, err := f.settler.ReleasePass(1)
	assert.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, domain.StatusSettled, txCB.Status)
	assert.Equal(t, domain.StatusQueued, txBA.Status)
	assert.Equal(t, int64(500), f.deferred.Total())
}
