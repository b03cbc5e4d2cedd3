package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rtgsim/internal/domain"
	"rtgsim/internal/policy"
	apperrors "rtgsim/pkg/errors"
	"rtgsim/pkg/logger"
)

func baseConfig(agents []domain.AgentConfig, arrivals []domain.ArrivalConfig) domain.SimulationConfig {
	cfg := domain.DefaultSimulationConfig()
	cfg.Horizon = 10
	cfg.TicksPerDay = 10
	cfg.Agents = agents
	cfg.Arrivals = arrivals
	return cfg
}

func newEngine(t *testing.T, cfg domain.SimulationConfig, pol policy.Engine) *Engine {
	t.Helper()
	e, err := New(cfg, pol, logger.NewNop())
	assert.NoError(t, err)
	return e
}

func eventsOfType(evs []domain.Event, typ domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func balanceSum(e *Engine) int64 {
	var sum int64
	for _, s := range e.AgentSnapshots() {
		sum += s.Balance
	}
	return sum
}

// badPolicy returns a decision for a transaction no agent owns, which is
// malformed input and must halt the run.
type badPolicy struct{}

func (badPolicy) Name() string { return "bad" }

func (badPolicy) DecidePayments(view policy.AgentView, pending []domain.Transaction) []policy.Decision {
	return []policy.Decision{{Tx: 9999, Action: policy.ActionSubmit}}
}

func (badPolicy) DecideCollateral(view policy.AgentView, stage policy.CollateralStage) policy.CollateralDecision {
	return policy.CollateralDecision{Action: policy.CollateralHold}
}

func TestNewRejectsBadInput(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := baseConfig(nil, nil)
		_, err := New(cfg, policy.SubmitAll{}, logger.NewNop())
		assert.Error(t, err)
		assert.True(t, apperrors.IsConfigError(err))
	})

	t.Run("nil policy", func(t *testing.T) {
		cfg := baseConfig([]domain.AgentConfig{{Name: "A"}}, nil)
		_, err := New(cfg, nil, logger.NewNop())
		assert.Error(t, err)
		assert.True(t, apperrors.IsConfigError(err))
	})
}

func TestImmediateSettlement(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{
			{Name: "alpha", Balance: 10000},
			{Name: "beta"},
		},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "alpha", Receiver: "beta", Amount: 4000},
		},
	)
	e := newEngine(t, cfg, policy.SubmitAll{})

	evs, err := e.AdvanceTick()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), e.Tick())

	settled := eventsOfType(evs, domain.EventSettledImmediate)
	if assert.Len(t, settled, 1) {
		assert.Equal(t, domain.TxID(1), settled[0].Tx)
		assert.Equal(t, domain.AgentID(0), settled[0].Agent)
		assert.Equal(t, domain.AgentID(1), settled[0].Counterparty)
		assert.Equal(t, int64(4000), settled[0].Amount)
	}

	snaps := e.AgentSnapshots()
	assert.Equal(t, int64(6000), snaps[0].Balance)
	assert.Equal(t, int64(4000), snaps[1].Balance)

	// The tick marker is last and reports an empty queue.
	last := evs[len(evs)-1]
	assert.Equal(t, domain.EventTickCompleted, last.Type)
	assert.Equal(t, int64(0), last.Amount)
}

func TestGridlockClearedByCycleNetting(t *testing.T) {
	// Three agents with no liquidity owe each other in a ring. RTGS alone
	// deadlocks; the multilateral pass settles all three at once.
	cfg := baseConfig(
		[]domain.AgentConfig{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 1000},
			{Tick: 0, Sender: "B", Receiver: "C", Amount: 1000},
			{Tick: 0, Sender: "C", Receiver: "A", Amount: 1000},
		},
	)
	e := newEngine(t, cfg, policy.SubmitAll{})

	evs, err := e.AdvanceTick()
	assert.NoError(t, err)

	assert.Len(t, eventsOfType(evs, domain.EventQueued), 3)
	multi := eventsOfType(evs, domain.EventSettledMultilateral)
	if assert.Len(t, multi, 1) {
		assert.Equal(t, []domain.AgentID{0, 1, 2}, multi[0].AgentSet)
		assert.Equal(t, []domain.TxID{1, 2, 3}, multi[0].Txs)
		assert.Equal(t, int64(3000), multi[0].Amount)
		assert.Empty(t, multi[0].Deltas)
	}

	for _, s := range e.AgentSnapshots() {
		assert.Equal(t, int64(0), s.Balance)
	}
	assert.Equal(t, int64(0), balanceSum(e))
	for _, q := range e.QueueSnapshots() {
		assert.Empty(t, q.Pending)
		assert.Empty(t, q.Queued)
	}
}

func TestMutualPaymentsCreditingModes(t *testing.T) {
	// Two agents owing each other the same amount, RTGS only. The crediting
	// mode decides whether an inflow can cascade within the tick; it never
	// conjures the first settlement, which needs real liquidity.
	build := func(deferred bool, seed int64) *Engine {
		cfg := baseConfig(
			[]domain.AgentConfig{{Name: "A", Balance: seed}, {Name: "B"}},
			[]domain.ArrivalConfig{
				{Tick: 0, Sender: "A", Receiver: "B", Amount: 10000},
				{Tick: 0, Sender: "B", Receiver: "A", Amount: 10000},
			},
		)
		cfg.BilateralNetting = false
		cfg.MultilateralNetting = false
		cfg.DeferredCrediting = deferred
		return newEngine(t, cfg, policy.SubmitAll{})
	}

	t.Run("zero liquidity gridlocks in either mode", func(t *testing.T) {
		for _, deferred := range []bool{true, false} {
			e := build(deferred, 0)
			evs, err := e.AdvanceTick()
			assert.NoError(t, err)
			assert.Empty(t, eventsOfType(evs, domain.EventSettledImmediate))
			assert.Empty(t, eventsOfType(evs, domain.EventSettledRelease))
			assert.Len(t, eventsOfType(evs, domain.EventQueued), 2)
		}
	})

	t.Run("immediate crediting cascades within the tick", func(t *testing.T) {
		e := build(false, 10000)
		evs, err := e.AdvanceTick()
		assert.NoError(t, err)

		// A's payment clears first; its credit immediately funds B's.
		assert.Len(t, eventsOfType(evs, domain.EventSettledImmediate), 2)
		assert.Empty(t, eventsOfType(evs, domain.EventQueued))

		snaps := e.AgentSnapshots()
		assert.Equal(t, int64(10000), snaps[0].Balance)
		assert.Equal(t, int64(0), snaps[1].Balance)
	})

	t.Run("deferred crediting holds the cascade to the next tick", func(t *testing.T) {
		e := build(true, 10000)
		evs, err := e.AdvanceTick()
		assert.NoError(t, err)
		assert.Len(t, eventsOfType(evs, domain.EventSettledImmediate), 1)
		assert.Empty(t, eventsOfType(evs, domain.EventSettledRelease))
		assert.Len(t, eventsOfType(evs, domain.EventQueued), 1)

		evs, err = e.AdvanceTick()
		assert.NoError(t, err)
		assert.Len(t, eventsOfType(evs, domain.EventSettledRelease), 1)

		snaps := e.AgentSnapshots()
		assert.Equal(t, int64(10000), snaps[0].Balance)
		assert.Equal(t, int64(0), snaps[1].Balance)
	})

	t.Run("bilateral netting breaks the deadlock either mode misses", func(t *testing.T) {
		for _, deferred := range []bool{true, false} {
			cfg := baseConfig(
				[]domain.AgentConfig{{Name: "A"}, {Name: "B"}},
				[]domain.ArrivalConfig{
					{Tick: 0, Sender: "A", Receiver: "B", Amount: 10000},
					{Tick: 0, Sender: "B", Receiver: "A", Amount: 10000},
				},
			)
			cfg.DeferredCrediting = deferred
			e := newEngine(t, cfg, policy.SubmitAll{})

			evs, err := e.AdvanceTick()
			assert.NoError(t, err)
			assert.Len(t, eventsOfType(evs, domain.EventSettledBilateral), 1)
			for _, q := range e.QueueSnapshots() {
				assert.Empty(t, q.Queued)
			}
		}
	})
}

func TestQueueReleaseAfterInflow(t *testing.T) {
	// alpha cannot pay at tick 0. At tick 1 beta's payment lands first in
	// RTGS, and the release pass clears alpha's queued obligation in the
	// same tick.
	cfg := baseConfig(
		[]domain.AgentConfig{
			{Name: "alpha"},
			{Name: "beta", Balance: 500},
		},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "alpha", Receiver: "beta", Amount: 500},
			{Tick: 1, Sender: "beta", Receiver: "alpha", Amount: 500},
		},
	)
	e := newEngine(t, cfg, policy.SubmitAll{})

	evs, err := e.AdvanceTick()
	assert.NoError(t, err)
	assert.Len(t, eventsOfType(evs, domain.EventQueued), 1)
	assert.Empty(t, eventsOfType(evs, domain.EventSettledImmediate))

	evs, err = e.AdvanceTick()
	assert.NoError(t, err)
	assert.Len(t, eventsOfType(evs, domain.EventSettledImmediate), 1)
	released := eventsOfType(evs, domain.EventSettledRelease)
	if assert.Len(t, released, 1) {
		assert.Equal(t, domain.TxID(1), released[0].Tx)
	}

	snaps := e.AgentSnapshots()
	assert.Equal(t, int64(0), snaps[0].Balance)
	assert.Equal(t, int64(500), snaps[1].Balance)
}

func TestOverdueAndDeadlineMiss(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{{Name: "A"}, {Name: "B", Balance: 1}},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 100000, DeadlineAfter: 2},
		},
	)
	e := newEngine(t, cfg, policy.SubmitAll{})

	// Ticks 0..2: queued but not yet overdue, the deadline tick included.
	for i := 0; i < 3; i++ {
		evs, err := e.AdvanceTick()
		assert.NoError(t, err)
		assert.Empty(t, eventsOfType(evs, domain.EventOverdue))
	}

	// Tick 3 is past the deadline: one overdue transition, miss fee charged.
	evs, err := e.AdvanceTick()
	assert.NoError(t, err)
	overdue := eventsOfType(evs, domain.EventOverdue)
	if assert.Len(t, overdue, 1) {
		assert.Equal(t, domain.TxID(1), overdue[0].Tx)
		assert.Equal(t, domain.AgentID(0), overdue[0].Agent)
	}
	assert.Equal(t, cfg.Costs.DeadlineMissFee, e.AgentSnapshots()[0].Costs.DeadlineMiss)

	// The transition happens once; later ticks only accrue delay.
	evs, err = e.AdvanceTick()
	assert.NoError(t, err)
	assert.Empty(t, eventsOfType(evs, domain.EventOverdue))
	assert.Equal(t, cfg.Costs.DeadlineMissFee, e.AgentSnapshots()[0].Costs.DeadlineMiss)
}

func TestThresholdSplitsLargePayment(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{
			{Name: "A", Balance: 600},
			{Name: "B"},
		},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 1000, Divisible: true},
		},
	)
	e := newEngine(t, cfg, policy.Threshold{DeadlineSlack: 2})

	evs, err := e.AdvanceTick()
	assert.NoError(t, err)

	splits := eventsOfType(evs, domain.EventSplit)
	if assert.Len(t, splits, 1) {
		assert.Equal(t, domain.TxID(1), splits[0].Parent)
		assert.Equal(t, []int64{500, 500}, splits[0].Splits)
		assert.Equal(t, []domain.TxID{2, 3}, splits[0].Txs)
	}

	// One half fits the balance, the other waits.
	assert.Len(t, eventsOfType(evs, domain.EventSettledImmediate), 1)
	assert.Len(t, eventsOfType(evs, domain.EventQueued), 1)

	snaps := e.AgentSnapshots()
	assert.Equal(t, int64(100), snaps[0].Balance)
	assert.Equal(t, int64(500), snaps[1].Balance)
	assert.Equal(t, cfg.Costs.SplitFrictionFee, snaps[0].Costs.SplitFric)
}

func TestThresholdPostsCollateral(t *testing.T) {
	// A held payment backs up the queue... it never does under Threshold,
	// so force the shortfall through a submitted-at-deadline payment: the
	// queued amount then exceeds liquidity and the strategic stage posts.
	cfg := baseConfig(
		[]domain.AgentConfig{
			{Name: "A", ExternalPool: 2000, CollateralCapacity: 2000},
			{Name: "B"},
		},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 1500, DeadlineAfter: 1},
		},
	)
	e := newEngine(t, cfg, policy.Threshold{DeadlineSlack: 2, PostStep: 2000})

	// Tick 0: deadline pressure submits, no balance, payment queues.
	evs, err := e.AdvanceTick()
	assert.NoError(t, err)
	assert.Len(t, eventsOfType(evs, domain.EventQueued), 1)

	// Tick 1: the queue backlog triggers a strategic post, and the release
	// pass settles against the fresh collateral headroom.
	evs, err = e.AdvanceTick()
	assert.NoError(t, err)
	posted := eventsOfType(evs, domain.EventCollateralPosted)
	if assert.Len(t, posted, 1) {
		assert.Equal(t, domain.AgentID(0), posted[0].Agent)
		assert.Equal(t, int64(2000), posted[0].Amount)
	}
	assert.Len(t, eventsOfType(evs, domain.EventSettledRelease), 1)

	snaps := e.AgentSnapshots()
	assert.Equal(t, int64(-1500), snaps[0].Balance)
	assert.Equal(t, int64(1500), snaps[1].Balance)
}

func TestDeferredCrediting(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{
			{Name: "A", Balance: 500},
			{Name: "B"},
			{Name: "C"},
		},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 500},
			{Tick: 0, Sender: "B", Receiver: "C", Amount: 400},
		},
	)
	cfg.DeferredCrediting = true
	e := newEngine(t, cfg, policy.SubmitAll{})

	// Tick 0: A pays B, but B's inflow parks until tick end and cannot
	// cascade into B's own payment.
	evs, err := e.AdvanceTick()
	assert.NoError(t, err)
	assert.Len(t, eventsOfType(evs, domain.EventSettledImmediate), 1)
	assert.Len(t, eventsOfType(evs, domain.EventQueued), 1)
	deferred := eventsOfType(evs, domain.EventDeferredCredit)
	if assert.Len(t, deferred, 1) {
		assert.Equal(t, domain.AgentID(1), deferred[0].Agent)
		assert.Equal(t, int64(500), deferred[0].Amount)
	}

	// Tick 1: the landed credit releases B's payment; C's credit parks and
	// lands the same tick.
	evs, err = e.AdvanceTick()
	assert.NoError(t, err)
	assert.Len(t, eventsOfType(evs, domain.EventSettledRelease), 1)
	deferred = eventsOfType(evs, domain.EventDeferredCredit)
	if assert.Len(t, deferred, 1) {
		assert.Equal(t, domain.AgentID(2), deferred[0].Agent)
	}

	snaps := e.AgentSnapshots()
	assert.Equal(t, int64(0), snaps[0].Balance)
	assert.Equal(t, int64(100), snaps[1].Balance)
	assert.Equal(t, int64(400), snaps[2].Balance)
	assert.Equal(t, int64(500), balanceSum(e))
}

func TestDayBoundary(t *testing.T) {
	cfg := baseConfig([]domain.AgentConfig{{Name: "A"}, {Name: "B"}}, nil)
	cfg.Horizon = 4
	cfg.TicksPerDay = 2
	e := newEngine(t, cfg, policy.SubmitAll{})

	evs, err := e.Run(4)
	assert.NoError(t, err)
	assert.True(t, e.Finished())

	closed := eventsOfType(evs, domain.EventDayClosed)
	if assert.Len(t, closed, 2) {
		assert.Equal(t, int64(1), closed[0].Tick)
		assert.Equal(t, int64(1), closed[0].Amount)
		assert.Equal(t, int64(3), closed[1].Tick)
		assert.Equal(t, int64(2), closed[1].Amount)
	}
	assert.Len(t, eventsOfType(evs, domain.EventTickCompleted), 4)
}

func TestEndOfDayPenalty(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{{Name: "A"}, {Name: "B"}},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 100000},
		},
	)
	cfg.Horizon = 2
	cfg.TicksPerDay = 2
	e := newEngine(t, cfg, policy.SubmitAll{})

	_, err := e.Run(2)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Costs.EndOfDayFee, e.AgentSnapshots()[0].Costs.EndOfDay)
	assert.Equal(t, int64(0), e.AgentSnapshots()[1].Costs.EndOfDay)
}

func TestRunStopsAtHorizon(t *testing.T) {
	cfg := baseConfig([]domain.AgentConfig{{Name: "A"}, {Name: "B"}}, nil)
	cfg.Horizon = 3
	e := newEngine(t, cfg, policy.SubmitAll{})

	// Asking for more ticks than remain is not an error.
	evs, err := e.Run(100)
	assert.NoError(t, err)
	assert.True(t, e.Finished())
	assert.Equal(t, int64(3), e.Tick())
	assert.Len(t, eventsOfType(evs, domain.EventTickCompleted), 3)

	_, err = e.AdvanceTick()
	assert.ErrorIs(t, err, apperrors.ErrRunFinished)
}

func TestMalformedDecisionHaltsRun(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{{Name: "A", Balance: 100}, {Name: "B"}},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 50},
		},
	)
	e := newEngine(t, cfg, badPolicy{})

	evs, err := e.AdvanceTick()
	assert.ErrorIs(t, err, apperrors.ErrInvalidDecision)
	assert.Error(t, e.Halted())

	halted := eventsOfType(evs, domain.EventRunHalted)
	if assert.Len(t, halted, 1) {
		assert.Contains(t, halted[0].Reason, "invalid policy decision")
	}

	// A halted run stays halted; the tick counter does not move.
	_, err = e.AdvanceTick()
	assert.ErrorContains(t, err, apperrors.ErrRunHalted.Error())
	assert.Equal(t, int64(0), e.Tick())
}

func TestCheckpointAndChecksum(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{
			{Name: "A", Balance: 5000},
			{Name: "B", Balance: 1000},
		},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 2000},
			{Tick: 1, Sender: "B", Receiver: "A", Amount: 500},
		},
	)
	e := newEngine(t, cfg, policy.SubmitAll{})

	_, err := e.Run(2)
	assert.NoError(t, err)

	cp := e.CheckpointNow()
	assert.Equal(t, int64(2), cp.Tick)
	if assert.Len(t, cp.Agents, 2) {
		assert.Equal(t, int64(3500), cp.Agents[0].Balance)
		assert.Equal(t, int64(2500), cp.Agents[1].Balance)
	}

	sum, err := e.Checksum()
	assert.NoError(t, err)
	assert.Len(t, sum, 64)
}

func TestDeterministicReplay(t *testing.T) {
	cfg := baseConfig(
		[]domain.AgentConfig{
			{Name: "north", Balance: 2000, CreditLimit: 500},
			{Name: "east", ExternalPool: 3000, CollateralCapacity: 3000},
			{Name: "south", Balance: 800},
			{Name: "west"},
		},
		[]domain.ArrivalConfig{
			{Tick: 0, Sender: "north", Receiver: "east", Amount: 1800, Divisible: true},
			{Tick: 0, Sender: "east", Receiver: "south", Amount: 1200, DeadlineAfter: 3},
			{Tick: 1, Sender: "south", Receiver: "west", Amount: 900},
			{Tick: 1, Sender: "west", Receiver: "north", Amount: 900},
			{Tick: 2, Sender: "north", Receiver: "south", Amount: 2500, Divisible: true},
			{Tick: 3, Sender: "east", Receiver: "west", Amount: 400, DeadlineAfter: 2},
		},
	)
	cfg.Horizon = 8
	cfg.TicksPerDay = 4
	cfg.DeferredCrediting = true

	run := func() (*Engine, string) {
		e := newEngine(t, cfg, policy.Threshold{DeadlineSlack: 1, PostStep: 1000})
		_, err := e.Run(8)
		assert.NoError(t, err)
		sum, err := e.Checksum()
		assert.NoError(t, err)
		return e, sum
	}

	e1, sum1 := run()
	e2, sum2 := run()

	assert.Equal(t, sum1, sum2)
	assert.Equal(t, e1.Events().Len(), e2.Events().Len())
	assert.Equal(t, e1.AgentSnapshots(), e2.AgentSnapshots())
}
