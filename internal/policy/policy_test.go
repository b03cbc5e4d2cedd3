package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

func pendingTxs() []*domain.Transaction {
	return []*domain.Transaction{
		{ID: 1, Sender: 0, Receiver: 1, Amount: 1000, Divisible: true},
		{ID: 2, Sender: 0, Receiver: 2, Amount: 500},
	}
}

func TestValidateDecisions(t *testing.T) {
	t.Run("accepts a well-formed batch", func(t *testing.T) {
		err := ValidateDecisions(pendingTxs(), []Decision{
			{Tx: 1, Action: ActionSplit, SplitAmounts: []int64{400, 600}},
			{Tx: 2, Action: ActionHold},
		})
		assert.NoError(t, err)
	})

	cases := []struct {
		name      string
		decisions []Decision
	}{
		{"unknown transaction", []Decision{{Tx: 9, Action: ActionSubmit}}},
		{"duplicate decision", []Decision{{Tx: 2, Action: ActionHold}, {Tx: 2, Action: ActionSubmit}}},
		{"unknown action", []Decision{{Tx: 1, Action: "defer"}}},
		{"split amounts on submit", []Decision{{Tx: 2, Action: ActionSubmit, SplitAmounts: []int64{500}}}},
		{"split of indivisible", []Decision{{Tx: 2, Action: ActionSplit, SplitAmounts: []int64{250, 250}}}},
		{"split with one part", []Decision{{Tx: 1, Action: ActionSplit, SplitAmounts: []int64{1000}}}},
		{"split with zero part", []Decision{{Tx: 1, Action: ActionSplit, SplitAmounts: []int64{0, 1000}}}},
		{"split wrong sum", []Decision{{Tx: 1, Action: ActionSplit, SplitAmounts: []int64{300, 300}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDecisions(pendingTxs(), tc.decisions)
			assert.ErrorIs(t, err, errors.ErrInvalidDecision)
		})
	}
}

func TestValidateCollateral(t *testing.T) {
	assert.NoError(t, ValidateCollateral(CollateralDecision{Action: CollateralHold}))
	assert.NoError(t, ValidateCollateral(CollateralDecision{Action: CollateralPost, Amount: 10}))
	assert.ErrorIs(t, ValidateCollateral(CollateralDecision{Action: CollateralPost, Amount: 0}), errors.ErrInvalidDecision)
	assert.ErrorIs(t, ValidateCollateral(CollateralDecision{Action: CollateralWithdraw, Amount: -5}), errors.ErrInvalidDecision)
	assert.ErrorIs(t, ValidateCollateral(CollateralDecision{Action: "pledge", Amount: 5}), errors.ErrInvalidDecision)
}

func TestSubmitAll(t *testing.T) {
	p := SubmitAll{}
	pending := []domain.Transaction{
		{ID: 1, Amount: 100},
		{ID: 2, Amount: 200},
	}
	out := p.DecidePayments(AgentView{}, pending)
	assert.Len(t, out, 2)
	for _, d := range out {
		assert.Equal(t, ActionSubmit, d.Action)
	}
	assert.Equal(t, CollateralHold, p.DecideCollateral(AgentView{}, StageStrategic).Action)
}

func TestThresholdPayments(t *testing.T) {
	p := Threshold{DeadlineSlack: 2}
	view := AgentView{Tick: 10, EffectiveLiquidity: 1000}
	pending := []domain.Transaction{
		{ID: 1, Amount: 800, DeadlineTick: 100},                  // affordable
		{ID: 2, Amount: 500, DeadlineTick: 100},                  // not affordable after tx1
		{ID: 3, Amount: 500, DeadlineTick: 11},                   // deadline pressure
		{ID: 4, Amount: 600, DeadlineTick: 100, Divisible: true}, // split
	}

	out := p.DecidePayments(view, pending)
	assert.Equal(t, []Decision{
		{Tx: 1, Action: ActionSubmit},
		{Tx: 2, Action: ActionHold},
		{Tx: 3, Action: ActionSubmit},
		{Tx: 4, Action: ActionSplit, SplitAmounts: []int64{300, 300}},
	}, out)
}

func TestThresholdCollateral(t *testing.T) {
	p := Threshold{PostStep: 400}

	t.Run("posts under queue pressure", func(t *testing.T) {
		d := p.DecideCollateral(AgentView{
			QueuedOutgoing:     2000,
			EffectiveLiquidity: 500,
			ExternalPool:       300,
		}, StageStrategic)
		assert.Equal(t, CollateralPost, d.Action)
		assert.Equal(t, int64(300), d.Amount, "post caps at the pool")
	})

	t.Run("withdraws when the queue is clear", func(t *testing.T) {
		d := p.DecideCollateral(AgentView{PostedCollateral: 700}, StageEndOfTick)
		assert.Equal(t, CollateralWithdraw, d.Action)
		assert.Equal(t, int64(700), d.Amount)
	})

	t.Run("holds otherwise", func(t *testing.T) {
		d := p.DecideCollateral(AgentView{QueuedOutgoing: 100, EffectiveLiquidity: 500}, StageStrategic)
		assert.Equal(t, CollateralHold, d.Action)
	})
}
