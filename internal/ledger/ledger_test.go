package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

func twoAgents() *Ledger {
	return New([]domain.AgentConfig{
		{Name: "Bank_A", Balance: 10000, CreditLimit: 5000},
		{Name: "Bank_B", Balance: 2000, PostedCollateral: 1000, ExternalPool: 4000, CollateralCapacity: 3000},
	})
}

func TestEffectiveLiquidity(t *testing.T) {
	l := twoAgents()

	assert.Equal(t, int64(15000), l.EffectiveLiquidity(0))
	assert.Equal(t, int64(3000), l.EffectiveLiquidity(1))
}

func TestApplyDeltas(t *testing.T) {
	t.Run("moves balances atomically", func(t *testing.T) {
		l := twoAgents()
		err := l.ApplyDeltas(0, domain.PhaseRTGS, []domain.BalanceDelta{
			{Agent: 0, Delta: -3000},
			{Agent: 1, Delta: 3000},
		})
		assert.NoError(t, err)

		a, _ := l.Account(0)
		b, _ := l.Account(1)
		assert.Equal(t, int64(7000), a.Balance)
		assert.Equal(t, int64(5000), b.Balance)
	})

	t.Run("rejects non-zero sum", func(t *testing.T) {
		l := twoAgents()
		err := l.ApplyDeltas(3, domain.PhaseRTGS, []domain.BalanceDelta{
			{Agent: 0, Delta: -100},
			{Agent: 1, Delta: 99},
		})
		assert.True(t, errors.IsInvariantViolation(err))

		a, _ := l.Account(0)
		assert.Equal(t, int64(10000), a.Balance, "failed commit must not move funds")
	})

	t.Run("rejects liquidity breach without partial apply", func(t *testing.T) {
		l := twoAgents()
		err := l.ApplyDeltas(0, domain.PhaseRTGS, []domain.BalanceDelta{
			{Agent: 1, Delta: -4000},
			{Agent: 0, Delta: 4000},
		})
		assert.True(t, errors.IsInvariantViolation(err))

		a, _ := l.Account(0)
		b, _ := l.Account(1)
		assert.Equal(t, int64(10000), a.Balance)
		assert.Equal(t, int64(2000), b.Balance)
	})

	t.Run("allows drawing to the exact floor", func(t *testing.T) {
		l := twoAgents()
		err := l.ApplyDeltas(0, domain.PhaseRTGS, []domain.BalanceDelta{
			{Agent: 0, Delta: -15000},
			{Agent: 1, Delta: 15000},
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(0), l.EffectiveLiquidity(0))
	})

	t.Run("unknown agent", func(t *testing.T) {
		l := twoAgents()
		err := l.ApplyDeltas(0, domain.PhaseRTGS, []domain.BalanceDelta{{Agent: 9, Delta: 0}})
		assert.ErrorIs(t, err, errors.ErrAgentNotFound)
	})
}

func TestDebitAndCredit(t *testing.T) {
	l := twoAgents()

	err := l.Debit(1, domain.PhaseRTGS, 0, 12000)
	assert.NoError(t, err)
	a, _ := l.Account(0)
	assert.Equal(t, int64(-2000), a.Balance)

	err = l.Debit(1, domain.PhaseRTGS, 0, 4000)
	assert.True(t, errors.IsInvariantViolation(err), "debit past the floor must refuse")

	l.Credit(0, 12000)
	a, _ = l.Account(0)
	assert.Equal(t, int64(10000), a.Balance)
}

func TestCollateralMoves(t *testing.T) {
	l := twoAgents()

	t.Run("post within pool and capacity", func(t *testing.T) {
		assert.True(t, l.PostCollateral(1, 2000))
		b, _ := l.Account(1)
		assert.Equal(t, int64(3000), b.PostedCollateral)
		assert.Equal(t, int64(2000), b.ExternalPool)
	})

	t.Run("post over capacity refused", func(t *testing.T) {
		assert.False(t, l.PostCollateral(1, 1000))
	})

	t.Run("post over pool refused", func(t *testing.T) {
		assert.False(t, l.PostCollateral(0, 1))
	})

	t.Run("withdraw returns to pool", func(t *testing.T) {
		assert.True(t, l.WithdrawCollateral(1, 3000))
		b, _ := l.Account(1)
		assert.Equal(t, int64(0), b.PostedCollateral)
		assert.Equal(t, int64(5000), b.ExternalPool)
	})

	t.Run("withdraw below liquidity floor refused", func(t *testing.T) {
		l2 := New([]domain.AgentConfig{{Name: "X", Balance: 0, PostedCollateral: 500}})
		assert.NoError(t, l2.Debit(0, domain.PhaseRTGS, 0, 500))
		assert.False(t, l2.WithdrawCollateral(0, 500), "balance is -500, collateral is load-bearing")
	})
}

func TestVerify(t *testing.T) {
	l := twoAgents()

	assert.NoError(t, l.Verify(0, domain.PhaseInit, 0))

	// A deferred debit keeps conservation only when the parked total is
	// reported alongside.
	assert.NoError(t, l.Debit(0, domain.PhaseRTGS, 0, 4000))
	assert.Error(t, l.Verify(0, domain.PhaseRTGS, 0))
	assert.NoError(t, l.Verify(0, domain.PhaseRTGS, 4000))

	l.Credit(1, 4000)
	assert.NoError(t, l.Verify(0, domain.PhaseDeferredCredit, 0))
}
