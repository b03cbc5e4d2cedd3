// ==============================================================================
// LEDGER - internal/ledger/ledger.go
// ==============================================================================
package ledger

import (
	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

// Account is one agent's monetary state. Every field is integer minor units.
type Account struct {
	Name               string
	Balance            int64
	CreditLimit        int64
	PostedCollateral   int64
	CollateralCapacity int64 // 0 means no explicit bound; the pool limits posting
	ExternalPool       int64
}

// Ledger holds all agent accounts, indexed by dense AgentID. It is mutated
// only by the phase currently executing and must satisfy conservation and
// non-negative effective liquidity after every commit.
type Ledger struct {
	accounts []Account
	baseline int64 // sum of balances at init, the conservation reference
}

// New builds a ledger from agent configuration, in configuration order.
func New(agents []domain.AgentConfig) *Ledger {
	l := &Ledger{accounts: make([]Account, len(agents))}
	for i, a := range agents {
		l.accounts[i] = Account{
			Name:               a.Name,
			Balance:            a.Balance,
			CreditLimit:        a.CreditLimit,
			PostedCollateral:   a.PostedCollateral,
			CollateralCapacity: a.CollateralCapacity,
			ExternalPool:       a.ExternalPool,
		}
		l.baseline += a.Balance
	}
	return l
}

// Size returns the number of accounts.
func (l *Ledger) Size() int {
	return len(l.accounts)
}

// Account returns a copy of the account for snapshots.
func (l *Ledger) Account(id domain.AgentID) (Account, error) {
	if int(id) < 0 || int(id) >= len(l.accounts) {
		return Account{}, errors.ErrAgentNotFound
	}
	return l.accounts[id], nil
}

// EffectiveLiquidity is balance plus credit headroom plus posted collateral.
// A settlement may draw the balance down to exactly -(credit+collateral).
func (l *Ledger) EffectiveLiquidity(id domain.AgentID) int64 {
	a := &l.accounts[id]
	return a.Balance + a.CreditLimit + a.PostedCollateral
}

// Overdrawn returns the amount by which the balance is below zero.
func (l *Ledger) Overdrawn(id domain.AgentID) int64 {
	if b := l.accounts[id].Balance; b < 0 {
		return -b
	}
	return 0
}

// ApplyDeltas commits a settlement's balance movements atomically. The set
// must sum to zero and may not drive any participant's effective liquidity
// negative; on any failure nothing is applied and the violation is returned
// for the engine to halt on.
func (l *Ledger) ApplyDeltas(tick int64, phase domain.Phase, deltas []domain.BalanceDelta) error {
	var sum int64
	for _, d := range deltas {
		if int(d.Agent) < 0 || int(d.Agent) >= len(l.accounts) {
			return errors.ErrAgentNotFound
		}
		sum += d.Delta
	}
	if sum != 0 {
		return errors.NewInvariantViolation(tick, phase.String(), "settlement deltas sum to %d, want 0", sum)
	}
	for _, d := range deltas {
		a := &l.accounts[d.Agent]
		if a.Balance+d.Delta+a.CreditLimit+a.PostedCollateral < 0 {
			return errors.NewInvariantViolation(tick, phase.String(),
				"agent %s would exceed liquidity: balance %d delta %d credit %d collateral %d",
				a.Name, a.Balance, d.Delta, a.CreditLimit, a.PostedCollateral)
		}
	}
	for _, d := range deltas {
		l.accounts[d.Agent].Balance += d.Delta
	}
	return nil
}

// Credit applies a unilateral credit. Used only by deferred-credit
// application, where the matching debit was committed earlier in the tick.
func (l *Ledger) Credit(id domain.AgentID, amount int64) {
	l.accounts[id].Balance += amount
}

// Debit applies a unilateral debit for deferred-crediting settlement, where
// the matching credit parks in the accumulator until tick end. Refuses to
// breach the liquidity floor.
func (l *Ledger) Debit(tick int64, phase domain.Phase, id domain.AgentID, amount int64) error {
	a := &l.accounts[id]
	if a.Balance-amount+a.CreditLimit+a.PostedCollateral < 0 {
		return errors.NewInvariantViolation(tick, phase.String(),
			"agent %s debit %d would exceed liquidity", a.Name, amount)
	}
	a.Balance -= amount
	return nil
}

// PostCollateral pledges funds from the external pool as collateral.
// Infeasible requests (empty pool, capacity exceeded) report false without
// state change; they are policy misjudgement, not input errors.
func (l *Ledger) PostCollateral(id domain.AgentID, amount int64) bool {
	a := &l.accounts[id]
	if amount <= 0 || amount > a.ExternalPool {
		return false
	}
	if a.CollateralCapacity > 0 && a.PostedCollateral+amount > a.CollateralCapacity {
		return false
	}
	a.ExternalPool -= amount
	a.PostedCollateral += amount
	return true
}

// WithdrawCollateral returns posted collateral to the external pool. Refused
// when the withdrawal would leave effective liquidity negative.
func (l *Ledger) WithdrawCollateral(id domain.AgentID, amount int64) bool {
	a := &l.accounts[id]
	if amount <= 0 || amount > a.PostedCollateral {
		return false
	}
	if a.Balance+a.CreditLimit+a.PostedCollateral-amount < 0 {
		return false
	}
	a.PostedCollateral -= amount
	a.ExternalPool += amount
	return true
}

// Verify checks the global ledger invariants: conservation against the
// baseline (accounting for credits still parked in the deferred accumulator)
// and non-negative effective liquidity for every agent.
func (l *Ledger) Verify(tick int64, phase domain.Phase, pendingDeferred int64) error {
	var sum int64
	for i := range l.accounts {
		a := &l.accounts[i]
		if a.Balance+a.CreditLimit+a.PostedCollateral < 0 {
			return errors.NewInvariantViolation(tick, phase.String(),
				"agent %s has negative effective liquidity", a.Name)
		}
		sum += a.Balance
	}
	if sum+pendingDeferred != l.baseline {
		return errors.NewInvariantViolation(tick, phase.String(),
			"conservation broken: balances %d + deferred %d != baseline %d", sum, pendingDeferred, l.baseline)
	}
	return nil
}
