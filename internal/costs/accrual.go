// ==============================================================================
// COST ACCRUAL - internal/costs/accrual.go
// ==============================================================================
package costs

import (
	"rtgsim/internal/domain"
	"rtgsim/internal/eventlog"
	"rtgsim/internal/ledger"
	"rtgsim/internal/queue"
)

// Accrual computes per-agent, per-tick costs. Rates are basis points per
// tick applied with integer division; costs are tracked outside balances so
// settlement conservation is unaffected.
type Accrual struct {
	cfg    domain.CostConfig
	led    *ledger.Ledger
	store  *queue.Store
	log    *eventlog.Log
	// pending holds one-time charges (split friction) raised earlier in
	// the tick, drained into the agent's accrual event.
	pending []domain.CostBreakdown
	totals  []domain.CostBreakdown
}

// NewAccrual builds the accrual tracker for n agents.
func NewAccrual(cfg domain.CostConfig, led *ledger.Ledger, store *queue.Store, log *eventlog.Log, n int) *Accrual {
	return &Accrual{
		cfg:     cfg,
		led:     led,
		store:   store,
		log:     log,
		pending: make([]domain.CostBreakdown, n),
		totals:  make([]domain.CostBreakdown, n),
	}
}

// ChargeSplit raises the one-time split friction fee for an agent.
func (a *Accrual) ChargeSplit(agent domain.AgentID) {
	a.pending[agent].SplitFric += a.cfg.SplitFrictionFee
}

func rateCost(amount, bps int64) int64 {
	return amount * bps / 10000
}

// Run accrues this tick's costs for every agent in id order and emits one
// event per agent with a non-zero accrual.
func (a *Accrual) Run(tick int64) {
	delay := make([]int64, len(a.totals))
	miss := make([]int64, len(a.totals))
	for _, tx := range a.store.Outstanding() {
		cost := rateCost(tx.Amount, a.cfg.DelayRateBps)
		if tx.Status == domain.StatusOverdue {
			cost *= a.cfg.OverdueMultiplier
			if tx.OverdueTick == tick {
				miss[tx.Sender] += a.cfg.DeadlineMissFee
			}
		}
		delay[tx.Sender] += cost
	}

	for i := range a.totals {
		id := domain.AgentID(i)
		acct, _ := a.led.Account(id)

		bd := a.pending[i]
		a.pending[i] = domain.CostBreakdown{}
		bd.Overdraft = rateCost(a.led.Overdrawn(id), a.cfg.OverdraftRateBps)
		bd.Delay = delay[i]
		bd.DeadlineMiss += miss[i]
		bd.Collateral = rateCost(acct.PostedCollateral, a.cfg.CollateralRateBps)

		if bd.Total() == 0 {
			continue
		}
		a.add(id, bd)

		ev := domain.NewEvent(tick, domain.PhaseCostAccrual, domain.EventCostAccrued)
		ev.Agent = id
		ev.Amount = bd.Total()
		evbd := bd
		ev.Costs = &evbd
		a.log.Append(ev)
	}
}

// EndOfDay charges the one-time unsettled penalty per outstanding
// transaction at a day boundary.
func (a *Accrual) EndOfDay(tick int64) {
	if a.cfg.EndOfDayFee == 0 {
		return
	}
	counts := make([]int64, len(a.totals))
	for _, tx := range a.store.Outstanding() {
		counts[tx.Sender]++
	}
	for i, n := range counts {
		if n == 0 {
			continue
		}
		id := domain.AgentID(i)
		bd := domain.CostBreakdown{EndOfDay: n * a.cfg.EndOfDayFee}
		a.add(id, bd)

		ev := domain.NewEvent(tick, domain.PhaseEndOfDay, domain.EventCostAccrued)
		ev.Agent = id
		ev.Amount = bd.EndOfDay
		ev.Costs = &bd
		a.log.Append(ev)
	}
}

func (a *Accrual) add(id domain.AgentID, bd domain.CostBreakdown) {
	t := &a.totals[id]
	t.Overdraft += bd.Overdraft
	t.Delay += bd.Delay
	t.Collateral += bd.Collateral
	t.DeadlineMiss += bd.DeadlineMiss
	t.EndOfDay += bd.EndOfDay
	t.SplitFric += bd.SplitFric
}

// Totals returns the cumulative breakdown for one agent.
func (a *Accrual) Totals(id domain.AgentID) domain.CostBreakdown {
	return a.totals[id]
}
