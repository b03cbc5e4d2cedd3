package engine

import (
	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

// AgentSnapshot is the queryable view of one agent's state.
type AgentSnapshot struct {
	ID                 domain.AgentID       `json:"id"`
	Name               string               `json:"name"`
	Balance            int64                `json:"balance"`
	CreditLimit        int64                `json:"credit_limit"`
	PostedCollateral   int64                `json:"posted_collateral"`
	CollateralCapacity int64                `json:"collateral_capacity"`
	ExternalPool       int64                `json:"external_pool"`
	EffectiveLiquidity int64                `json:"effective_liquidity"`
	Costs              domain.CostBreakdown `json:"costs"`
}

// QueueSnapshot is the queryable view of one agent's queues.
type QueueSnapshot struct {
	Agent   domain.AgentID       `json:"agent"`
	Pending []domain.Transaction `json:"pending"`
	Queued  []domain.Transaction `json:"queued"`
}

// Checkpoint captures enough state for fast-forward replay: the next tick
// plus every agent snapshot.
type Checkpoint struct {
	Tick   int64           `json:"tick"`
	Agents []AgentSnapshot `json:"agents"`
}

// AgentSnapshots returns every agent's state in id order.
func (e *Engine) AgentSnapshots() []AgentSnapshot {
	out := make([]AgentSnapshot, 0, len(e.cfg.Agents))
	for a := 0; a < len(e.cfg.Agents); a++ {
		id := domain.AgentID(a)
		acct, _ := e.led.Account(id)
		out = append(out, AgentSnapshot{
			ID:                 id,
			Name:               acct.Name,
			Balance:            acct.Balance,
			CreditLimit:        acct.CreditLimit,
			PostedCollateral:   acct.PostedCollateral,
			CollateralCapacity: acct.CollateralCapacity,
			ExternalPool:       acct.ExternalPool,
			EffectiveLiquidity: e.led.EffectiveLiquidity(id),
			Costs:              e.accrual.Totals(id),
		})
	}
	return out
}

// AgentSnapshot returns one agent's state.
func (e *Engine) AgentSnapshot(id domain.AgentID) (AgentSnapshot, error) {
	if int(id) < 0 || int(id) >= len(e.cfg.Agents) {
		return AgentSnapshot{}, errors.ErrAgentNotFound
	}
	return e.AgentSnapshots()[id], nil
}

// QueueSnapshots returns every agent's queues in id order, transactions
// copied in queue order.
func (e *Engine) QueueSnapshots() []QueueSnapshot {
	out := make([]QueueSnapshot, 0, len(e.cfg.Agents))
	for a := 0; a < len(e.cfg.Agents); a++ {
		id := domain.AgentID(a)
		qs := QueueSnapshot{Agent: id}
		for _, txID := range e.store.Pre(id) {
			if tx, err := e.store.Tx(txID); err == nil {
				qs.Pending = append(qs.Pending, *tx)
			}
		}
		for _, txID := range e.store.Post(id) {
			if tx, err := e.store.Tx(txID); err == nil {
				qs.Queued = append(qs.Queued, *tx)
			}
		}
		out = append(out, qs)
	}
	return out
}

// Transaction returns a copy of one transaction.
func (e *Engine) Transaction(id domain.TxID) (domain.Transaction, error) {
	tx, err := e.store.Tx(id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// CheckpointNow captures the current replay checkpoint.
func (e *Engine) CheckpointNow() Checkpoint {
	return Checkpoint{Tick: e.tick, Agents: e.AgentSnapshots()}
}

// Checksum returns the event-log checksum, the determinism witness for the
// whole run so far.
func (e *Engine) Checksum() (string, error) {
	return e.log.Checksum()
}
