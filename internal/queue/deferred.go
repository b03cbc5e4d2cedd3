package queue

import (
	"sort"

	"rtgsim/internal/domain"
)

// DeferredCredits batches receiver credits within a tick when deferred
// crediting is on. Totals accumulate per agent and drain in agent-id order
// at tick end, so received funds become usable only in the following tick.
type DeferredCredits struct {
	pending map[domain.AgentID]int64
	total   int64
}

// NewDeferredCredits builds an empty accumulator.
func NewDeferredCredits() *DeferredCredits {
	return &DeferredCredits{pending: make(map[domain.AgentID]int64)}
}

// Add parks a credit for an agent.
func (d *DeferredCredits) Add(agent domain.AgentID, amount int64) {
	d.pending[agent] += amount
	d.total += amount
}

// Total is the sum of all parked credits; the conservation check counts it
// alongside ledger balances.
func (d *DeferredCredits) Total() int64 {
	return d.total
}

// Drain returns the parked credits sorted by agent id and resets the
// accumulator.
func (d *DeferredCredits) Drain() []domain.BalanceDelta {
	if len(d.pending) == 0 {
		return nil
	}
	agents := make([]domain.AgentID, 0, len(d.pending))
	for a := range d.pending {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i] < agents[j] })

	out := make([]domain.BalanceDelta, 0, len(agents))
	for _, a := range agents {
		out = append(out, domain.BalanceDelta{Agent: a, Delta: d.pending[a]})
	}
	d.pending = make(map[domain.AgentID]int64)
	d.total = 0
	return out
}
