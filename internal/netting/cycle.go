// ==============================================================================
// CYCLE (MULTILATERAL) NETTING - internal/netting/cycle.go
// ==============================================================================
package netting

import (
	"sort"

	"rtgsim/internal/domain"
	"rtgsim/internal/eventlog"
	"rtgsim/internal/ledger"
	"rtgsim/internal/queue"
	"rtgsim/pkg/logger"
)

// candidate is one closed payment chain whose simultaneous settlement is
// being considered. Fields are fixed at discovery; feasibility is re-checked
// against the live ledger at commit time.
type candidate struct {
	agents        []domain.AgentID // cycle order, starting at the smallest id
	edges         []*edge
	totalValue    int64
	maxNetOutflow int64
	netPos        []domain.BalanceDelta // sorted by agent
	txIDs         []domain.TxID         // sorted, for conflict checks and tie-breaks
}

// Cycle resolves gridlock bilateral netting cannot: closed chains across
// three or more agents settled atomically.
type Cycle struct {
	led     *ledger.Ledger
	store   *queue.Store
	log     *eventlog.Log
	deferred *queue.DeferredCredits
	deferOn bool
	maxLen  int
	ranking string
	logger  logger.Logger
}

// NewCycle wires the multilateral netting layer. maxLen bounds the
// exhaustive search; ranking is domain.RankThroughput or domain.RankLiquidity.
func NewCycle(led *ledger.Ledger, store *queue.Store, log *eventlog.Log, deferred *queue.DeferredCredits, deferOn bool, maxLen int, ranking string, lg logger.Logger) *Cycle {
	return &Cycle{led: led, store: store, log: log, deferred: deferred, deferOn: deferOn, maxLen: maxLen, ranking: ranking, logger: lg}
}

// Run executes one multilateral netting phase: build the aggregated graph,
// decompose it, enumerate bounded cycles, rank them, and commit the
// feasible non-conflicting ones. A single compaction removes everything
// settled.
func (c *Cycle) Run(tick int64) (settled, removed int, err error) {
	txs := c.store.Outstanding()
	if len(txs) == 0 {
		return 0, 0, nil
	}

	g := buildGraph(txs)
	comps := g.components()
	if len(comps) == 0 {
		return 0, 0, nil
	}

	var candidates []*candidate
	for _, comp := range comps {
		candidates = append(candidates, c.enumerate(g, comp)...)
	}
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	c.rank(candidates)

	consumed := make(map[domain.TxID]bool)
	for _, cand := range candidates {
		conflict := false
		for _, id := range cand.txIDs {
			if consumed[id] {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		if short, at := c.infeasibleAt(cand); short > 0 {
			ev := domain.NewEvent(tick, domain.PhaseMultilateral, domain.EventNettingSkipped)
			ev.Agent = at
			ev.AgentSet = append([]domain.AgentID(nil), cand.agents...)
			ev.Amount = short
			ev.Reason = "net debtor short of liquidity"
			c.log.Append(ev)
			continue
		}

		n, cerr := c.commit(tick, cand)
		if cerr != nil {
			return settled, 0, cerr
		}
		settled += n
		for _, id := range cand.txIDs {
			consumed[id] = true
		}
	}

	removed = c.store.CompactPost()
	return settled, removed, nil
}

// enumerate finds cycle candidates inside one component: length-3 cycles by
// neighbor-set intersection per edge, longer ones by a length-bounded search
// with sorted traversal. Every cycle is recorded once, rotated to start at
// its smallest agent.
func (c *Cycle) enumerate(g *graph, comp []domain.AgentID) []*candidate {
	inComp := make(map[domain.AgentID]bool, len(comp))
	for _, a := range comp {
		inComp[a] = true
	}

	var out []*candidate

	// Triangles: for edge u->v, any w with v->w and w->u closes a cycle.
	// Restricting to u < v and u < w keeps each triangle unique.
	for _, u := range comp {
		for _, uv := range g.succ[u] {
			v := uv.to
			if !inComp[v] || v <= u {
				continue
			}
			for _, vw := range g.succ[v] {
				w := vw.to
				if !inComp[w] || w <= u || w == v {
					continue
				}
				if g.edgeBetween(w, u) == nil {
					continue
				}
				if cand := c.build(g, []domain.AgentID{u, v, w}); cand != nil {
					out = append(out, cand)
				}
			}
		}
	}

	// Longer cycles only exist in components of at least four nodes.
	if len(comp) >= 4 && c.maxLen >= 4 {
		for _, s := range comp {
			path := []domain.AgentID{s}
			onPath := map[domain.AgentID]bool{s: true}
			c.search(g, inComp, s, path, onPath, &out)
		}
	}
	return out
}

// search extends path by sorted successor traversal. Only nodes greater
// than the start may join, so each cycle is discovered exactly once, from
// its smallest agent. Cycles of length 3 are left to the triangle pass.
func (c *Cycle) search(g *graph, inComp map[domain.AgentID]bool, start domain.AgentID, path []domain.AgentID, onPath map[domain.AgentID]bool, out *[]*candidate) {
	last := path[len(path)-1]
	for _, e := range g.succ[last] {
		w := e.to
		if w == start && len(path) >= 4 {
			if cand := c.build(g, append([]domain.AgentID(nil), path...)); cand != nil {
				*out = append(*out, cand)
			}
			continue
		}
		if !inComp[w] || w <= start || onPath[w] || len(path) >= c.maxLen {
			continue
		}
		onPath[w] = true
		c.search(g, inComp, start, append(path, w), onPath, out)
		delete(onPath, w)
	}
}

// build assembles a candidate from a node sequence, resolving the edges and
// computing net positions.
func (c *Cycle) build(g *graph, agents []domain.AgentID) *candidate {
	cand := &candidate{agents: agents}
	net := make(map[domain.AgentID]int64, len(agents))

	for i, from := range agents {
		to := agents[(i+1)%len(agents)]
		e := g.edgeBetween(from, to)
		if e == nil {
			return nil
		}
		cand.edges = append(cand.edges, e)
		cand.totalValue += e.amount
		net[from] -= e.amount
		net[to] += e.amount
		for _, tx := range e.txs {
			cand.txIDs = append(cand.txIDs, tx.ID)
		}
	}

	members := append([]domain.AgentID(nil), agents...)
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	for _, a := range members {
		cand.netPos = append(cand.netPos, domain.BalanceDelta{Agent: a, Delta: net[a]})
		if -net[a] > cand.maxNetOutflow {
			cand.maxNetOutflow = -net[a]
		}
	}
	sort.Slice(cand.txIDs, func(i, j int) bool { return cand.txIDs[i] < cand.txIDs[j] })
	return cand
}

// rank sorts candidates by the configured total order so selection is
// reproducible regardless of discovery order.
func (c *Cycle) rank(cands []*candidate) {
	liquidity := c.ranking == domain.RankLiquidity
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if liquidity {
			if a.maxNetOutflow != b.maxNetOutflow {
				return a.maxNetOutflow < b.maxNetOutflow
			}
			if a.totalValue != b.totalValue {
				return a.totalValue > b.totalValue
			}
		} else {
			if a.totalValue != b.totalValue {
				return a.totalValue > b.totalValue
			}
			if a.maxNetOutflow != b.maxNetOutflow {
				return a.maxNetOutflow < b.maxNetOutflow
			}
		}
		if cmp := compareAgents(a.agents, b.agents); cmp != 0 {
			return cmp < 0
		}
		return compareTxs(a.txIDs, b.txIDs) < 0
	})
}

// infeasibleAt returns the first uncovered shortfall and its agent, checked
// against current effective liquidity. Zero means feasible.
func (c *Cycle) infeasibleAt(cand *candidate) (int64, domain.AgentID) {
	for _, np := range cand.netPos {
		if np.Delta < 0 && c.led.EffectiveLiquidity(np.Agent) < -np.Delta {
			return -np.Delta - c.led.EffectiveLiquidity(np.Agent), np.Agent
		}
	}
	return 0, domain.NoAgent
}

// commit settles every constituent of the cycle atomically and emits one
// self-contained event.
func (c *Cycle) commit(tick int64, cand *candidate) (int, error) {
	ev := domain.NewEvent(tick, domain.PhaseMultilateral, domain.EventSettledMultilateral)
	ev.AgentSet = append([]domain.AgentID(nil), cand.agents...)
	ev.Amount = cand.totalValue

	if c.deferOn {
		// Debit net debtors now, park net creditors' inflows.
		for _, np := range cand.netPos {
			if np.Delta < 0 {
				if err := c.led.Debit(tick, domain.PhaseMultilateral, np.Agent, -np.Delta); err != nil {
					return 0, err
				}
				ev.Deltas = append(ev.Deltas, np)
			} else if np.Delta > 0 {
				c.deferred.Add(np.Agent, np.Delta)
			}
		}
	} else {
		var deltas []domain.BalanceDelta
		for _, np := range cand.netPos {
			if np.Delta != 0 {
				deltas = append(deltas, np)
			}
		}
		if len(deltas) > 0 {
			if err := c.led.ApplyDeltas(tick, domain.PhaseMultilateral, deltas); err != nil {
				return 0, err
			}
		}
		ev.Deltas = deltas
	}

	settled := 0
	for _, e := range cand.edges {
		for _, tx := range e.txs {
			tx.Status = domain.StatusSettled
			tx.SettledTick = tick
			ev.Txs = append(ev.Txs, tx.ID)
			settled++
		}
	}

	c.log.Append(ev)
	c.logger.Debug("cycle settled", map[string]interface{}{
		"tick": tick, "agents": len(cand.agents), "transactions": settled, "value": cand.totalValue,
	})
	return settled, nil
}

func compareAgents(a, b []domain.AgentID) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func compareTxs(a, b []domain.TxID) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
