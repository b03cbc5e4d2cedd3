// ==============================================================================
// SETTLEMENT GRAPH - internal/netting/graph.go
// ==============================================================================
package netting

import (
	"sort"

	"rtgsim/internal/domain"
)

// edge aggregates every outstanding obligation from one sender to one
// receiver. Constituents keep queue order.
type edge struct {
	from, to domain.AgentID
	amount   int64
	txs      []*domain.Transaction
}

// graph is the aggregated directed payment graph over the residual queues.
// Adjacency is stored as sorted slices, never iterated from a map, so every
// traversal is totally ordered.
type graph struct {
	nodes []domain.AgentID          // sorted
	succ  map[domain.AgentID][]*edge // sorted by to
	pred  map[domain.AgentID][]*edge // sorted by from
	byKey map[[2]domain.AgentID]*edge
}

// buildGraph aggregates outstanding transactions into a digraph.
func buildGraph(txs []*domain.Transaction) *graph {
	g := &graph{
		succ:  make(map[domain.AgentID][]*edge),
		pred:  make(map[domain.AgentID][]*edge),
		byKey: make(map[[2]domain.AgentID]*edge),
	}
	nodeSet := make(map[domain.AgentID]bool)

	for _, tx := range txs {
		key := [2]domain.AgentID{tx.Sender, tx.Receiver}
		e, ok := g.byKey[key]
		if !ok {
			e = &edge{from: tx.Sender, to: tx.Receiver}
			g.byKey[key] = e
			g.succ[tx.Sender] = append(g.succ[tx.Sender], e)
			g.pred[tx.Receiver] = append(g.pred[tx.Receiver], e)
		}
		e.amount += tx.Amount
		e.txs = append(e.txs, tx)
		nodeSet[tx.Sender] = true
		nodeSet[tx.Receiver] = true
	}

	for n := range nodeSet {
		g.nodes = append(g.nodes, n)
	}
	sort.Slice(g.nodes, func(i, j int) bool { return g.nodes[i] < g.nodes[j] })
	for _, n := range g.nodes {
		s := g.succ[n]
		sort.Slice(s, func(i, j int) bool { return s[i].to < s[j].to })
		p := g.pred[n]
		sort.Slice(p, func(i, j int) bool { return p[i].from < p[j].from })
	}
	return g
}

// edgeBetween returns the aggregated edge from u to v, if any.
func (g *graph) edgeBetween(u, v domain.AgentID) *edge {
	return g.byKey[[2]domain.AgentID{u, v}]
}

// components returns the strongly connected components of size >= 3, each
// with sorted members, in sorted order of their smallest member. Iterative
// Tarjan with sorted neighbor traversal, so component numbering is stable.
func (g *graph) components() [][]domain.AgentID {
	index := make(map[domain.AgentID]int, len(g.nodes))
	low := make(map[domain.AgentID]int, len(g.nodes))
	onStack := make(map[domain.AgentID]bool, len(g.nodes))
	var stack []domain.AgentID
	var comps [][]domain.AgentID
	next := 0

	type frame struct {
		node domain.AgentID
		edge int
	}

	for _, root := range g.nodes {
		if _, seen := index[root]; seen {
			continue
		}
		frames := []frame{{node: root}}
		index[root] = next
		low[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.edge < len(g.succ[f.node]) {
				w := g.succ[f.node][f.edge].to
				f.edge++
				if _, seen := index[w]; !seen {
					index[w] = next
					low[w] = next
					next++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{node: w})
				} else if onStack[w] && index[w] < low[f.node] {
					low[f.node] = index[w]
				}
				continue
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := &frames[len(frames)-1]
				if low[f.node] < low[parent.node] {
					low[parent.node] = low[f.node]
				}
			}
			if low[f.node] == index[f.node] {
				var comp []domain.AgentID
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == f.node {
						break
					}
				}
				if len(comp) >= 3 {
					sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
					comps = append(comps, comp)
				}
			}
		}
	}

	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}
