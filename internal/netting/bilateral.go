// ==============================================================================
// BILATERAL NETTING - internal/netting/bilateral.go
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

// pairEntry indexes the outstanding obligations between one ordered agent
// pair (a < b), per direction, constituents in queue order.
type pairEntry struct {
	a, b   domain.AgentID
	sumAB  int64
	sumBA  int64
	txsAB  []*domain.Transaction
	txsBA  []*domain.Transaction
}

func (p *pairEntry) overlap() int64 {
	if p.sumAB < p.sumBA {
		return p.sumAB
	}
	return p.sumBA
}

// Bilateral finds agent pairs with obligations in both directions and
// settles the offsetting amount without gross liquidity.
type Bilateral struct {
	led       *ledger.Ledger
	store     *queue.Store
	log       *eventlog.Log
	deferred  *queue.DeferredCredits
	deferOn   bool
	remainder string
	logger    logger.Logger
}

// NewBilateral wires the bilateral netting layer. remainder selects how the
// uncovered directional surplus is handled (domain.RemainderReduce or
// domain.RemainderGross).
func NewBilateral(led *ledger.Ledger, store *queue.Store, log *eventlog.Log, deferred *queue.DeferredCredits, deferOn bool, remainder string, lg logger.Logger) *Bilateral {
	return &Bilateral{led: led, store: store, log: log, deferred: deferred, deferOn: deferOn, remainder: remainder, logger: lg}
}

// Run executes one bilateral netting phase: index the residual queues,
// order ready pairs by liquidity released, settle each feasible pair
// all-or-nothing, and compact the queues once at the end.
func (b *Bilateral) Run(tick int64) (settled, removed int, err error) {
	ready := b.buildIndex()
	if len(ready) == 0 {
		return 0, 0, nil
	}

	// Readiness order: most liquidity released first, ties by agent ids.
	sort.Slice(ready, func(i, j int) bool {
		oi, oj := ready[i].overlap(), ready[j].overlap()
		if oi != oj {
			return oi > oj
		}
		if ready[i].a != ready[j].a {
			return ready[i].a < ready[j].a
		}
		return ready[i].b < ready[j].b
	})

	for _, pair := range ready {
		n, perr := b.settlePair(tick, pair)
		if perr != nil {
			return settled, 0, perr
		}
		settled += n
	}

	removed = b.store.CompactPost()
	return settled, removed, nil
}

// buildIndex scans the post-decision queues (agents in id order, queues in
// insertion order) and returns the pairs with both directions non-zero.
func (b *Bilateral) buildIndex() []*pairEntry {
	index := make(map[[2]domain.AgentID]*pairEntry)
	var keys [][2]domain.AgentID

	for _, tx := range b.store.Outstanding() {
		lo, hi := tx.Sender, tx.Receiver
		if lo > hi {
			lo, hi = hi, lo
		}
		key := [2]domain.AgentID{lo, hi}
		entry, ok := index[key]
		if !ok {
			entry = &pairEntry{a: lo, b: hi}
			index[key] = entry
			keys = append(keys, key)
		}
		if tx.Sender == entry.a {
			entry.sumAB += tx.Amount
			entry.txsAB = append(entry.txsAB, tx)
		} else {
			entry.sumBA += tx.Amount
			entry.txsBA = append(entry.txsBA, tx)
		}
	}

	// keys is in first-touch order, which follows queue traversal and is
	// therefore deterministic; the caller re-sorts by readiness anyway.
	var ready []*pairEntry
	for _, key := range keys {
		if e := index[key]; e.sumAB > 0 && e.sumBA > 0 {
			ready = append(ready, e)
		}
	}
	return ready
}

// settlePair settles one ready pair atomically, or skips it without state
// change when infeasible. Returns the number of transactions settled.
func (b *Bilateral) settlePair(tick int64, pair *pairEntry) (int, error) {
	overlap := pair.overlap()

	if b.remainder == domain.RemainderGross {
		return b.settleGross(tick, pair, overlap)
	}
	return b.settleReduce(tick, pair, overlap)
}

// settleReduce settles only the offsetting amount. Both directions move the
// same total, so no net balance change occurs and no liquidity is required.
// The boundary transaction on the larger side stays queued at a reduced
// amount under its original id.
func (b *Bilateral) settleReduce(tick int64, pair *pairEntry, overlap int64) (int, error) {
	ev := domain.NewEvent(tick, domain.PhaseBilateral, domain.EventSettledBilateral)
	ev.Agent = pair.a
	ev.Counterparty = pair.b
	ev.Amount = overlap

	settled := 0
	for _, side := range [][]*domain.Transaction{pair.txsAB, pair.txsBA} {
		covered := int64(0)
		for _, tx := range side {
			if covered == overlap {
				break
			}
			if covered+tx.Amount <= overlap {
				covered += tx.Amount
				tx.Status = domain.StatusSettled
				tx.SettledTick = tick
				ev.Txs = append(ev.Txs, tx.ID)
				settled++
				continue
			}
			// Boundary: partially covered, reduce and keep queued.
			cut := overlap - covered
			tx.Amount -= cut
			covered = overlap
			ev.ReducedTx = tx.ID
			ev.ReducedBy = cut
		}
	}

	b.log.Append(ev)
	return settled, nil
}

// settleGross settles every constituent on both sides; the net payer covers
// the directional shortfall from effective liquidity, verified with a single
// check. Infeasible pairs are skipped this tick with no state change.
func (b *Bilateral) settleGross(tick int64, pair *pairEntry, overlap int64) (int, error) {
	shortfall := pair.sumAB - pair.sumBA
	payer, payee := pair.a, pair.b
	if shortfall < 0 {
		shortfall = -shortfall
		payer, payee = pair.b, pair.a
	}

	if shortfall > 0 && b.led.EffectiveLiquidity(payer) < shortfall {
		ev := domain.NewEvent(tick, domain.PhaseBilateral, domain.EventNettingSkipped)
		ev.Agent = pair.a
		ev.Counterparty = pair.b
		ev.Amount = shortfall
		ev.Reason = "net payer short of liquidity"
		b.log.Append(ev)
		b.logger.Debug("bilateral pair skipped", map[string]interface{}{
			"tick": tick, "agent_a": pair.a, "agent_b": pair.b, "shortfall": shortfall,
		})
		return 0, nil
	}

	ev := domain.NewEvent(tick, domain.PhaseBilateral, domain.EventSettledBilateral)
	ev.Agent = pair.a
	ev.Counterparty = pair.b
	ev.Amount = overlap

	if shortfall > 0 {
		if b.deferOn {
			if err := b.led.Debit(tick, domain.PhaseBilateral, payer, shortfall); err != nil {
				return 0, err
			}
			b.deferred.Add(payee, shortfall)
			ev.Deltas = []domain.BalanceDelta{{Agent: payer, Delta: -shortfall}}
		} else {
			deltas := settlementDeltas(payer, payee, shortfall)
			if err := b.led.ApplyDeltas(tick, domain.PhaseBilateral, deltas); err != nil {
				return 0, err
			}
			ev.Deltas = deltas
		}
	}

	settled := 0
	for _, side := range [][]*domain.Transaction{pair.txsAB, pair.txsBA} {
		for _, tx := range side {
			tx.Status = domain.StatusSettled
			tx.SettledTick = tick
			ev.Txs = append(ev.Txs, tx.ID)
			settled++
		}
	}

	b.log.Append(ev)
	return settled, nil
}

func settlementDeltas(sender, receiver domain.AgentID, amount int64) []domain.BalanceDelta {
	if sender < receiver {
		return []domain.BalanceDelta{{Agent: sender, Delta: -amount}, {Agent: receiver, Delta: amount}}
	}
	return []domain.BalanceDelta{{Agent: receiver, Delta: amount}, {Agent: sender, Delta: -amount}}
}
