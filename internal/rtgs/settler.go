// ==============================================================================
// RTGS SETTLEMENT - internal/rtgs/settler.go
// ==============================================================================
package rtgs

import (
	"rtgsim/internal/domain"
	"rtgsim/internal/eventlog"
	"rtgsim/internal/ledger"
	"rtgsim/internal/queue"
	"rtgsim/pkg/logger"
)

// Settler performs gross settlement: immediate on submission, then
// liquidity-gated release passes over the post-decision queues.
type Settler struct {
	led      *ledger.Ledger
	store    *queue.Store
	log      *eventlog.Log
	deferred *queue.DeferredCredits
	deferOn  bool
	logger   logger.Logger
}

// NewSettler wires the settler. deferOn selects deferred crediting for the
// whole run; the mode is checked per settlement, never dispatched virtually.
func NewSettler(led *ledger.Ledger, store *queue.Store, log *eventlog.Log, deferred *queue.DeferredCredits, deferOn bool, lg logger.Logger) *Settler {
	return &Settler{led: led, store: store, log: log, deferred: deferred, deferOn: deferOn, logger: lg}
}

// trySettle settles tx in full if the sender's effective liquidity covers
// it. Returns whether it settled; an error means corrupted state and halts
// the run.
func (s *Settler) trySettle(tick int64, phase domain.Phase, tx *domain.Transaction, evType domain.EventType) (bool, error) {
	if s.led.EffectiveLiquidity(tx.Sender) < tx.Amount {
		return false, nil
	}

	if s.deferOn {
		if err := s.led.Debit(tick, phase, tx.Sender, tx.Amount); err != nil {
			return false, err
		}
		s.deferred.Add(tx.Receiver, tx.Amount)
	} else {
		deltas := settlementDeltas(tx.Sender, tx.Receiver, tx.Amount)
		if err := s.led.ApplyDeltas(tick, phase, deltas); err != nil {
			return false, err
		}
	}

	tx.Status = domain.StatusSettled
	tx.SettledTick = tick

	ev := domain.NewEvent(tick, phase, evType)
	ev.Tx = tx.ID
	ev.Agent = tx.Sender
	ev.Counterparty = tx.Receiver
	ev.Amount = tx.Amount
	if s.deferOn {
		ev.Deltas = []domain.BalanceDelta{{Agent: tx.Sender, Delta: -tx.Amount}}
	} else {
		ev.Deltas = settlementDeltas(tx.Sender, tx.Receiver, tx.Amount)
	}
	s.log.Append(ev)
	return true, nil
}

// SubmitImmediate processes this tick's submitted transactions in order:
// settle on the spot when liquidity allows, otherwise enqueue. Failing to
// settle is expected queueing, never an error.
func (s *Settler) SubmitImmediate(tick int64, submitted []*domain.Transaction) error {
	for _, tx := range submitted {
		settled, err := s.trySettle(tick, domain.PhaseRTGS, tx, domain.EventSettledImmediate)
		if err != nil {
			return err
		}
		if settled {
			continue
		}
		s.store.Enqueue(tx, tick)
		ev := domain.NewEvent(tick, domain.PhaseRTGS, domain.EventQueued)
		ev.Tx = tx.ID
		ev.Agent = tx.Sender
		ev.Counterparty = tx.Receiver
		ev.Amount = tx.Amount
		s.log.Append(ev)
	}
	return nil
}

// MarkOverdue transitions queued transactions past their deadline. They stay
// settleable and keep their queue slot; only the status and cost escalation
// change.
func (s *Settler) MarkOverdue(tick int64) {
	for _, tx := range s.store.Outstanding() {
		if tx.Status == domain.StatusQueued && tx.DeadlineTick < tick {
			tx.Status = domain.StatusOverdue
			tx.OverdueTick = tick
			ev := domain.NewEvent(tick, domain.PhaseQueueRelease, domain.EventOverdue)
			ev.Tx = tx.ID
			ev.Agent = tx.Sender
			ev.Counterparty = tx.Receiver
			ev.Amount = tx.Amount
			s.log.Append(ev)
		}
	}
}

// ReleasePass re-attempts settlement over the post-decision queues until a
// full pass settles nothing. Repeating to a fixpoint captures the liquidity
// unlock effect regardless of agent ordering: a credit landing late in the
// pass can release a payment scanned earlier. Traversal is agents in id
// order, queues in insertion order, so the fixpoint is deterministic.
// Removals batch into one compaction at the end.
func (s *Settler) ReleasePass(tick int64) (settled, removed int, err error) {
	for {
		progressed := false
		for a := 0; a < s.led.Size(); a++ {
			for _, id := range s.store.Post(domain.AgentID(a)) {
				tx, terr := s.store.Tx(id)
				if terr != nil {
					return settled, 0, terr
				}
				if !tx.Outstanding() {
					continue
				}
				ok, serr := s.trySettle(tick, domain.PhaseQueueRelease, tx, domain.EventSettledRelease)
				if serr != nil {
					return settled, 0, serr
				}
				if ok {
					settled++
					progressed = true
				}
			}
		}
		if !progressed {
			break
		}
		if s.deferOn {
			// Credits park until tick end; a second pass cannot
			// observe new liquidity.
			break
		}
	}
	removed = s.store.CompactPost()
	if settled > 0 {
		s.logger.Debug("queue release settled payments", map[string]interface{}{
			"tick":    tick,
			"settled": settled,
			"removed": removed,
		})
	}
	return settled, removed, nil
}

func settlementDeltas(sender, receiver domain.AgentID, amount int64) []domain.BalanceDelta {
	if sender < receiver {
		return []domain.BalanceDelta{{Agent: sender, Delta: -amount}, {Agent: receiver, Delta: amount}}
	}
	return []domain.BalanceDelta{{Agent: receiver, Delta: amount}, {Agent: sender, Delta: -amount}}
}
