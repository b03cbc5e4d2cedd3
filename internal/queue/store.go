// ==============================================================================
// QUEUE STORE - internal/queue/store.go
// ==============================================================================
package queue

import (
	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

// Store owns every transaction plus the per-agent pre-decision and
// post-decision queues. Transaction ids are dense, so the registry is a
// slice; queue slices preserve insertion order, which is the tie-break for
// every deterministic traversal.
type Store struct {
	txs  []*domain.Transaction
	pre  [][]domain.TxID // awaiting a policy decision, keyed by sender
	post [][]domain.TxID // submitted, waiting for liquidity, keyed by sender
}

// NewStore sizes the per-agent queues for n agents.
func NewStore(n int) *Store {
	return &Store{
		pre:  make([][]domain.TxID, n),
		post: make([][]domain.TxID, n),
	}
}

// NewTransaction registers a transaction and assigns the next dense id.
// The caller decides which queue (if any) it enters.
func (s *Store) NewTransaction(sender, receiver domain.AgentID, amount int64, priority domain.Priority, arrivalTick, deadlineTick int64, divisible bool, parent domain.TxID) *domain.Transaction {
	tx := &domain.Transaction{
		ID:           domain.TxID(len(s.txs) + 1),
		Sender:       sender,
		Receiver:     receiver,
		Amount:       amount,
		Priority:     priority,
		ArrivalTick:  arrivalTick,
		DeadlineTick: deadlineTick,
		Status:       domain.StatusPending,
		ParentID:     parent,
		Divisible:    divisible,
		QueuedTick:   -1,
		OverdueTick:  -1,
		SettledTick:  -1,
	}
	s.txs = append(s.txs, tx)
	return tx
}

// Tx looks up a transaction by id.
func (s *Store) Tx(id domain.TxID) (*domain.Transaction, error) {
	if id < 1 || int(id) > len(s.txs) {
		return nil, errors.ErrTransactionNotFound
	}
	return s.txs[id-1], nil
}

// Count returns the number of registered transactions.
func (s *Store) Count() int {
	return len(s.txs)
}

// AddPre appends a transaction to its sender's pre-decision queue.
func (s *Store) AddPre(tx *domain.Transaction) {
	s.pre[tx.Sender] = append(s.pre[tx.Sender], tx.ID)
}

// Pre returns the pre-decision queue for one agent, in insertion order.
func (s *Store) Pre(agent domain.AgentID) []domain.TxID {
	return s.pre[agent]
}

// Enqueue moves a transaction into its sender's post-decision queue.
func (s *Store) Enqueue(tx *domain.Transaction, tick int64) {
	tx.Status = domain.StatusQueued
	tx.QueuedTick = tick
	s.post[tx.Sender] = append(s.post[tx.Sender], tx.ID)
}

// Post returns the post-decision queue for one agent, in insertion order.
func (s *Store) Post(agent domain.AgentID) []domain.TxID {
	return s.post[agent]
}

// SetPre replaces an agent's pre-decision queue after the decision phase;
// only held transactions stay behind.
func (s *Store) SetPre(agent domain.AgentID, ids []domain.TxID) {
	s.pre[agent] = ids
}

// CompactPost removes settled and dropped transactions from the
// post-decision queues in one batched pass. Phases that settle queued
// transactions call this exactly once at phase end; per-transaction removal
// would be quadratic.
func (s *Store) CompactPost() int {
	removed := 0
	for a := range s.post {
		kept := s.post[a][:0]
		for _, id := range s.post[a] {
			if s.txs[id-1].Outstanding() {
				kept = append(kept, id)
			} else {
				removed++
			}
		}
		s.post[a] = kept
	}
	return removed
}

// PostDepth sums the post-decision queue lengths.
func (s *Store) PostDepth() int {
	n := 0
	for a := range s.post {
		n += len(s.post[a])
	}
	return n
}

// Outstanding collects every queued or overdue transaction, traversing
// agents in id order and queues in insertion order.
func (s *Store) Outstanding() []*domain.Transaction {
	var out []*domain.Transaction
	for a := range s.post {
		for _, id := range s.post[a] {
			tx := s.txs[id-1]
			if tx.Outstanding() {
				out = append(out, tx)
			}
		}
	}
	return out
}
