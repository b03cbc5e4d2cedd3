// ==============================================================================
// CORE DOMAIN MODEL - internal/domain/types.go
// ==============================================================================
package domain

// AgentID is an interned agent index. Agents are numbered densely from 0 in
// configuration order, so ids double as slice indexes and as the total order
// used for every deterministic traversal.
type AgentID int32

// TxID is an interned transaction id, assigned densely from 1 in arrival
// order. 0 means "no transaction".
type TxID int64

// Priority orders transactions within a queue slot.
type Priority int

const (
	PriorityNormal   Priority = 0
	PriorityUrgent   Priority = 1
	PriorityCritical Priority = 2
)

// Status is the single lifecycle state a transaction occupies.
type Status string

const (
	StatusPending     Status = "pending"      // arrived, awaiting policy decision
	StatusQueued      Status = "queued"       // submitted, waiting for liquidity
	StatusSettled     Status = "settled"      // terminal
	StatusOverdue     Status = "overdue"      // past deadline, still settleable
	StatusDropped     Status = "dropped"      // terminal
	StatusSplitParent Status = "split_parent" // terminal marker, replaced by children
)

// Terminal reports whether a status can never change again.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusDropped || s == StatusSplitParent
}

// Transaction is a payment obligation between two agents. Amount is integer
// minor units; floating point never touches monetary state.
type Transaction struct {
	ID           TxID     `json:"id"`
	Sender       AgentID  `json:"sender"`
	Receiver     AgentID  `json:"receiver"`
	Amount       int64    `json:"amount"`
	Priority     Priority `json:"priority"`
	ArrivalTick  int64    `json:"arrival_tick"`
	DeadlineTick int64    `json:"deadline_tick"`
	Status       Status   `json:"status"`
	ParentID     TxID     `json:"parent_id,omitempty"`
	Divisible    bool     `json:"divisible,omitempty"`

	// QueuedTick is the tick the transaction entered the post-decision
	// queue; delay cost accrues from it. -1 until queued.
	QueuedTick int64 `json:"queued_tick"`
	// OverdueTick is the tick the deadline-miss transition happened.
	// -1 while not overdue.
	OverdueTick int64 `json:"overdue_tick"`
	// SettledTick is the tick of settlement, -1 otherwise.
	SettledTick int64 `json:"settled_tick"`
}

// Outstanding reports whether the transaction still waits in the
// post-decision queue.
func (t *Transaction) Outstanding() bool {
	return t.Status == StatusQueued || t.Status == StatusOverdue
}
