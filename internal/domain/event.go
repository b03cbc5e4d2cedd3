package domain

import "fmt"

// Phase identifies a slot in the fixed per-tick pipeline. The numeric order
// is the execution order and part of every event's total ordering key.
type Phase int

const (
	PhaseInit Phase = iota // config echo, before tick 0
	PhaseArrival
	PhaseDecision
	PhaseCollateralStrategic
	PhaseRTGS
	PhaseQueueRelease
	PhaseBilateral
	PhaseMultilateral
	PhaseCollateralEnd
	PhaseDeferredCredit
	PhaseCostAccrual
	PhaseEndOfDay
)

var phaseNames = [...]string{
	"init",
	"arrival",
	"decision",
	"collateral_strategic",
	"rtgs",
	"queue_release",
	"bilateral",
	"multilateral",
	"collateral_end",
	"deferred_credit",
	"cost_accrual",
	"end_of_day",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText lets phases serialize by name in event JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText restores a phase from its name.
func (p *Phase) UnmarshalText(text []byte) error {
	name := string(text)
	for i, n := range phaseNames {
		if n == name {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", name)
}

// EventType tags event records.
type EventType string

const (
	EventArrival             EventType = "arrival"
	EventDecision            EventType = "decision"
	EventSplit               EventType = "split"
	EventCollateralPosted    EventType = "collateral_posted"
	EventCollateralWithdrawn EventType = "collateral_withdrawn"
	EventSettledImmediate    EventType = "settled_immediate"
	EventSettledRelease      EventType = "settled_queue_release"
	EventSettledBilateral    EventType = "settled_bilateral"
	EventSettledMultilateral EventType = "settled_multilateral"
	EventNettingSkipped      EventType = "netting_skipped"
	EventQueued              EventType = "queued"
	EventOverdue             EventType = "overdue"
	EventDeferredCredit      EventType = "deferred_credit"
	EventCostAccrued         EventType = "cost_accrued"
	EventDayClosed           EventType = "day_closed"
	EventTickCompleted       EventType = "tick_completed"
	EventRunHalted           EventType = "run_halted"
)

// BalanceDelta is one agent's balance movement inside a settlement event.
// Settlement events carry the full sorted delta set so every event can be
// replayed without consulting earlier ones.
type BalanceDelta struct {
	Agent AgentID `json:"agent"`
	Delta int64   `json:"delta"`
}

// CostBreakdown itemizes one agent's costs accrued in one tick.
type CostBreakdown struct {
	Overdraft    int64 `json:"overdraft,omitempty"`
	Delay        int64 `json:"delay,omitempty"`
	Collateral   int64 `json:"collateral,omitempty"`
	DeadlineMiss int64 `json:"deadline_miss,omitempty"`
	EndOfDay     int64 `json:"end_of_day,omitempty"`
	SplitFric    int64 `json:"split_friction,omitempty"`
}

// Total sums the breakdown.
func (c CostBreakdown) Total() int64 {
	return c.Overdraft + c.Delay + c.Collateral + c.DeadlineMiss + c.EndOfDay + c.SplitFric
}

// Event is an immutable record of one engine action. Events are totally
// ordered by Seq, which the log assigns densely; (Tick, Phase, Seq) is
// monotone. Field order is fixed so the canonical JSON encoding of a run is
// byte-stable.
type Event struct {
	Seq   int64     `json:"seq"`
	Tick  int64     `json:"tick"`
	Phase Phase     `json:"phase"`
	Type  EventType `json:"type"`

	// Agent ids are valid from 0, so agent fields use -1 for "absent"
	// instead of omitempty.
	Tx           TxID      `json:"tx,omitempty"`
	Txs          []TxID    `json:"txs,omitempty"`
	Agent        AgentID   `json:"agent"`
	AgentSet     []AgentID `json:"agent_set,omitempty"`
	Counterparty AgentID   `json:"counterparty"`
	Amount       int64     `json:"amount,omitempty"`

	// Netting detail.
	Deltas    []BalanceDelta `json:"deltas,omitempty"`
	ReducedTx TxID           `json:"reduced_tx,omitempty"`
	ReducedBy int64          `json:"reduced_by,omitempty"`
	Reason    string         `json:"reason,omitempty"`

	// Decision detail.
	Action string  `json:"action,omitempty"`
	Splits []int64 `json:"splits,omitempty"`
	Parent TxID    `json:"parent,omitempty"`

	// Cost detail.
	Costs *CostBreakdown `json:"costs,omitempty"`
}

// NoAgent fills agent fields on events that do not concern a single agent.
const NoAgent AgentID = -1

// NewEvent builds an event with agent fields blanked.
func NewEvent(tick int64, phase Phase, typ EventType) Event {
	return Event{Tick: tick, Phase: phase, Type: typ, Agent: NoAgent, Counterparty: NoAgent}
}
