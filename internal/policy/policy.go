// ==============================================================================
// POLICY INTERFACE - internal/policy/policy.go
// ==============================================================================
// The settlement engine treats the decision policy as an opaque collaborator:
// it hands over per-agent facts, receives structured decisions back, and
// validates only their structural correctness, never their rationale.
package policy

import (
	"fmt"

	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

// Action classifies one pending transaction.
type Action string

const (
	ActionSubmit Action = "submit"
	ActionHold   Action = "hold"
	ActionDrop   Action = "drop"
	ActionSplit  Action = "split"
)

// Decision maps one pre-decision transaction to an action. A transaction
// with no decision holds by default.
type Decision struct {
	Tx           domain.TxID
	Action       Action
	SplitAmounts []int64 // required for ActionSplit, must sum to the amount
}

// CollateralStage distinguishes the two collateral decision points in a tick.
type CollateralStage int

const (
	StageStrategic CollateralStage = iota // before settlement phases
	StageEndOfTick                        // after netting, before cost accrual
)

// CollateralAction adjusts posted collateral.
type CollateralAction string

const (
	CollateralHold     CollateralAction = "hold"
	CollateralPost     CollateralAction = "post"
	CollateralWithdraw CollateralAction = "withdraw"
)

// CollateralDecision is one agent's collateral move for a stage.
type CollateralDecision struct {
	Action CollateralAction
	Amount int64
}

// AgentView is the read-only state snapshot a policy decides from.
type AgentView struct {
	Tick               int64
	Agent              domain.AgentID
	Balance            int64
	CreditLimit        int64
	PostedCollateral   int64
	CollateralCapacity int64
	ExternalPool       int64
	EffectiveLiquidity int64
	QueuedOutgoing     int64 // summed amount waiting in the post-decision queue
}

// Engine is the external decision policy. Implementations must be
// deterministic functions of their inputs for run reproducibility.
type Engine interface {
	Name() string
	DecidePayments(view AgentView, pending []domain.Transaction) []Decision
	DecideCollateral(view AgentView, stage CollateralStage) CollateralDecision
}

// ValidateDecisions checks structural correctness of a decision batch
// against the agent's pending transactions. Violations are malformed input
// and abort the tick.
func ValidateDecisions(pending []*domain.Transaction, decisions []Decision) error {
	byID := make(map[domain.TxID]*domain.Transaction, len(pending))
	for _, tx := range pending {
		byID[tx.ID] = tx
	}
	seen := make(map[domain.TxID]bool, len(decisions))
	for _, d := range decisions {
		tx, ok := byID[d.Tx]
		if !ok {
			return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("decision for unknown or foreign transaction %d", d.Tx))
		}
		if seen[d.Tx] {
			return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("duplicate decision for transaction %d", d.Tx))
		}
		seen[d.Tx] = true

		switch d.Action {
		case ActionSubmit, ActionHold, ActionDrop:
			if len(d.SplitAmounts) != 0 {
				return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("split amounts on non-split action for transaction %d", d.Tx))
			}
		case ActionSplit:
			if !tx.Divisible {
				return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("split of indivisible transaction %d", d.Tx))
			}
			if len(d.SplitAmounts) < 2 {
				return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("split of transaction %d needs at least 2 parts", d.Tx))
			}
			var sum int64
			for _, amt := range d.SplitAmounts {
				if amt <= 0 {
					return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("split of transaction %d has non-positive part", d.Tx))
				}
				sum += amt
			}
			if sum != tx.Amount {
				return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("split of transaction %d sums to %d, want %d", d.Tx, sum, tx.Amount))
			}
		default:
			return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("unknown action %q for transaction %d", d.Action, d.Tx))
		}
	}
	return nil
}

// ValidateCollateral checks structural correctness of a collateral decision.
func ValidateCollateral(d CollateralDecision) error {
	switch d.Action {
	case CollateralHold:
		return nil
	case CollateralPost, CollateralWithdraw:
		if d.Amount <= 0 {
			return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("%s with non-positive amount %d", d.Action, d.Amount))
		}
		return nil
	default:
		return errors.Wrap(errors.ErrInvalidDecision, fmt.Sprintf("unknown collateral action %q", d.Action))
	}
}
