package policy

import "rtgsim/internal/domain"

// SubmitAll submits every pending payment immediately and never touches
// collateral. It is the zero-strategy baseline runs are compared against.
type SubmitAll struct{}

func (SubmitAll) Name() string { return "submit_all" }

func (SubmitAll) DecidePayments(view AgentView, pending []domain.Transaction) []Decision {
	out := make([]Decision, 0, len(pending))
	for _, tx := range pending {
		out = append(out, Decision{Tx: tx.ID, Action: ActionSubmit})
	}
	return out
}

func (SubmitAll) DecideCollateral(view AgentView, stage CollateralStage) CollateralDecision {
	return CollateralDecision{Action: CollateralHold}
}

// Threshold holds payments the agent cannot currently cover, splits large
// divisible ones in half, and posts collateral when the queue backs up.
// Deadline pressure overrides the hold. All arithmetic is integer, so the
// policy is a pure function of its inputs.
type Threshold struct {
	// DeadlineSlack is how many ticks before the deadline a held payment
	// is force-submitted. Zero means submit only once overdue-imminent.
	DeadlineSlack int64
	// PostStep is the collateral amount posted per shortfall tick.
	PostStep int64
}

func (Threshold) Name() string { return "threshold" }

func (p Threshold) DecidePayments(view AgentView, pending []domain.Transaction) []Decision {
	out := make([]Decision, 0, len(pending))
	available := view.EffectiveLiquidity
	for _, tx := range pending {
		switch {
		case tx.Amount <= available:
			out = append(out, Decision{Tx: tx.ID, Action: ActionSubmit})
			available -= tx.Amount
		case tx.DeadlineTick-view.Tick <= p.DeadlineSlack:
			// Deadline pressure: submit and let it queue.
			out = append(out, Decision{Tx: tx.ID, Action: ActionSubmit})
		case tx.Divisible && tx.Amount >= 2:
			half := tx.Amount / 2
			out = append(out, Decision{
				Tx:           tx.ID,
				Action:       ActionSplit,
				SplitAmounts: []int64{half, tx.Amount - half},
			})
		default:
			out = append(out, Decision{Tx: tx.ID, Action: ActionHold})
		}
	}
	return out
}

func (p Threshold) DecideCollateral(view AgentView, stage CollateralStage) CollateralDecision {
	if stage == StageStrategic && view.QueuedOutgoing > view.EffectiveLiquidity && view.ExternalPool > 0 {
		amount := p.PostStep
		if amount <= 0 || amount > view.ExternalPool {
			amount = view.ExternalPool
		}
		return CollateralDecision{Action: CollateralPost, Amount: amount}
	}
	if stage == StageEndOfTick && view.QueuedOutgoing == 0 && view.PostedCollateral > 0 {
		return CollateralDecision{Action: CollateralWithdraw, Amount: view.PostedCollateral}
	}
	return CollateralDecision{Action: CollateralHold}
}
