// ==============================================================================
// RUN REPORTS - internal/report/report.go
// ==============================================================================
package report

import (
	"github.com/shopspring/decimal"

	"rtgsim/internal/domain"
	"rtgsim/internal/engine"
)

// AgentLine summarizes one agent. Monetary strings are exact two-place
// decimals rendered from integer minor units; no float ever enters.
type AgentLine struct {
	Name               string `json:"name"`
	Balance            string `json:"balance"`
	EffectiveLiquidity string `json:"effective_liquidity"`
	PostedCollateral   string `json:"posted_collateral"`
	TotalCost          string `json:"total_cost"`
	QueuedCount        int    `json:"queued_count"`
}

// RunReport summarizes a run for operators and analysis tooling.
type RunReport struct {
	Tick             int64       `json:"tick"`
	Events           int         `json:"events"`
	SettledGross     int         `json:"settled_gross"`
	SettledBilateral int         `json:"settled_bilateral"`
	SettledCycles    int         `json:"settled_cycles"`
	Queued           int         `json:"queued"`
	Overdue          int         `json:"overdue"`
	Dropped          int         `json:"dropped"`
	GrossValue       string      `json:"gross_value"`
	Agents           []AgentLine `json:"agents"`
}

func minor(v int64) string {
	return decimal.New(v, -2).StringFixed(2)
}

// Build assembles the report from the engine's log and snapshots.
func Build(e *engine.Engine) RunReport {
	r := RunReport{Tick: e.Tick(), Events: e.Events().Len()}

	var gross int64
	for _, ev := range e.Events().Events() {
		switch ev.Type {
		case domain.EventSettledImmediate, domain.EventSettledRelease:
			r.SettledGross++
			gross += ev.Amount
		case domain.EventSettledBilateral:
			r.SettledBilateral++
			gross += ev.Amount
		case domain.EventSettledMultilateral:
			r.SettledCycles++
			gross += ev.Amount
		case domain.EventDecision:
			if ev.Action == "drop" {
				r.Dropped++
			}
		}
	}
	r.GrossValue = minor(gross)

	queues := e.QueueSnapshots()
	for _, qs := range queues {
		for _, tx := range qs.Queued {
			switch tx.Status {
			case domain.StatusQueued:
				r.Queued++
			case domain.StatusOverdue:
				r.Overdue++
			}
		}
	}
	for _, a := range e.AgentSnapshots() {
		r.Agents = append(r.Agents, AgentLine{
			Name:               a.Name,
			Balance:            minor(a.Balance),
			EffectiveLiquidity: minor(a.EffectiveLiquidity),
			PostedCollateral:   minor(a.PostedCollateral),
			TotalCost:          minor(a.Costs.Total()),
			QueuedCount:        len(queues[a.ID].Queued),
		})
	}
	return r
}
