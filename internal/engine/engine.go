// ==============================================================================
// SIMULATION ENGINE - internal/engine/engine.go
// ==============================================================================
// The engine is the single logical sequencer of the simulation: one fixed,
// non-reentrant pipeline per tick, every traversal totally ordered, every
// multi-party settlement committed all-or-nothing. Liquidity shortfalls are
// queueing, not errors; invariant violations halt the run.
package engine

import (
	"rtgsim/internal/costs"
	"rtgsim/internal/domain"
	"rtgsim/internal/eventlog"
	"rtgsim/internal/ledger"
	"rtgsim/internal/netting"
	"rtgsim/internal/policy"
	"rtgsim/internal/queue"
	"rtgsim/internal/rtgs"
	"rtgsim/pkg/errors"
	"rtgsim/pkg/logger"
)

// noDeadline stands in for arrivals configured without one.
const noDeadline = int64(1) << 62

// Engine drives one simulation run.
type Engine struct {
	cfg      domain.SimulationConfig
	agentIdx map[string]domain.AgentID

	led      *ledger.Ledger
	store    *queue.Store
	deferred *queue.DeferredCredits
	log      *eventlog.Log
	settler  *rtgs.Settler
	bilateral *netting.Bilateral
	cycle    *netting.Cycle
	accrual  *costs.Accrual
	pol      policy.Engine

	arrivals map[int64][]domain.ArrivalConfig
	tick     int64
	haltErr  error
	logger   logger.Logger
}

// New validates the configuration and assembles a run. Configuration errors
// are fatal before the first tick.
func New(cfg domain.SimulationConfig, pol policy.Engine, lg logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pol == nil {
		return nil, errors.NewConfigError("policy", "policy engine is required")
	}
	if lg == nil {
		lg = logger.NewNop()
	}

	led := ledger.New(cfg.Agents)
	store := queue.NewStore(len(cfg.Agents))
	deferred := queue.NewDeferredCredits()
	log := eventlog.New()

	e := &Engine{
		cfg:      cfg,
		agentIdx: cfg.AgentIndex(),
		led:      led,
		store:    store,
		deferred: deferred,
		log:      log,
		settler:  rtgs.NewSettler(led, store, log, deferred, cfg.DeferredCrediting, lg),
		bilateral: netting.NewBilateral(led, store, log, deferred, cfg.DeferredCrediting, cfg.BilateralRemainder, lg),
		cycle:    netting.NewCycle(led, store, log, deferred, cfg.DeferredCrediting, cfg.MaxCycleLength, cfg.CycleRanking, lg),
		accrual:  costs.NewAccrual(cfg.Costs, led, store, log, len(cfg.Agents)),
		pol:      pol,
		arrivals: make(map[int64][]domain.ArrivalConfig),
		logger:   lg,
	}
	for _, arr := range cfg.Arrivals {
		e.arrivals[arr.Tick] = append(e.arrivals[arr.Tick], arr)
	}
	return e, nil
}

// Tick returns the next tick to execute.
func (e *Engine) Tick() int64 { return e.tick }

// Finished reports whether the horizon was reached.
func (e *Engine) Finished() bool { return e.tick >= e.cfg.Horizon }

// Halted returns the fatal error that stopped the run, if any.
func (e *Engine) Halted() error { return e.haltErr }

// Config returns the run configuration.
func (e *Engine) Config() domain.SimulationConfig { return e.cfg }

// Events exposes the event log.
func (e *Engine) Events() *eventlog.Log { return e.log }

// AdvanceTick executes one full tick pipeline and returns the events it
// appended. A halted or finished run refuses to advance.
func (e *Engine) AdvanceTick() ([]domain.Event, error) {
	if e.haltErr != nil {
		return nil, errors.Wrap(e.haltErr, errors.ErrRunHalted.Error())
	}
	if e.Finished() {
		return nil, errors.ErrRunFinished
	}

	startSeq := e.log.Len()
	tick := e.tick

	err := e.runPipeline(tick)
	if err != nil {
		e.haltErr = err
		ev := domain.NewEvent(tick, domain.PhaseEndOfDay, domain.EventRunHalted)
		ev.Reason = err.Error()
		e.log.Append(ev)
		e.logger.Error("run halted", map[string]interface{}{
			"tick": tick, "error": err.Error(),
		})
		return e.log.Events()[startSeq:], err
	}

	ev := domain.NewEvent(tick, domain.PhaseEndOfDay, domain.EventTickCompleted)
	ev.Amount = int64(e.store.PostDepth())
	e.log.Append(ev)

	e.tick++
	return e.log.Events()[startSeq:], nil
}

// Run advances up to n ticks, stopping at the horizon.
func (e *Engine) Run(n int64) ([]domain.Event, error) {
	startSeq := e.log.Len()
	for i := int64(0); i < n && !e.Finished(); i++ {
		if _, err := e.AdvanceTick(); err != nil {
			return e.log.Events()[startSeq:], err
		}
	}
	return e.log.Events()[startSeq:], nil
}

func (e *Engine) runPipeline(tick int64) error {
	e.ingestArrivals(tick)

	submitted, err := e.decidePayments(tick)
	if err != nil {
		return err
	}
	if err := e.decideCollateral(tick, policy.StageStrategic, domain.PhaseCollateralStrategic); err != nil {
		return err
	}

	if err := e.settler.SubmitImmediate(tick, submitted); err != nil {
		return err
	}
	if err := e.verify(tick, domain.PhaseRTGS); err != nil {
		return err
	}

	e.settler.MarkOverdue(tick)
	if _, _, err := e.settler.ReleasePass(tick); err != nil {
		return err
	}
	if err := e.verify(tick, domain.PhaseQueueRelease); err != nil {
		return err
	}

	if e.cfg.BilateralNetting {
		if _, _, err := e.bilateral.Run(tick); err != nil {
			return err
		}
		if err := e.verify(tick, domain.PhaseBilateral); err != nil {
			return err
		}
	}
	if e.cfg.MultilateralNetting {
		if _, _, err := e.cycle.Run(tick); err != nil {
			return err
		}
		if err := e.verify(tick, domain.PhaseMultilateral); err != nil {
			return err
		}
	}

	if err := e.decideCollateral(tick, policy.StageEndOfTick, domain.PhaseCollateralEnd); err != nil {
		return err
	}

	e.applyDeferredCredits(tick)
	if err := e.verify(tick, domain.PhaseDeferredCredit); err != nil {
		return err
	}

	e.accrual.Run(tick)

	if (tick+1)%e.cfg.TicksPerDay == 0 {
		e.accrual.EndOfDay(tick)
		ev := domain.NewEvent(tick, domain.PhaseEndOfDay, domain.EventDayClosed)
		ev.Amount = (tick + 1) / e.cfg.TicksPerDay
		e.log.Append(ev)
	}
	return nil
}

// ingestArrivals creates this tick's obligations in schedule order and
// places them in the sender's pre-decision queue.
func (e *Engine) ingestArrivals(tick int64) {
	for _, arr := range e.arrivals[tick] {
		sender := e.agentIdx[arr.Sender]
		receiver := e.agentIdx[arr.Receiver]
		deadline := noDeadline
		if arr.DeadlineAfter > 0 {
			deadline = tick + arr.DeadlineAfter
		}
		tx := e.store.NewTransaction(sender, receiver, arr.Amount, arr.Priority, tick, deadline, arr.Divisible, 0)
		e.store.AddPre(tx)

		ev := domain.NewEvent(tick, domain.PhaseArrival, domain.EventArrival)
		ev.Tx = tx.ID
		ev.Agent = sender
		ev.Counterparty = receiver
		ev.Amount = arr.Amount
		e.log.Append(ev)
	}
}

// decidePayments runs the external policy per agent, validates the decision
// batch structurally, and applies it. Submitted transactions (including
// split children) flow to RTGS in traversal order; held ones stay pending.
func (e *Engine) decidePayments(tick int64) ([]*domain.Transaction, error) {
	var submitted []*domain.Transaction

	for a := 0; a < len(e.cfg.Agents); a++ {
		agent := domain.AgentID(a)
		preIDs := e.store.Pre(agent)
		if len(preIDs) == 0 {
			continue
		}

		pending := make([]*domain.Transaction, 0, len(preIDs))
		values := make([]domain.Transaction, 0, len(preIDs))
		for _, id := range preIDs {
			tx, err := e.store.Tx(id)
			if err != nil {
				return nil, err
			}
			pending = append(pending, tx)
			values = append(values, *tx)
		}

		decisions := e.pol.DecidePayments(e.view(tick, agent), values)
		if err := policy.ValidateDecisions(pending, decisions); err != nil {
			return nil, err
		}
		byTx := make(map[domain.TxID]policy.Decision, len(decisions))
		for _, d := range decisions {
			byTx[d.Tx] = d
		}

		var held []domain.TxID
		for _, tx := range pending {
			d, ok := byTx[tx.ID]
			if !ok {
				d = policy.Decision{Tx: tx.ID, Action: policy.ActionHold}
			}

			ev := domain.NewEvent(tick, domain.PhaseDecision, domain.EventDecision)
			ev.Tx = tx.ID
			ev.Agent = agent
			ev.Action = string(d.Action)
			e.log.Append(ev)

			switch d.Action {
			case policy.ActionSubmit:
				submitted = append(submitted, tx)
			case policy.ActionHold:
				held = append(held, tx.ID)
			case policy.ActionDrop:
				tx.Status = domain.StatusDropped
			case policy.ActionSplit:
				children := e.applySplit(tick, tx, d.SplitAmounts)
				submitted = append(submitted, children...)
			}
		}
		e.store.SetPre(agent, held)
	}
	return submitted, nil
}

// applySplit replaces a parent with children summing to its amount. The
// parent becomes a terminal marker and is never re-evaluated; children are
// submitted immediately.
func (e *Engine) applySplit(tick int64, parent *domain.Transaction, amounts []int64) []*domain.Transaction {
	parent.Status = domain.StatusSplitParent
	e.accrual.ChargeSplit(parent.Sender)

	ev := domain.NewEvent(tick, domain.PhaseDecision, domain.EventSplit)
	ev.Parent = parent.ID
	ev.Agent = parent.Sender
	ev.Counterparty = parent.Receiver
	ev.Amount = parent.Amount
	ev.Splits = append([]int64(nil), amounts...)

	children := make([]*domain.Transaction, 0, len(amounts))
	for _, amt := range amounts {
		child := e.store.NewTransaction(parent.Sender, parent.Receiver, amt, parent.Priority, parent.ArrivalTick, parent.DeadlineTick, parent.Divisible, parent.ID)
		children = append(children, child)
		ev.Txs = append(ev.Txs, child.ID)
	}
	e.log.Append(ev)
	return children
}

// decideCollateral runs one collateral decision stage for every agent.
// Structurally invalid decisions abort the tick; infeasible ones (capacity
// or headroom exceeded) are skipped like any other liquidity shortfall.
func (e *Engine) decideCollateral(tick int64, stage policy.CollateralStage, phase domain.Phase) error {
	for a := 0; a < len(e.cfg.Agents); a++ {
		agent := domain.AgentID(a)
		d := e.pol.DecideCollateral(e.view(tick, agent), stage)
		if err := policy.ValidateCollateral(d); err != nil {
			return err
		}

		switch d.Action {
		case policy.CollateralHold:
		case policy.CollateralPost:
			if e.led.PostCollateral(agent, d.Amount) {
				ev := domain.NewEvent(tick, phase, domain.EventCollateralPosted)
				ev.Agent = agent
				ev.Amount = d.Amount
				e.log.Append(ev)
			} else {
				e.logger.Debug("collateral post skipped", map[string]interface{}{
					"tick": tick, "agent": agent, "amount": d.Amount,
				})
			}
		case policy.CollateralWithdraw:
			if e.led.WithdrawCollateral(agent, d.Amount) {
				ev := domain.NewEvent(tick, phase, domain.EventCollateralWithdrawn)
				ev.Agent = agent
				ev.Amount = d.Amount
				e.log.Append(ev)
			} else {
				e.logger.Debug("collateral withdraw skipped", map[string]interface{}{
					"tick": tick, "agent": agent, "amount": d.Amount,
				})
			}
		}
	}
	return nil
}

// applyDeferredCredits lands the credits parked during settlement, in
// agent-id order, one event per credited agent.
func (e *Engine) applyDeferredCredits(tick int64) {
	if !e.cfg.DeferredCrediting {
		return
	}
	for _, d := range e.deferred.Drain() {
		e.led.Credit(d.Agent, d.Delta)
		ev := domain.NewEvent(tick, domain.PhaseDeferredCredit, domain.EventDeferredCredit)
		ev.Agent = d.Agent
		ev.Amount = d.Delta
		ev.Deltas = []domain.BalanceDelta{d}
		e.log.Append(ev)
	}
}

// view snapshots one agent's state for the policy engine.
func (e *Engine) view(tick int64, agent domain.AgentID) policy.AgentView {
	acct, _ := e.led.Account(agent)
	var queued int64
	for _, id := range e.store.Post(agent) {
		if tx, err := e.store.Tx(id); err == nil && tx.Outstanding() {
			queued += tx.Amount
		}
	}
	return policy.AgentView{
		Tick:               tick,
		Agent:              agent,
		Balance:            acct.Balance,
		CreditLimit:        acct.CreditLimit,
		PostedCollateral:   acct.PostedCollateral,
		CollateralCapacity: acct.CollateralCapacity,
		ExternalPool:       acct.ExternalPool,
		EffectiveLiquidity: e.led.EffectiveLiquidity(agent),
		QueuedOutgoing:     queued,
	}
}

func (e *Engine) verify(tick int64, phase domain.Phase) error {
	return e.led.Verify(tick, phase, e.deferred.Total())
}
