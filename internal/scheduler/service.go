// ==============================================================================
// AUTO-ADVANCE SCHEDULER - internal/scheduler/service.go
// ==============================================================================
// The player drives registered runs forward in wall-clock time so feed
// subscribers see a live tick stream without polling the advance endpoint.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rtgsim/internal/simulation"
	"rtgsim/pkg/errors"
	"rtgsim/pkg/logger"
)

// Playback is one run's auto-advance schedule.
type Playback struct {
	RunID        uuid.UUID     `json:"run_id"`
	Interval     time.Duration `json:"interval"`
	TicksPerStep int64         `json:"ticks_per_step"`
	NextStep     time.Time     `json:"next_step"`
}

// Player advances registered runs on their configured cadence until they
// finish, halt, or are paused.
type Player struct {
	service *simulation.Service
	tasks   map[uuid.UUID]*Playback
	mu      sync.RWMutex
	logger  logger.Logger
	stop    chan struct{}
}

func NewPlayer(svc *simulation.Service, log logger.Logger) *Player {
	return &Player{
		service: svc,
		tasks:   make(map[uuid.UUID]*Playback),
		logger:  log,
		stop:    make(chan struct{}),
	}
}

// Play registers a run for auto-advance. Re-playing an already registered
// run replaces its schedule.
func (p *Player) Play(runID uuid.UUID, interval time.Duration, ticksPerStep int64) (*Playback, error) {
	if _, err := p.service.Get(runID); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Second
	}
	if ticksPerStep <= 0 {
		ticksPerStep = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pb := &Playback{
		RunID:        runID,
		Interval:     interval,
		TicksPerStep: ticksPerStep,
		NextStep:     time.Now().Add(interval),
	}
	p.tasks[runID] = pb

	p.logger.Info("Run playback started", map[string]interface{}{
		"run_id":   runID,
		"interval": interval.String(),
		"ticks":    ticksPerStep,
	})
	return pb, nil
}

// Pause removes a run from the schedule.
func (p *Player) Pause(runID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tasks[runID]; !ok {
		return errors.ErrRunNotFound
	}
	delete(p.tasks, runID)
	p.logger.Info("Run playback paused", map[string]interface{}{"run_id": runID})
	return nil
}

// Playing reports whether a run is scheduled.
func (p *Player) Playing(runID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.tasks[runID]
	return ok
}

func (p *Player) Start() {
	ticker := time.NewTicker(100 * time.Millisecond)
	go func() {
		for {
			select {
			case <-ticker.C:
				p.step()
			case <-p.stop:
				ticker.Stop()
				return
			}
		}
	}()
	p.logger.Info("Playback scheduler started", nil)
}

func (p *Player) Stop() {
	close(p.stop)
}

func (p *Player) step() {
	now := time.Now()

	p.mu.Lock()
	var due []*Playback
	for _, task := range p.tasks {
		if now.After(task.NextStep) {
			due = append(due, task)
			task.NextStep = now.Add(task.Interval)
		}
	}
	p.mu.Unlock()

	for _, task := range due {
		p.advance(task)
	}
}

// advance runs one playback step. Terminal runs unschedule themselves so a
// finished simulation does not spin on ErrRunFinished forever.
func (p *Player) advance(task *Playback) {
	_, run, err := p.service.Advance(context.Background(), task.RunID, task.TicksPerStep)
	if err != nil {
		if !errors.Is(err, errors.ErrRunFinished) && !errors.Is(err, errors.ErrRunHalted) && run != nil && run.Engine.Halted() == nil {
			p.logger.Error("Playback advance failed", map[string]interface{}{
				"run_id": task.RunID,
				"error":  err.Error(),
			})
		}
		_ = p.Pause(task.RunID)
		return
	}
	if run.Engine.Finished() {
		_ = p.Pause(task.RunID)
	}
}
