// ==============================================================================
// SIMULATION SERVICE - internal/simulation/service.go
// ==============================================================================
package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rtgsim/internal/domain"
	"rtgsim/internal/engine"
	"rtgsim/internal/policy"
	"rtgsim/internal/report"
	"rtgsim/pkg/errors"
	"rtgsim/pkg/logger"
)

// Sink receives run metadata, events, and checkpoints for persistence. A
// nil sink keeps runs purely in memory.
type Sink interface {
	CreateRun(ctx context.Context, run *domain.RunRecord) error
	UpdateRun(ctx context.Context, run *domain.RunRecord) error
	AppendEvents(ctx context.Context, runID uuid.UUID, events []domain.Event) error
	SaveCheckpoint(ctx context.Context, runID uuid.UUID, tick int64, state []byte) error
}

// Run is one live simulation. Ticks advance under the run's own lock; the
// engine itself is single-threaded by design.
type Run struct {
	Record domain.RunRecord
	Engine *engine.Engine

	mu sync.Mutex
}

// Service manages live simulation runs.
type Service struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]*Run
	sink     Sink
	cache    *redis.Client
	cacheTTL time.Duration
	maxRuns  int
	logger   logger.Logger
}

// NewService builds the run manager. sink and cache may be nil.
func NewService(sink Sink, cache *redis.Client, cacheTTL time.Duration, maxRuns int, log logger.Logger) *Service {
	if maxRuns <= 0 {
		maxRuns = 64
	}
	return &Service{
		runs:     make(map[uuid.UUID]*Run),
		sink:     sink,
		cache:    cache,
		cacheTTL: cacheTTL,
		maxRuns:  maxRuns,
		logger:   log,
	}
}

// PolicyFor resolves a named baseline policy.
func PolicyFor(name string) (policy.Engine, error) {
	switch name {
	case "", "submit_all":
		return policy.SubmitAll{}, nil
	case "threshold":
		return policy.Threshold{DeadlineSlack: 2}, nil
	default:
		return nil, errors.NewConfigError("policy", "unknown policy %q", name)
	}
}

// CreateRun validates the configuration, builds an engine, and registers
// the run.
func (s *Service) CreateRun(ctx context.Context, name string, cfg domain.SimulationConfig, policyName string) (*Run, error) {
	pol, err := PolicyFor(policyName)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg, pol, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.runs) >= s.maxRuns {
		s.mu.Unlock()
		return nil, errors.NewConfigError("runs", "live run limit %d reached", s.maxRuns)
	}
	now := time.Now().UTC()
	run := &Run{
		Record: domain.RunRecord{
			ID:        uuid.New(),
			Name:      name,
			Policy:    pol.Name(),
			Status:    domain.RunStatusActive,
			Config:    cfg,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Engine: eng,
	}
	s.runs[run.Record.ID] = run
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.CreateRun(ctx, &run.Record); err != nil {
			s.logger.Error("Failed to persist run", map[string]interface{}{
				"run_id": run.Record.ID, "error": err.Error(),
			})
		}
	}

	s.logger.Info("Simulation run created", map[string]interface{}{
		"run_id": run.Record.ID,
		"name":   name,
		"policy": pol.Name(),
		"agents": len(cfg.Agents),
	})
	return run, nil
}

// Get returns a live run.
func (s *Service) Get(id uuid.UUID) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.ErrRunNotFound
	}
	return run, nil
}

// List returns all live runs' records.
func (s *Service) List() []domain.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Record)
	}
	return out
}

// Advance executes up to n ticks and persists the resulting event batch and
// any due checkpoints. Returns the events appended.
func (s *Service) Advance(ctx context.Context, id uuid.UUID, n int64) ([]domain.Event, *Run, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.Engine.Halted() != nil {
		return nil, run, errors.ErrRunHalted
	}
	if run.Engine.Finished() {
		return nil, run, errors.ErrRunFinished
	}

	events, runErr := run.Engine.Run(n)

	run.Record.Tick = run.Engine.Tick()
	run.Record.UpdatedAt = time.Now().UTC()
	switch {
	case run.Engine.Halted() != nil:
		run.Record.Status = domain.RunStatusHalted
	case run.Engine.Finished():
		run.Record.Status = domain.RunStatusFinished
	}

	s.persist(ctx, run, events)
	s.cacheSnapshots(ctx, run)

	if runErr != nil {
		return events, run, runErr
	}
	return events, run, nil
}

func (s *Service) persist(ctx context.Context, run *Run, events []domain.Event) {
	if s.sink == nil {
		return
	}
	id := run.Record.ID
	if err := s.sink.AppendEvents(ctx, id, events); err != nil {
		s.logger.Error("Failed to persist events", map[string]interface{}{
			"run_id": id, "count": len(events), "error": err.Error(),
		})
	}
	if err := s.sink.UpdateRun(ctx, &run.Record); err != nil {
		s.logger.Error("Failed to update run record", map[string]interface{}{
			"run_id": id, "error": err.Error(),
		})
	}

	every := run.Record.Config.CheckpointEvery
	if every > 0 && run.Record.Tick%every == 0 {
		cp := run.Engine.CheckpointNow()
		state, err := json.Marshal(cp)
		if err == nil {
			err = s.sink.SaveCheckpoint(ctx, id, cp.Tick, state)
		}
		if err != nil {
			s.logger.Error("Failed to save checkpoint", map[string]interface{}{
				"run_id": id, "tick": cp.Tick, "error": err.Error(),
			})
		}
	}
}

func (s *Service) cacheSnapshots(ctx context.Context, run *Run) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(run.Engine.AgentSnapshots())
	if err != nil {
		return
	}
	key := agentCacheKey(run.Record.ID)
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Snapshot cache write failed", map[string]interface{}{
			"run_id": run.Record.ID, "error": err.Error(),
		})
	}
}

// AgentSnapshots serves the cached agent snapshots when fresh, falling back
// to the live engine.
func (s *Service) AgentSnapshots(ctx context.Context, id uuid.UUID) ([]engine.AgentSnapshot, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, agentCacheKey(id)).Bytes(); err == nil {
			var snaps []engine.AgentSnapshot
			if jerr := json.Unmarshal(data, &snaps); jerr == nil {
				return snaps, nil
			}
		}
	}
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.Engine.AgentSnapshots(), nil
}

// QueueSnapshots returns the live queue state.
func (s *Service) QueueSnapshots(id uuid.UUID) ([]engine.QueueSnapshot, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.Engine.QueueSnapshots(), nil
}

// Events pages through a run's event log.
func (s *Service) Events(id uuid.UUID, offset, limit int) ([]domain.Event, int, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, 0, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.Engine.Events().Page(offset, limit), run.Engine.Events().Len(), nil
}

// EventsSince returns events with seq greater than seq, for feed consumers.
func (s *Service) EventsSince(id uuid.UUID, seq int64) ([]domain.Event, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return append([]domain.Event(nil), run.Engine.Events().Since(seq)...), nil
}

// Report builds the run summary.
func (s *Service) Report(id uuid.UUID) (report.RunReport, error) {
	run, err := s.Get(id)
	if err != nil {
		return report.RunReport{}, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return report.Build(run.Engine), nil
}

// Checksum returns the run's event-log checksum.
func (s *Service) Checksum(id uuid.UUID) (string, error) {
	run, err := s.Get(id)
	if err != nil {
		return "", err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.Engine.Checksum()
}

func agentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("rtgsim:run:%s:agents", id)
}
