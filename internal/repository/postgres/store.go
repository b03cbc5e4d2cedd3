package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rtgsim/internal/domain"
)

// Store bundles the run, event, and checkpoint repositories behind the
// simulation service's sink interface.
type Store struct {
	Runs        *RunRepository
	Events      *EventRepository
	Checkpoints *CheckpointRepository
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Runs:        NewRunRepository(db),
		Events:      NewEventRepository(db),
		Checkpoints: NewCheckpointRepository(db),
	}
}

func (s *Store) CreateRun(ctx context.Context, run *domain.RunRecord) error {
	return s.Runs.Create(ctx, run)
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.RunRecord) error {
	return s.Runs.Update(ctx, run)
}

func (s *Store) AppendEvents(ctx context.Context, runID uuid.UUID, events []domain.Event) error {
	return s.Events.AppendBatch(ctx, runID, events)
}

func (s *Store) SaveCheckpoint(ctx context.Context, runID uuid.UUID, tick int64, state []byte) error {
	return s.Checkpoints.Save(ctx, runID, tick, state)
}
