// ==============================================================================
// CHECKPOINT REPOSITORY - internal/repository/postgres/checkpoint.go
// ==============================================================================
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rtgsim/pkg/errors"
)

type CheckpointRepository struct {
	db *sqlx.DB
}

func NewCheckpointRepository(db *sqlx.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Save stores one agent-state checkpoint for fast-forward replay. State is
// the engine's serialized checkpoint payload.
func (r *CheckpointRepository) Save(ctx context.Context, runID uuid.UUID, tick int64, state []byte) error {
	query := `
		INSERT INTO simulation_checkpoints (run_id, tick, state, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, tick) DO UPDATE SET state = EXCLUDED.state
	`
	_, err := r.db.ExecContext(ctx, query, runID, tick, state, time.Now().UTC())
	return errors.Wrap(err, "failed to save checkpoint")
}

// FindLatest returns the newest checkpoint at or before tick.
func (r *CheckpointRepository) FindLatest(ctx context.Context, runID uuid.UUID, tick int64) (int64, []byte, error) {
	var row struct {
		Tick  int64  `db:"tick"`
		State []byte `db:"state"`
	}
	query := `
		SELECT tick, state FROM simulation_checkpoints
		WHERE run_id = $1 AND tick <= $2
		ORDER BY tick DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &row, query, runID, tick)
	if err == sql.ErrNoRows {
		return 0, nil, errors.ErrCheckpointNotFound
	}
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to load checkpoint")
	}
	return row.Tick, row.State, nil
}
