// ==============================================================================
// RUN REPOSITORY - internal/repository/postgres/run.go
// ==============================================================================
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *domain.RunRecord) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return errors.Wrap(err, "failed to encode run config")
	}

	query := `
		INSERT INTO simulation_runs (
			id, name, policy, status, tick, config, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Name, run.Policy, run.Status, run.Tick, cfg,
		run.CreatedAt, run.UpdatedAt,
	)
	return errors.Wrap(err, "failed to create run")
}

func (r *RunRepository) Update(ctx context.Context, run *domain.RunRecord) error {
	query := `
		UPDATE simulation_runs SET
			status = $1, tick = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, run.Status, run.Tick, run.UpdatedAt, run.ID)
	return errors.Wrap(err, "failed to update run")
}

func (r *RunRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.RunRecord, error) {
	var row struct {
		domain.RunRecord
		ConfigRaw []byte `db:"config"`
	}
	query := `SELECT id, name, policy, status, tick, config, created_at, updated_at FROM simulation_runs WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRunNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find run")
	}

	run := row.RunRecord
	if err := json.Unmarshal(row.ConfigRaw, &run.Config); err != nil {
		return nil, errors.Wrap(err, "failed to decode run config")
	}
	return &run, nil
}

func (r *RunRepository) FindAll(ctx context.Context, limit, offset int) ([]*domain.RunRecord, error) {
	query := `
		SELECT id, name, policy, status, tick, created_at, updated_at
		FROM simulation_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	var runs []*domain.RunRecord
	if err := r.db.SelectContext(ctx, &runs, query, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return runs, nil
}
