// ==============================================================================
// EVENT REPOSITORY - internal/repository/postgres/event.go
// ==============================================================================
package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

type EventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// AppendBatch inserts an ordered event batch in one transaction. The event
// log is append-only; rows are never updated or deleted.
func (r *EventRepository) AppendBatch(ctx context.Context, runID uuid.UUID, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin event batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO simulation_events (run_id, seq, tick, phase, type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare event insert")
	}
	defer stmt.Close()

	for i := range events {
		payload, merr := json.Marshal(&events[i])
		if merr != nil {
			return errors.Wrap(merr, "failed to encode event")
		}
		if _, err := stmt.ExecContext(ctx,
			runID, events[i].Seq, events[i].Tick, events[i].Phase.String(), events[i].Type, payload,
		); err != nil {
			return errors.Wrap(err, "failed to insert event")
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit event batch")
}

// FindByRun returns events with seq > afterSeq, ascending, up to limit.
func (r *EventRepository) FindByRun(ctx context.Context, runID uuid.UUID, afterSeq int64, limit int) ([]domain.Event, error) {
	query := `
		SELECT payload FROM simulation_events
		WHERE run_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`
	var payloads [][]byte
	if err := r.db.SelectContext(ctx, &payloads, query, runID, afterSeq, limit); err != nil {
		return nil, errors.Wrap(err, "failed to load events")
	}

	events := make([]domain.Event, 0, len(payloads))
	for _, p := range payloads {
		var ev domain.Event
		if err := json.Unmarshal(p, &ev); err != nil {
			return nil, errors.Wrap(err, "failed to decode event")
		}
		events = append(events, ev)
	}
	return events, nil
}

// CountByRun returns the number of persisted events for a run.
func (r *EventRepository) CountByRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM simulation_events WHERE run_id = $1`, runID)
	return n, errors.Wrap(err, "failed to count events")
}
