package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus tracks a simulation run's lifecycle.
type RunStatus string

const (
	RunStatusActive   RunStatus = "active"
	RunStatusFinished RunStatus = "finished"
	RunStatusHalted   RunStatus = "halted"
)

// RunRecord is the persisted metadata of one simulation run. The engine
// state itself lives in memory; events and checkpoints carry the rest.
type RunRecord struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	Policy    string           `json:"policy" db:"policy"`
	Status    RunStatus        `json:"status" db:"status"`
	Tick      int64            `json:"tick" db:"tick"`
	Config    SimulationConfig `json:"config" db:"-"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}
