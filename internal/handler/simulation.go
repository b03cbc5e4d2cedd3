// ==============================================================================
// SIMULATION HANDLER - internal/handler/simulation.go
// ==============================================================================
// Package handler provides HTTP handlers for the simulation services.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"rtgsim/internal/domain"
	"rtgsim/internal/simulation"
	"rtgsim/pkg/errors"
	"rtgsim/pkg/logger"
	"rtgsim/pkg/validator"
)

// SimulationHandler manages simulation run endpoints.
type SimulationHandler struct {
	service   *simulation.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewSimulationHandler creates a SimulationHandler.
func NewSimulationHandler(service *simulation.Service, val *validator.Validator, log logger.Logger) *SimulationHandler {
	return &SimulationHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// CreateRunRequest is the payload for starting a new run.
type CreateRunRequest struct {
	Name   string                  `json:"name" validate:"required,min=1,max=128"`
	Policy string                  `json:"policy" validate:"omitempty,oneof=submit_all threshold"`
	Config domain.SimulationConfig `json:"config" validate:"required"`
}

// CreateRun starts a new simulation run.
func (h *SimulationHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest

	r.Body = http.MaxBytesReader(w, r.Body, 4<<20) // 4MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "Request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.service.CreateRun(r.Context(), req.Name, req.Config, req.Policy)
	if err != nil {
		if errors.IsConfigError(err) {
			h.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("Failed to create run", map[string]interface{}{
			"error": err.Error(),
			"name":  req.Name,
		})
		h.respondError(w, http.StatusInternalServerError, "Failed to create run")
		return
	}

	h.respondJSON(w, http.StatusCreated, run.Record)
}

// ListRuns returns all live runs.
func (h *SimulationHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.service.List()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns a run record by ID.
func (h *SimulationHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.service.Get(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run.Record)
}

// AdvanceRequest asks a run to advance by a number of ticks.
type AdvanceRequest struct {
	Ticks int64 `json:"ticks" validate:"required,gt=0,lte=100000"`
}

// Advance executes ticks on a run and returns the events produced.
func (h *SimulationHandler) Advance(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	var req AdvanceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, run, err := h.service.Advance(r.Context(), runID, req.Ticks)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrRunNotFound):
			h.respondError(w, http.StatusNotFound, "Run not found")
			return
		case errors.Is(err, errors.ErrRunFinished):
			h.respondError(w, http.StatusConflict, "Run already finished")
			return
		case errors.Is(err, errors.ErrRunHalted), errors.IsInvariantViolation(err):
			// The run halted mid-advance; the events up to the halt are
			// still reported alongside the halted record.
			h.respondJSON(w, http.StatusOK, map[string]interface{}{
				"run":    run.Record,
				"events": events,
				"halted": err.Error(),
			})
			return
		default:
			h.logger.Error("Advance failed", map[string]interface{}{
				"error":  err.Error(),
				"run_id": runID,
			})
			h.respondError(w, http.StatusInternalServerError, "Advance failed")
			return
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run":    run.Record,
		"events": events,
	})
}

// GetAgents returns agent snapshots for a run.
func (h *SimulationHandler) GetAgents(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	agents, err := h.service.AgentSnapshots(r.Context(), runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"agents": agents,
		"count":  len(agents),
	})
}

// GetQueues returns per-agent queue snapshots for a run.
func (h *SimulationHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	queues, err := h.service.QueueSnapshots(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queues": queues,
		"count":  len(queues),
	})
}

// GetEvents pages through a run's event log (?offset=&limit=).
func (h *SimulationHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	offset := 0
	limit := 100
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	events, total, err := h.service.Events(runID, offset, limit)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"offset": offset,
		"limit":  limit,
		"total":  total,
	})
}

// GetReport returns the run summary report.
func (h *SimulationHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	rep, err := h.service.Report(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, rep)
}

// GetChecksum returns the event-log checksum for replay verification.
func (h *SimulationHandler) GetChecksum(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	sum, err := h.service.Checksum(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"checksum": sum})
}

func (h *SimulationHandler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	runID, err := uuid.Parse(vars["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid run ID")
		return uuid.Nil, false
	}
	return runID, true
}

func (h *SimulationHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *SimulationHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
