// ==============================================================================
// PLAYBACK HANDLER - internal/handler/playback.go
// ==============================================================================
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"rtgsim/internal/scheduler"
	"rtgsim/pkg/errors"
	"rtgsim/pkg/logger"
	"rtgsim/pkg/validator"
)

// PlaybackHandler controls run auto-advance.
type PlaybackHandler struct {
	player    *scheduler.Player
	validator *validator.Validator
	logger    logger.Logger
}

// NewPlaybackHandler creates a PlaybackHandler.
func NewPlaybackHandler(player *scheduler.Player, val *validator.Validator, log logger.Logger) *PlaybackHandler {
	return &PlaybackHandler{
		player:    player,
		validator: val,
		logger:    log,
	}
}

// PlayRequest configures one run's auto-advance cadence.
type PlayRequest struct {
	IntervalMs   int64 `json:"interval_ms" validate:"omitempty,gte=100,lte=60000"`
	TicksPerStep int64 `json:"ticks_per_step" validate:"omitempty,gte=1,lte=1000"`
}

// Play schedules a run for auto-advance.
func (h *PlaybackHandler) Play(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	req := PlayRequest{IntervalMs: 1000, TicksPerStep: 1}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && err != io.EOF {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pb, err := h.player.Play(runID, time.Duration(req.IntervalMs)*time.Millisecond, req.TicksPerStep)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	h.respondJSON(w, http.StatusOK, pb)
}

// Pause unschedules a run.
func (h *PlaybackHandler) Pause(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	if err := h.player.Pause(runID); err != nil {
		if errors.Is(err, errors.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, "Run is not playing")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Pause failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "playing": false})
}

func (h *PlaybackHandler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid run ID")
		return uuid.Nil, false
	}
	return runID, true
}

func (h *PlaybackHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *PlaybackHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
