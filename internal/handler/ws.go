// ==============================================================================
// EVENT FEED HANDLER - internal/handler/ws.go
// ==============================================================================
package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"rtgsim/internal/simulation"
	"rtgsim/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (CORS)
	},
}

// FeedHandler streams simulation events over a websocket.
type FeedHandler struct {
	service *simulation.Service
	logger  logger.Logger
	poll    time.Duration
}

// NewFeedHandler creates a FeedHandler. poll controls how often new events
// are flushed to connected clients.
func NewFeedHandler(service *simulation.Service, log logger.Logger, poll time.Duration) *FeedHandler {
	if poll <= 0 {
		poll = time.Second
	}
	return &FeedHandler{service: service, logger: log, poll: poll}
}

// Stream upgrades the connection and pushes every event with a sequence
// number greater than the client's last-seen position.
func (h *FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}
	if _, err := h.service.Get(runID); err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	h.logger.Info("Event feed client connected", map[string]interface{}{"run_id": runID})

	var lastSeq int64
	if err := h.push(conn, runID, &lastSeq); err != nil {
		return
	}

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.push(conn, runID, &lastSeq); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *FeedHandler) push(conn *websocket.Conn, runID uuid.UUID, lastSeq *int64) error {
	events, err := h.service.EventsSince(runID, *lastSeq)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	*lastSeq = events[len(events)-1].Seq

	return conn.WriteJSON(map[string]interface{}{
		"type":   "events",
		"run_id": runID,
		"events": events,
	})
}
