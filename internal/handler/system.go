// ==============================================================================
// SYSTEM HANDLER - internal/handler/system.go
// ==============================================================================
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"rtgsim/internal/simulation"
	"rtgsim/pkg/logger"
)

// SystemHandler exposes health and status endpoints.
type SystemHandler struct {
	db          *sqlx.DB
	redisClient *redis.Client
	service     *simulation.Service
	logger      logger.Logger
	startTime   time.Time
}

// NewSystemHandler creates a SystemHandler. db and redisClient may be nil
// when the server runs without persistence.
func NewSystemHandler(db *sqlx.DB, redisClient *redis.Client, service *simulation.Service, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		db:          db,
		redisClient: redisClient,
		service:     service,
		logger:      log,
		startTime:   time.Now(),
	}
}

// ServiceStatus describes one dependency's health.
type ServiceStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"` // operational, degraded, outage
	LatencyMs int64  `json:"latency_ms"`
}

// Health is the liveness probe.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"live_runs":      len(h.service.List()),
	})
}

// GetSystemStatus checks each backing service and reports the aggregate.
func (h *SystemHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	services := []ServiceStatus{{
		ID:     "core-api",
		Name:   "Simulation API",
		Status: "operational",
	}}

	if h.db != nil {
		status := "operational"
		start := time.Now()
		err := h.db.Ping()
		latency := time.Since(start).Milliseconds()
		if err != nil {
			status = "outage"
			h.logger.Error("Database ping failed", map[string]interface{}{"error": err.Error()})
		} else if latency > 200 {
			status = "degraded"
		}
		services = append(services, ServiceStatus{
			ID:        "database",
			Name:      "PostgreSQL Database",
			Status:    status,
			LatencyMs: latency,
		})
	}

	if h.redisClient != nil {
		status := "operational"
		start := time.Now()
		err := h.redisClient.Ping(r.Context()).Err()
		latency := time.Since(start).Milliseconds()
		if err != nil {
			status = "outage"
			h.logger.Error("Redis ping failed", map[string]interface{}{"error": err.Error()})
		} else if latency > 50 {
			status = "degraded"
		}
		services = append(services, ServiceStatus{
			ID:        "redis",
			Name:      "Redis Cache",
			Status:    status,
			LatencyMs: latency,
		})
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"services": services})
}

func (h *SystemHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
