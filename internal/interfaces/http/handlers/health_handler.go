package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is anything that can report liveness of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness and dependency readiness.
type HealthHandler struct {
	database Pinger
	logger   *zap.Logger
	started  time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(database Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{database: database, logger: logger, started: time.Now()}
}

// Health handles GET /health. The cache store is deliberately not part of
// readiness: the service degrades to database-only operation when the store
// is down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "healthy"
	dbStatus := "ok"
	if h.database != nil {
		if err := h.database.Ping(r.Context()); err != nil {
			h.logger.Warn("database ping failed", zap.Error(err))
			dbStatus = "unreachable"
			overall = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondHealth(w, status, map[string]interface{}{
		"status":        overall,
		"database":      dbStatus,
		"uptimeSeconds": int(time.Since(h.started).Seconds()),
	})
}

func (h *HealthHandler) respondHealth(w http.ResponseWriter, status int, data map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
