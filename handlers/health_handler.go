package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/structsense/dashboard/services/health"
	"github.com/structsense/dashboard/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the liveness and readiness response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthMonitor provides the latest dependency snapshot
type HealthMonitor interface {
	Latest(ctx context.Context) health.Snapshot
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      health.DatabaseChecker
	monitor HealthMonitor
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db health.DatabaseChecker, monitor HealthMonitor, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		monitor: monitor,
		logger:  logger,
	}
}

// HandleLiveness handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that the database answers right now
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db == nil {
		checks["database"] = "not_initialized"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleHealth handles GET /api/v1/health. It serves the monitor's last
// snapshot as bare JSON, with 503 when a dependency is down.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := h.monitor.Latest(r.Context())

	httpStatus := http.StatusOK
	if !snapshot.Healthy() {
		httpStatus = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, snapshot); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}
