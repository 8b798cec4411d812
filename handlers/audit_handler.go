package handlers

import (
	"context"
	"net/http"

	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services/audit"
	"github.com/structsense/dashboard/utils"
	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditReader lists recorded audit events
type AuditReader interface {
	ListLogs(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
	ListDeviceLogs(ctx context.Context, deviceID int64, limit, offset int) ([]*models.AuditLog, error)
	GetStats() audit.Stats
}

// AuditLogsResponse is a page of audit events
type AuditLogsResponse struct {
	Logs   []*models.AuditLog `json:"logs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// AuditHandler handles audit log queries
type AuditHandler struct {
	audit  AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditReader AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  auditReader,
		logger: logger,
	}
}

// HandleListLogs handles GET /api/v1/audit/logs
func (h *AuditHandler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "limit and offset must be non-negative integers", nil)
		return
	}

	logs, err := h.audit.ListLogs(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, AuditLogsResponse{Logs: nonNilLogs(logs), Limit: limit, Offset: offset})
}

// HandleDeviceLogs handles GET /api/v1/audit/devices/{id}/logs
func (h *AuditHandler) HandleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid device ID", nil)
		return
	}
	limit, offset, ok := pageParams(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "limit and offset must be non-negative integers", nil)
		return
	}

	logs, err := h.audit.ListDeviceLogs(r.Context(), id, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, AuditLogsResponse{Logs: nonNilLogs(logs), Limit: limit, Offset: offset})
}

// HandleStats handles GET /api/v1/audit/stats
func (h *AuditHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.audit.GetStats())
}

func pageParams(r *http.Request) (limit, offset int, ok bool) {
	limit, ok = queryInt(r, "limit", defaultAuditLimit)
	if !ok {
		return 0, 0, false
	}
	if limit == 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset, ok = queryInt(r, "offset", 0)
	return limit, offset, ok
}

func nonNilLogs(logs []*models.AuditLog) []*models.AuditLog {
	if logs == nil {
		return []*models.AuditLog{}
	}
	return logs
}
