package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/structsense/dashboard/middleware"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services/audit"
	"github.com/structsense/dashboard/services/sensor"
	"github.com/structsense/dashboard/utils"
	"go.uber.org/zap"
)

// APIKeyHeader carries a device's API key on ingest
const APIKeyHeader = "X-API-Key"

// maxIngestBodyBytes caps a single ingest payload; a reading is well under 1 KiB.
const maxIngestBodyBytes = 4 << 10

// IngestRequest is a measurement posted by a device
type IngestRequest struct {
	DeviceUID  string   `json:"device_uid" validate:"required,max=64"`
	TiltX      *float64 `json:"tilt_x" validate:"required"`
	TiltY      *float64 `json:"tilt_y" validate:"required"`
	TiltZ      *float64 `json:"tilt_z" validate:"required"`
	DistanceMM *float64 `json:"distance_mm" validate:"required,gte=0"`
}

// IngestResponse acknowledges a stored reading
type IngestResponse struct {
	RawDataID  int64                    `json:"raw_data_id"`
	IsBaseline bool                     `json:"is_baseline"`
	Processed  *models.ProcessedReading `json:"processed"`
}

// SensorService defines the reading operations used by the handler
type SensorService interface {
	Ingest(ctx context.Context, apiKey string, in sensor.IngestInput) (*sensor.IngestResult, error)
	ListProcessed(ctx context.Context, filter models.ReadingFilter) ([]*models.ProcessedReading, error)
	Export(ctx context.Context, deviceID int64, format string, from, to *time.Time, actorID uuid.UUID, req audit.RequestInfo) (*sensor.Export, error)
}

// SensorHandler handles ingest, reading queries and exports
type SensorHandler struct {
	sensors SensorService
	logger  *zap.Logger
}

// NewSensorHandler creates a new SensorHandler
func NewSensorHandler(sensors SensorService, logger *zap.Logger) *SensorHandler {
	return &SensorHandler{
		sensors: sensors,
		logger:  logger,
	}
}

// HandleIngest handles POST /api/v1/sensor/ingest
func (h *SensorHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	apiKey := r.Header.Get(APIKeyHeader)
	if apiKey == "" {
		_ = utils.WriteUnauthorized(w, "Missing "+APIKeyHeader+" header")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse ingest body",
			zap.String("request_id", requestID),
			zap.Error(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large",
				map[string]interface{}{"max_bytes": tooLarge.Limit})
			return
		}
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.sensors.Ingest(ctx, apiKey, sensor.IngestInput{
		DeviceUID:  req.DeviceUID,
		TiltX:      *req.TiltX,
		TiltY:      *req.TiltY,
		TiltZ:      *req.TiltZ,
		DistanceMM: *req.DistanceMM,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("reading ingested",
		zap.String("request_id", requestID),
		zap.String("device_uid", req.DeviceUID),
		zap.Int64("raw_data_id", result.Raw.ID),
		zap.String("status", string(result.Processed.Status)))

	_ = utils.WriteCreated(w, IngestResponse{
		RawDataID:  result.Raw.ID,
		IsBaseline: result.IsBaseline,
		Processed:  result.Processed,
	})
}

// HandleProcessed handles GET /api/v1/sensor/devices/{id}/processed.
// Readings are returned newest first as a bare array.
func (h *SensorHandler) HandleProcessed(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid device ID", nil)
		return
	}

	q := r.URL.Query()
	filter, err := sensor.ParseFilter(id, sensor.QueryParams{
		Limit:  q.Get("limit"),
		Status: q.Get("status"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	readings, err := h.sensors.ListProcessed(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, readings)
}

// HandleExport handles GET /api/v1/sensor/devices/{id}/export
func (h *SensorHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	id, ok := deviceIDParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid device ID", nil)
		return
	}

	q := r.URL.Query()
	window, err := sensor.ParseFilter(id, sensor.QueryParams{
		From: q.Get("from"),
		To:   q.Get("to"),
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	export, err := h.sensors.Export(ctx, id, q.Get("format"), window.From, window.To, currentUserID(r), requestInfo(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)

	n, err := export.WriteTo(w)
	if err != nil {
		// headers are already sent
		h.logger.Error("export write failed",
			zap.String("request_id", requestID),
			zap.Int64("device_id", id),
			zap.Int64("bytes_written", n),
			zap.Error(err))
		return
	}

	h.logger.Info("readings exported",
		zap.String("request_id", requestID),
		zap.Int64("device_id", id),
		zap.Int("rows", len(export.Readings)),
		zap.Int64("bytes", n))
}
