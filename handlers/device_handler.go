package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/structsense/dashboard/middleware"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services/device"
	"github.com/structsense/dashboard/utils"
	"go.uber.org/zap"
)

// RegisterDeviceRequest represents a request to register a device
type RegisterDeviceRequest struct {
	DeviceUID           string                   `json:"device_uid" validate:"required,max=64,device_uid"`
	Name                string                   `json:"name" validate:"required,max=255"`
	Type                string                   `json:"type" validate:"required,max=64"`
	BuildingName        *string                  `json:"building_name,omitempty" validate:"omitempty,max=255"`
	LocationDescription *string                  `json:"location_description,omitempty"`
	NotificationEmail   *string                  `json:"notification_email,omitempty" validate:"omitempty,email"`
	Thresholds          *models.ThresholdProfile `json:"thresholds,omitempty"`
	InstalledAt         *time.Time               `json:"installed_at,omitempty"`
}

// ThresholdPatchRequest is a partial threshold update
type ThresholdPatchRequest struct {
	Version                  *models.ThresholdVersion `json:"version,omitempty" validate:"omitempty,oneof=v1 v2"`
	TiltThresholdPercent     *float64                 `json:"tilt_threshold_percent,omitempty" validate:"omitempty,gt=0"`
	DistanceThresholdPercent *float64                 `json:"distance_threshold_percent,omitempty" validate:"omitempty,gt=0"`
	TiltWarningPercent       *float64                 `json:"tilt_warning_percent,omitempty" validate:"omitempty,gt=0"`
	TiltAlertPercent         *float64                 `json:"tilt_alert_percent,omitempty" validate:"omitempty,gt=0"`
	DistanceWarningPercent   *float64                 `json:"distance_warning_percent,omitempty" validate:"omitempty,gt=0"`
	DistanceAlertPercent     *float64                 `json:"distance_alert_percent,omitempty" validate:"omitempty,gt=0"`
}

// UpdateDeviceRequest represents a partial device update
type UpdateDeviceRequest struct {
	Name                *string                `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Type                *string                `json:"type,omitempty" validate:"omitempty,min=1,max=64"`
	BuildingName        *string                `json:"building_name,omitempty" validate:"omitempty,max=255"`
	LocationDescription *string                `json:"location_description,omitempty"`
	NotificationEmail   *string                `json:"notification_email,omitempty" validate:"omitempty,email"`
	Thresholds          *ThresholdPatchRequest `json:"thresholds,omitempty"`
}

// RegisterDeviceResponse carries the one-time plaintext API key
type RegisterDeviceResponse struct {
	Device *models.Device `json:"device"`
	APIKey string         `json:"api_key"`
}

// ResetDeviceResponse reports a baseline reset
type ResetDeviceResponse struct {
	Device          *models.Device `json:"device"`
	ReadingsRemoved int64          `json:"readings_removed"`
}

// DeviceService defines the device operations used by the handler
type DeviceService interface {
	Register(ctx context.Context, in device.RegisterInput, actor device.Actor) (*device.Registration, error)
	Get(ctx context.Context, id int64) (*models.Device, error)
	List(ctx context.Context) ([]*models.Device, error)
	Update(ctx context.Context, id int64, in device.UpdateInput, actor device.Actor) (*models.Device, error)
	Delete(ctx context.Context, id int64, actor device.Actor) error
	Reset(ctx context.Context, id int64, actor device.Actor) (*device.ResetResult, error)
}

// DeviceHandler handles device management requests
type DeviceHandler struct {
	devices DeviceService
	logger  *zap.Logger
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(devices DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/devices. The list is returned as a bare array.
func (h *DeviceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	devices, err := h.devices.List(ctx)
	if err != nil {
		h.logger.Error("failed to list devices",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("listed devices",
		zap.String("request_id", requestID),
		zap.Int("count", len(devices)))

	_ = utils.WriteJSON(w, http.StatusOK, devices)
}

// HandleRegister handles POST /api/v1/devices/register
func (h *DeviceHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	reg, err := h.devices.Register(ctx, device.RegisterInput{
		DeviceUID:           req.DeviceUID,
		Name:                req.Name,
		Type:                req.Type,
		BuildingName:        req.BuildingName,
		LocationDescription: req.LocationDescription,
		NotificationEmail:   req.NotificationEmail,
		Thresholds:          req.Thresholds,
		InstalledAt:         req.InstalledAt,
	}, h.actor(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("device registered",
		zap.String("request_id", requestID),
		zap.Int64("device_id", reg.Device.ID))

	_ = utils.WriteCreated(w, RegisterDeviceResponse{Device: reg.Device, APIKey: reg.APIKey})
}

// HandleGet handles GET /api/v1/devices/{id}
func (h *DeviceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid device ID", nil)
		return
	}

	d, err := h.devices.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, d)
}

// HandleUpdate handles PATCH /api/v1/devices/{id}
func (h *DeviceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	id, ok := deviceIDParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid device ID", nil)
		return
	}

	var req UpdateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	in := device.UpdateInput{
		Name:                req.Name,
		Type:                req.Type,
		BuildingName:        req.BuildingName,
		LocationDescription: req.LocationDescription,
		NotificationEmail:   req.NotificationEmail,
	}
	if t := req.Thresholds; t != nil {
		in.Thresholds = &device.ThresholdPatch{
			Version:                  t.Version,
			TiltThresholdPercent:     t.TiltThresholdPercent,
			DistanceThresholdPercent: t.DistanceThresholdPercent,
			TiltWarningPercent:       t.TiltWarningPercent,
			TiltAlertPercent:         t.TiltAlertPercent,
			DistanceWarningPercent:   t.DistanceWarningPercent,
			DistanceAlertPercent:     t.DistanceAlertPercent,
		}
	}

	d, err := h.devices.Update(ctx, id, in, h.actor(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("device updated",
		zap.String("request_id", requestID),
		zap.Int64("device_id", id))

	_ = utils.WriteOK(w, d)
}

// HandleDelete handles DELETE /api/v1/devices/{id}
func (h *DeviceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid device ID", nil)
		return
	}

	if err := h.devices.Delete(r.Context(), id, h.actor(r)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("device deleted",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.Int64("device_id", id))

	utils.WriteNoContent(w)
}

// HandleReset handles POST /api/v1/devices/{id}/reset. The next reading
// ingested for the device becomes its new baseline.
func (h *DeviceHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "Invalid device ID", nil)
		return
	}

	result, err := h.devices.Reset(r.Context(), id, h.actor(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{
		Data:    ResetDeviceResponse{Device: result.Device, ReadingsRemoved: result.ReadingsRemoved},
		Message: "baseline reset; the next reading becomes the new baseline",
	})
}

func (h *DeviceHandler) actor(r *http.Request) device.Actor {
	return device.Actor{
		UserID:  currentUserID(r),
		Request: requestInfo(r),
	}
}
