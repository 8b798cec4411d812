// Package sensor ingests device readings, derives processed readings against
// the device baseline and serves them back for charts and exports.
package sensor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"github.com/structsense/dashboard/services"
	"github.com/structsense/dashboard/services/audit"
	"go.uber.org/zap"
)

// DeviceAuthenticator resolves a device from its UID and API key
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, deviceUID, apiKey string) (*models.Device, error)
}

// AuditLogger records data exports
type AuditLogger interface {
	LogDataExported(device *models.Device, actorID uuid.UUID, req audit.RequestInfo, format string, rows int) error
}

// IngestInput is a single measurement reported by a device
type IngestInput struct {
	DeviceUID  string
	TiltX      float64
	TiltY      float64
	TiltZ      float64
	DistanceMM float64
}

// IngestResult holds the stored raw reading and its processed form
type IngestResult struct {
	Raw        *models.RawReading
	Processed  *models.ProcessedReading
	IsBaseline bool
}

// Service implements ingest and reading queries
type Service struct {
	devices  repositories.DeviceRepository
	readings repositories.ReadingRepository
	txMgr    repositories.TransactionManager
	auth     DeviceAuthenticator
	audit    AuditLogger
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new sensor service
func NewService(
	devices repositories.DeviceRepository,
	readings repositories.ReadingRepository,
	txMgr repositories.TransactionManager,
	auth DeviceAuthenticator,
	auditLogger AuditLogger,
	logger *zap.Logger,
) *Service {
	return &Service{
		devices:  devices,
		readings: readings,
		txMgr:    txMgr,
		auth:     auth,
		audit:    auditLogger,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest authenticates the device, stores the raw reading, processes it
// against the baseline and marks the device connected, all in one transaction.
// The first reading after registration or a reset becomes the baseline.
func (s *Service) Ingest(ctx context.Context, apiKey string, in IngestInput) (*IngestResult, error) {
	device, err := s.auth.Authenticate(ctx, in.DeviceUID, apiKey)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	raw := &models.RawReading{
		DeviceID:   device.ID,
		TiltX:      in.TiltX,
		TiltY:      in.TiltY,
		TiltZ:      in.TiltZ,
		DistanceMM: in.DistanceMM,
		CreatedAt:  now,
	}

	result, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*IngestResult, error) {
		readings := s.readings.WithTx(tx)

		if err := readings.InsertRaw(ctx, raw); err != nil {
			return nil, services.FromRepository(err, nil, nil)
		}

		baseline, err := readings.GetBaseline(ctx, device.ID)
		if err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				return nil, services.FromRepository(err, nil, nil)
			}
			baseline = raw
		}

		processed := Process(baseline, raw, device.Thresholds)
		if err := readings.InsertProcessed(ctx, processed); err != nil {
			return nil, services.FromRepository(err, nil, nil)
		}

		if err := s.devices.WithTx(tx).SetConnection(ctx, device.ID, true, &now); err != nil {
			return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
		}

		return &IngestResult{Raw: raw, Processed: processed, IsBaseline: baseline.ID == raw.ID}, nil
	})
	if err != nil {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, services.WrapInternal(services.ErrTransactionFailed.Message, err)
	}

	device.MarkSeen(now)
	if result.Processed.Status != models.StatusSafe {
		s.logger.Warn("reading exceeded threshold",
			zap.Int64("device_id", device.ID),
			zap.String("device_uid", device.DeviceUID),
			zap.String("status", string(result.Processed.Status)),
			zap.Float64("tilt_change_percent", result.Processed.TiltChangePercent),
			zap.Float64("distance_change_percent", result.Processed.DistanceChangePercent))
	}

	return result, nil
}

// ListProcessed returns processed readings of an existing device, newest first
func (s *Service) ListProcessed(ctx context.Context, filter models.ReadingFilter) ([]*models.ProcessedReading, error) {
	if _, err := s.devices.GetByID(ctx, filter.DeviceID); err != nil {
		return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
	}

	readings, err := s.readings.ListProcessed(ctx, filter)
	if err != nil {
		return nil, services.FromRepository(err, nil, nil)
	}
	if readings == nil {
		readings = []*models.ProcessedReading{}
	}
	return readings, nil
}

// Export loads every processed reading in the window, oldest first. Only CSV
// is supported; an empty format means CSV.
func (s *Service) Export(ctx context.Context, deviceID int64, format string, from, to *time.Time, actorID uuid.UUID, req audit.RequestInfo) (*Export, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrUnsupportedFormat.Message, nil).
			WithDetail("format", format).
			WithDetail("supported", []string{FormatCSV})
	}

	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
	}

	readings, err := s.readings.ListProcessed(ctx, models.ReadingFilter{DeviceID: deviceID, From: from, To: to})
	if err != nil {
		return nil, services.FromRepository(err, nil, nil)
	}

	// repository order is newest first
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}

	if s.audit != nil {
		if err := s.audit.LogDataExported(device, actorID, req, format, len(readings)); err != nil {
			s.logger.Warn("failed to queue audit event", zap.Error(err))
		}
	}

	return &Export{
		Device:      device,
		Readings:    readings,
		Format:      format,
		Filename:    ExportFilename(device.DeviceUID, s.now()),
		ContentType: "text/csv; charset=utf-8",
	}, nil
}
