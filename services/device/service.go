// Package device manages registered sensors and their threshold profiles.
package device

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/structsense/dashboard/internal/poller"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"github.com/structsense/dashboard/services"
	"github.com/structsense/dashboard/services/audit"
	"go.uber.org/zap"
)

// apiKeyBytes is the entropy of a device API key before base64url encoding
const apiKeyBytes = 32

// SecretHasher hashes device API keys
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// AuditLogger records device lifecycle events
type AuditLogger interface {
	LogDeviceRegistered(device *models.Device, actorID uuid.UUID, req audit.RequestInfo) error
	LogDeviceUpdated(device *models.Device, actorID uuid.UUID, req audit.RequestInfo, changes map[string]interface{}) error
	LogDeviceDeleted(device *models.Device, actorID uuid.UUID, req audit.RequestInfo) error
	LogDeviceReset(device *models.Device, actorID uuid.UUID, req audit.RequestInfo, removed int64) error
}

// Actor identifies who performs a change
type Actor struct {
	UserID  uuid.UUID
	Request audit.RequestInfo
}

// RegisterInput holds the fields of a new device
type RegisterInput struct {
	DeviceUID           string
	Name                string
	Type                string
	BuildingName        *string
	LocationDescription *string
	NotificationEmail   *string
	Thresholds          *models.ThresholdProfile // nil means v2 defaults
	InstalledAt         *time.Time
}

// ThresholdPatch is a partial threshold update. Setting Version to another
// version starts from that version's defaults before the values are applied.
type ThresholdPatch struct {
	Version                  *models.ThresholdVersion
	TiltThresholdPercent     *float64
	DistanceThresholdPercent *float64
	TiltWarningPercent       *float64
	TiltAlertPercent         *float64
	DistanceWarningPercent   *float64
	DistanceAlertPercent     *float64
}

// UpdateInput is a partial device update; nil fields are left unchanged
type UpdateInput struct {
	Name                *string
	Type                *string
	BuildingName        *string
	LocationDescription *string
	NotificationEmail   *string
	Thresholds          *ThresholdPatch
}

// Registration is a newly registered device with its one-time API key
type Registration struct {
	Device *models.Device
	APIKey string
}

// ResetResult reports what a baseline reset removed
type ResetResult struct {
	Device          *models.Device
	ReadingsRemoved int64
}

// Service implements device management
type Service struct {
	devices  repositories.DeviceRepository
	readings repositories.ReadingRepository
	txMgr    repositories.TransactionManager
	hasher   SecretHasher
	audit    AuditLogger
	logger   *zap.Logger
	now      func() time.Time
	keys     *KeyCache
}

// NewService creates a new device service
func NewService(
	devices repositories.DeviceRepository,
	readings repositories.ReadingRepository,
	txMgr repositories.TransactionManager,
	hasher SecretHasher,
	auditLogger AuditLogger,
	logger *zap.Logger,
) *Service {
	return &Service{
		devices:  devices,
		readings: readings,
		txMgr:    txMgr,
		hasher:   hasher,
		audit:    auditLogger,
		logger:   logger,
		now:      time.Now,
	}
}

// UseKeyCache enables caching of verified API keys. Call before serving requests.
func (s *Service) UseKeyCache(c *KeyCache) {
	s.keys = c
}

// Register creates a device and returns its plaintext API key. Only the
// argon2 hash of the key is stored.
func (s *Service) Register(ctx context.Context, in RegisterInput, actor Actor) (*Registration, error) {
	uid := strings.TrimSpace(in.DeviceUID)
	name := strings.TrimSpace(in.Name)
	if uid == "" || name == "" || strings.TrimSpace(in.Type) == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "device_uid, name and type are required", nil)
	}

	thresholds := models.DefaultThresholdsV2()
	if in.Thresholds != nil {
		thresholds = in.Thresholds.Normalize()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, invalidThresholds(err)
	}

	var installedAt time.Time
	if in.InstalledAt != nil {
		installedAt = in.InstalledAt.UTC()
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, services.WrapInternal("failed to generate api key", err)
	}
	keyHash, err := s.hasher.Hash(apiKey)
	if err != nil {
		return nil, services.WrapInternal("failed to hash api key", err)
	}

	device := models.NewDevice(uid, name, strings.TrimSpace(in.Type), thresholds, installedAt)
	device.BuildingName = in.BuildingName
	device.LocationDescription = in.LocationDescription
	device.NotificationEmail = in.NotificationEmail
	device.APIKeyHash = keyHash

	if err := s.devices.Create(ctx, device); err != nil {
		return nil, services.FromRepository(err, services.ErrDeviceNotFound, services.ErrDuplicateDeviceUID)
	}

	s.logger.Info("device registered",
		zap.Int64("device_id", device.ID),
		zap.String("device_uid", device.DeviceUID),
		zap.String("request_id", actor.Request.RequestID))

	if s.audit != nil {
		if err := s.audit.LogDeviceRegistered(device, actor.UserID, actor.Request); err != nil {
			s.logger.Warn("failed to queue audit event", zap.Error(err))
		}
	}

	return &Registration{Device: device, APIKey: apiKey}, nil
}

// Get returns a device by ID
func (s *Service) Get(ctx context.Context, id int64) (*models.Device, error) {
	device, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
	}
	return device, nil
}

// List returns every device, newest first
func (s *Service) List(ctx context.Context) ([]*models.Device, error) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, services.FromRepository(err, nil, nil)
	}
	if devices == nil {
		devices = []*models.Device{}
	}
	return devices, nil
}

// Update applies a partial update
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, actor Actor) (*models.Device, error) {
	device, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, services.NewDomainError(services.ErrorTypeValidation, "name must not be empty", nil)
		}
		device.Name = name
		changes["name"] = name
	}
	if in.Type != nil {
		device.Type = strings.TrimSpace(*in.Type)
		changes["type"] = device.Type
	}
	if in.BuildingName != nil {
		device.BuildingName = emptyToNil(*in.BuildingName)
		changes["building_name"] = device.BuildingName
	}
	if in.LocationDescription != nil {
		device.LocationDescription = emptyToNil(*in.LocationDescription)
		changes["location_description"] = device.LocationDescription
	}
	if in.NotificationEmail != nil {
		device.NotificationEmail = emptyToNil(*in.NotificationEmail)
		changes["notification_email"] = device.NotificationEmail
	}
	if in.Thresholds != nil {
		thresholds, err := ApplyThresholdPatch(device.Thresholds, *in.Thresholds)
		if err != nil {
			return nil, err
		}
		device.Thresholds = thresholds
		changes["thresholds"] = thresholds
	}

	if len(changes) == 0 {
		return device, nil
	}

	device.UpdatedAt = s.now().UTC()
	if err := s.devices.Update(ctx, device); err != nil {
		return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
	}

	if s.audit != nil {
		if err := s.audit.LogDeviceUpdated(device, actor.UserID, actor.Request, changes); err != nil {
			s.logger.Warn("failed to queue audit event", zap.Error(err))
		}
	}

	return device, nil
}

// Delete removes a device and its readings
func (s *Service) Delete(ctx context.Context, id int64, actor Actor) error {
	device, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.devices.Delete(ctx, id); err != nil {
		return services.FromRepository(err, services.ErrDeviceNotFound, nil)
	}
	if s.keys != nil {
		s.keys.Invalidate(device.DeviceUID)
	}

	s.logger.Info("device deleted",
		zap.Int64("device_id", id),
		zap.String("request_id", actor.Request.RequestID))

	if s.audit != nil {
		if err := s.audit.LogDeviceDeleted(device, actor.UserID, actor.Request); err != nil {
			s.logger.Warn("failed to queue audit event", zap.Error(err))
		}
	}
	return nil
}

// Reset drops the device's readings so the next ingested reading becomes the
// new baseline, and marks the device disconnected.
func (s *Service) Reset(ctx context.Context, id int64, actor Actor) (*ResetResult, error) {
	result, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*ResetResult, error) {
		devices := s.devices.WithTx(tx)
		device, err := devices.GetByID(ctx, id)
		if err != nil {
			return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
		}

		removed, err := s.readings.WithTx(tx).DeleteByDevice(ctx, id)
		if err != nil {
			return nil, services.FromRepository(err, nil, nil)
		}

		if err := devices.SetConnection(ctx, id, false, nil); err != nil {
			return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
		}
		device.ConnectionStatus = false

		return &ResetResult{Device: device, ReadingsRemoved: removed}, nil
	})
	if err != nil {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, services.WrapInternal(services.ErrTransactionFailed.Message, err)
	}

	s.logger.Info("device baseline reset",
		zap.Int64("device_id", id),
		zap.Int64("readings_removed", result.ReadingsRemoved),
		zap.String("request_id", actor.Request.RequestID))

	if s.audit != nil {
		if err := s.audit.LogDeviceReset(result.Device, actor.UserID, actor.Request, result.ReadingsRemoved); err != nil {
			s.logger.Warn("failed to queue audit event", zap.Error(err))
		}
	}

	return result, nil
}

// Authenticate checks a device API key. Unknown devices are not found and a
// wrong key is unauthorized.
func (s *Service) Authenticate(ctx context.Context, deviceUID, apiKey string) (*models.Device, error) {
	device, err := s.devices.GetByUID(ctx, strings.TrimSpace(deviceUID))
	if err != nil {
		return nil, services.FromRepository(err, services.ErrDeviceNotFound, nil)
	}
	if apiKey == "" || device.APIKeyHash == "" {
		return nil, services.ErrInvalidAPIKey
	}
	if s.keys != nil && s.keys.Verified(device.DeviceUID, apiKey, device.APIKeyHash) {
		return device, nil
	}
	ok, err := s.hasher.Verify(apiKey, device.APIKeyHash)
	if err != nil {
		s.logger.Error("stored api key hash unreadable",
			zap.Int64("device_id", device.ID),
			zap.Error(err))
		return nil, services.ErrInvalidAPIKey
	}
	if !ok {
		return nil, services.ErrInvalidAPIKey
	}
	if s.keys != nil {
		s.keys.Remember(device.DeviceUID, apiKey, device.APIKeyHash)
	}
	return device, nil
}

// SweepOffline marks devices silent for longer than after as disconnected
func (s *Service) SweepOffline(ctx context.Context, after time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-after)
	count, err := s.devices.DisconnectStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("disconnect stale devices: %w", err)
	}
	if count > 0 {
		s.logger.Info("marked silent devices offline",
			zap.Int64("count", count),
			zap.Time("cutoff", cutoff))
	}
	return count, nil
}

// NewOfflineSweeper returns a poller running SweepOffline every interval
func (s *Service) NewOfflineSweeper(interval, after time.Duration) *poller.Poller {
	return poller.New("device-offline-sweeper", interval, func(ctx context.Context) error {
		_, err := s.SweepOffline(ctx, after)
		return err
	}, poller.WithLogger(s.logger), poller.WithImmediateRun())
}

// ApplyThresholdPatch merges a patch into a profile and validates the result
func ApplyThresholdPatch(current models.ThresholdProfile, patch ThresholdPatch) (models.ThresholdProfile, error) {
	next := current
	if patch.Version != nil && *patch.Version != current.Version {
		switch *patch.Version {
		case models.ThresholdsV1:
			next = models.DefaultThresholdsV1()
		case models.ThresholdsV2:
			next = models.DefaultThresholdsV2()
		default:
			return current, invalidThresholds(fmt.Errorf("%w: %q", models.ErrUnknownThresholdVersion, *patch.Version))
		}
	}

	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	switch next.Version {
	case models.ThresholdsV1:
		set(&next.TiltThresholdPercent, patch.TiltThresholdPercent)
		set(&next.DistanceThresholdPercent, patch.DistanceThresholdPercent)
	case models.ThresholdsV2:
		set(&next.TiltWarningPercent, patch.TiltWarningPercent)
		set(&next.TiltAlertPercent, patch.TiltAlertPercent)
		set(&next.DistanceWarningPercent, patch.DistanceWarningPercent)
		set(&next.DistanceAlertPercent, patch.DistanceAlertPercent)
	}

	next = next.Normalize()
	if err := next.Validate(); err != nil {
		return current, invalidThresholds(err)
	}
	return next, nil
}

func invalidThresholds(err error) error {
	return services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidThresholds.Message, err).
		WithDetail("reason", err.Error())
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func generateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
