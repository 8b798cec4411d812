package audit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/structsense/dashboard/internal/redact"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"github.com/structsense/dashboard/services"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// RequestInfo carries the request metadata copied onto audit entries
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	dropped     int64
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}
	if s.stopped {
		return fmt.Errorf("audit service already stopped")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for the queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	s.stopped = true
	pending := len(s.eventChan)
	// Closing under the lock keeps LogEvent from sending on a closed channel.
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. A full buffer drops the event.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped++
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("resource_type", event.Log.ResourceType))
		return fmt.Errorf("audit event buffer full")
	}
}

// LogEventBlocking waits until the event is queued or ctx is cancelled
func (s *AuditService) LogEventBlocking(ctx context.Context, event *AuditEvent) error {
	for {
		s.mu.Lock()
		if !s.started {
			s.mu.Unlock()
			return fmt.Errorf("audit service not started")
		}
		select {
		case s.eventChan <- event:
			s.mu.Unlock()
			return nil
		default:
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return fmt.Errorf("audit service stopped")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("resource_type", event.Log.ResourceType))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// ListLogs returns audit entries newest first
func (s *AuditService) ListLogs(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	logs, err := s.auditRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, services.FromRepository(err, services.ErrAuditLogNotFound, nil)
	}
	return logs, nil
}

// ListDeviceLogs returns the audit trail of one device
func (s *AuditService) ListDeviceLogs(ctx context.Context, deviceID int64, limit, offset int) ([]*models.AuditLog, error) {
	logs, err := s.auditRepo.GetByResource(ctx, "device", strconv.FormatInt(deviceID, 10), limit, offset)
	if err != nil {
		return nil, services.FromRepository(err, services.ErrAuditLogNotFound, nil)
	}
	return logs, nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped,
		Started:       s.started,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int   `json:"buffer_size"`
	PendingEvents int   `json:"pending_events"`
	WorkerCount   int   `json:"worker_count"`
	Dropped       int64 `json:"dropped"`
	Started       bool  `json:"started"`
}

// Convenience methods for logging common events

func (s *AuditService) logDevice(action models.AuditAction, device *models.Device, actorID uuid.UUID, req RequestInfo, details map[string]interface{}) error {
	log := models.NewAuditLog(action, "device")
	log.WithUser(actorID)
	log.WithResource(strconv.FormatInt(device.ID, 10))
	log.WithRequest(req.RequestID, req.IPAddress, req.UserAgent)

	details = redact.Details(details)
	if details == nil {
		details = map[string]interface{}{}
	}
	details["device_uid"] = device.DeviceUID
	log.WithDetails(details)

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogDeviceRegistered logs a device registration
func (s *AuditService) LogDeviceRegistered(device *models.Device, actorID uuid.UUID, req RequestInfo) error {
	return s.logDevice(models.AuditActionDeviceRegistered, device, actorID, req, map[string]interface{}{
		"name":              device.Name,
		"type":              device.Type,
		"threshold_version": device.Thresholds.Version,
	})
}

// LogDeviceUpdated logs a device update with the changed fields
func (s *AuditService) LogDeviceUpdated(device *models.Device, actorID uuid.UUID, req RequestInfo, changes map[string]interface{}) error {
	return s.logDevice(models.AuditActionDeviceUpdated, device, actorID, req, map[string]interface{}{
		"changes": changes,
	})
}

// LogDeviceDeleted logs a device deletion
func (s *AuditService) LogDeviceDeleted(device *models.Device, actorID uuid.UUID, req RequestInfo) error {
	return s.logDevice(models.AuditActionDeviceDeleted, device, actorID, req, nil)
}

// LogDeviceReset logs a baseline reset and how many readings were removed
func (s *AuditService) LogDeviceReset(device *models.Device, actorID uuid.UUID, req RequestInfo, removed int64) error {
	return s.logDevice(models.AuditActionDeviceReset, device, actorID, req, map[string]interface{}{
		"readings_removed": removed,
	})
}

// LogDataExported logs an export download
func (s *AuditService) LogDataExported(device *models.Device, actorID uuid.UUID, req RequestInfo, format string, rows int) error {
	return s.logDevice(models.AuditActionDataExported, device, actorID, req, map[string]interface{}{
		"format": format,
		"rows":   rows,
	})
}

// LogUserSignup logs a new account
func (s *AuditService) LogUserSignup(user *models.User, req RequestInfo) error {
	log := models.NewAuditLog(models.AuditActionUserSignup, "user")
	log.WithUser(user.ID)
	log.WithResource(user.ID.String())
	log.WithRequest(req.RequestID, req.IPAddress, req.UserAgent)
	log.WithDetails(map[string]interface{}{
		"email": user.Email,
		"role":  user.Role,
	})

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogLoginFailed logs a rejected login attempt. The submitted email is masked.
func (s *AuditService) LogLoginFailed(email string, req RequestInfo, statusCode int, reason string) error {
	log := models.NewAuditLog(models.AuditActionLoginFailed, "user")
	log.WithRequest(req.RequestID, req.IPAddress, req.UserAgent)
	log.WithDetails(map[string]interface{}{
		"email": redact.MaskEmail(email),
	})
	log.WithError(statusCode, redact.Text(reason))

	return s.LogEvent(&AuditEvent{Log: log})
}
