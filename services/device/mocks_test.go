package device

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"github.com/structsense/dashboard/services/audit"
)

// MockDeviceRepository is a mock implementation of DeviceRepository
type MockDeviceRepository struct {
	mock.Mock
}

func (m *MockDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockDeviceRepository) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	args := m.Called(ctx, id)
	if device := args.Get(0); device != nil {
		return device.(*models.Device), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDeviceRepository) GetByUID(ctx context.Context, deviceUID string) (*models.Device, error) {
	args := m.Called(ctx, deviceUID)
	if device := args.Get(0); device != nil {
		return device.(*models.Device), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDeviceRepository) List(ctx context.Context) ([]*models.Device, error) {
	args := m.Called(ctx)
	if devices := args.Get(0); devices != nil {
		return devices.([]*models.Device), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDeviceRepository) Update(ctx context.Context, device *models.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockDeviceRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDeviceRepository) SetConnection(ctx context.Context, id int64, connected bool, lastSeenAt *time.Time) error {
	args := m.Called(ctx, id, connected, lastSeenAt)
	return args.Error(0)
}

func (m *MockDeviceRepository) DisconnectStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDeviceRepository) WithTx(tx repositories.Transaction) repositories.DeviceRepository {
	return m
}

// MockReadingRepository is a mock implementation of ReadingRepository
type MockReadingRepository struct {
	mock.Mock
}

func (m *MockReadingRepository) InsertRaw(ctx context.Context, reading *models.RawReading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockReadingRepository) InsertProcessed(ctx context.Context, reading *models.ProcessedReading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockReadingRepository) GetBaseline(ctx context.Context, deviceID int64) (*models.RawReading, error) {
	args := m.Called(ctx, deviceID)
	if reading := args.Get(0); reading != nil {
		return reading.(*models.RawReading), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReadingRepository) ListProcessed(ctx context.Context, filter models.ReadingFilter) ([]*models.ProcessedReading, error) {
	args := m.Called(ctx, filter)
	if readings := args.Get(0); readings != nil {
		return readings.([]*models.ProcessedReading), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReadingRepository) DeleteByDevice(ctx context.Context, deviceID int64) (int64, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReadingRepository) WithTx(tx repositories.Transaction) repositories.ReadingRepository {
	return m
}

// fakeTx records how the transaction ended
type fakeTx struct {
	ctx        context.Context
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error            { t.committed = true; return nil }
func (t *fakeTx) Rollback() error          { t.rolledBack = true; return nil }
func (t *fakeTx) Context() context.Context { return t.ctx }

type fakeTxManager struct {
	last *fakeTx
}

func (m *fakeTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	m.last = &fakeTx{ctx: ctx}
	return m.last, nil
}

func (m *fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// MockAuditLogger is a mock implementation of AuditLogger
type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogDeviceRegistered(device *models.Device, actorID uuid.UUID, req audit.RequestInfo) error {
	return m.Called(device, actorID, req).Error(0)
}

func (m *MockAuditLogger) LogDeviceUpdated(device *models.Device, actorID uuid.UUID, req audit.RequestInfo, changes map[string]interface{}) error {
	return m.Called(device, actorID, req, changes).Error(0)
}

func (m *MockAuditLogger) LogDeviceDeleted(device *models.Device, actorID uuid.UUID, req audit.RequestInfo) error {
	return m.Called(device, actorID, req).Error(0)
}

func (m *MockAuditLogger) LogDeviceReset(device *models.Device, actorID uuid.UUID, req audit.RequestInfo, removed int64) error {
	return m.Called(device, actorID, req, removed).Error(0)
}

type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) { return "plain$" + secret, nil }

func (plainHasher) Verify(secret, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "plain$") {
		return false, errors.New("unknown hash format")
	}
	return encoded == "plain$"+secret, nil
}
