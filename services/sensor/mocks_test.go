package sensor

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
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
