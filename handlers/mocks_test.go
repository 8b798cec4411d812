package handlers

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/structsense/dashboard/middleware"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services/audit"
	"github.com/structsense/dashboard/services/auth"
	"github.com/structsense/dashboard/services/device"
	"github.com/structsense/dashboard/services/sensor"
	"github.com/structsense/dashboard/tokens"
)

// MockDeviceService is a mock implementation of DeviceService
type MockDeviceService struct {
	mock.Mock
}

func (m *MockDeviceService) Register(ctx context.Context, in device.RegisterInput, actor device.Actor) (*device.Registration, error) {
	args := m.Called(ctx, in, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*device.Registration), args.Error(1)
}

func (m *MockDeviceService) Get(ctx context.Context, id int64) (*models.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockDeviceService) List(ctx context.Context) ([]*models.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Device), args.Error(1)
}

func (m *MockDeviceService) Update(ctx context.Context, id int64, in device.UpdateInput, actor device.Actor) (*models.Device, error) {
	args := m.Called(ctx, id, in, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockDeviceService) Delete(ctx context.Context, id int64, actor device.Actor) error {
	args := m.Called(ctx, id, actor)
	return args.Error(0)
}

func (m *MockDeviceService) Reset(ctx context.Context, id int64, actor device.Actor) (*device.ResetResult, error) {
	args := m.Called(ctx, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*device.ResetResult), args.Error(1)
}

// MockSensorService is a mock implementation of SensorService
type MockSensorService struct {
	mock.Mock
}

func (m *MockSensorService) Ingest(ctx context.Context, apiKey string, in sensor.IngestInput) (*sensor.IngestResult, error) {
	args := m.Called(ctx, apiKey, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sensor.IngestResult), args.Error(1)
}

func (m *MockSensorService) ListProcessed(ctx context.Context, filter models.ReadingFilter) ([]*models.ProcessedReading, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ProcessedReading), args.Error(1)
}

func (m *MockSensorService) Export(ctx context.Context, deviceID int64, format string, from, to *time.Time, actorID uuid.UUID, req audit.RequestInfo) (*sensor.Export, error) {
	args := m.Called(ctx, deviceID, format, from, to, actorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sensor.Export), args.Error(1)
}

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Signup(ctx context.Context, in auth.SignupInput, req audit.RequestInfo) (*models.User, error) {
	args := m.Called(ctx, in, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) Authenticate(ctx context.Context, email, password string, req audit.RequestInfo) (*auth.Token, *models.User, error) {
	args := m.Called(ctx, email, password, req)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*auth.Token), args.Get(1).(*models.User), args.Error(2)
}

func (m *MockAuthService) CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockAuditReader is a mock implementation of AuditReader
type MockAuditReader struct {
	mock.Mock
}

func (m *MockAuditReader) ListLogs(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditReader) ListDeviceLogs(ctx context.Context, deviceID int64, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, deviceID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditReader) GetStats() audit.Stats {
	args := m.Called()
	return args.Get(0).(audit.Stats)
}

// withURLParam sets a chi path parameter on ctx
func withURLParam(ctx context.Context, key, value string) context.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

// withUser authenticates ctx as the given user
func withUser(ctx context.Context, id uuid.UUID, role string) context.Context {
	return middleware.WithClaims(ctx, &tokens.ParsedClaims{
		Sub:   id,
		Email: "ops@example.com",
		Role:  role,
	})
}

func testDevice(id int64) *models.Device {
	d := models.NewDevice("SENSOR-001", "North pillar", "tilt_distance", models.DefaultThresholdsV2(), time.Time{})
	d.ID = id
	return d
}
