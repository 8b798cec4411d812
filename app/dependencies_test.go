package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/structsense/dashboard/config"
	"github.com/structsense/dashboard/repositories/postgres"
	"github.com/structsense/dashboard/services/ratelimit"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			SecretKey:         "test-secret",
			Issuer:            "structsense",
			AccessTokenExpire: 30 * time.Minute,
			CookieName:        "access_token",
			LoginPath:         "/auth/login",
			DashboardPath:     "/dashboard",
			MaxLoginAttempts:  3,
			LoginCooldown:     time.Minute,
		},
		Redis: config.RedisConfig{KeyPrefix: "test"},
		Monitor: config.MonitorConfig{
			HealthInterval:     time.Hour,
			HealthTimeout:      time.Second,
			DeviceOfflineAfter: 5 * time.Minute,
			SweepInterval:      time.Hour,
		},
		Audit: config.AuditConfig{BufferSize: 10, WorkerCount: 1},
	}
}

func newMockFactory(t *testing.T) (*postgres.RepositoryFactory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	return postgres.NewRepositoryFactoryFromDB(postgres.NewDBFromConn(db, logger), logger), mock
}

func TestNewDependenciesFromFactory(t *testing.T) {
	t.Run("wires every component without redis", func(t *testing.T) {
		factory, mock := newMockFactory(t)
		mock.ExpectClose()

		deps, err := NewDependenciesFromFactory(context.Background(), testConfig(), factory, zaptest.NewLogger(t))
		require.NoError(t, err)

		// Repositories
		assert.NotNil(t, deps.Users)
		assert.NotNil(t, deps.Devices)
		assert.NotNil(t, deps.Readings)
		assert.NotNil(t, deps.AuditLogs)
		assert.NotNil(t, deps.TxManager)

		// Services and HTTP
		assert.NotNil(t, deps.AuthService)
		assert.NotNil(t, deps.DeviceService)
		assert.NotNil(t, deps.SensorService)
		assert.NotNil(t, deps.HealthMonitor)
		assert.NotNil(t, deps.OfflineSweeper)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.SessionGate)
		assert.NotNil(t, deps.Pages)

		assert.Nil(t, deps.Redis)
		assert.IsType(t, ratelimit.NoopLimiter{}, deps.Limiter)

		require.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("uses redis limiter when configured", func(t *testing.T) {
		mr := miniredis.RunT(t)
		factory, mock := newMockFactory(t)
		mock.ExpectClose()

		cfg := testConfig()
		cfg.Redis.URL = "redis://" + mr.Addr()

		deps, err := NewDependenciesFromFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		require.NoError(t, err)

		require.NotNil(t, deps.Redis)
		assert.IsType(t, &ratelimit.RedisLimiter{}, deps.Limiter)

		snap := deps.HealthMonitor.Check(context.Background())
		assert.Equal(t, "connected", snap.Redis)

		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("invalid redis url", func(t *testing.T) {
		factory, _ := newMockFactory(t)

		cfg := testConfig()
		cfg.Redis.URL = "not a url"

		deps, err := NewDependenciesFromFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize redis")
	})
}

func TestDependencies_StartAndClose(t *testing.T) {
	factory, mock := newMockFactory(t)

	cfg := testConfig()
	deps, err := NewDependenciesFromFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
	require.NoError(t, err)

	// The sweeper runs immediately on start.
	mock.ExpectExec("UPDATE devices").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, deps.Start(ctx))
	assert.True(t, deps.Audit.GetStats().Started)
	assert.Eventually(t, func() bool {
		return deps.OfflineSweeper.Stats().Runs >= 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, deps.Close(context.Background()))
	assert.False(t, deps.OfflineSweeper.Running())

	// Second close should not panic
	assert.NoError(t, deps.Close(context.Background()))
}
