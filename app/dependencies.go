package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/structsense/dashboard/auth"
	"github.com/structsense/dashboard/config"
	"github.com/structsense/dashboard/handlers"
	"github.com/structsense/dashboard/internal/gate"
	"github.com/structsense/dashboard/internal/password"
	"github.com/structsense/dashboard/internal/poller"
	"github.com/structsense/dashboard/middleware"
	"github.com/structsense/dashboard/repositories"
	"github.com/structsense/dashboard/repositories/postgres"
	"github.com/structsense/dashboard/services/audit"
	authsvc "github.com/structsense/dashboard/services/auth"
	"github.com/structsense/dashboard/services/device"
	"github.com/structsense/dashboard/services/health"
	"github.com/structsense/dashboard/services/ratelimit"
	"github.com/structsense/dashboard/services/sensor"
	"github.com/structsense/dashboard/tokens"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long Close waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *redis.Client // nil when REDIS_URL is unset
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	Devices   repositories.DeviceRepository
	Readings  repositories.ReadingRepository
	AuditLogs repositories.AuditRepository
	TxManager repositories.TransactionManager

	// Security
	Issuer    *tokens.Issuer
	Validator *tokens.Validator
	Hasher    *password.Hasher
	Limiter   ratelimit.LoginLimiter

	// Services
	Audit          *audit.AuditService
	AuthService    *authsvc.Service
	DeviceService  *device.Service
	SensorService  *sensor.Service
	HealthMonitor  *health.Monitor
	OfflineSweeper *poller.Poller

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	SessionGate    *middleware.SessionGate
	Pages          *auth.Handler
	AuthHandler    *handlers.AuthHandler
	DeviceHandler  *handlers.DeviceHandler
	SensorHandler  *handlers.SensorHandler
	HealthHandler  *handlers.HealthHandler
	AuditHandler   *handlers.AuditHandler

	started bool
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesFromFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesFromFactory wires everything on top of an already opened
// repository factory.
func NewDependenciesFromFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if cfg.Database.InitSchema {
		if err := deps.DB.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	deps.initRepositories()

	if err := deps.initRedis(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := deps.initSecurity(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize security: %w", err)
	}

	deps.initServices(cfg)
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Devices = repos.Devices
	d.Readings = repos.Readings
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initRedis connects the optional Redis client. An unreachable server is
// logged, not fatal: the login limiter fails open.
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled() {
		d.Limiter = ratelimit.NoopLimiter{}
		d.Logger.Warn("REDIS_URL not set, login throttling disabled")
		return nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	d.Redis = redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Monitor.HealthTimeout)
	defer cancel()
	if err := d.Redis.Ping(pingCtx).Err(); err != nil {
		d.Logger.Warn("redis ping failed", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		d.Logger.Info("redis connection established", zap.String("addr", opts.Addr))
	}

	d.Limiter = ratelimit.NewRedisLimiter(d.Redis, ratelimit.Config{
		KeyPrefix:   cfg.Redis.KeyPrefix,
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
		Cooldown:    cfg.Auth.LoginCooldown,
	}, d.Logger)
	return nil
}

func (d *Dependencies) initSecurity(cfg *config.Config) error {
	var err error

	d.Issuer, err = tokens.NewIssuer(cfg.Auth.SecretKey, cfg.Auth.Issuer, cfg.Auth.AccessTokenExpire)
	if err != nil {
		return err
	}
	d.Validator, err = tokens.NewValidator(cfg.Auth.SecretKey, tokens.WithExpectedIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	d.Hasher, err = password.NewHasher(password.DefaultConfig())
	return err
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})

	d.AuthService = authsvc.NewService(d.Users, d.Hasher, d.Issuer, d.Limiter, d.Audit, d.Logger)
	d.DeviceService = device.NewService(d.Devices, d.Readings, d.TxManager, d.Hasher, d.Audit, d.Logger)
	if cfg.Auth.DeviceKeyCache > 0 && cfg.Auth.DeviceKeyCacheTTL > 0 {
		d.DeviceService.UseKeyCache(device.NewKeyCache(cfg.Auth.DeviceKeyCache, cfg.Auth.DeviceKeyCacheTTL))
	}
	d.SensorService = sensor.NewService(d.Devices, d.Readings, d.TxManager, d.DeviceService, d.Audit, d.Logger)

	// A nil *redis.Client must not reach the monitor as a non-nil interface.
	var redisClient redis.UniversalClient
	if d.Redis != nil {
		redisClient = d.Redis
	}
	d.HealthMonitor = health.NewMonitor(d.DB, redisClient, health.Config{
		Interval: cfg.Monitor.HealthInterval,
		Timeout:  cfg.Monitor.HealthTimeout,
	}, d.Logger)
	d.OfflineSweeper = d.DeviceService.NewOfflineSweeper(cfg.Monitor.SweepInterval, cfg.Monitor.DeviceOfflineAfter)

	d.Logger.Info("services initialized")
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Validator, cfg.Auth.CookieName, d.Logger)

	g := gate.New(
		gate.WithRoutes(gate.NewRouteTable(
			gate.Route{Prefix: cfg.Auth.DashboardPath, Class: gate.Protected},
			gate.Route{Prefix: cfg.Auth.LoginPath, Class: gate.GuestOnly},
		)),
		gate.WithLoginPath(cfg.Auth.LoginPath),
		gate.WithDashboardPath(cfg.Auth.DashboardPath),
	)
	// The login form POST is not gated: a 307 would replay the submission against the dashboard.
	d.SessionGate = middleware.NewSessionGate(g, d.Logger,
		middleware.WithCookieName(cfg.Auth.CookieName),
		middleware.WithUngated(http.MethodPost, cfg.Auth.LoginPath))

	d.Pages = auth.NewHandler(cfg, d.AuthService, d.Validator, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.AuthService, d.Logger)
	d.DeviceHandler = handlers.NewDeviceHandler(d.DeviceService, d.Logger)
	d.SensorHandler = handlers.NewSensorHandler(d.SensorService, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.HealthMonitor, d.Logger)
	d.AuditHandler = handlers.NewAuditHandler(d.Audit, d.Logger)
}

// Start launches the background workers and seeds the bootstrap admin.
func (d *Dependencies) Start(ctx context.Context) error {
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	d.started = true

	if d.Config.Auth.AdminEmail != "" {
		if _, created, err := d.AuthService.EnsureAdmin(ctx, d.Config.Auth.AdminEmail, d.Config.Auth.AdminPassword); err != nil {
			return fmt.Errorf("failed to ensure admin user: %w", err)
		} else if !created {
			d.Logger.Debug("bootstrap admin already exists")
		}
	}

	if err := d.HealthMonitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	if err := d.OfflineSweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start offline sweeper: %w", err)
	}

	d.Logger.Info("background workers started",
		zap.Duration("health_interval", d.Config.Monitor.HealthInterval),
		zap.Duration("sweep_interval", d.Config.Monitor.SweepInterval))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.OfflineSweeper != nil {
		d.OfflineSweeper.Stop()
	}
	if d.HealthMonitor != nil {
		d.HealthMonitor.Stop()
	}

	// Drain audit events before the database goes away
	if d.started {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.started = false
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
