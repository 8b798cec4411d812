// Package health keeps a periodically refreshed snapshot of dependency health.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/structsense/dashboard/internal/poller"
	"go.uber.org/zap"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	Connected    = "connected"
	Disconnected = "disconnected"
	Disabled     = "disabled"
)

// DatabaseChecker reports database reachability
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// Snapshot is the result of one health check
type Snapshot struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Redis     string    `json:"redis"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// Healthy reports whether every required dependency answered
func (s Snapshot) Healthy() bool {
	return s.Status == StatusHealthy
}

// Config holds monitor timing
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor checks the database and, when configured, Redis on an interval
type Monitor struct {
	db      DatabaseChecker
	redis   redis.UniversalClient
	timeout time.Duration
	logger  *zap.Logger
	poller  *poller.Poller
	now     func() time.Time

	mu   sync.RWMutex
	last *Snapshot
}

// NewMonitor creates a stopped monitor. A nil redis client reports Redis as disabled.
func NewMonitor(db DatabaseChecker, redisClient redis.UniversalClient, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	m := &Monitor{
		db:      db,
		redis:   redisClient,
		timeout: cfg.Timeout,
		logger:  logger,
		now:     time.Now,
	}
	m.poller = poller.New("health-monitor", cfg.Interval, m.refresh,
		poller.WithLogger(logger), poller.WithImmediateRun())
	return m
}

// Start begins periodic checks
func (m *Monitor) Start(ctx context.Context) error {
	return m.poller.Start(ctx)
}

// Stop halts periodic checks
func (m *Monitor) Stop() {
	m.poller.Stop()
}

// Latest returns the last snapshot, checking now when none exists yet
func (m *Monitor) Latest(ctx context.Context) Snapshot {
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()

	if last != nil {
		return *last
	}
	return m.Check(ctx)
}

// Check runs all dependency checks and stores the result
func (m *Monitor) Check(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	snap := Snapshot{
		Status:   StatusHealthy,
		Database: Connected,
		Redis:    Disabled,
	}

	if err := m.db.HealthCheck(ctx); err != nil {
		snap.Status = StatusUnhealthy
		snap.Database = Disconnected
		snap.Error = err.Error()
	}

	if m.redis != nil {
		if err := m.redis.Ping(ctx).Err(); err != nil {
			snap.Status = StatusUnhealthy
			snap.Redis = Disconnected
			if snap.Error == "" {
				snap.Error = err.Error()
			}
		} else {
			snap.Redis = Connected
		}
	}

	snap.CheckedAt = m.now().UTC()

	m.mu.Lock()
	previous := m.last
	m.last = &snap
	m.mu.Unlock()

	if previous == nil || previous.Status != snap.Status {
		m.logger.Info("health status changed",
			zap.String("status", snap.Status),
			zap.String("database", snap.Database),
			zap.String("redis", snap.Redis),
			zap.String("error", snap.Error))
	}

	return snap
}

func (m *Monitor) refresh(ctx context.Context) error {
	m.Check(ctx)
	return nil
}
