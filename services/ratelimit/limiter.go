// Package ratelimit throttles failed logins with fixed-window Redis counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrRateLimited is returned when the attempt budget for a key is spent
	ErrRateLimited = errors.New("too many failed login attempts")

	// ErrRedisUnavailable wraps Redis transport failures
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LoginLimiter guards the token endpoint against credential stuffing.
type LoginLimiter interface {
	// Check returns ErrRateLimited when either the email or the client IP is over budget
	Check(ctx context.Context, email, ip string) error

	// RecordFailure counts a failed attempt for the email and client IP
	RecordFailure(ctx context.Context, email, ip string) error

	// Reset clears the email counter after a successful login
	Reset(ctx context.Context, email, ip string) error
}

// Config holds limiter tuning parameters.
type Config struct {
	KeyPrefix   string
	MaxAttempts int
	Cooldown    time.Duration
}

// RedisLimiter implements LoginLimiter with INCR + EXPIRE counters.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
	logger *zap.Logger
}

// NewRedisLimiter creates a limiter backed by the given Redis client
func NewRedisLimiter(client redis.UniversalClient, cfg Config, logger *zap.Logger) *RedisLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	return &RedisLimiter{
		redis:  client,
		config: cfg,
		logger: logger,
	}
}

// Check implements LoginLimiter
func (l *RedisLimiter) Check(ctx context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordFailure implements LoginLimiter
func (l *RedisLimiter) RecordFailure(ctx context.Context, email, ip string) error {
	limited := false
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		// fixed window: the first hit starts the cooldown clock
		if count == 1 {
			if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}

	if limited {
		l.logger.Warn("login attempts exhausted",
			zap.String("email", email),
			zap.String("ip", ip),
			zap.Duration("cooldown", l.config.Cooldown))
		return ErrRateLimited
	}
	return nil
}

// Reset implements LoginLimiter. The IP counter is left alone so one valid
// account cannot be used to launder attempts against others.
func (l *RedisLimiter) Reset(ctx context.Context, email, ip string) error {
	if err := l.redis.Del(ctx, l.emailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count for email
func (l *RedisLimiter) Attempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.emailKey(email)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

func (l *RedisLimiter) keys(email, ip string) []string {
	keys := []string{l.emailKey(email)}
	if ip != "" {
		keys = append(keys, l.config.KeyPrefix+":login:ip:"+ip)
	}
	return keys
}

func (l *RedisLimiter) emailKey(email string) string {
	return l.config.KeyPrefix + ":login:email:" + strings.ToLower(strings.TrimSpace(email))
}

// NoopLimiter never throttles. Used when REDIS_URL is unset.
type NoopLimiter struct{}

// Check implements LoginLimiter
func (NoopLimiter) Check(context.Context, string, string) error { return nil }

// RecordFailure implements LoginLimiter
func (NoopLimiter) RecordFailure(context.Context, string, string) error { return nil }

// Reset implements LoginLimiter
func (NoopLimiter) Reset(context.Context, string, string) error { return nil }
