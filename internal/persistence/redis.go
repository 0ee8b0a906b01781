package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/report-service/internal/config"
)

const presenceKeyPrefix = "presence:"

// Redis wraps the go-redis client. It backs the reporter-presence
// lookup used by the search surface; when unconfigured, every presence
// check reports offline.
type Redis struct {
	Client      *redis.Client
	presenceTTL time.Duration
}

// NewRedis connects to Redis using the provided configuration. An empty
// address disables presence tracking entirely.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not provided; reporter presence disabled")
		return &Redis{presenceTTL: cfg.PresenceTTL()}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client, presenceTTL: cfg.PresenceTTL()}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// MarkOnline refreshes the presence key for a reporter license.
func (r *Redis) MarkOnline(ctx context.Context, license string) {
	if r == nil || r.Client == nil || license == "" {
		return
	}
	_ = r.Client.Set(ctx, presenceKeyPrefix+license, 1, r.presenceTTL).Err()
}

// IsOnline reports whether a reporter license has a live presence key.
func (r *Redis) IsOnline(ctx context.Context, license string) bool {
	if r == nil || r.Client == nil || license == "" {
		return false
	}
	exists, err := r.Client.Exists(ctx, presenceKeyPrefix+license).Result()
	return err == nil && exists > 0
}
