package outlinecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/ports"
)

const redisPrefix = "outline:"

// Redis shares outlines between hosts. Lookups that fail count as misses.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.OutlineCache = (*Redis)(nil)

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return &Redis{client: client, ttl: cfg.TTL, logger: logger.With("component", "outline-cache")}, nil
}

func (r *Redis) Get(ctx context.Context, title, category string) (string, bool) {
	v, err := r.client.Get(ctx, redisPrefix+key(title, category)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.logger.Warn("outline cache get failed", "title", title, "error", err)
		return "", false
	}
	return v, true
}

func (r *Redis) Put(ctx context.Context, title, category, outline string) error {
	if err := r.client.Set(ctx, redisPrefix+key(title, category), outline, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache outline: %w", err)
	}
	return nil
}

// Flush is a no-op; writes are immediate.
func (r *Redis) Flush(context.Context) error { return nil }

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
