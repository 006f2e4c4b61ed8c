package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed registry for multi-instance
// deployments. Eviction rides on redis key TTLs.
func NewRedis(cfg Config) (Registry, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "refresh:token:"
	}
	return &redisRegistry{
		client: client,
		prefix: prefix,
	}, nil
}

func (r *redisRegistry) key(token string) string {
	return r.prefix + token
}

func (r *redisRegistry) Add(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return fmt.Errorf("token required")
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token already expired")
	}
	return r.client.Set(ctx, r.key(token), "1", ttl).Err()
}

func (r *redisRegistry) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisRegistry) Revoke(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}

// CleanupExpired is a no-op: redis evicts expired keys natively.
func (r *redisRegistry) CleanupExpired(_ context.Context) error {
	return nil
}

func (r *redisRegistry) Stats(ctx context.Context) (map[string]any, error) {
	var cursor uint64
	total := 0
	pattern := r.prefix + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return map[string]any{
		"type":  "redis",
		"total": total,
	}, nil
}

func (r *redisRegistry) Close(_ context.Context) error {
	return r.client.Close()
}
