package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/progress"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetRunProgress(ctx context.Context, runID uuid.UUID, update progress.Update, ttl time.Duration) error
	GetRunProgress(ctx context.Context, runID uuid.UUID) (*progress.Update, bool, error)
	SetRunResult(ctx context.Context, runID uuid.UUID, outcome *models.SearchOutcome, ttl time.Duration) error
	GetRunResult(ctx context.Context, runID uuid.UUID) (*models.SearchOutcome, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	GetCount(ctx context.Context, key string) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetRunProgress(ctx context.Context, runID uuid.UUID, update progress.Update, ttl time.Duration) error {
	return c.setJSON(ctx, RunProgressKey(runID), update, ttl)
}

func (c *RedisCache) GetRunProgress(ctx context.Context, runID uuid.UUID) (*progress.Update, bool, error) {
	var u progress.Update
	found, err := c.getJSON(ctx, RunProgressKey(runID), &u)
	if err != nil || !found {
		return nil, false, err
	}
	return &u, true, nil
}

func (c *RedisCache) SetRunResult(ctx context.Context, runID uuid.UUID, outcome *models.SearchOutcome, ttl time.Duration) error {
	return c.setJSON(ctx, RunResultKey(runID), outcome, ttl)
}

func (c *RedisCache) GetRunResult(ctx context.Context, runID uuid.UUID) (*models.SearchOutcome, bool, error) {
	var o models.SearchOutcome
	found, err := c.getJSON(ctx, RunResultKey(runID), &o)
	if err != nil || !found {
		return nil, false, err
	}
	return &o, true, nil
}

// IncrWithExpiry increments a counter. The expiry is armed only when the
// counter has no TTL yet, so a window opened by the first increment is never
// pushed out by later ones. EXPIRE NX needs Redis 7.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// GetCount returns the current value of a counter key, or 0 when it is unset.
func (c *RedisCache) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *RedisCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.client.Set(ctx, key, b, ttl).Err()
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}
