package patient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ViewCache holds normalized patient views. It is advisory: failures are
// logged and treated as misses, and callers always check access before use.
type ViewCache interface {
	Get(ctx context.Context, id string) (*View, bool)
	Set(ctx context.Context, v View)
	Invalidate(ctx context.Context, id string)
}

var (
	_ ViewCache = (*RedisViewCache)(nil)
	_ ViewCache = NopViewCache{}
)

const viewKeyPrefix = "patient:view:"

type RedisViewCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisViewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisViewCache {
	return &RedisViewCache{client: client, ttl: ttl, logger: logger}
}

func viewKey(id string) string {
	return viewKeyPrefix + id
}

func (c *RedisViewCache) Get(ctx context.Context, id string) (*View, bool) {
	val, err := c.client.Get(ctx, viewKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("patient view cache read failed", zap.String("patient_id", id), zap.Error(err))
		}
		return nil, false
	}

	var v View
	if err := json.Unmarshal(val, &v); err != nil {
		c.logger.Warn("discarding corrupt patient view", zap.String("patient_id", id), zap.Error(err))
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &v, true
}

func (c *RedisViewCache) Set(ctx context.Context, v View) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("failed to encode patient view", zap.String("patient_id", v.ID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, viewKey(v.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("patient view cache write failed", zap.String("patient_id", v.ID), zap.Error(err))
	}
}

func (c *RedisViewCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, viewKey(id)).Err(); err != nil {
		c.logger.Warn("patient view cache invalidation failed", zap.String("patient_id", id), zap.Error(err))
	}
}

// NopViewCache is used when redis.enabled is false.
type NopViewCache struct{}

func (NopViewCache) Get(ctx context.Context, id string) (*View, bool) { return nil, false }
func (NopViewCache) Set(ctx context.Context, v View)                  {}
func (NopViewCache) Invalidate(ctx context.Context, id string)        {}
