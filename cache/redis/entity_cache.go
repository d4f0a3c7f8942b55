package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// EntityCache implements cache.EntityCache on Redis, for deployments where
// several server processes must share one invalidation domain.
type EntityCache struct {
	client *redis.Client
	prefix string
}

// NewEntityCache creates a Redis-backed entity cache. prefix namespaces the
// keys so several logical caches can share one Redis.
func NewEntityCache(client *redis.Client, prefix string) *EntityCache {
	return &EntityCache{
		client: client,
		prefix: prefix,
	}
}

func (r *EntityCache) redisKey(key string) string {
	return fmt.Sprintf("%s:entity:%s", r.prefix, key)
}

func (r *EntityCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("entity cache read failed")
		}
		return nil, false
	}
	return val, true
}

func (r *EntityCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, r.redisKey(key), value, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("entity cache write failed")
	}
}

func (r *EntityCache) Invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("entity cache invalidate failed")
	}
}

func (r *EntityCache) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, r.redisKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("entity cache clear failed")
		}
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("entity cache scan failed")
	}
}
