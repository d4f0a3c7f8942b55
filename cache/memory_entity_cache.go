package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryEntityCache implements EntityCache on ttlcache.
type MemoryEntityCache struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryEntityCache creates an in-memory entity cache. defaultTTL bounds
// staleness for entries set without an explicit TTL; expired entries are
// reaped by the ttlcache janitor goroutine.
func NewMemoryEntityCache(defaultTTL time.Duration) *MemoryEntityCache {
	c := ttlcache.New(
		ttlcache.WithTTL[string, []byte](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()

	return &MemoryEntityCache{cache: c}
}

func (m *MemoryEntityCache) Get(_ context.Context, key string) ([]byte, bool) {
	item := m.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (m *MemoryEntityCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.cache.Set(key, value, ttl)
}

func (m *MemoryEntityCache) Invalidate(_ context.Context, key string) {
	m.cache.Delete(key)
}

func (m *MemoryEntityCache) Clear(_ context.Context) {
	m.cache.DeleteAll()
}

// Close stops the janitor goroutine.
func (m *MemoryEntityCache) Close() {
	m.cache.Stop()
}
