package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryEntityCacheRoundTrip(t *testing.T) {
	c := NewMemoryEntityCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	_, ok := c.Get(ctx, DomainKey("d1"))
	assert.False(t, ok)

	c.Set(ctx, DomainKey("d1"), []byte(`{"id":"d1"}`), time.Minute)
	raw, ok := c.Get(ctx, DomainKey("d1"))
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"d1"}`, string(raw))

	c.Invalidate(ctx, DomainKey("d1"))
	_, ok = c.Get(ctx, DomainKey("d1"))
	assert.False(t, ok)
}

func TestMemoryEntityCacheExpiry(t *testing.T) {
	c := NewMemoryEntityCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, UserKey("u1"), []byte("x"), 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get(ctx, UserKey("u1"))
	assert.False(t, ok)
}

func TestMemoryEntityCacheClear(t *testing.T) {
	c := NewMemoryEntityCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, RoleKey("r1"), []byte("a"), time.Minute)
	c.Set(ctx, RoleKey("r2"), []byte("b"), time.Minute)
	c.Clear(ctx)

	_, ok := c.Get(ctx, RoleKey("r1"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, RoleKey("r2"))
	assert.False(t, ok)
}

func TestKeyBuildersAreNamespaced(t *testing.T) {
	assert.NotEqual(t, DomainKey("x"), ProjectKey("x"))
	assert.NotEqual(t, UserKey("x"), GroupKey("x"))
	assert.NotEqual(t, ProjectNameKey("d1", "n"), ProjectNameKey("d2", "n"))
}
