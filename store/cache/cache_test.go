package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set(ctx, "a", "value-a")

	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "value-a", v)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.SetWithTTL(ctx, "short", 1, 10*time.Millisecond)

	_, ok := c.Get(ctx, "short")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get(ctx, "short")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Size())
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()

	evicted := map[string]any{}
	c := New(Config{
		DefaultTTL: time.Minute,
		OnEviction: func(key string, value any) { evicted[key] = value },
	})
	defer c.Close()

	c.Set(ctx, "a", 1)
	c.Delete(ctx, "a")

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, evicted["a"])

	// Deleting an absent key is a no-op.
	c.Delete(ctx, "a")
	assert.Equal(t, int64(0), c.Size())
}

func TestCacheMaxItemsEviction(t *testing.T) {
	ctx := context.Background()
	c := New(Config{DefaultTTL: time.Minute, MaxItems: 3})
	defer c.Close()

	// The entry closest to expiry is evicted when the cap is reached.
	c.SetWithTTL(ctx, "oldest", 1, time.Second)
	c.SetWithTTL(ctx, "mid", 2, time.Minute)
	c.SetWithTTL(ctx, "newest", 3, time.Hour)

	c.Set(ctx, "overflow", 4)

	assert.Equal(t, int64(3), c.Size())
	_, ok := c.Get(ctx, "oldest")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "overflow")
	assert.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("key-%d", i), i)
	}
	require.Equal(t, int64(5), c.Size())

	c.Clear(ctx)
	assert.Equal(t, int64(0), c.Size())
}

func TestCacheOverwriteKeepsSize(t *testing.T) {
	ctx := context.Background()
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set(ctx, "a", 1)
	c.Set(ctx, "a", 2)

	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, int64(1), c.Size())
}
