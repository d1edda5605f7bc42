package geo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCacheNilClient(t *testing.T) {
	assert.Nil(t, NewRedisCache(nil, "geo:"))
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCache(client, "test:geo:")
	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "rev:1,2", "Main St", time.Minute))
	val, ok, err := cache.Get(ctx, "rev:1,2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Main St", val)
}
