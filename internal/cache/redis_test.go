package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cache := NewRedisCache(&CacheConfig{
		Addr:         mr.Addr(),
		PoolSize:     5,
		MaxRetries:   -1,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		Breaker: &CircuitBreakerConfig{
			MaxFailures:      2,
			Timeout:          time.Hour,
			HalfOpenMaxCalls: 1,
		},
	})
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 3*time.Second, config.OpTimeout)
}

func TestNewRedisCache_WithNilConfig(t *testing.T) {
	cache := NewRedisCache(nil)
	defer cache.Close()

	require.NotNil(t, cache.client)
	require.NotNil(t, cache.breaker)
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "task:1", payload{Name: "a", Count: 2}, time.Minute))
	assert.True(t, mr.Exists("task:1"))

	var got payload
	require.NoError(t, cache.Get(ctx, "task:1", &got))
	assert.Equal(t, payload{Name: "a", Count: 2}, got)
}

func TestRedisCache_Expiration(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", "v", time.Second))
	mr.FastForward(2 * time.Second)

	var got string
	assert.ErrorIs(t, cache.Get(ctx, "short", &got), ErrCacheMiss)
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	var got payload
	err := cache.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, StateClosed, cache.breaker.State())
}

func TestRedisCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, cache.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, cache.Delete(ctx, "a", "b", "missing"))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	assert.NoError(t, cache.Delete(ctx))
}

func TestRedisCache_CorruptValue(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("task:9", "{not json"))

	var got payload
	err := cache.Get(context.Background(), "task:9", &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestRedisCache_BreakerOpensWhenRedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	mr.Close()

	var got payload
	assert.Error(t, cache.Get(ctx, "k", &got))
	assert.Error(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, StateOpen, cache.breaker.State())

	err := cache.Set(ctx, "k", "v", time.Minute)
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestRedisCache_Health(t *testing.T) {
	cache, mr := setupTestRedis(t)

	assert.NoError(t, cache.Ping(context.Background()))

	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}

func TestRedisCache_Stats(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	var v string
	require.NoError(t, cache.Get(ctx, "k", &v))
	assert.ErrorIs(t, cache.Get(ctx, "nope", &v), ErrCacheMiss)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
	assert.Equal(t, int64(1), stats["sets"])
	assert.Equal(t, 50.0, stats["hit_rate"])
}

func TestErrCacheMiss(t *testing.T) {
	assert.Equal(t, "cache miss", ErrCacheMiss.Error())
}
