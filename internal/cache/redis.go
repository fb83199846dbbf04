package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tasks-api/internal/logging"
)

var ErrCacheMiss = errors.New("cache miss")

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	OpTimeout    time.Duration
	Breaker      *CircuitBreakerConfig
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		OpTimeout:    3 * time.Second,
	}
}

// RedisCache stores JSON encoded values. Every call goes through a circuit
// breaker; a miss does not count as a failure.
type RedisCache struct {
	client    *redis.Client
	breaker   *CircuitBreaker
	opTimeout time.Duration

	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	breakerCfg := config.Breaker
	if breakerCfg == nil {
		breakerCfg = DefaultCircuitBreakerConfig()
	}
	if breakerCfg.OnStateChange == nil {
		cfg := *breakerCfg
		cfg.OnStateChange = func(from, to BreakerState) {
			logging.Warn().Str("from", from.String()).Str("to", to.String()).Msg("cache circuit breaker changed state")
		}
		breakerCfg = &cfg
	}

	opTimeout := config.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}

	return &RedisCache{
		client:    rdb,
		breaker:   NewCircuitBreaker(breakerCfg),
		opTimeout: opTimeout,
	}
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
		return r.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		r.errors.Add(1)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	r.sets.Add(1)
	return nil
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	miss := false

	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()

		raw, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		data = raw
		return err
	})
	if err != nil {
		r.errors.Add(1)
		return fmt.Errorf("failed to get from cache: %w", err)
	}
	if miss {
		r.misses.Add(1)
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	r.hits.Add(1)
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
		return r.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		r.errors.Add(1)
		return fmt.Errorf("failed to delete from cache: %w", err)
	}

	r.deletes.Add(int64(len(keys)))
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]interface{} {
	hits, misses := r.hits.Load(), r.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100.0
	}

	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":       hits,
		"misses":     misses,
		"errors":     r.errors.Load(),
		"sets":       r.sets.Load(),
		"deletes":    r.deletes.Load(),
		"hit_rate":   hitRate,
		"pool_total": poolStats.TotalConns,
		"pool_idle":  poolStats.IdleConns,
		"breaker":    r.breaker.Stats(),
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
