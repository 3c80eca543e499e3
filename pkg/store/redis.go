package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by Redis.
const DefaultRedisPrefix = "ya:"

// RedisOptions configures a Redis store.
type RedisOptions struct {
	// Prefix is prepended to every key (default DefaultRedisPrefix).
	Prefix string

	// TTL expires mirrored values; zero keeps them until overwritten.
	TTL time.Duration
}

// Redis stores values in Redis.
type Redis struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed store.
func NewRedis(redisClient *redis.Client, opts RedisOptions) *Redis {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultRedisPrefix
	}
	return &Redis{
		redis:  redisClient,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			StoreMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrNotFound
		}
		StoreErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	StoreHits.WithLabelValues(backendRedis).Inc()
	return data, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.redis.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		StoreErrors.WithLabelValues(backendRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	StoreWrittenBytes.WithLabelValues(backendRedis).Add(float64(len(value)))
	return nil
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		StoreErrors.WithLabelValues(backendRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
