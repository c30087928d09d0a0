package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with Redis.
//
// A partition is a Redis hash named by its base key, holding one field per
// cache key. The native TTL applies to the whole hash and is refreshed by
// every write, which is why entries carry their own expiry.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a new store with Redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key, baseKey string) ([]byte, error) {
	var cmd *redis.StringCmd
	if baseKey == "" {
		cmd = s.redis.Get(ctx, key)
	} else {
		cmd = s.redis.HGet(ctx, baseKey, key)
	}

	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores an entry. Writing into a partition and refreshing its TTL
// happen in one MULTI/EXEC transaction.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, baseKey string) error {
	if baseKey == "" {
		if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("redis set: %w", err)
		}
		return nil
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, baseKey, key, value)
		if ttl > 0 {
			pipe.Expire(ctx, baseKey, ttl)
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *RedisStore) Delete(ctx context.Context, key, baseKey string) error {
	var err error
	if baseKey == "" {
		err = s.redis.Del(ctx, key).Err()
	} else {
		err = s.redis.HDel(ctx, baseKey, key).Err()
	}
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Exists reports whether the partition exists.
func (s *RedisStore) Exists(ctx context.Context, baseKey string) (bool, error) {
	n, err := s.redis.Exists(ctx, baseKey).Result()
	if err != nil {
		CacheErrors.WithLabelValues("exists").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Invalidate drops every entry of the partition.
func (s *RedisStore) Invalidate(ctx context.Context, baseKey string) error {
	if err := s.redis.Del(ctx, baseKey).Err(); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}
