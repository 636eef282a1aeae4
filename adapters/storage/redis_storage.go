package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/layer-3/esrlink/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys
const DefaultRedisPrefix = "esrlink:"

// RedisStorage is a Redis implementation of the Storage interface
type RedisStorage struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStorage creates a new Redis storage, keys are namespaced with prefix
func NewRedisStorage(client redis.Cmdable, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{
		client: client,
		prefix: prefix,
	}
}

var _ ports.Storage = (*RedisStorage)(nil)

// Write stores data at key without expiration
func (s *RedisStorage) Write(ctx context.Context, key, data string) error {
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Read returns the data stored at key
func (s *RedisStorage) Read(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return val, true, nil
}

// Remove deletes key
func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
