package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlot stores values as plain Redis strings under an optional key prefix.
type RedisSlot struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSlot wraps client. Keys are stored under "prefix:". A zero ttl keeps
// values forever.
func NewRedisSlot(client *redis.Client, prefix string, ttl time.Duration) *RedisSlot {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisSlot{client: client, prefix: prefix, ttl: ttl}
}

// OpenRedisSlot parses url (redis://...) and pings the server.
func OpenRedisSlot(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisSlot, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisSlot(client, prefix, ttl), nil
}

// Get fetches key; redis.Nil maps to a missing value.
func (s *RedisSlot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !validKey(key) {
		return nil, false, ErrInvalidKey
	}
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes key with the configured ttl.
func (s *RedisSlot) Set(ctx context.Context, key string, value []byte) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisSlot) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisSlot) Close() error {
	return s.client.Close()
}
