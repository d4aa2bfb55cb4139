package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCacheStore implements DistributedCache for Redis. On the write path
// it is used only to clear shared keys; reads stay on the per-process
// cache and rely on the invalidation channel for cross-replica freshness.
type RedisCacheStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCacheStore creates a new Redis cache store
func NewRedisCacheStore(host string, port int, password string, db, poolSize, minIdleConns int, logger *zap.Logger) (*RedisCacheStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCacheStore{
		client: client,
		logger: logger,
	}, nil
}

// Client returns the underlying Redis client for shared use
func (s *RedisCacheStore) Client() *redis.Client {
	return s.client
}

// Get retrieves a cached value
func (s *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a value with TTL
func (s *RedisCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Invalidate removes the given keys so any replica reading them sees a miss
func (s *RedisCacheStore) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection
func (s *RedisCacheStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisCacheStore) Close() error {
	return s.client.Close()
}
