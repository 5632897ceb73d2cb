// Package redis implements the tracking key-value store on top of Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/curation-tracker/internal/storage"
)

// Config controls the Redis connection.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	// Expiry is applied to every Set as a server-side safety net. Zero keeps
	// keys until they are deleted.
	Expiry time.Duration
}

// client is the subset of *goredis.Client the store needs.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Close() error
}

// KV stores values as Redis strings.
type KV struct {
	client client
	expiry time.Duration
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*KV, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &KV{client: rdb, expiry: cfg.Expiry}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(c client, expiry time.Duration) (*KV, error) {
	if c == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &KV{client: c, expiry: expiry}, nil
}

// Get returns the string stored under key.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set writes value under key.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, value, s.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KV) Delete(ctx context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *KV) Close() error {
	return s.client.Close()
}
