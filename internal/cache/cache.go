// Package cache defines the key/value store that persists viewing sessions.
package cache

import (
	"context"
	"time"
)

// Store is implemented by redisstore.Client and memstore.Store.
type Store interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Expire resets the ttl of existing keys; missing keys are ignored.
	Expire(ctx context.Context, ttl time.Duration, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
