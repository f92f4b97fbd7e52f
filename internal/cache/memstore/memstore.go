// Package memstore is an in-process cache.Store used when no Redis address
// is configured and in tests.
package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
)

type item struct {
	val     []byte
	expires time.Time
}

// Store keeps at most size entries. Entries expire after the ttl passed to
// Set or after maxTTL, whichever comes first.
type Store struct {
	lru *expirable.LRU[string, item]
	now func() time.Time
}

func New(size int, maxTTL time.Duration) *Store {
	return &Store{
		lru: expirable.NewLRU[string, item](size, nil, maxTTL),
		now: time.Now,
	}
}

func (s *Store) get(key string) ([]byte, bool) {
	it, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !it.expires.IsZero() && !s.now().Before(it.expires) {
		s.lru.Remove(key)
		return nil, false
	}
	return it.val, true
}

func (s *Store) put(key string, val []byte, ttl time.Duration) {
	it := item{val: append([]byte(nil), val...)}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.lru.Add(key, it)
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memstore MGET: %w", err)
	}
	start := time.Now()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := s.get(k); ok {
			out[k] = v
		}
	}
	res := "ok"
	if len(out) < len(keys) {
		res = "miss"
	}
	observability.ObserveStoreOp("mget", res, time.Since(start).Seconds())
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore SET %q: %w", key, err)
	}
	start := time.Now()
	s.put(key, val, ttl)
	observability.ObserveStoreOp("set", "ok", time.Since(start).Seconds())
	return nil
}

func (s *Store) MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore MSET: %w", err)
	}
	start := time.Now()
	for k, v := range kv {
		s.put(k, v, ttl)
	}
	observability.ObserveStoreOp("mset", "ok", time.Since(start).Seconds())
	return nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore DEL: %w", err)
	}
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, ttl time.Duration, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore EXPIRE: %w", err)
	}
	for _, k := range keys {
		if v, ok := s.get(k); ok {
			s.put(k, v, ttl)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }
