// Package cache holds small lookup caches shared by the geocoder and the
// distance estimator. Failures are treated as misses.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Memory is a tiny in-memory cache with a fixed TTL.
type Memory struct {
	mu    sync.RWMutex
	store map[string]entry
	ttl   time.Duration
}

type entry struct {
	v  []byte
	ts time.Time
}

// NewMemory creates a cache with the provided TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{store: make(map[string]entry), ttl: ttl}
}

// Get returns cached value and true if present and not expired.
func (c *Memory) Get(_ context.Context, k string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

func (c *Memory) Set(_ context.Context, k string, v []byte) {
	c.mu.Lock()
	c.store[k] = entry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Redis stores entries under a key prefix with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.client.Get(ctx, r.prefix+k).Bytes()
	if err != nil {
		// redis.Nil and transport errors both read as a miss
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, k string, v []byte) {
	_ = r.client.Set(ctx, r.prefix+k, v, r.ttl).Err()
}
