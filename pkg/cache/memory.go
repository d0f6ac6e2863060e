package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps entries in process memory. Expired entries are
// evicted by a background janitor every cleanupInterval.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	return data, ok, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, data, ttl)
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (m *MemoryCache) Len() int { return m.c.ItemCount() }

func (m *MemoryCache) Close() error {
	m.c.Flush()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
