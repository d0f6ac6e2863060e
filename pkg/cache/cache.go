// Package cache provides byte-oriented caches for registry responses.
//
// Three backends implement [Cache]:
//
//   - [FileCache]: JSON entry files under a directory, for the CLI
//   - [RedisCache]: a shared Redis instance, for `crateindex serve`
//     deployments running several replicas
//   - [MemoryCache]: an in-process TTL map
//
// [NullCache] disables caching.
//
// Keys are free-form strings. Use [HTTPKey] to namespace registry
// responses so that entries from different endpoints never collide.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values with an optional time-to-live.
//
// Get reports a miss as (nil, false, nil); expired entries are misses.
// A ttl of 0 passed to Set means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// HTTPKey builds the cache key for a registry response.
func HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}
