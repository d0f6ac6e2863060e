// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about crawls, extraction, catalog writes, cache operations and
// registry calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetCrawlHooks(&myCrawlHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Crawl().OnWaveStart(ctx, runID, wave, pending)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Crawl Hooks
// =============================================================================

// CrawlHooks receives events from the crawl orchestrator.
type CrawlHooks interface {
	OnWaveStart(ctx context.Context, runID string, wave, pending int)
	OnPackageIndexed(ctx context.Context, runID, key string, declarations int)
	OnPackageSkipped(ctx context.Context, runID, name string, err error)
	OnCrawlComplete(ctx context.Context, runID string, indexed, skipped int, duration time.Duration, err error)
}

// =============================================================================
// Extract Hooks
// =============================================================================

// ExtractHooks receives events from source extraction.
type ExtractHooks interface {
	OnExtractStart(ctx context.Context, key string)
	OnFileSkipped(ctx context.Context, key, file string, err error)
	OnExtractComplete(ctx context.Context, key string, files, declarations int, duration time.Duration, err error)
}

// =============================================================================
// Store Hooks
// =============================================================================

// StoreHooks receives events from catalog writes.
type StoreHooks interface {
	OnReplace(ctx context.Context, key string, rows int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCrawlHooks is a no-op implementation of CrawlHooks.
type NoopCrawlHooks struct{}

func (NoopCrawlHooks) OnWaveStart(context.Context, string, int, int)           {}
func (NoopCrawlHooks) OnPackageIndexed(context.Context, string, string, int)   {}
func (NoopCrawlHooks) OnPackageSkipped(context.Context, string, string, error) {}
func (NoopCrawlHooks) OnCrawlComplete(context.Context, string, int, int, time.Duration, error) {
}

// NoopExtractHooks is a no-op implementation of ExtractHooks.
type NoopExtractHooks struct{}

func (NoopExtractHooks) OnExtractStart(context.Context, string)               {}
func (NoopExtractHooks) OnFileSkipped(context.Context, string, string, error) {}
func (NoopExtractHooks) OnExtractComplete(context.Context, string, int, int, time.Duration, error) {
}

// NoopStoreHooks is a no-op implementation of StoreHooks.
type NoopStoreHooks struct{}

func (NoopStoreHooks) OnReplace(context.Context, string, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	crawlHooks   CrawlHooks   = NoopCrawlHooks{}
	extractHooks ExtractHooks = NoopExtractHooks{}
	storeHooks   StoreHooks   = NoopStoreHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	hooksMu      sync.RWMutex
)

// SetCrawlHooks registers custom crawl hooks.
// This should be called once at application startup.
func SetCrawlHooks(h CrawlHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		crawlHooks = h
	}
}

// SetExtractHooks registers custom extraction hooks.
func SetExtractHooks(h ExtractHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		extractHooks = h
	}
}

// SetStoreHooks registers custom store hooks.
func SetStoreHooks(h StoreHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storeHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Crawl returns the registered crawl hooks.
func Crawl() CrawlHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return crawlHooks
}

// Extract returns the registered extraction hooks.
func Extract() ExtractHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return extractHooks
}

// Store returns the registered store hooks.
func Store() StoreHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storeHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	crawlHooks = NoopCrawlHooks{}
	extractHooks = NoopExtractHooks{}
	storeHooks = NoopStoreHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
