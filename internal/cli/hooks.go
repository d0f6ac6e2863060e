package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/crateindex/pkg/observability"
)

// debugHooks traces registry, cache, extraction and catalog events at debug
// level. Crawl events are already logged by the crawler itself.
type debugHooks struct {
	logger *log.Logger
}

// installDebugHooks registers debugHooks when l logs at debug level.
func installDebugHooks(l *log.Logger) {
	if l.GetLevel() > log.DebugLevel {
		return
	}
	h := &debugHooks{logger: l.WithPrefix("trace")}
	observability.SetHTTPHooks(h)
	observability.SetCacheHooks(h)
	observability.SetExtractHooks(h)
	observability.SetStoreHooks(h)
}

func (h *debugHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h *debugHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "host", host, "path", path, "status", status, "took", d.Round(time.Millisecond))
}

func (h *debugHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}

func (h *debugHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *debugHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *debugHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *debugHooks) OnExtractStart(_ context.Context, key string) {
	h.logger.Debug("extract", "package", key)
}

func (h *debugHooks) OnFileSkipped(_ context.Context, key, file string, err error) {
	h.logger.Debug("file skipped", "package", key, "file", file, "err", err)
}

func (h *debugHooks) OnExtractComplete(_ context.Context, key string, files, decls int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("extract failed", "package", key, "err", err)
		return
	}
	h.logger.Debug("extracted", "package", key, "files", files, "declarations", decls, "took", d.Round(time.Millisecond))
}

func (h *debugHooks) OnReplace(_ context.Context, key string, rows int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("store failed", "package", key, "err", err)
		return
	}
	h.logger.Debug("stored", "package", key, "rows", rows, "took", d.Round(time.Millisecond))
}
