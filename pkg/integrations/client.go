package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/crateindex/pkg/cache"
	"github.com/matzehuels/crateindex/pkg/httputil"
	"github.com/matzehuels/crateindex/pkg/observability"
)

// Client provides shared HTTP functionality for registry API clients.
// It handles caching, retry logic, and common request headers.
type Client struct {
	http     *http.Client
	download *http.Client
	cache    cache.Cache
	prefix   string
	ttl      time.Duration
	headers  map[string]string
}

// NewClient creates a Client that caches responses in backend under
// keys built from prefix, for ttl. Headers are applied to all requests.
// Pass nil for headers if no default headers are needed.
func NewClient(backend cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	return &Client{
		http:     NewHTTPClient(),
		download: NewDownloadClient(),
		cache:    backend,
		prefix:   prefix,
		ttl:      ttl,
		headers:  headers,
	}
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	cacheKey := cache.HTTPKey(c.prefix, key)
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok && json.Unmarshal(data, v) == nil {
			observability.Cache().OnCacheHit(ctx, c.prefix)
			return nil
		}
		observability.Cache().OnCacheMiss(ctx, c.prefix)
	}
	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, cacheKey, data, c.ttl) == nil {
			observability.Cache().OnCacheSet(ctx, c.prefix, len(data))
		}
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	body, err := c.doRequest(ctx, c.http, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrNetwork, url, err)
	}
	return nil
}

// Download streams the body at url into w and returns the byte count.
// Failures while reading the body are retryable; the caller must discard
// whatever was written before retrying.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	body, err := c.doRequest(ctx, c.download, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	n, err := io.Copy(w, body)
	if err != nil {
		return n, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	return n, nil
}

func (c *Client) doRequest(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	host, path := hostPath(rawURL)
	observability.HTTP().OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, host, path, err)
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	observability.HTTP().OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func hostPath(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", rawURL
	}
	return u.Host, u.Path
}

func checkStatus(code int, retryAfter string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests, code >= 500:
		return &httputil.RetryableError{
			Err:   fmt.Errorf("%w: status %d", ErrNetwork, code),
			After: httputil.ParseRetryAfter(retryAfter, time.Now()),
		}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
