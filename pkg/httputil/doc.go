// Package httputil provides HTTP utilities for registry clients.
//
// # Retry
//
// [Retry] wraps registry requests with automatic retry for transient
// failures:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limiting, waiting as long as Retry-After asks
//
// Callers mark an error as transient by wrapping it in [RetryableError];
// everything else is returned immediately. The delay doubles after every
// attempt, capped at [MaxDelay]:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    ...
//	})
//
// [RetryWithBackoff] applies the defaults used by the crates.io client:
// 3 attempts, starting at 1 second.
//
// Response caching lives in package cache.
package httputil
