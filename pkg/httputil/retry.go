package httputil

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// MaxDelay caps both the exponential backoff and server-requested waits.
const MaxDelay = 30 * time.Second

// RetryableError marks a transient failure. After, when positive, is the
// wait the server asked for (a Retry-After header) and replaces the
// backoff delay for the next attempt.
type RetryableError struct {
	Err   error
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retry calls fn until it succeeds, fails with an error that is not a
// [RetryableError], or has run attempts times. Between attempts it waits
// delay, doubling it each time, up to [MaxDelay]. The last error is
// returned; a cancelled ctx returns ctx.Err().
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		if i == attempts-1 {
			break
		}

		wait := delay
		if re.After > 0 {
			wait = re.After
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(wait, MaxDelay)):
		}
		delay = min(delay*2, MaxDelay)
	}
	return lastErr
}

// RetryWithBackoff runs [Retry] with the registry client defaults: three
// attempts starting at one second.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, 3, time.Second, fn)
}

// ParseRetryAfter reads a Retry-After header value, either delay seconds or
// an HTTP date, relative to now. Missing or malformed values give 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
