package retry

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// Policy controls Do. Zero values fall back to the defaults above.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether err deserves another attempt. Nil retries everything.
	Retryable func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Hinted is implemented by errors that carry a server-provided wait, e.g. Retry-After.
type Hinted interface {
	RetryAfter() time.Duration
}

// Do runs fn until it succeeds, fails with a non-retryable error, or runs out
// of attempts. It returns the attempt count alongside the final error.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) (int, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return attempt + 1, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		wait := Backoff(p.BaseDelay, p.MaxDelay, attempt)
		var hinted Hinted
		if errors.As(err, &hinted) && hinted.RetryAfter() > 0 {
			wait = hinted.RetryAfter()
			if wait > p.MaxDelay {
				wait = p.MaxDelay
			}
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, ctx.Err()
		case <-timer.C:
		}
	}

	return p.MaxAttempts, lastErr
}

// Backoff returns base * 2^attempt capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return max
	}
	wait := base << uint(attempt)
	if wait <= 0 || wait > max {
		return max
	}
	return wait
}
