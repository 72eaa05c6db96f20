package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"intentScope/internal/model"
	"intentScope/internal/retry"
)

const DefaultMaxInFlight = 10

// Config configures a Transport.
type Config struct {
	MaxInFlight int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Base        http.RoundTripper
	OnRetry     func(host string, attempt int, wait time.Duration, err error)
}

// Transport is an http.RoundTripper that retries 429/5xx and connection
// failures with exponential backoff and caps concurrent in-flight requests.
// A slot is held from dial until the response body is closed.
type Transport struct {
	base    http.RoundTripper
	sem     *semaphore.Weighted
	policy  retry.Policy
	onRetry func(host string, attempt int, wait time.Duration, err error)
}

// New builds a Transport.
func New(cfg Config) *Transport {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base: base,
		sem:  semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
		},
		onRetry: cfg.OnRetry,
	}
}

// NewHTTPClient wraps t in an http.Client.
func NewHTTPClient(t *Transport, timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

type statusError struct {
	code int
	wait time.Duration
}

func (e *statusError) Error() string             { return fmt.Sprintf("http status %d", e.code) }
func (e *statusError) RetryAfter() time.Duration { return e.wait }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Host

	policy := t.policy
	policy.Retryable = func(err error) bool {
		var perm *permanentError
		if errors.As(err, &perm) {
			return false
		}
		return ctx.Err() == nil
	}
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		if t.onRetry != nil {
			t.onRetry(host, attempt, wait, err)
		}
	}

	var resp *http.Response
	first := true
	attempts, err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attemptReq, err := rewind(req, first)
		first = false
		if err != nil {
			return &permanentError{err: err}
		}
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		r, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			t.sem.Release(1)
			return err
		}
		if retryableStatus(r.StatusCode) {
			wait := parseRetryAfter(r.Header.Get("Retry-After"), time.Now())
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
			r.Body.Close()
			t.sem.Release(1)
			return &statusError{code: r.StatusCode, wait: wait}
		}
		r.Body = &releasingBody{ReadCloser: r.Body, release: func() { t.sem.Release(1) }}
		resp = r
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return nil, perm.err
		}
		netErr := &model.NetworkError{
			Op:       req.Method + " " + host,
			Attempts: attempts,
			Err:      err,
		}
		var status *statusError
		if errors.As(err, &status) {
			netErr.StatusCode = status.code
		}
		return nil, netErr
	}
	return resp, nil
}

func rewind(req *http.Request, first bool) (*http.Request, error) {
	if first || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body of %s cannot be replayed", req.URL.Redacted())
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
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
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
