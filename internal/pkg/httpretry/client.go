// Package httpretry retries transient upstream failures (429 and 5xx,
// network errors) with capped exponential backoff and full jitter. It is
// used under the live signal source and the SMS/push gateway.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/dormant-leads/internal/pkg/logger"
)

// Transport is an http.RoundTripper that retries transient failures.
type Transport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wraps base (http.DefaultTransport when nil). maxRetries counts retries
// after the first attempt; values ≤ 0 mean 3.
func New(base http.RoundTripper, maxRetries int) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Transport{
		Base:       base,
		MaxRetries: maxRetries,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		sleep:      sleepCtx,
	}
}

// NewClient returns an *http.Client with a retrying transport and an overall
// per-request timeout.
func NewClient(timeout time.Duration, maxRetries int) *http.Client {
	return &http.Client{Timeout: timeout, Transport: New(nil, maxRetries)}
}

// RoundTrip sends req, retrying 429/5xx responses and network errors. The
// last retryable response is returned as-is so callers can read its body.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= t.MaxRetries; attempt++ {
		if attempt > 0 {
			if req.Body != nil && req.GetBody == nil {
				// Body cannot be replayed.
				break
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := t.Base.RoundTrip(req)
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			wait = t.backoff(attempt + 1)
		case !Retryable(resp.StatusCode) || attempt == t.MaxRetries:
			return resp, nil
		default:
			wait = retryAfter(resp.Header.Get("Retry-After"), t.MaxDelay)
			if wait == 0 {
				wait = t.backoff(attempt + 1)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: upstream returned %d", resp.StatusCode)
		}

		if attempt == t.MaxRetries {
			break
		}
		logger.Debug("httpretry: retrying",
			"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
			"attempt", attempt+1, "wait", wait.String())
		if err := t.sleep(ctx, wait); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// backoff is random(0, min(MaxDelay, BaseDelay·2^(n-1))) with a 50ms floor.
func (t *Transport) backoff(n int) time.Duration {
	exp := float64(t.BaseDelay) * math.Pow(2, float64(n-1))
	if exp > float64(t.MaxDelay) {
		exp = float64(t.MaxDelay)
	}
	d := time.Duration(rand.Float64() * exp)
	if d < 50*time.Millisecond {
		d = 50 * time.Millisecond
	}
	return d
}

// retryAfter parses a delta-seconds Retry-After header, capped at max.
// HTTP-date values are ignored.
func retryAfter(v string, max time.Duration) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

// Retryable reports whether status is a transient upstream failure.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
