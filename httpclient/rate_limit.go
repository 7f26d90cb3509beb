package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a wire attempt is rejected by the client
// rate limiter.
var ErrRateLimited = errors.New("httpclient: rate limit exceeded")

// RateLimitConfig configures client-side rate limiting of wire attempts.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is how many attempts may exceed the rate at once. Minimum 1.
	Burst int

	// WaitOnLimit waits for a token, bounded by the request context.
	// When false, attempts over the limit fail with ErrRateLimited.
	WaitOnLimit bool

	// PerHost keeps a separate limiter for every target host.
	PerHost bool
}

// DefaultRateLimitConfig returns 100 requests per second with a burst of
// 10, waiting for tokens.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// RateLimiterStats is a snapshot of a limiter.
type RateLimiterStats struct {
	Limit           float64
	Burst           int
	TokensAvailable float64
}

type rateLimitTransport struct {
	next http.RoundTripper
	cfg  RateLimitConfig

	shared *rate.Limiter

	mu     sync.RWMutex
	byHost map[string]*rate.Limiter
}

func newRateLimitTransport(next http.RoundTripper, cfg *RateLimitConfig) http.RoundTripper {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return next
	}
	rc := *cfg
	if rc.Burst <= 0 {
		rc.Burst = 1
	}
	t := &rateLimitTransport{next: next, cfg: rc}
	if rc.PerHost {
		t.byHost = make(map[string]*rate.Limiter)
	} else {
		t.shared = rate.NewLimiter(rate.Limit(rc.RequestsPerSecond), rc.Burst)
	}
	return t
}

// Unwrap returns the wrapped round tripper.
func (t *rateLimitTransport) Unwrap() http.RoundTripper {
	return t.next
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	limiter := t.limiter(req.URL.Host)
	ctx := req.Context()

	if !t.cfg.WaitOnLimit {
		if !limiter.Allow() {
			return nil, ErrRateLimited
		}
		return t.next.RoundTrip(req)
	}

	if err := limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// Wait fails early when the deadline cannot fit the reservation.
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return t.next.RoundTrip(req)
}

func (t *rateLimitTransport) limiter(host string) *rate.Limiter {
	if t.shared != nil {
		return t.shared
	}

	t.mu.RLock()
	l, ok := t.byHost[host]
	t.mu.RUnlock()
	if ok {
		return l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.byHost[host]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst)
	t.byHost[host] = l
	return l
}

// Stats returns a snapshot of the limiter for host. Host is ignored unless
// the limiter is per host.
func (t *rateLimitTransport) Stats(host string) RateLimiterStats {
	l := t.limiter(host)
	return RateLimiterStats{
		Limit:           float64(l.Limit()),
		Burst:           l.Burst(),
		TokensAvailable: l.Tokens(),
	}
}

// rateLimiterOf finds the rate limiting layer in the round tripper stack.
func rateLimiterOf(rt http.RoundTripper) *rateLimitTransport {
	for {
		switch t := rt.(type) {
		case *rateLimitTransport:
			return t
		case interface{ Unwrap() http.RoundTripper }:
			rt = t.Unwrap()
		default:
			return nil
		}
	}
}
