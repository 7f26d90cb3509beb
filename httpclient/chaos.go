package httpclient

import (
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// ErrChaosInjected is the cause of simulated network errors.
var ErrChaosInjected = errors.New("httpclient: chaos simulated network error")

// ChaosConfig injects faults into wire attempts, to exercise retry
// policies and breakers outside production.
//
//	client := httpclient.New(
//	    httpclient.WithChaos(httpclient.ChaosConfig{LatencyMs: 200, ErrorRate: 0.1}),
//	)
type ChaosConfig struct {
	// LatencyMs delays every attempt.
	LatencyMs int

	// LatencyJitterMs adds up to this many milliseconds on top of LatencyMs.
	LatencyJitterMs int

	// ErrorRate is the probability (0.0 - 1.0) of a simulated dial error.
	ErrorRate float64

	// TimeoutRate is the probability (0.0 - 1.0) of hanging until the
	// attempt context ends.
	TimeoutRate float64
}

// Delay returns the latency to inject, jitter included.
func (c ChaosConfig) Delay() time.Duration {
	delay := time.Duration(c.LatencyMs) * time.Millisecond
	if c.LatencyJitterMs > 0 {
		delay += time.Duration(rand.IntN(c.LatencyJitterMs)) * time.Millisecond //nolint:gosec
	}
	return delay
}

func (c ChaosConfig) roll(p float64) bool {
	return p > 0 && rand.Float64() < p //nolint:gosec
}

type chaosTransport struct {
	next   http.RoundTripper
	config ChaosConfig
}

func newChaosTransport(next http.RoundTripper, cfg *ChaosConfig) http.RoundTripper {
	if cfg == nil {
		return next
	}
	return &chaosTransport{next: next, config: *cfg}
}

// Unwrap returns the wrapped round tripper.
func (t *chaosTransport) Unwrap() http.RoundTripper {
	return t.next
}

// RoundTrip implements http.RoundTripper.
func (t *chaosTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.config.roll(t.config.TimeoutRate) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if t.config.roll(t.config.ErrorRate) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ErrChaosInjected}
	}

	if delay := t.config.Delay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return t.next.RoundTrip(req)
}
