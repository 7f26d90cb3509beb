package httpclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig describes an exponential retry policy in plain values, for
// use with the presets below or with file configuration.
//
// Example:
//
//	cfg := httpclient.DefaultRetryConfig()
//	cfg.MaxRetries = 5
//	client := httpclient.New(
//	    httpclient.WithRetryPolicy(cfg.Policy()),
//	)
type RetryConfig struct {
	// MaxRetries is the maximum number of retries after the first attempt.
	// Zero disables retries.
	MaxRetries int

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps each delay.
	MaxInterval time.Duration

	// Multiplier grows the delay between retries.
	Multiplier float64

	// JitterFactor randomises each delay by ±JitterFactor.
	JitterFactor float64
}

// Default values for RetryConfig.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
	DefaultMultiplier      = 2.0
	DefaultJitterFactor    = 0.5
)

// DefaultRetryConfig returns 3 retries starting at 500ms, doubling, capped
// at 30s, with ±50% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

// AggressiveRetryConfig returns 5 retries starting at 200ms, for
// idempotent operations that must succeed.
func AggressiveRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// ConservativeRetryConfig returns 2 retries starting at 1s, for expensive
// or rate-limited services.
func ConservativeRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 1 * time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	}
}

// NoRetryConfig disables retries.
func NoRetryConfig() RetryConfig {
	return RetryConfig{}
}

// IsEnabled reports whether the config allows any retry.
func (c RetryConfig) IsEnabled() bool {
	return c.MaxRetries > 0
}

// Strategy returns the delay strategy of the config.
func (c RetryConfig) Strategy() RetryStrategy {
	return BackOffStrategy(func() backoff.BackOff {
		return ExponentialBackOffFromConfig(c)
	})
}

// Policy returns a DefaultRetryPolicy built from the config, retrying the
// RetryableStatuses and status-less failures.
func (c RetryConfig) Policy() *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		MaxRetries: c.MaxRetries,
		Strategy:   c.Strategy(),
	}
}
