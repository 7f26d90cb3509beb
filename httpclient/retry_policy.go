package httpclient

import (
	"context"
	"time"
)

// RetryDecision is the answer of a RetryPolicy.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// DoNotRetry is the decision to stop.
var DoNotRetry = RetryDecision{}

// RetryAfter is the decision to retry after delay.
func RetryAfter(delay time.Duration) RetryDecision {
	return RetryDecision{Retry: true, Delay: delay}
}

// RetryPolicy decides whether a failed attempt is retried. status is zero
// when no response was received.
type RetryPolicy interface {
	ShouldRetry(ctx context.Context, attempt, status int, err error) RetryDecision
}

// RetryPolicyFunc adapts a function to RetryPolicy.
type RetryPolicyFunc func(ctx context.Context, attempt, status int, err error) RetryDecision

// ShouldRetry implements RetryPolicy.
func (f RetryPolicyFunc) ShouldRetry(ctx context.Context, attempt, status int, err error) RetryDecision {
	return f(ctx, attempt, status, err)
}

// RetryHandler vetoes retries the policy would otherwise grant. Return
// false to veto.
type RetryHandler func(attempt, status int, err error) bool

// DefaultRetryPolicy retries when all of the following hold:
//   - attempt < MaxRetries
//   - the status is absent or in Retryable
//   - Handler, if set, does not veto
//
// Example - 2 retries, 100ms apart:
//
//	policy := &httpclient.DefaultRetryPolicy{
//	    MaxRetries: 2,
//	    Strategy:   httpclient.FixedStrategy(100 * time.Millisecond),
//	}
type DefaultRetryPolicy struct {
	// MaxRetries bounds the retries of one task.
	MaxRetries int

	// Retryable is the set of retryable statuses. Empty means
	// RetryableStatuses.
	Retryable StatusSet

	// Strategy computes the delay. Nil means InstantStrategy.
	Strategy RetryStrategy

	// Handler can veto individual retries.
	Handler RetryHandler
}

// NewRetryPolicy returns a policy with maxRetries and strategy, retrying
// RetryableStatuses.
func NewRetryPolicy(maxRetries int, strategy RetryStrategy) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{MaxRetries: maxRetries, Strategy: strategy}
}

// ShouldRetry implements RetryPolicy.
func (p *DefaultRetryPolicy) ShouldRetry(_ context.Context, attempt, status int, err error) RetryDecision {
	if attempt >= p.MaxRetries {
		return DoNotRetry
	}

	retryable := p.Retryable
	if retryable.Len() == 0 {
		retryable = RetryableStatuses
	}
	if status != 0 && !retryable.Contains(status) {
		return DoNotRetry
	}

	if p.Handler != nil && !p.Handler(attempt, status, err) {
		return DoNotRetry
	}

	strategy := p.Strategy
	if strategy == nil {
		strategy = InstantStrategy()
	}
	delay := strategy.Delay(attempt)
	if delay < 0 {
		return DoNotRetry
	}
	return RetryAfter(delay)
}
