package httpclient

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryStrategy computes the delay before a retry. attempt is the zero-based
// number of the attempt that just failed. A negative delay means stop.
type RetryStrategy interface {
	Delay(attempt int) time.Duration
}

// StrategyFunc adapts a function to RetryStrategy.
type StrategyFunc func(attempt int) time.Duration

// Delay implements RetryStrategy.
func (f StrategyFunc) Delay(attempt int) time.Duration {
	return f(attempt)
}

// InstantStrategy retries without waiting.
func InstantStrategy() RetryStrategy {
	return StrategyFunc(func(int) time.Duration { return 0 })
}

// FixedStrategy waits the same delay before every retry.
func FixedStrategy(delay time.Duration) RetryStrategy {
	return StrategyFunc(func(int) time.Duration { return delay })
}

// ExponentialStrategy waits base × multiplier^attempt. With jitter the
// result is scaled by a uniform factor in [0.8, 1.2].
//
// Example with base=100ms, multiplier=2 and no jitter:
//
//	attempt 0: 100ms
//	attempt 1: 200ms
//	attempt 2: 400ms
func ExponentialStrategy(base time.Duration, multiplier float64, jitter bool) RetryStrategy {
	return StrategyFunc(func(attempt int) time.Duration {
		d := float64(base) * math.Pow(multiplier, float64(attempt))
		if jitter {
			//nolint:gosec // intentional weak rand for jitter (not cryptographic)
			d *= 0.8 + rand.Float64()*0.4
		}
		if d > math.MaxInt64 {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(d)
	})
}

// LinearStrategy grows the delay by a fixed increment, with jitter.
//
// Interval calculation: min(initial + attempt × increment, max) ± jitter
//
// Example with Initial=1s, Increment=500ms, JitterFactor=0.3:
//
//	Attempt 0: 1.0s ± 0.3s
//	Attempt 1: 1.5s ± 0.45s
//	Attempt 2: 2.0s ± 0.6s
type LinearStrategy struct {
	Initial      time.Duration
	Increment    time.Duration
	Max          time.Duration
	JitterFactor float64
}

// NewLinearStrategy returns a LinearStrategy with 500ms steps capped at 30s
// and ±50% jitter.
func NewLinearStrategy() LinearStrategy {
	return LinearStrategy{
		Initial:      500 * time.Millisecond,
		Increment:    500 * time.Millisecond,
		Max:          30 * time.Second,
		JitterFactor: 0.5,
	}
}

// Delay implements RetryStrategy.
func (s LinearStrategy) Delay(attempt int) time.Duration {
	d := s.Initial + time.Duration(attempt)*s.Increment
	if s.Max > 0 && d > s.Max {
		d = s.Max
	}
	return applyJitter(d, s.JitterFactor)
}

// DecorrelatedJitterStrategy spreads retries with AWS-style decorrelated
// jitter: each delay is random between Base and min(Cap, Base × 3^(attempt+1)).
//
// See: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
type DecorrelatedJitterStrategy struct {
	Base time.Duration
	Cap  time.Duration
}

// NewDecorrelatedJitterStrategy returns a strategy with a 500ms base and a
// 30s cap.
func NewDecorrelatedJitterStrategy() DecorrelatedJitterStrategy {
	return DecorrelatedJitterStrategy{
		Base: 500 * time.Millisecond,
		Cap:  30 * time.Second,
	}
}

// Delay implements RetryStrategy.
func (s DecorrelatedJitterStrategy) Delay(attempt int) time.Duration {
	upper := float64(s.Base) * math.Pow(3, float64(attempt+1))
	if upper > float64(s.Cap) {
		upper = float64(s.Cap)
	}
	return randomBetween(s.Base, time.Duration(upper))
}

// RetryTier is one fixed-delay phase of a TieredStrategy.
type RetryTier struct {
	// MaxRetries is how many retries this tier covers.
	MaxRetries int

	// Delay is the base delay of the tier, before jitter.
	Delay time.Duration
}

// TieredStrategy walks through fixed-delay tiers, then doubles from one
// minute per attempt up to MaxDelay.
//
// Example:
//
//	s := httpclient.TieredStrategy{
//	    Tiers: []httpclient.RetryTier{
//	        {MaxRetries: 5, Delay: time.Minute},
//	        {MaxRetries: 5, Delay: 2 * time.Minute},
//	    },
//	    MaxDelay:     10 * time.Minute,
//	    JitterFactor: 0.5,
//	}
type TieredStrategy struct {
	Tiers        []RetryTier
	MaxDelay     time.Duration
	JitterFactor float64
}

// Delay implements RetryStrategy.
func (s TieredStrategy) Delay(attempt int) time.Duration {
	return applyJitter(s.baseDelay(attempt), s.JitterFactor)
}

func (s TieredStrategy) baseDelay(attempt int) time.Duration {
	remaining := attempt
	fixed := 0
	for _, tier := range s.Tiers {
		if remaining < tier.MaxRetries {
			return tier.Delay
		}
		remaining -= tier.MaxRetries
		fixed += tier.MaxRetries
	}

	// time.Minute<<27 is the largest shift that fits in a Duration.
	exp := attempt - fixed
	if exp > 27 {
		exp = 27
	}
	delay := time.Minute << exp
	if s.MaxDelay > 0 && delay > s.MaxDelay {
		delay = s.MaxDelay
	}
	return delay
}

// Tier returns the one-based tier serving attempt, len(Tiers)+1 for the
// exponential phase.
func (s TieredStrategy) Tier(attempt int) int {
	remaining := attempt
	for i, tier := range s.Tiers {
		if remaining < tier.MaxRetries {
			return i + 1
		}
		remaining -= tier.MaxRetries
	}
	return len(s.Tiers) + 1
}

// BackOffStrategy adapts a cenkalti/backoff policy. newBackOff must return
// a fresh instance on every call; the delay for attempt n is the (n+1)-th
// NextBackOff of that instance, and backoff.Stop ends retrying.
//
// Example:
//
//	s := httpclient.BackOffStrategy(func() backoff.BackOff {
//	    return backoff.NewExponentialBackOff()
//	})
func BackOffStrategy(newBackOff func() backoff.BackOff) RetryStrategy {
	return StrategyFunc(func(attempt int) time.Duration {
		b := newBackOff()
		b.Reset()
		var d time.Duration
		for i := 0; i <= attempt; i++ {
			d = b.NextBackOff()
			if d == backoff.Stop {
				return -1
			}
		}
		return d
	})
}

// ExponentialBackOffFromConfig creates a cenkalti/backoff ExponentialBackOff
// from a RetryConfig, always applying some jitter.
func ExponentialBackOffFromConfig(cfg RetryConfig) *backoff.ExponentialBackOff {
	jitterFactor := cfg.JitterFactor
	if jitterFactor <= 0 {
		jitterFactor = DefaultJitterFactor
	}

	return &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialInterval,
		RandomizationFactor: jitterFactor,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxInterval,
	}
}

// applyJitter scales interval by a uniform factor in [1-f, 1+f].
func applyJitter(interval time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return interval
	}
	if jitterFactor > 1 {
		jitterFactor = 1
	}

	delta := float64(interval) * jitterFactor
	lo := float64(interval) - delta
	hi := float64(interval) + delta

	//nolint:gosec // intentional weak rand for jitter (not cryptographic)
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

// randomBetween returns a random duration in [minDur, maxDur).
//
//nolint:gosec // intentional weak rand for jitter (not cryptographic)
func randomBetween(minDur, maxDur time.Duration) time.Duration {
	if minDur >= maxDur {
		return minDur
	}
	return minDur + time.Duration(rand.Int64N(int64(maxDur-minDur)))
}
