package httpclient

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
)

func TestFixedAndInstantStrategy(t *testing.T) {
	t.Parallel()

	for attempt := range 5 {
		assert.Equal(t, time.Duration(0), InstantStrategy().Delay(attempt))
		assert.Equal(t, 100*time.Millisecond, FixedStrategy(100*time.Millisecond).Delay(attempt))
	}
}

func TestExponentialStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jitter  bool
		attempt int
		wantMin time.Duration
		wantMax time.Duration
	}{
		{name: "given attempt 0, then returns base", attempt: 0, wantMin: 100 * time.Millisecond, wantMax: 100 * time.Millisecond},
		{name: "given attempt 1, then doubles", attempt: 1, wantMin: 200 * time.Millisecond, wantMax: 200 * time.Millisecond},
		{name: "given attempt 2, then quadruples", attempt: 2, wantMin: 400 * time.Millisecond, wantMax: 400 * time.Millisecond},
		{
			name:    "given jitter, then stays within 20 percent",
			jitter:  true,
			attempt: 2,
			wantMin: 320 * time.Millisecond,
			wantMax: 480 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := ExponentialStrategy(100*time.Millisecond, 2, tt.jitter)
			for range 20 {
				got := s.Delay(tt.attempt)
				assert.GreaterOrEqual(t, got, tt.wantMin)
				assert.LessOrEqual(t, got, tt.wantMax)
			}
		})
	}
}

func TestLinearStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		strategy  LinearStrategy
		wantDelay []time.Duration
	}{
		{
			name: "given no jitter, then increases linearly",
			strategy: LinearStrategy{
				Initial:   500 * time.Millisecond,
				Increment: 500 * time.Millisecond,
				Max:       30 * time.Second,
			},
			wantDelay: []time.Duration{
				500 * time.Millisecond,
				1 * time.Second,
				1500 * time.Millisecond,
				2 * time.Second,
				2500 * time.Millisecond,
			},
		},
		{
			name: "given max interval, then caps at max",
			strategy: LinearStrategy{
				Initial:   1 * time.Second,
				Increment: 1 * time.Second,
				Max:       3 * time.Second,
			},
			wantDelay: []time.Duration{
				1 * time.Second,
				2 * time.Second,
				3 * time.Second,
				3 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for attempt, want := range tt.wantDelay {
				assert.Equal(t, want, tt.strategy.Delay(attempt), "attempt %d", attempt)
			}
		})
	}
}

func TestLinearStrategy_Jitter(t *testing.T) {
	t.Parallel()

	s := NewLinearStrategy()
	for range 20 {
		got := s.Delay(1)
		assert.GreaterOrEqual(t, got, 500*time.Millisecond)
		assert.LessOrEqual(t, got, 1500*time.Millisecond)
	}
}

func TestDecorrelatedJitterStrategy(t *testing.T) {
	t.Parallel()

	s := DecorrelatedJitterStrategy{Base: 100 * time.Millisecond, Cap: time.Second}
	for attempt := range 6 {
		for range 20 {
			got := s.Delay(attempt)
			assert.GreaterOrEqual(t, got, s.Base)
			assert.LessOrEqual(t, got, s.Cap)
		}
	}

	d := NewDecorrelatedJitterStrategy()
	assert.Equal(t, 500*time.Millisecond, d.Base)
	assert.Equal(t, 30*time.Second, d.Cap)
}

func TestTieredStrategy(t *testing.T) {
	t.Parallel()

	s := TieredStrategy{
		Tiers: []RetryTier{
			{MaxRetries: 2, Delay: time.Minute},
			{MaxRetries: 2, Delay: 5 * time.Minute},
		},
		MaxDelay: 10 * time.Minute,
	}

	tests := []struct {
		name      string
		attempt   int
		wantDelay time.Duration
		wantTier  int
	}{
		{name: "given first attempt, then uses tier 1", attempt: 0, wantDelay: time.Minute, wantTier: 1},
		{name: "given last attempt of tier 1, then uses tier 1", attempt: 1, wantDelay: time.Minute, wantTier: 1},
		{name: "given first attempt of tier 2, then uses tier 2", attempt: 2, wantDelay: 5 * time.Minute, wantTier: 2},
		{name: "given tiers exhausted, then starts exponential phase", attempt: 4, wantDelay: time.Minute, wantTier: 3},
		{name: "given exponential phase, then doubles", attempt: 6, wantDelay: 4 * time.Minute, wantTier: 3},
		{name: "given large attempt, then caps at max delay", attempt: 40, wantDelay: 10 * time.Minute, wantTier: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantDelay, s.Delay(tt.attempt))
			assert.Equal(t, tt.wantTier, s.Tier(tt.attempt))
		})
	}
}

func TestTieredStrategy_WithJitter(t *testing.T) {
	t.Parallel()

	s := TieredStrategy{
		Tiers:        []RetryTier{{MaxRetries: 3, Delay: time.Minute}},
		JitterFactor: 0.5,
	}
	for range 20 {
		got := s.Delay(0)
		assert.GreaterOrEqual(t, got, 30*time.Second)
		assert.LessOrEqual(t, got, 90*time.Second)
	}
}

func TestBackOffStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		newBackOff func() backoff.BackOff
		attempt    int
		want       time.Duration
	}{
		{
			name:       "given constant backoff, then returns constant delay",
			newBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(250 * time.Millisecond) },
			attempt:    3,
			want:       250 * time.Millisecond,
		},
		{
			name:       "given stop backoff, then returns negative delay",
			newBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
			attempt:    0,
			want:       -1,
		},
		{
			name: "given exponential backoff without jitter, then grows per attempt",
			newBackOff: func() backoff.BackOff {
				return &backoff.ExponentialBackOff{
					InitialInterval: 100 * time.Millisecond,
					Multiplier:      2,
					MaxInterval:     time.Second,
				}
			},
			attempt: 2,
			want:    400 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := BackOffStrategy(tt.newBackOff)
			assert.Equal(t, tt.want, s.Delay(tt.attempt))
			assert.Equal(t, tt.want, s.Delay(tt.attempt))
		})
	}
}

func TestApplyJitter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		interval     time.Duration
		jitterFactor float64
		wantMin      time.Duration
		wantMax      time.Duration
	}{
		{
			name:         "given 0 jitter, then returns exact interval",
			interval:     1 * time.Second,
			jitterFactor: 0,
			wantMin:      1 * time.Second,
			wantMax:      1 * time.Second,
		},
		{
			name:         "given negative jitter, then returns exact interval",
			interval:     1 * time.Second,
			jitterFactor: -0.5,
			wantMin:      1 * time.Second,
			wantMax:      1 * time.Second,
		},
		{
			name:         "given 100% jitter, then returns 0 to 2x interval",
			interval:     1 * time.Second,
			jitterFactor: 1.0,
			wantMin:      0,
			wantMax:      2 * time.Second,
		},
		{
			name:         "given jitter > 1, then clamps to 1",
			interval:     1 * time.Second,
			jitterFactor: 2.0,
			wantMin:      0,
			wantMax:      2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for range 20 {
				result := applyJitter(tt.interval, tt.jitterFactor)
				assert.GreaterOrEqual(t, result, tt.wantMin)
				assert.LessOrEqual(t, result, tt.wantMax)
			}
		})
	}
}

func TestExponentialBackOffFromConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()

	b := ExponentialBackOffFromConfig(cfg)

	assert.Equal(t, cfg.InitialInterval, b.InitialInterval)
	assert.InDelta(t, cfg.JitterFactor, b.RandomizationFactor, 0.001)
	assert.InDelta(t, cfg.Multiplier, b.Multiplier, 0.001)
	assert.Equal(t, cfg.MaxInterval, b.MaxInterval)
}

func TestExponentialBackOffFromConfig_DefaultJitter(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}

	b := ExponentialBackOffFromConfig(cfg)

	assert.InDelta(t, DefaultJitterFactor, b.RandomizationFactor, 0.001)
}
