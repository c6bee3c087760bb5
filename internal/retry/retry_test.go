package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// midpointRand disables jitter: (2*0.5 - 1) * 0.1 * base == 0.
func midpointRand() float64 { return 0.5 }

func noJitterConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		rand:         midpointRand,
	}
}

func TestBackoffDelay_ExponentialGrowth(t *testing.T) {
	cfg := noJitterConfig()

	assert.Equal(t, 100*time.Millisecond, BackoffDelay(1, cfg))
	assert.Equal(t, 200*time.Millisecond, BackoffDelay(2, cfg))
	assert.Equal(t, 400*time.Millisecond, BackoffDelay(3, cfg))
	assert.Equal(t, 800*time.Millisecond, BackoffDelay(4, cfg))
}

func TestBackoffDelay_NonDecreasingAndCapped(t *testing.T) {
	cfg := noJitterConfig()

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := BackoffDelay(attempt, cfg)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing")
		assert.LessOrEqual(t, d, cfg.MaxDelay, "delay must never exceed the cap")
		prev = d
	}
	assert.Equal(t, cfg.MaxDelay, BackoffDelay(20, cfg))
}

func TestBackoffDelay_JitterStaysWithinTenPercent(t *testing.T) {
	base := 100 * time.Millisecond

	low := noJitterConfig()
	low.rand = func() float64 { return 0 }
	high := noJitterConfig()
	high.rand = func() float64 { return 1 }

	assert.Equal(t, 90*time.Millisecond, BackoffDelay(1, low))
	assert.Equal(t, 110*time.Millisecond, BackoffDelay(1, high))
	assert.LessOrEqual(t, BackoffDelay(1, high), base+base/10+time.Nanosecond)
}

func TestDefaultIsRetryable_MatchesLLMOverload(t *testing.T) {
	assert.True(t, DefaultIsRetryable(errors.New("upstream returned 503 Service Unavailable")))
	assert.True(t, DefaultIsRetryable(errors.New("model is overloaded, try again")))
	assert.True(t, DefaultIsRetryable(errors.New("dial tcp: i/o timeout")))
	assert.False(t, DefaultIsRetryable(errors.New("invalid api key")))
	assert.False(t, DefaultIsRetryable(nil))
}

// instantSleeper records requested delays without waiting.
func instantSleeper(delays *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

type captureReporter struct {
	err error
	ctx map[string]any
}

func (c *captureReporter) Capture(err error, ctx map[string]any) {
	c.err = err
	c.ctx = ctx
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	svc := NewService(noJitterConfig(), nil).WithSleeper(instantSleeper(&delays))

	calls := 0
	err := svc.Do(context.Background(), "send message", func() error {
		calls++
		if calls < 3 {
			return errors.New("503 overloaded")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDo_NonRetryableAbortsImmediately(t *testing.T) {
	var delays []time.Duration
	svc := NewService(noJitterConfig(), nil).WithSleeper(instantSleeper(&delays))

	calls := 0
	permanent := errors.New("invalid recipient")
	err := svc.Do(context.Background(), "send message", func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDo_ExhaustionReportsAndWraps(t *testing.T) {
	var delays []time.Duration
	reporter := &captureReporter{}
	svc := NewService(noJitterConfig(), reporter).WithSleeper(instantSleeper(&delays))

	boom := errors.New("503 again")
	err := svc.Do(context.Background(), "llm completion", func() error { return boom })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, reporter.err)
	assert.Equal(t, boom, reporter.err)
	assert.Equal(t, "llm completion", reporter.ctx["operation"])
	assert.Len(t, delays, 3, "sleeps between 4 attempts")
}

func TestDo_ContextCancellationStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := NewService(noJitterConfig(), nil).WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	err := svc.Do(ctx, "send message", func() error { return errors.New("503") })
	assert.ErrorIs(t, err, ErrContextCancelled)
}
