// Package retry provides exponential backoff with jitter for transient
// upstream failures, split into a pure delay computation and a retry loop
// with an injectable sleeper.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when all retry attempts fail.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context ends mid-retry.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// jitterFraction is the symmetric jitter applied to each delay (±10%).
const jitterFraction = 0.1

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// IsRetryable decides whether an error is worth retrying.
	IsRetryable func(error) bool

	// rand supplies jitter; injectable for deterministic tests.
	rand func() float64
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  DefaultIsRetryable,
	}
}

func (c *Config) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.IsRetryable == nil {
		c.IsRetryable = DefaultIsRetryable
	}
	if c.rand == nil {
		c.rand = rand.Float64
	}
}

// DefaultIsRetryable treats network-ish errors plus the LLM provider's
// overload signatures ("503", "overloaded") as transient.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	patterns := []string{
		"503",
		"overloaded",
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporary failure",
		"too many requests",
		"network is unreachable",
		"i/o timeout",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// BackoffDelay computes the delay before retry number attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), jittered by ±10%, capped at
// MaxDelay. It is a pure function of (attempt, cfg, cfg.rand).
func BackoffDelay(attempt int, cfg Config) time.Duration {
	cfg.setDefaults()
	if attempt < 1 {
		attempt = 1
	}

	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}

	// Jitter in [-10%, +10%] keeps concurrent retries from synchronizing.
	jitter := (2*cfg.rand() - 1) * jitterFraction * base
	delay := time.Duration(base + jitter)

	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Sleeper abstracts the waiting mechanism so tests can run instantly.
type Sleeper func(ctx context.Context, d time.Duration) error

// DefaultSleeper waits for d or until the context ends.
func DefaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reporter receives errors that exhausted their retry budget. It must never
// fail back into the caller.
type Reporter interface {
	Capture(err error, context map[string]any)
}

// Service runs in-process retries and escalates exhausted failures to the
// error-monitoring reporter.
type Service struct {
	config   Config
	sleeper  Sleeper
	reporter Reporter
}

// NewService creates a retry service. reporter may be nil; sleeper defaults
// to a real clock wait.
func NewService(cfg Config, reporter Reporter) *Service {
	cfg.setDefaults()
	return &Service{
		config:   cfg,
		sleeper:  DefaultSleeper,
		reporter: reporter,
	}
}

// WithSleeper replaces the waiting mechanism. Intended for tests.
func (s *Service) WithSleeper(sleeper Sleeper) *Service {
	s.sleeper = sleeper
	return s
}

// Do runs fn up to MaxAttempts times with backoff between attempts.
// Non-retryable errors abort immediately. When every attempt fails the
// final error is reported with opContext and wrapped in
// ErrMaxAttemptsExceeded.
func (s *Service) Do(ctx context.Context, opContext string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !s.config.IsRetryable(err) {
			return err
		}

		if attempt < s.config.MaxAttempts {
			if sleepErr := s.sleeper(ctx, BackoffDelay(attempt, s.config)); sleepErr != nil {
				return fmt.Errorf("%w: %v", ErrContextCancelled, sleepErr)
			}
		}
	}

	if s.reporter != nil {
		s.reporter.Capture(lastErr, map[string]any{
			"operation": opContext,
			"attempts":  s.config.MaxAttempts,
		})
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, s.config.MaxAttempts, lastErr)
}
