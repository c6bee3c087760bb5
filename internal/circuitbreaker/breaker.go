// Package circuitbreaker isolates failing external dependencies behind a
// closed/open/half-open state machine with a sliding failure window.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is blocked because the circuit is
// open. Callers can special-case "deliberately unavailable" versus a real
// upstream failure with errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed allows all calls.
	StateClosed State = iota
	// StateOpen blocks calls until the timeout elapses.
	StateOpen
	// StateHalfOpen allows trial calls to test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of failures within MonitoringPeriod
	// that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in half-open
	// state before closing.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a trial call is
	// allowed.
	Timeout time.Duration
	// MonitoringPeriod is the trailing window failures are counted over.
	MonitoringPeriod time.Duration
	// OnStateChange is an optional callback invoked on transitions.
	OnStateChange func(from, to State)
}

// DefaultConfig returns a default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		MonitoringPeriod: time.Minute,
	}
}

type failureRecord struct {
	at  time.Time
	err string
}

// Breaker implements the circuit breaker state machine for one named
// dependency.
type Breaker struct {
	mu              sync.Mutex
	name            string
	state           State
	failures        []failureRecord
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
	config          Config

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates a circuit breaker with the given name and configuration.
func New(name string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MonitoringPeriod <= 0 {
		config.MonitoringPeriod = time.Minute
	}

	return &Breaker{
		name:            name,
		state:           StateClosed,
		config:          config,
		now:             time.Now,
		lastStateChange: time.Now(),
	}
}

// Name returns the dependency name this breaker protects.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn under circuit protection. When the circuit is open it
// returns ErrCircuitOpen without invoking fn; otherwise the outcome of fn
// is recorded and its error (if any) is returned unchanged.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	return b.ExecuteWithFallback(ctx, fn, nil)
}

// ExecuteWithFallback is Execute with a substitute operation invoked when
// the circuit blocks the call. The fallback result stands in for fn's and
// its outcome is not recorded against the circuit.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, fn, fallback func() error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := b.beforeCall(); err != nil {
		if fallback != nil {
			return fallback()
		}
		return err
	}

	err := fn()
	b.afterCall(err)
	return err
}

// beforeCall resolves the effective state and decides whether the call may
// proceed. The open->half-open transition happens lazily here once the
// timeout has elapsed.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailureTime) >= b.config.Timeout {
			b.transitionTo(StateHalfOpen)
		} else {
			remaining := b.config.Timeout - b.now().Sub(b.lastFailureTime)
			return fmt.Errorf("%w: %s retries in %v", ErrCircuitOpen, b.name, remaining)
		}
	}

	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure(err)
	} else {
		b.recordSuccess()
	}
}

// recordFailure appends to the sliding window and transitions if the
// in-window failure count reaches the threshold. Must hold b.mu.
func (b *Breaker) recordFailure(err error) {
	now := b.now()
	b.lastFailureTime = now
	b.failures = append(b.failures, failureRecord{at: now, err: err.Error()})
	b.pruneWindow(now)

	switch b.state {
	case StateClosed:
		if len(b.failures) >= b.config.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// A single failure during trial mode reopens immediately.
		b.transitionTo(StateOpen)
	case StateOpen:
	}
}

// recordSuccess counts consecutive half-open successes. Must hold b.mu.
func (b *Breaker) recordSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = b.failures[:0]
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed)
		}
	case StateOpen:
	}
}

// pruneWindow drops failure records older than the monitoring period.
// Must hold b.mu.
func (b *Breaker) pruneWindow(now time.Time) {
	cutoff := now.Add(-b.config.MonitoringPeriod)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.at.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept
}

// transitionTo moves to a new state and resets counters. Must hold b.mu.
func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState
	b.lastStateChange = b.now()

	switch newState {
	case StateClosed, StateOpen:
		b.failures = b.failures[:0]
		b.successCount = 0
	case StateHalfOpen:
		b.successCount = 0
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(oldState, newState)
	}
}

// State returns the effective state, resolving an elapsed open timeout to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.lastFailureTime) >= b.config.Timeout {
		b.transitionTo(StateHalfOpen)
	}
	return b.state
}

// Reset forces the circuit closed with cleared counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
	b.failures = b.failures[:0]
	b.successCount = 0
}

// Stats is a snapshot of breaker counters for observability.
type Stats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
	LastStateChange time.Time `json:"last_state_change"`
	LastError       string    `json:"last_error,omitempty"`
}

// GetStats returns current statistics. The failure count reflects only
// failures still inside the monitoring window.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneWindow(b.now())

	stats := Stats{
		Name:            b.name,
		State:           b.state.String(),
		FailureCount:    len(b.failures),
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		LastStateChange: b.lastStateChange,
	}
	if n := len(b.failures); n > 0 {
		stats.LastError = b.failures[n-1].err
	}
	return stats
}
