package resilience

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed indicates the circuit is allowing requests to pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates the circuit is blocking requests due to failures.
	CircuitOpen
	// CircuitHalfOpen indicates the circuit is probing recovery with limited requests.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state.
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is the fail-fast result while the circuit is open; Remaining is
// the cool-down left before the next recovery probe.
type OpenError struct {
	Remaining time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open, retry in %.1fs", e.Remaining.Seconds())
}

// Breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultRecoveryTimeout  = 30 * time.Second
)

// Breaker is a shared, mutex-guarded circuit breaker. Consecutive failures
// open it; after the recovery timeout a half-open probe window requires
// successThreshold consecutive successes to close it again. Not-found
// results must never be recorded as failures.
type Breaker struct {
	mu               sync.Mutex
	name             string
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	state            CircuitState
	failureCount     int
	successCount     int
	openedAt         time.Time
	totalRequests    int
	totalFailures    int

	// onStateChange, when set, observes every transition.
	onStateChange func(from, to CircuitState)
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithThresholds overrides the failure and success thresholds.
func WithThresholds(failure, success int) BreakerOption {
	return func(b *Breaker) {
		if failure > 0 {
			b.failureThreshold = failure
		}
		if success > 0 {
			b.successThreshold = success
		}
	}
}

// WithRecoveryTimeout overrides the open-state cool-down.
func WithRecoveryTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.recoveryTimeout = d
		}
	}
}

// WithStateChange installs a transition observer.
func WithStateChange(fn func(from, to CircuitState)) BreakerOption {
	return func(b *Breaker) { b.onStateChange = fn }
}

// NewBreaker creates a closed breaker with the given name for log context.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: DefaultFailureThreshold,
		successThreshold: DefaultSuccessThreshold,
		recoveryTimeout:  DefaultRecoveryTimeout,
		state:            CircuitClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow takes the before-request token. Closed and half-open pass. Open
// passes once the recovery timeout has elapsed, transitioning to half-open;
// otherwise it fail-fasts with the remaining cool-down.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		elapsed := time.Since(b.openedAt)
		if elapsed >= b.recoveryTimeout {
			b.transition(CircuitHalfOpen)
			return nil
		}
		return &OpenError{Remaining: b.recoveryTimeout - elapsed}
	default:
		return &OpenError{Remaining: b.recoveryTimeout}
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	switch b.state {
	case CircuitClosed:
		b.failureCount = 0
	case CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed call. Callers must not report not-found
// results here: those are terminal application-level errors.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalFailures++
	switch b.state {
	case CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.openedAt = time.Now()
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.openedAt = time.Now()
		b.transition(CircuitOpen)
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to CircuitState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case CircuitOpen:
		slog.Warn("circuit breaker opened",
			slog.String("breaker", b.name),
			slog.Int("failure_count", b.failureCount),
			slog.Int("threshold", b.failureThreshold))
	case CircuitHalfOpen:
		b.successCount = 0
		slog.Info("circuit breaker half-open, probing recovery",
			slog.String("breaker", b.name))
	case CircuitClosed:
		b.failureCount = 0
		b.successCount = 0
		slog.Info("circuit breaker closed",
			slog.String("breaker", b.name))
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(CircuitClosed)
	b.failureCount = 0
	b.successCount = 0
	b.totalRequests = 0
	b.totalFailures = 0
}

// Stats returns breaker statistics for diagnostics.
func (b *Breaker) Stats() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]any{
		"name":           b.name,
		"state":          b.state.String(),
		"failure_count":  b.failureCount,
		"success_count":  b.successCount,
		"total_requests": b.totalRequests,
		"total_failures": b.totalFailures,
	}
}
