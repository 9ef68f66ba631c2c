// Package resilience provides the bounded-retry engine and the circuit
// breaker that guard calls to the resolution service.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError carries a transport-level HTTP status for retry classification.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// ExhaustedError is returned when every attempt failed and the last failure
// was retryable. Last is the final underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Policy bounds the retry engine.
type Policy struct {
	// MaxAttempts is the number of retries after the first attempt: the
	// operation runs at most MaxAttempts+1 times.
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RetryableStatus []int
}

// DefaultPolicy mirrors the resolver-call defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RetryableStatus: []int{429, 502, 503, 504},
	}
}

func (p Policy) statusRetryable(code int) bool {
	for _, c := range p.RetryableStatus {
		if c == code {
			return true
		}
	}
	return false
}

// Retryable classifies an error under the policy: retryable iff it carries a
// retryable HTTP status or looks like a connection/timeout failure.
func (p Policy) Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return p.statusRetryable(se.Code)
	}
	return IsTimeout(err) || IsConnection(err)
}

// IsTimeout reports whether err is a bounded-wait failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// IsConnection reports whether err is a transport-level connection failure.
func IsConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do runs op under the policy. Terminal errors (including those wrapped with
// backoff.Permanent) return immediately. Between retryable failures the
// engine sleeps min(BaseDelay×Multiplier^attempt, MaxDelay) scaled by a
// jitter factor drawn uniformly from [0.75, 1.25], honouring ctx. When the
// final attempt fails retryably, an *ExhaustedError wraps the last error.
func Do(ctx context.Context, p Policy, opName string, op func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseDelay
	expo.MaxInterval = p.MaxDelay
	expo.Multiplier = p.Multiplier
	expo.RandomizationFactor = 0.25
	expo.MaxElapsedTime = 0
	expo.Reset()

	attempts := p.MaxAttempts + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		if !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		wait := expo.NextBackOff()
		slog.Warn("retrying after failure",
			slog.String("op", opName),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			slog.Any("error", lastErr))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: lastErr}
}
