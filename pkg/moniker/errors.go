package moniker

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the client surface. Callers match them with errors.Is;
// structured variants below carry extra detail and unwrap to these.
var (
	// ErrNotFound reports that the resolver returned 404 for a path.
	ErrNotFound = errors.New("moniker not found")
	// ErrAccessDenied reports a 403 from the resolver fetch surface.
	ErrAccessDenied = errors.New("access denied")
	// ErrResolution reports any other non-2xx during resolution.
	ErrResolution = errors.New("resolution failed")
	// ErrFetch reports a failure during adapter fetch after a successful resolution.
	ErrFetch = errors.New("fetch failed")
	// ErrTimeout reports an exceeded bounded wait.
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionRefused reports a transport-level connection failure,
	// including circuit-breaker fail-fast.
	ErrConnectionRefused = errors.New("connection refused")
	// ErrAuthentication reports credential rejection by an adapter or source.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRetriesExhausted reports that every retry attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrConfiguration reports a missing or invalid required option.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation reports a response-schema validation failure.
	ErrValidation = errors.New("response validation failed")
)

// NotFoundError is returned when the resolver has no binding for a path.
// It is terminal: the circuit breaker never counts it as a failure.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("moniker not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AccessDeniedError is returned on a 403 from /fetch; Detail carries the
// response body's detail field when present.
type AccessDeniedError struct {
	Path   string
	Detail string
}

func (e *AccessDeniedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("access denied for %s: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("access denied for %s", e.Path)
}

func (e *AccessDeniedError) Unwrap() error { return ErrAccessDenied }

// ResolutionError is returned for unexpected resolver responses.
type ResolutionError struct {
	Path   string
	Status int
	Body   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution failed for %s: status %d", e.Path, e.Status)
}

func (e *ResolutionError) Unwrap() error { return ErrResolution }

// FetchError wraps the underlying cause of a failed adapter fetch.
type FetchError struct {
	Moniker string
	Cause   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Moniker, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Is lets FetchError match both ErrFetch and its cause chain.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// RetriesExhaustedError is returned when the retry engine runs out of
// attempts; Last is the final underlying error.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// BreakerOpenError is the fail-fast error emitted while the circuit breaker
// is open. Remaining is the cool-down left before a recovery probe.
type BreakerOpenError struct {
	Remaining time.Duration
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("resolver circuit open, retry in %.1fs", e.Remaining.Seconds())
}

func (e *BreakerOpenError) Unwrap() error { return ErrConnectionRefused }

// ValidationError reports a response_schema mismatch from the HTTP adapter.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("response validation failed: %s", e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
