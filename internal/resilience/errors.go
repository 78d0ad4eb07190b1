// Package resilience provides the error taxonomy, retry, and circuit breaker
// patterns used for every external call the pipeline makes.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitedError means the provider throttled us. Retry with a longer
// backoff, or fall through to the deterministic path for extraction.
type RateLimitedError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return e.Err.Error() }
func (e *RateLimitedError) Unwrap() error { return e.Err }

// NewRateLimitedError wraps an error as a throttle signal.
func NewRateLimitedError(err error, retryAfter time.Duration) *RateLimitedError {
	return &RateLimitedError{Err: err, RetryAfter: retryAfter}
}

// NotFoundError means the entity no longer exists upstream. Callers skip the
// entity; it is not a failure for reporting purposes.
type NotFoundError struct {
	Err error
}

func (e *NotFoundError) Error() string { return e.Err.Error() }
func (e *NotFoundError) Unwrap() error { return e.Err }

// NewNotFoundError marks an upstream entity as gone.
func NewNotFoundError(err error) *NotFoundError { return &NotFoundError{Err: err} }

// MalformedError means the response had an unexpected shape. For extraction
// it triggers the fallback path; for fetch it is a per-venue failure.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string { return e.Err.Error() }
func (e *MalformedError) Unwrap() error { return e.Err }

// NewMalformedError marks a response as structurally unusable.
func NewMalformedError(err error) *MalformedError { return &MalformedError{Err: err} }

// BlockedError means bot detection tripped during discovery. The region is
// abandoned without immediate retry.
type BlockedError struct {
	Err    error
	Marker string
}

func (e *BlockedError) Error() string { return e.Err.Error() }
func (e *BlockedError) Unwrap() error { return e.Err }

// NewBlockedError marks a discovery attempt as bot-blocked.
func NewBlockedError(err error, marker string) *BlockedError {
	return &BlockedError{Err: err, Marker: marker}
}

// IsRateLimited reports whether err carries a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsMalformed reports whether err carries a MalformedError.
func IsMalformed(err error) bool {
	var mf *MalformedError
	return errors.As(err, &mf)
}

// IsBlocked reports whether err carries a BlockedError.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError or RateLimitedError, or matches common transient network
// patterns (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if IsRateLimited(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the status code indicates a
// server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
