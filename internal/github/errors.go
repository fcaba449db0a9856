package github

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for upstream fetch failures. The concrete types below wrap
// these so callers can branch with errors.Is and recover retry metadata with
// errors.As.
var (
	// ErrThrottled indicates the upstream rate limit is exhausted.
	ErrThrottled = errors.New("upstream rate limit exhausted")

	// ErrTransient indicates a network failure, timeout, or upstream 5xx.
	ErrTransient = errors.New("transient upstream failure")

	// ErrPermanent indicates a non-retryable upstream 4xx.
	ErrPermanent = errors.New("permanent upstream failure")

	// ErrAuth indicates the configured token was rejected.
	ErrAuth = errors.New("upstream authorization failed")
)

type (
	// ThrottledError reports rate-limit exhaustion with the minimum back-off
	// the upstream demanded (Retry-After, or time until X-RateLimit-Reset).
	ThrottledError struct {
		RetryAfter time.Duration
	}

	// TransientError wraps a retryable failure (transport error, timeout,
	// upstream 5xx).
	TransientError struct {
		Err error
	}

	// PermanentError reports a 4xx status that must not be retried within the
	// same poll.
	PermanentError struct {
		StatusCode int
	}
)

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrThrottled, e.RetryAfter)
}

// Is makes errors.Is(err, ErrThrottled) match.
func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

func (e *TransientError) Error() string {
	return fmt.Sprintf("%v: %v", ErrTransient, e.Err)
}

// Is makes errors.Is(err, ErrTransient) match.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

func (e *TransientError) Unwrap() error { return e.Err }

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%v: status %d", ErrPermanent, e.StatusCode)
}

// Is makes errors.Is(err, ErrPermanent) match.
func (e *PermanentError) Is(target error) bool { return target == ErrPermanent }
