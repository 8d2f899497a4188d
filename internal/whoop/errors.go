package whoop

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized means the bearer token was rejected upstream. The
	// caller owns token refresh; the client never refreshes on its own.
	ErrUnauthorized = errors.New("whoop: unauthorized")

	// ErrNotFound means the requested resource does not exist upstream.
	ErrNotFound = errors.New("whoop: not found")
)

// RateLimitedError is returned when the upstream quota is exhausted and the
// single Retry-After wait did not clear it.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("whoop: rate limited, retry after %s", e.RetryAfter)
}

// TransientError wraps transport failures and upstream 5xx responses that
// survived the retry schedule.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return "whoop: transient upstream error: " + e.Cause.Error() }
func (e *TransientError) Unwrap() error { return e.Cause }

// PermanentError covers 4xx responses other than 401/404/429.
type PermanentError struct {
	Status int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("whoop: upstream rejected request with status %d", e.Status)
}
