package platform

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the shared taxonomy. Platform implementations map
// their library-specific failures onto these; the coordinator and shell
// never see a platform-specific error type.
var (
	// ErrNotAuthenticated reports an operation attempted on a session
	// that is not Authenticated, including a session dropped mid-call.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrNotFound reports a conversation or message id that no longer
	// resolves. Distinct from transport failure.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyInProgress rejects a duplicate concurrent command for
	// the same side.
	ErrAlreadyInProgress = errors.New("operation already in progress")

	// ErrChallengeOrder rejects a challenge response submitted out of
	// sequence (password before code).
	ErrChallengeOrder = errors.New("challenge response out of order")
)

// AuthError is a terminal authentication failure: bad credentials or a
// bad challenge response. The current attempt is over; a fresh Connect
// is required.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth failed: " + e.Reason
}

// TransportError is a connectivity failure. Retryable by the operator,
// never auto-retried by the core.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError is a throttling signal from the platform. The
// coordinator honors RetryAfter exactly once per forward.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
