package tracking

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeoutExceeded is reported by a session that used its whole attempt
	// budget without observing the target.
	ErrTimeoutExceeded = errors.New("tracking: attempt budget exhausted before target was reached")
	// ErrSessionCancelled is reported by a session torn down before a
	// terminal outcome.
	ErrSessionCancelled = errors.New("tracking: session cancelled")
	// ErrInvalidDescriptor marks a persisted descriptor that cannot be used.
	ErrInvalidDescriptor = errors.New("tracking: invalid descriptor")
	// ErrInvalidTarget rejects a submission with a non-positive target.
	ErrInvalidTarget = errors.New("tracking: target must be > 0")
)

// SubmissionError reports that a job could not be started. Nothing is
// persisted and no session runs when it is returned.
type SubmissionError struct {
	Kind string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("tracking: submit %s job: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
