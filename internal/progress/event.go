package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported tracker stages.
const (
	StageStarted      Stage = "JOB_STARTED"
	StageResumed      Stage = "JOB_RESUMED"
	StageProgress     Stage = "JOB_PROGRESS"
	StagePollFailed   Stage = "POLL_FAILED"
	StageCompleted    Stage = "JOB_COMPLETED"
	StageTimedOut     Stage = "JOB_TIMED_OUT"
	StageCancelled    Stage = "JOB_CANCELLED"
	StageSubmitFailed Stage = "JOB_SUBMIT_FAILED"
)

// Severity grades user-visible notifications.
type Severity string

// Notification severities understood by user-facing sinks.
const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event captures a single tracker milestone.
type Event struct {
	// SessionID correlates every event of one tracked run.
	SessionID uuid.UUID
	// Kind names the tracked resource kind (e.g. "products").
	Kind string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Severity is empty for internal events that must not reach the user.
	Severity Severity
	Message  string
	// Progress and Target describe the derived progress at emission time.
	Progress int
	Target   int
	// Attempt is the 1-based poll attempt that produced the event, if any.
	Attempt int
	// JobID is the server-side handle; it is informational only.
	JobID string
	// Note carries low-volume debug context such as error text.
	Note string
}

// Notify reports whether the event is a user-visible notification.
func (e Event) Notify() bool {
	return e.Severity != ""
}

// Terminal reports whether the event ends a session.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageCompleted, StageTimedOut, StageCancelled, StageSubmitFailed:
		return true
	default:
		return false
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == uuid.Nil {
		return errors.New("session id is required")
	}
	if e.Kind == "" {
		return errors.New("kind is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageStarted, StageResumed, StageProgress, StageCompleted, StageTimedOut, StageSubmitFailed:
		if e.Severity == "" || e.Message == "" {
			return fmt.Errorf("stage %s requires severity and message", e.Stage)
		}
	case StagePollFailed, StageCancelled:
		if e.Severity != "" {
			return fmt.Errorf("stage %s must not carry a severity", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	switch e.Severity {
	case "", SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
	default:
		return fmt.Errorf("unknown severity %q", e.Severity)
	}
	if e.Progress < 0 {
		return errors.New("progress must be >= 0")
	}
	if e.Target > 0 && e.Progress > e.Target {
		return errors.New("progress must not exceed target")
	}
	return nil
}
