// Package store declares interfaces for persisting tracking run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the tracking_runs status column.
type RunStatus string

// Run statuses persisted in tracking_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunTimedOut  RunStatus = "timed_out"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further updates are expected for the status.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunTimedOut, RunCancelled, RunFailed:
		return true
	default:
		return false
	}
}

// RunRecord models one tracking session for history and API responses.
type RunRecord struct {
	// ID is the session identifier shared with progress events.
	ID uuid.UUID `json:"id"`
	// Kind is the tracked resource kind (products, posts).
	Kind string `json:"kind"`
	// Status is running until the session reaches a terminal state.
	Status RunStatus `json:"status"`
	// Progress is the last observed progress.
	Progress int `json:"progress"`
	// Target is the number of items submitted.
	Target int `json:"target"`
	// JobID is the server-side task id when known.
	JobID string `json:"jobId,omitempty"`
	// StartedAt captures when the session was first recorded.
	StartedAt time.Time `json:"startedAt"`
	// FinishedAt is nil until the run reaches a terminal status.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	// Note carries the last user-visible message.
	Note string `json:"note,omitempty"`
}

// RunFilter narrows ListRuns results. Zero values match everything.
type RunFilter struct {
	Kind   string
	Status RunStatus
	Limit  int
	Offset int
}

// RunRepository persists tracking run history.
type RunRepository interface {
	// StartRun inserts (or idempotently refreshes) a running record.
	StartRun(ctx context.Context, run RunRecord) error
	// UpdateProgress stores the latest observed progress of a running record.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	// FinishRun marks the run terminal with its final progress and note.
	FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, progress int, finishedAt time.Time, note string) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (RunRecord, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
}
