package sinks

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/curation-tracker/internal/progress"
)

var baseTS = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// lifecycle returns the events of one session that polls twice and
// completes 30 seconds after it started.
func lifecycle(id uuid.UUID, kind string) []progress.Event {
	return []progress.Event{
		{SessionID: id, Kind: kind, TS: baseTS, Stage: progress.StageStarted,
			Severity: progress.SeverityInfo, Message: "Analysis started", Target: 3, JobID: "task-1"},
		{SessionID: id, Kind: kind, TS: baseTS.Add(15 * time.Second), Stage: progress.StagePollFailed,
			Target: 3, Attempt: 1, Note: "connection refused"},
		{SessionID: id, Kind: kind, TS: baseTS.Add(30 * time.Second), Stage: progress.StageProgress,
			Severity: progress.SeverityInfo, Message: "Analyzing products: 3/3", Progress: 3, Target: 3, Attempt: 2},
		{SessionID: id, Kind: kind, TS: baseTS.Add(30 * time.Second), Stage: progress.StageCompleted,
			Severity: progress.SeveritySuccess, Message: "Analysis complete: 3/3 products analyzed",
			Progress: 3, Target: 3, Attempt: 2},
	}
}
