package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/curation-tracker/internal/store"
)

// RunStore keeps tracking run history in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.RunRecord
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.RunRecord)}
}

// StartRun stores run in running status. Starting an existing run refreshes
// its progress but keeps the original start time.
func (s *RunStore) StartRun(_ context.Context, run store.RunRecord) error {
	if run.ID == uuid.Nil {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.runs[run.ID]; ok {
		existing.Progress = run.Progress
		s.runs[run.ID] = existing
		return nil
	}
	run.Status = store.RunRunning
	run.FinishedAt = nil
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateProgress records the latest progress of a running run.
func (s *RunStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	if run.Status.Terminal() {
		return nil
	}
	run.Progress = progress
	s.runs[id] = run
	return nil
}

// FinishRun marks a run terminal.
func (s *RunStore) FinishRun(
	_ context.Context,
	id uuid.UUID,
	status store.RunStatus,
	progress int,
	finishedAt time.Time,
	note string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	run.Progress = progress
	run.FinishedAt = pointerTime(finishedAt)
	if note != "" {
		run.Note = note
	}
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.RunRecord{}, store.ErrNotFound
	}
	return copyRun(run), nil
}

// ListRuns returns matching runs newest first.
func (s *RunStore) ListRuns(_ context.Context, filter store.RunFilter) ([]store.RunRecord, error) {
	s.mu.RLock()
	out := make([]store.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, copyRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []store.RunRecord{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func copyRun(run store.RunRecord) store.RunRecord {
	if run.FinishedAt != nil {
		run.FinishedAt = pointerTime(*run.FinishedAt)
	}
	return run
}

func pointerTime(t time.Time) *time.Time {
	ts := t.UTC()
	return &ts
}
