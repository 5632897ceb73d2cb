package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/progress"
	"github.com/JakeFAU/curation-tracker/internal/store"
)

// StoreSink records session outcomes via a store.RunRepository. Progress
// ticks are collapsed to the latest value per session within a batch.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch to the repository in order. It respects ctx
// deadlines and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]int)
	var order []uuid.UUID
	flush := func(id uuid.UUID) error {
		p, ok := pending[id]
		if !ok {
			return nil
		}
		delete(pending, id)
		if err := s.repo.UpdateProgress(ctx, id, p); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("update run progress: %w", err)
		}
		return nil
	}

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageProgress:
			if _, ok := pending[evt.SessionID]; !ok {
				order = append(order, evt.SessionID)
			}
			pending[evt.SessionID] = evt.Progress
		case progress.StageStarted, progress.StageResumed:
			if err := s.start(ctx, evt); err != nil {
				return err
			}
		case progress.StageCompleted, progress.StageTimedOut, progress.StageCancelled, progress.StageSubmitFailed:
			delete(pending, evt.SessionID)
			if err := s.finish(ctx, evt); err != nil {
				return err
			}
		}
	}
	for _, id := range order {
		if err := flush(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) start(ctx context.Context, evt progress.Event) error {
	run := store.RunRecord{
		ID:        evt.SessionID,
		Kind:      evt.Kind,
		Progress:  evt.Progress,
		Target:    evt.Target,
		JobID:     evt.JobID,
		StartedAt: evt.TS,
		Note:      evt.Message,
	}
	if err := s.repo.StartRun(ctx, run); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

func (s *StoreSink) finish(ctx context.Context, evt progress.Event) error {
	status := runStatus(evt.Stage)
	note := evt.Message
	if note == "" {
		note = evt.Note
	}
	err := s.repo.FinishRun(ctx, evt.SessionID, status, evt.Progress, evt.TS, note)
	if errors.Is(err, store.ErrNotFound) {
		// Outcomes without a prior start, such as submit failures or jobs
		// found complete on resume, get a record of their own.
		s.logger.Debug("recording run without start event", zap.String("session_id", evt.SessionID.String()))
		if err := s.start(ctx, evt); err != nil {
			return err
		}
		err = s.repo.FinishRun(ctx, evt.SessionID, status, evt.Progress, evt.TS, note)
	}
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func runStatus(stage progress.Stage) store.RunStatus {
	switch stage {
	case progress.StageCompleted:
		return store.RunCompleted
	case progress.StageTimedOut:
		return store.RunTimedOut
	case progress.StageCancelled:
		return store.RunCancelled
	default:
		return store.RunFailed
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
