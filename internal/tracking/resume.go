package tracking

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/progress"
)

// ResumeCoordinator continues a job persisted by a previous client run. It
// acts once; later calls are no-ops.
type ResumeCoordinator struct {
	cfg    Config
	logger *zap.Logger
	once   sync.Once
}

// NewResumeCoordinator validates cfg.
func NewResumeCoordinator(cfg Config) (*ResumeCoordinator, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &ResumeCoordinator{cfg: cfg, logger: cfg.Logger.Named("resume")}, nil
}

// Resume inspects the persisted slot. It returns the reconstructed session,
// or nil when there was nothing to resume, the job had already finished, or
// Resume already ran.
func (r *ResumeCoordinator) Resume(ctx context.Context) (*Session, error) {
	var (
		session *Session
		err     error
	)
	r.once.Do(func() {
		session, err = r.resume(ctx)
	})
	return session, err
}

func (r *ResumeCoordinator) resume(ctx context.Context) (*Session, error) {
	desc, err := r.cfg.Store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracking: resume %s: %w", r.cfg.Kind, err)
	}
	if desc == nil || !desc.InProgress {
		r.logger.Debug("nothing to resume", zap.String("kind", r.cfg.Kind))
		return nil, nil
	}

	id, err := r.cfg.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("tracking: session id: %w", err)
	}
	logger := r.logger.With(zap.String("session_id", id.String()), zap.String("kind", r.cfg.Kind))
	target := desc.TargetCount

	seed := 0
	countCtx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
	count, err := r.cfg.Counter.FetchCount(countCtx)
	cancel()
	if err != nil {
		logger.Debug("resume count failed; polling will retry", zap.Error(err))
		r.cfg.emit(id, progress.StagePollFailed, "", "", 0, target, "", err.Error())
	} else {
		seed = desc.Progress(count)
	}

	if err == nil && seed >= target {
		if clearErr := r.cfg.Store.Clear(ctx); clearErr != nil {
			logger.Warn("failed to erase descriptor", zap.Error(clearErr))
		}
		logger.Info("job finished while the client was away", zap.Int("progress", seed))
		r.cfg.emit(id, progress.StageCompleted, progress.SeveritySuccess,
			fmt.Sprintf("Analysis complete: %d/%d %s analyzed", seed, target, r.cfg.Noun), seed, target, "", "")
		return nil, nil
	}

	scfg := r.cfg.sessionConfig(id, *desc)
	scfg.seed = seed
	scfg.resumed = true
	session, err := newSession(ctx, scfg)
	if err != nil {
		return nil, err
	}
	r.cfg.emit(id, progress.StageResumed, progress.SeverityInfo,
		fmt.Sprintf("Resumed tracking %s analysis: %d/%d", r.cfg.Noun, seed, target), seed, target, "", "")
	if err := session.start(); err != nil {
		return nil, err
	}
	logger.Info("resumed analysis tracking", zap.Int("progress", seed), zap.Duration("age", desc.Age(r.cfg.Clock.Now())))
	return session, nil
}
