package tracking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/progress"
)

// Initiator submits batch jobs and starts the sessions that follow them.
type Initiator struct {
	cfg       Config
	submitter Submitter
	// beforePersist runs after a successful submission and before the
	// descriptor is written.
	beforePersist func()
	logger        *zap.Logger
}

// NewInitiator validates cfg. submitter is the default used by Start.
func NewInitiator(cfg Config, submitter Submitter) (*Initiator, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if submitter == nil {
		return nil, errors.New("tracking: submitter is required")
	}
	return &Initiator{
		cfg:       cfg,
		submitter: submitter,
		logger:    cfg.Logger.Named("initiator"),
	}, nil
}

// Start submits a job for target items with the default submitter.
func (i *Initiator) Start(ctx context.Context, target int) (*Session, error) {
	return i.StartWith(ctx, target, i.submitter)
}

// StartWith submits a job using submitter. On failure it returns a
// *SubmissionError, emits exactly one error notification and leaves the
// persisted slot untouched.
func (i *Initiator) StartWith(ctx context.Context, target int, submitter Submitter) (*Session, error) {
	if submitter == nil {
		submitter = i.submitter
	}
	id, err := i.cfg.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("tracking: session id: %w", err)
	}
	logger := i.logger.With(zap.String("session_id", id.String()), zap.Int("target", target))

	fail := func(cause error) (*Session, error) {
		subErr := &SubmissionError{Kind: i.cfg.Kind, Err: cause}
		logger.Warn("job submission failed", zap.Error(cause))
		i.cfg.emit(id, progress.StageSubmitFailed, progress.SeverityError,
			fmt.Sprintf("Could not start %s analysis: %v", i.cfg.Noun, cause), 0, max(target, 0), "", cause.Error())
		return nil, subErr
	}

	if target <= 0 {
		return fail(fmt.Errorf("%w, got %d", ErrInvalidTarget, target))
	}

	countCtx, cancel := context.WithTimeout(ctx, i.cfg.PollTimeout)
	baseline, err := i.cfg.Counter.FetchCount(countCtx)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("fetch baseline count: %w", err))
	}

	handle, err := submitter.Submit(ctx, target)
	if err != nil {
		return fail(err)
	}
	logger = logger.With(zap.String("job_id", handle.ID))

	if i.beforePersist != nil {
		i.beforePersist()
	}

	// The job is accepted, so the slot is written even if the caller is gone.
	desc := NewDescriptor(baseline, target, i.cfg.Clock.Now())
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.PollTimeout)
	err = i.cfg.Store.Set(persistCtx, desc)
	cancelPersist()
	if err != nil {
		// The job is already running server-side, so keep tracking it in
		// memory even though it cannot be resumed after a restart.
		logger.Warn("failed to persist descriptor", zap.Error(err))
	}

	msg := handle.Message
	if msg == "" {
		msg = fmt.Sprintf("Analysis started for %d %s", target, i.cfg.Noun)
	}
	i.cfg.emit(id, progress.StageStarted, progress.SeverityInfo, msg, 0, target, handle.ID, "")

	scfg := i.cfg.sessionConfig(id, desc)
	scfg.jobID = handle.ID
	session, err := newSession(ctx, scfg)
	if err != nil {
		return nil, err
	}
	if err := session.start(); err != nil {
		return nil, err
	}
	logger.Info("analysis job submitted", zap.Int("baseline", baseline))
	return session, nil
}
