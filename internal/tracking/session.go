package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/progress"
	"github.com/JakeFAU/curation-tracker/internal/schedule"
)

// State is the lifecycle position of a Session.
type State string

// Session states. Every state other than StateRunning is terminal.
const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s ends the session.
func (s State) Terminal() bool {
	return s != StateRunning
}

// DefaultPollTimeout bounds a single count query.
const DefaultPollTimeout = 10 * time.Second

// Snapshot is a point-in-time copy of session state.
type Snapshot struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	JobID       string    `json:"jobId,omitempty"`
	State       State     `json:"state"`
	Progress    int       `json:"progress"`
	Target      int       `json:"target"`
	Baseline    int       `json:"baseline"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	Period      string    `json:"period"`
	StartedAt   time.Time `json:"startedAt"`
	Resumed     bool      `json:"resumed"`
}

type sessionConfig struct {
	id          uuid.UUID
	kind        string
	noun        string
	jobID       string
	descriptor  Descriptor
	cadence     Cadence
	pollTimeout time.Duration
	seed        int
	resumed     bool
	counter     Counter
	store       TrackingStore
	emitter     progress.Emitter
	clock       Clock
	logger      *zap.Logger
}

// Session polls the aggregate counter until the target is observed, the
// attempt budget runs out, or it is cancelled.
type Session struct {
	cfg  sessionConfig
	ctx  context.Context
	task *schedule.Task

	mu       sync.Mutex
	state    State
	attempts int
	progress int
	err      error

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(ctx context.Context, cfg sessionConfig) (*Session, error) {
	if cfg.id == uuid.Nil {
		return nil, errors.New("tracking: session id is required")
	}
	if err := cfg.descriptor.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.cadence.Validate(); err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	if cfg.counter == nil || cfg.store == nil {
		return nil, errors.New("tracking: counter and store are required")
	}
	if cfg.pollTimeout <= 0 {
		cfg.pollTimeout = DefaultPollTimeout
	}
	if cfg.emitter == nil {
		cfg.emitter = progress.EmitterFunc(func(progress.Event) {})
	}
	if cfg.clock == nil {
		cfg.clock = clockFunc(func() time.Time { return time.Now().UTC() })
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	s := &Session{
		cfg: cfg,
		// Polls outlive the request that started the session.
		ctx:      context.WithoutCancel(ctx),
		state:    StateRunning,
		progress: clamp(cfg.seed, 0, cfg.descriptor.TargetCount),
		done:     make(chan struct{}),
	}
	s.cfg.logger = cfg.logger.With(zap.String("session_id", cfg.id.String()))
	task, err := schedule.New(cfg.cadence.Period, s.tick)
	if err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	s.task = task
	return s, nil
}

func (s *Session) start() error {
	if err := s.task.Start(); err != nil {
		return fmt.Errorf("tracking: start session: %w", err)
	}
	s.cfg.logger.Info("poll session started",
		zap.Int("baseline", s.cfg.descriptor.BaselineCount),
		zap.Int("target", s.cfg.descriptor.TargetCount),
		zap.Duration("period", s.cfg.cadence.Period),
		zap.Int("max_attempts", s.cfg.cadence.MaxAttempts),
		zap.Bool("resumed", s.cfg.resumed),
	)
	return nil
}

// ID returns the session identifier carried by every event it emits.
func (s *Session) ID() uuid.UUID {
	return s.cfg.id
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns nil while running or after completion, ErrTimeoutExceeded after
// a timeout and ErrSessionCancelled after cancellation.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the session is terminal or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:          s.cfg.id,
		Kind:        s.cfg.kind,
		JobID:       s.cfg.jobID,
		State:       s.state,
		Progress:    s.progress,
		Target:      s.cfg.descriptor.TargetCount,
		Baseline:    s.cfg.descriptor.BaselineCount,
		Attempts:    s.attempts,
		MaxAttempts: s.cfg.cadence.MaxAttempts,
		Period:      s.cfg.cadence.Period.String(),
		StartedAt:   s.cfg.descriptor.StartedAt(),
		Resumed:     s.cfg.resumed,
	}
}

// Cancel stops polling and keeps the persisted descriptor so the job can be
// resumed later. An in-flight count query is not aborted; its result is
// discarded. Cancelling a terminal session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	s.err = ErrSessionCancelled
	s.task.Cancel()
	s.emitLocked(progress.StageCancelled, "", "", "")
	s.mu.Unlock()

	s.cfg.logger.Info("poll session cancelled")
	s.closeDone()
}

// tick runs on the schedule goroutine; ticks never overlap.
func (s *Session) tick(tok *schedule.Token) {
	if tok.Cancelled() || s.Snapshot().State.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.pollTimeout)
	count, err := s.cfg.counter.FetchCount(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.Cancelled() || s.state != StateRunning {
		s.cfg.logger.Debug("discarding poll result after cancellation")
		return
	}
	s.attempts++

	if err != nil {
		s.cfg.logger.Debug("poll failed", zap.Int("attempt", s.attempts), zap.Error(err))
		s.emitLocked(progress.StagePollFailed, "", "", err.Error())
	} else {
		if p := s.cfg.descriptor.Progress(count); p > s.progress {
			s.progress = p
		}
		s.emitLocked(progress.StageProgress, progress.SeverityInfo,
			fmt.Sprintf("Analyzing %s: %d/%d", s.cfg.noun, s.progress, s.cfg.descriptor.TargetCount), "")
	}

	switch {
	case s.progress >= s.cfg.descriptor.TargetCount:
		s.finishLocked(StateCompleted, nil)
	case s.attempts >= s.cfg.cadence.MaxAttempts:
		s.finishLocked(StateTimedOut, ErrTimeoutExceeded)
	}
}

// finishLocked stops the timer, erases the descriptor and emits the single
// terminal notification. The erase happens under s.mu so a superseding job
// cannot persist its descriptor in between.
func (s *Session) finishLocked(state State, err error) {
	s.state = state
	s.err = err
	s.task.Cancel()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.pollTimeout)
	if clearErr := s.cfg.store.Clear(ctx); clearErr != nil {
		s.cfg.logger.Warn("failed to erase descriptor", zap.Error(clearErr))
	}
	cancel()

	target := s.cfg.descriptor.TargetCount
	switch state {
	case StateCompleted:
		s.cfg.logger.Info("analysis completed", zap.Int("progress", s.progress), zap.Int("attempts", s.attempts))
		s.emitLocked(progress.StageCompleted, progress.SeveritySuccess,
			fmt.Sprintf("Analysis complete: %d/%d %s analyzed", s.progress, target, s.cfg.noun), "")
	case StateTimedOut:
		s.cfg.logger.Warn("analysis timed out", zap.Int("progress", s.progress), zap.Int("attempts", s.attempts))
		s.emitLocked(progress.StageTimedOut, progress.SeverityWarning,
			fmt.Sprintf("Analysis is taking longer than expected (%d/%d %s); check back later",
				s.progress, target, s.cfg.noun), "")
	}
	s.closeDone()
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) emitLocked(stage progress.Stage, severity progress.Severity, msg, note string) {
	s.cfg.emitter.Emit(progress.Event{
		SessionID: s.cfg.id,
		Kind:      s.cfg.kind,
		TS:        s.cfg.clock.Now(),
		Stage:     stage,
		Severity:  severity,
		Message:   msg,
		Progress:  s.progress,
		Target:    s.cfg.descriptor.TargetCount,
		Attempt:   s.attempts,
		JobID:     s.cfg.jobID,
		Note:      note,
	})
}
