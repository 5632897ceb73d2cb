package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Status summarizes a Tracker for status surfaces.
type Status struct {
	Kind       string      `json:"kind"`
	Descriptor *Descriptor `json:"descriptor"`
	Session    *Snapshot   `json:"session"`
}

// Tracker follows jobs of one resource kind. At most one session is active;
// starting a new job supersedes the previous one.
type Tracker struct {
	cfg       Config
	initiator *Initiator
	resumer   *ResumeCoordinator
	logger    *zap.Logger

	startMu sync.Mutex
	mu      sync.Mutex
	active  *Session
}

// NewTracker wires an Initiator and a ResumeCoordinator around source.
// cfg.Counter defaults to source.
func NewTracker(cfg Config, source Source) (*Tracker, error) {
	if source == nil {
		return nil, errors.New("tracking: source is required")
	}
	if cfg.Counter == nil {
		cfg.Counter = source
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	initiator, err := NewInitiator(cfg, source)
	if err != nil {
		return nil, err
	}
	resumer, err := NewResumeCoordinator(cfg)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		cfg:       cfg,
		initiator: initiator,
		resumer:   resumer,
		logger:    cfg.Logger.Named("tracker").With(zap.String("kind", cfg.Kind)),
	}
	initiator.beforePersist = t.supersede
	return t, nil
}

// Kind returns the resource kind.
func (t *Tracker) Kind() string {
	return t.cfg.Kind
}

// Start submits a job for target items and tracks it.
func (t *Tracker) Start(ctx context.Context, target int) (*Session, error) {
	return t.StartWith(ctx, target, nil)
}

// StartWith is Start with a per-call submitter, e.g. one bound to specific
// item ids. A nil submitter uses the tracker's source.
func (t *Tracker) StartWith(ctx context.Context, target int, submitter Submitter) (*Session, error) {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	session, err := t.initiator.StartWith(ctx, target, submitter)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.active = session
	t.mu.Unlock()
	return session, nil
}

// Resume continues a persisted job. Only the first call per Tracker acts.
// A job started in this process takes precedence over the persisted one.
func (t *Tracker) Resume(ctx context.Context) (*Session, error) {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if t.Active() != nil {
		t.logger.Debug("skipping resume; a session is already active")
		return nil, nil
	}
	session, err := t.resumer.Resume(ctx)
	if err != nil {
		return nil, err
	}
	if session != nil {
		t.mu.Lock()
		t.active = session
		t.mu.Unlock()
	}
	return session, nil
}

// Active returns the running session, or nil.
func (t *Tracker) Active() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil || t.active.Snapshot().State.Terminal() {
		return nil
	}
	return t.active
}

// Last returns the most recent session whatever its state.
func (t *Tracker) Last() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Cancel tears down the active session. The persisted descriptor survives.
func (t *Tracker) Cancel() bool {
	session := t.Active()
	if session == nil {
		return false
	}
	session.Cancel()
	return true
}

// Status reports the persisted descriptor and the latest session.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	desc, err := t.cfg.Store.Get(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("tracking: status %s: %w", t.cfg.Kind, err)
	}
	st := Status{Kind: t.cfg.Kind, Descriptor: desc}
	if last := t.Last(); last != nil {
		snap := last.Snapshot()
		st.Session = &snap
	}
	return st, nil
}

func (t *Tracker) supersede() {
	t.mu.Lock()
	prev := t.active
	t.mu.Unlock()
	if prev == nil {
		return
	}
	if !prev.Snapshot().State.Terminal() {
		t.logger.Info("superseding active session", zap.String("session_id", prev.ID().String()))
	}
	prev.Cancel()
}
