package tracking

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/progress"
)

// IDGenerator mints session identifiers.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}

type idFunc func() (uuid.UUID, error)

func (f idFunc) NewID() (uuid.UUID, error) { return f() }

// Config holds the collaborators shared by the Initiator, the
// ResumeCoordinator and the sessions they create for one resource kind.
type Config struct {
	// Kind names the resource kind ("products", "posts").
	Kind string
	// Noun is used in user-facing messages; defaults to Kind.
	Noun        string
	Cadences    Cadences
	PollTimeout time.Duration
	Store       TrackingStore
	Counter     Counter
	Emitter     progress.Emitter
	Clock       Clock
	IDs         IDGenerator
	Logger      *zap.Logger
}

func (c Config) withDefaults() (Config, error) {
	if strings.TrimSpace(c.Kind) == "" {
		return c, errors.New("tracking: kind is required")
	}
	if c.Store == nil {
		return c, errors.New("tracking: store is required")
	}
	if c.Counter == nil {
		return c, errors.New("tracking: counter is required")
	}
	if c.Noun == "" {
		c.Noun = c.Kind
	}
	c.Cadences = c.Cadences.withDefaults()
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.Emitter == nil {
		c.Emitter = progress.EmitterFunc(func(progress.Event) {})
	}
	if c.Clock == nil {
		c.Clock = clockFunc(func() time.Time { return time.Now().UTC() })
	}
	if c.IDs == nil {
		c.IDs = idFunc(uuid.NewV7)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c, nil
}

func (c Config) sessionConfig(id uuid.UUID, d Descriptor) sessionConfig {
	return sessionConfig{
		id:          id,
		kind:        c.Kind,
		noun:        c.Noun,
		descriptor:  d,
		cadence:     c.Cadences.For(d.TargetCount),
		pollTimeout: c.PollTimeout,
		counter:     c.Counter,
		store:       c.Store,
		emitter:     c.Emitter,
		clock:       c.Clock,
		logger:      c.Logger.Named("session"),
	}
}

func (c Config) emit(id uuid.UUID, stage progress.Stage, severity progress.Severity, msg string, p, target int, jobID, note string) {
	c.Emitter.Emit(progress.Event{
		SessionID: id,
		Kind:      c.Kind,
		TS:        c.Clock.Now(),
		Stage:     stage,
		Severity:  severity,
		Message:   msg,
		Progress:  p,
		Target:    target,
		JobID:     jobID,
		Note:      note,
	})
}
