package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/progress"
	"github.com/JakeFAU/curation-tracker/internal/publisher"
)

// Notification is the JSON payload forwarded to a message broker.
type Notification struct {
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Stage     string    `json:"stage"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Progress  int       `json:"progress"`
	Target    int       `json:"target"`
	JobID     string    `json:"jobId,omitempty"`
	TS        time.Time `json:"ts"`
}

// PubSubSink forwards notifications through a publisher. Progress ticks are
// skipped unless includeProgress is set; internal events are never sent.
type PubSubSink struct {
	pub             publisher.Publisher
	includeProgress bool
	logger          *zap.Logger
}

// NewPubSubSink wraps pub.
func NewPubSubSink(pub publisher.Publisher, includeProgress bool, logger *zap.Logger) (*PubSubSink, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{pub: pub, includeProgress: includeProgress, logger: logger}, nil
}

// Consume publishes each selected event. A failing publish does not stop the
// rest of the batch; the joined error is returned.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if !evt.Notify() || (evt.Stage == progress.StageProgress && !s.includeProgress) {
			continue
		}
		attrs := map[string]string{
			"kind":     evt.Kind,
			"stage":    string(evt.Stage),
			"severity": string(evt.Severity),
		}
		id, err := s.pub.Publish(ctx, attrs, Notification{
			SessionID: evt.SessionID.String(),
			Kind:      evt.Kind,
			Stage:     string(evt.Stage),
			Severity:  string(evt.Severity),
			Message:   evt.Message,
			Progress:  evt.Progress,
			Target:    evt.Target,
			JobID:     evt.JobID,
			TS:        evt.TS,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.Stage, err))
			continue
		}
		s.logger.Debug("notification published", zap.String("message_id", id), zap.String("stage", string(evt.Stage)))
	}
	return errors.Join(errs...)
}

// Close releases the publisher.
func (s *PubSubSink) Close(ctx context.Context) error {
	return s.pub.Close(ctx)
}
