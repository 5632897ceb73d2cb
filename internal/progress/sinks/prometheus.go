package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/curation-tracker/internal/progress"
)

// PrometheusSink exports tracker metrics via Prometheus. It owns all
// collectors for sessions started/finished/active and poll outcomes.
type PrometheusSink struct {
	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionsActive   *prometheus.GaugeVec
	sessionRuntime   *prometheus.HistogramVec
	submitFailures   *prometheus.CounterVec

	polls        *prometheus.CounterVec
	pollFailures *prometheus.CounterVec
	progress     *prometheus.GaugeVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_sessions_started_total",
			Help: "Tracking sessions started, partitioned by kind and origin (submitted or resumed).",
		}, []string{"kind", "origin"}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_sessions_finished_total",
			Help: "Tracking sessions that reached a terminal state, partitioned by outcome.",
		}, []string{"kind", "outcome"}),
		sessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curator_sessions_active",
			Help: "Tracking sessions currently polling.",
		}, []string{"kind"}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curator_session_runtime_seconds",
			Help:    "Wall time from session start to terminal state.",
			Buckets: []float64{5, 15, 30, 60, 120, 180, 300, 600},
		}, []string{"kind", "outcome"}),
		submitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_submit_failures_total",
			Help: "Job submissions rejected before tracking started.",
		}, []string{"kind"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_polls_total",
			Help: "Aggregate counter polls issued by sessions.",
		}, []string{"kind"}),
		pollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_poll_failures_total",
			Help: "Aggregate counter polls that failed and were absorbed.",
		}, []string{"kind"}),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curator_session_progress_ratio",
			Help: "Progress of the latest session per kind as a fraction of its target.",
		}, []string{"kind"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsFinished,
		s.sessionsActive,
		s.sessionRuntime,
		s.submitFailures,
		s.polls,
		s.pollFailures,
		s.progress,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageStarted, progress.StageResumed:
		origin := "submitted"
		if evt.Stage == progress.StageResumed {
			origin = "resumed"
		}
		s.sessionsStarted.WithLabelValues(evt.Kind, origin).Inc()
		if s.tracker.start(evt.SessionID, evt.TS) {
			s.sessionsActive.WithLabelValues(evt.Kind).Inc()
		}
		s.observeProgress(evt)
	case progress.StageProgress:
		s.polls.WithLabelValues(evt.Kind).Inc()
		s.observeProgress(evt)
	case progress.StagePollFailed:
		s.polls.WithLabelValues(evt.Kind).Inc()
		s.pollFailures.WithLabelValues(evt.Kind).Inc()
	case progress.StageCompleted, progress.StageTimedOut, progress.StageCancelled:
		outcome := outcomeLabel(evt.Stage)
		s.sessionsFinished.WithLabelValues(evt.Kind, outcome).Inc()
		if started, ok := s.tracker.complete(evt.SessionID); ok {
			s.sessionsActive.WithLabelValues(evt.Kind).Dec()
			if d := evt.TS.Sub(started); d > 0 {
				s.sessionRuntime.WithLabelValues(evt.Kind, outcome).Observe(d.Seconds())
			}
		}
		s.observeProgress(evt)
	case progress.StageSubmitFailed:
		s.submitFailures.WithLabelValues(evt.Kind).Inc()
	}
}

func (s *PrometheusSink) observeProgress(evt progress.Event) {
	if evt.Target > 0 {
		s.progress.WithLabelValues(evt.Kind).Set(float64(evt.Progress) / float64(evt.Target))
	}
}

func outcomeLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageCompleted:
		return "completed"
	case progress.StageTimedOut:
		return "timed_out"
	default:
		return "cancelled"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]time.Time
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[uuid.UUID]time.Time)}
}

func (t *sessionTracker) start(id uuid.UUID, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = at
	return true
}

func (t *sessionTracker) complete(id uuid.UUID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started, ok := t.running[id]
	if !ok {
		return time.Time{}, false
	}
	delete(t.running, id)
	return started, true
}
