package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/curation-tracker/internal/progress"
)

// LogSink emits structured logs for every tracker event. Poll failures log at
// debug so outages do not flood the output.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("session_id", evt.SessionID.String()),
			zap.String("kind", evt.Kind),
			zap.String("stage", string(evt.Stage)),
			zap.Int("progress", evt.Progress),
			zap.Int("target", evt.Target),
			zap.Int("attempt", evt.Attempt),
			zap.Time("event_ts", evt.TS),
		}
		if evt.JobID != "" {
			fields = append(fields, zap.String("job_id", evt.JobID))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		msg := evt.Message
		if msg == "" {
			msg = "progress event"
		}
		if ce := s.logger.Check(levelFor(evt), msg); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close flushes buffered log entries.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}

func levelFor(evt progress.Event) zapcore.Level {
	switch evt.Severity {
	case progress.SeverityError:
		return zapcore.ErrorLevel
	case progress.SeverityWarning:
		return zapcore.WarnLevel
	case "":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
