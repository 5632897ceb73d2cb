package sinks

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	id := uuid.New()

	require.NoError(t, sink.Consume(context.Background(), lifecycle(id, "products")))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "Analysis started", entries[0].Message)
	require.Equal(t, "task-1", entries[0].ContextMap()["job_id"])
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, "connection refused", entries[1].ContextMap()["note"])
	require.Equal(t, id.String(), entries[3].ContextMap()["session_id"])
}

func TestLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), lifecycle(uuid.New(), "products")))
}
