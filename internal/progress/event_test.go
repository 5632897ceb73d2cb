package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := Event{
		SessionID: uuid.New(),
		Kind:      "posts",
		TS:        time.Unix(0, 0),
		Stage:     StageProgress,
		Severity:  SeverityInfo,
		Message:   "2/5 posts analyzed",
		Progress:  2,
		Target:    5,
	}
	require.NoError(t, base.Validate())

	tests := map[string]func(e *Event){
		"missing session":        func(e *Event) { e.SessionID = uuid.Nil },
		"missing kind":           func(e *Event) { e.Kind = "" },
		"missing timestamp":      func(e *Event) { e.TS = time.Time{} },
		"unknown stage":          func(e *Event) { e.Stage = "NOPE" },
		"notification no text":   func(e *Event) { e.Message = "" },
		"internal with severity": func(e *Event) { e.Stage = StagePollFailed },
		"unknown severity":       func(e *Event) { e.Severity = "fatal" },
		"progress above target":  func(e *Event) { e.Progress = 6 },
		"negative progress":      func(e *Event) { e.Progress = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			evt := base
			mutate(&evt)
			require.Error(t, evt.Validate())
		})
	}
}

func TestEventNotifyAndTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, Event{Severity: SeveritySuccess, Stage: StageCompleted}.Notify())
	require.False(t, Event{Stage: StagePollFailed}.Notify())
	require.True(t, Event{Stage: StageCancelled}.Terminal())
	require.True(t, Event{Stage: StageSubmitFailed}.Terminal())
	require.False(t, Event{Stage: StageProgress}.Terminal())
}
