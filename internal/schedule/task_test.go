package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskRunsPeriodically(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	task, err := New(5*time.Millisecond, func(*Token) { runs.Add(1) })
	require.NoError(t, err)
	require.NoError(t, task.Start())
	defer task.Cancel()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestTaskStartTwice(t *testing.T) {
	t.Parallel()

	task, err := New(time.Hour, func(*Token) {})
	require.NoError(t, err)
	require.NoError(t, task.Start())
	require.ErrorIs(t, task.Start(), ErrAlreadyStarted)
	task.Cancel()
	<-task.Done()
}

func TestTaskCancelStopsFutureRuns(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	task, err := New(2*time.Millisecond, func(*Token) { runs.Add(1) })
	require.NoError(t, err)
	require.NoError(t, task.Start())
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, time.Millisecond)

	task.Cancel()
	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task goroutine did not exit")
	}
	after := runs.Load()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, after, runs.Load())
}

func TestTaskCancelFromInsideFunc(t *testing.T) {
	t.Parallel()

	var task *Task
	var runs atomic.Int32
	var sawCancel atomic.Bool
	task, err := New(time.Millisecond, func(tok *Token) {
		runs.Add(1)
		task.Cancel()
		sawCancel.Store(tok.Cancelled())
	})
	require.NoError(t, err)
	require.NoError(t, task.Start())

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task goroutine did not exit")
	}
	require.EqualValues(t, 1, runs.Load())
	require.True(t, sawCancel.Load())
}

// TestTokenCapturedBeforeCancel shows a slow run observes cancellation that
// happened while it was in flight.
func TestTokenCapturedBeforeCancel(t *testing.T) {
	t.Parallel()

	entered := make(chan *Token, 1)
	release := make(chan struct{})
	task, err := New(time.Millisecond, func(tok *Token) {
		select {
		case entered <- tok:
		default:
		}
		<-release
	})
	require.NoError(t, err)
	require.NoError(t, task.Start())

	tok := <-entered
	require.False(t, tok.Cancelled())
	task.Cancel()
	require.True(t, tok.Cancelled())
	close(release)
	<-task.Done()
}

func TestCancelBeforeStart(t *testing.T) {
	t.Parallel()

	task, err := New(time.Millisecond, func(*Token) { t.Error("unexpected run") })
	require.NoError(t, err)
	task.Cancel()
	<-task.Done()
	require.ErrorIs(t, task.Start(), ErrAlreadyStarted)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(0, func(*Token) {})
	require.Error(t, err)
	_, err = New(time.Second, nil)
	require.Error(t, err)
	require.True(t, (*Token)(nil).Cancelled())
}
