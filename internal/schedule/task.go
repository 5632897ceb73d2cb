// Package schedule provides a cancellable periodic task. Each run of a task
// hands its callback a Token; once the task is cancelled every token it
// issued reports Cancelled, so work that finishes after cancellation can be
// recognized and discarded.
package schedule

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("schedule: task already started")

// Token is captured by a tick when it is issued.
type Token struct {
	cancelled atomic.Bool
}

// Cancelled reports whether the task that issued the token was cancelled.
func (t *Token) Cancelled() bool {
	return t == nil || t.cancelled.Load()
}

// Func is invoked once per period on the task goroutine. Invocations never
// overlap.
type Func func(tok *Token)

// Task runs a Func every period until cancelled.
type Task struct {
	period time.Duration
	fn     Func

	mu       sync.Mutex
	started  bool
	token    *Token
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a stopped Task. period must be positive.
func New(period time.Duration, fn Func) (*Task, error) {
	if period <= 0 {
		return nil, errors.New("schedule: period must be > 0")
	}
	if fn == nil {
		return nil, errors.New("schedule: func is required")
	}
	return &Task{
		period: period,
		fn:     fn,
		token:  &Token{},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the ticker goroutine. The first invocation happens one
// period after Start.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true
	go t.loop(t.token)
	return nil
}

// Cancel stops future invocations and marks the current token cancelled. It
// does not wait for an in-flight invocation and is safe to call from inside
// the task's own Func.
func (t *Task) Cancel() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.token.cancelled.Store(true)
		close(t.stopCh)
		if !t.started {
			t.started = true
			close(t.doneCh)
		}
	})
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.doneCh
}

func (t *Task) loop(tok *Token) {
	defer close(t.doneCh)
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if tok.Cancelled() {
				return
			}
			t.fn(tok)
		}
	}
}
