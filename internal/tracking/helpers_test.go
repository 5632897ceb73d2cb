package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/curation-tracker/internal/progress"
	"github.com/JakeFAU/curation-tracker/internal/schedule"
	"github.com/JakeFAU/curation-tracker/internal/storage/memory"
)

var errBackend = errors.New("backend unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countResult struct {
	count int
	err   error
}

// scriptedCounter returns results in order and repeats the last one.
type scriptedCounter struct {
	mu      sync.Mutex
	results []countResult
	calls   int
	// gate, when set, blocks FetchCount until a value is received.
	gate chan struct{}
	// entered is signalled when a gated call starts.
	entered chan struct{}
	// gateAfter lets that many calls through before the gate applies.
	gateAfter int
	started   int
}

func counts(values ...int) *scriptedCounter {
	c := &scriptedCounter{}
	for _, v := range values {
		c.results = append(c.results, countResult{count: v})
	}
	return c
}

func (c *scriptedCounter) then(results ...countResult) *scriptedCounter {
	c.results = append(c.results, results...)
	return c
}

func (c *scriptedCounter) FetchCount(context.Context) (int, error) {
	c.mu.Lock()
	gate, entered := c.gate, c.entered
	c.started++
	gated := c.started > c.gateAfter
	c.mu.Unlock()
	if gate != nil && gated {
		entered <- struct{}{}
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.results) == 0 {
		return 0, errBackend
	}
	r := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	return r.count, r.err
}

func (c *scriptedCounter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeSubmitter struct {
	mu     sync.Mutex
	calls  []int
	handle JobHandle
	err    error
}

func (s *fakeSubmitter) Submit(_ context.Context, target int) (JobHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, target)
	return s.handle, s.err
}

func (s *fakeSubmitter) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

type fakeSource struct {
	*fakeSubmitter
	*scriptedCounter
}

type recorder struct {
	t      *testing.T
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	if err := evt.Validate(); err != nil {
		r.t.Errorf("emitted invalid event %+v: %v", evt, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recorder) Stages() []progress.Stage {
	var out []progress.Stage
	for _, evt := range r.Events() {
		out = append(out, evt.Stage)
	}
	return out
}

// Notifications returns the user-visible terminal notifications.
func (r *recorder) Notifications() []progress.Event {
	var out []progress.Event
	for _, evt := range r.Events() {
		if evt.Notify() && evt.Terminal() {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	clock   *fakeClock
	kv      *memory.KV
	store   *Persistence
	counter *scriptedCounter
	events  *recorder
	cfg     Config
}

// slowCadences keep the real scheduler idle so tests drive ticks by hand.
var slowCadences = Cadences{
	Single: Cadence{Period: time.Hour, MaxAttempts: 60},
	Batch:  Cadence{Period: time.Hour, MaxAttempts: 20},
}

func newFixture(t *testing.T, counter *scriptedCounter) *fixture {
	t.Helper()
	clock := newFakeClock()
	kv := memory.NewKV()
	store, err := NewPersistence(kv, PersistenceConfig{Kind: "products", Clock: clock})
	require.NoError(t, err)
	events := &recorder{t: t}
	return &fixture{
		clock:   clock,
		kv:      kv,
		store:   store,
		counter: counter,
		events:  events,
		cfg: Config{
			Kind:     "products",
			Cadences: slowCadences,
			Store:    store,
			Counter:  counter,
			Emitter:  events,
			Clock:    clock,
		},
	}
}

func (f *fixture) persisted(t *testing.T) *Descriptor {
	t.Helper()
	d, err := f.store.Get(context.Background())
	require.NoError(t, err)
	return d
}

// tickN drives n poll attempts on the calling goroutine.
func tickN(s *Session, n int) {
	tok := &schedule.Token{}
	for range n {
		s.tick(tok)
	}
}

func stopSession(t *testing.T, s *Session) {
	t.Helper()
	t.Cleanup(s.Cancel)
}
