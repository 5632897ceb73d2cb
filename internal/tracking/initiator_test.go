package tracking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/curation-tracker/internal/progress"
	"github.com/JakeFAU/curation-tracker/internal/storage"
)

func TestNewInitiatorValidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, counts(0))
	_, err := NewInitiator(f.cfg, nil)
	require.Error(t, err)

	cfg := f.cfg
	cfg.Store = nil
	_, err = NewInitiator(cfg, &fakeSubmitter{})
	require.Error(t, err)

	cfg = f.cfg
	cfg.Kind = " "
	_, err = NewInitiator(cfg, &fakeSubmitter{})
	require.Error(t, err)
}

func TestInitiatorPersistsFreshBaseline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, counts(42))
	sub := &fakeSubmitter{handle: JobHandle{ID: "task-7", Message: "Analysis started for 5 products"}}
	initiator, err := NewInitiator(f.cfg, sub)
	require.NoError(t, err)

	s, err := initiator.Start(context.Background(), 5)
	require.NoError(t, err)
	stopSession(t, s)

	require.Equal(t, []int{5}, sub.Calls())
	d := f.persisted(t)
	require.NotNil(t, d)
	require.Equal(t, NewDescriptor(42, 5, f.clock.Now()), *d)

	events := f.events.Events()
	require.Len(t, events, 1)
	require.Equal(t, progress.StageStarted, events[0].Stage)
	require.Equal(t, progress.SeverityInfo, events[0].Severity)
	require.Equal(t, "Analysis started for 5 products", events[0].Message)
	require.Equal(t, "task-7", events[0].JobID)
	require.Equal(t, s.ID(), events[0].SessionID)

	snap := s.Snapshot()
	require.Equal(t, StateRunning, snap.State)
	require.Equal(t, 42, snap.Baseline)
	require.Equal(t, "task-7", snap.JobID)
	require.False(t, snap.Resumed)
}

func TestInitiatorSubmissionFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()

	f := newFixture(t, counts(3))
	boom := errors.New("502 bad gateway")
	initiator, err := NewInitiator(f.cfg, &fakeSubmitter{err: boom})
	require.NoError(t, err)

	s, err := initiator.Start(context.Background(), 5)
	require.Nil(t, s)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, "products", subErr.Kind)
	require.ErrorIs(t, err, boom)

	require.Nil(t, f.persisted(t))
	notes := f.events.Events()
	require.Len(t, notes, 1)
	require.Equal(t, progress.StageSubmitFailed, notes[0].Stage)
	require.Equal(t, progress.SeverityError, notes[0].Severity)
}

func TestInitiatorBaselineFailureDoesNotSubmit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, (&scriptedCounter{}).then(countResult{err: errBackend}))
	sub := &fakeSubmitter{}
	initiator, err := NewInitiator(f.cfg, sub)
	require.NoError(t, err)

	_, err = initiator.Start(context.Background(), 5)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.ErrorIs(t, err, errBackend)
	require.Empty(t, sub.Calls())
	require.Nil(t, f.persisted(t))
	require.Len(t, f.events.Events(), 1)
}

func TestInitiatorRejectsNonPositiveTarget(t *testing.T) {
	t.Parallel()

	for _, target := range []int{0, -3} {
		f := newFixture(t, counts(0))
		sub := &fakeSubmitter{}
		initiator, err := NewInitiator(f.cfg, sub)
		require.NoError(t, err)

		_, err = initiator.Start(context.Background(), target)
		require.ErrorIs(t, err, ErrInvalidTarget)
		require.Empty(t, sub.Calls())
		require.Zero(t, f.counter.Calls())
		require.Nil(t, f.persisted(t))
	}
}

func TestInitiatorStartWithOverridesSubmitter(t *testing.T) {
	t.Parallel()

	f := newFixture(t, counts(0))
	fallback := &fakeSubmitter{}
	initiator, err := NewInitiator(f.cfg, fallback)
	require.NoError(t, err)

	var got int
	custom := SubmitterFunc(func(_ context.Context, target int) (JobHandle, error) {
		got = target
		return JobHandle{ID: "custom"}, nil
	})
	s, err := initiator.StartWith(context.Background(), 2, custom)
	require.NoError(t, err)
	stopSession(t, s)

	require.Equal(t, 2, got)
	require.Empty(t, fallback.Calls())
	require.Equal(t, "Analysis started for 2 products", f.events.Events()[0].Message)
}

func TestInitiatorTracksEvenWhenPersistFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, counts(0, 1))
	cfg := f.cfg
	broken, err := NewPersistence(failingKV{err: errBackend}, PersistenceConfig{Kind: "products"})
	require.NoError(t, err)
	cfg.Store = broken

	initiator, err := NewInitiator(cfg, &fakeSubmitter{})
	require.NoError(t, err)
	s, err := initiator.Start(context.Background(), 1)
	require.NoError(t, err)
	stopSession(t, s)

	tickN(s, 1)
	require.Equal(t, StateCompleted, s.Snapshot().State)
}

// ctxKV refuses writes once the request context is done, like the network
// backends do.
type ctxKV struct {
	storage.KV
}

func (k ctxKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.KV.Set(ctx, key, value)
}

func TestInitiatorPersistsAfterCallerGoesAway(t *testing.T) {
	t.Parallel()

	f := newFixture(t, counts(10))
	store, err := NewPersistence(ctxKV{KV: f.kv}, PersistenceConfig{Kind: "products", Clock: f.clock})
	require.NoError(t, err)
	cfg := f.cfg
	cfg.Store = store

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := SubmitterFunc(func(context.Context, int) (JobHandle, error) {
		// The caller disconnects right after the backend accepted the job.
		cancel()
		return JobHandle{ID: "task-9"}, nil
	})
	initiator, err := NewInitiator(cfg, sub)
	require.NoError(t, err)

	s, err := initiator.Start(ctx, 5)
	require.NoError(t, err)
	stopSession(t, s)

	d := f.persisted(t)
	require.NotNil(t, d, "an accepted job must stay resumable")
	require.Equal(t, NewDescriptor(10, 5, f.clock.Now()), *d)
}
