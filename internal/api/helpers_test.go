package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/curation-tracker/internal/storage/memory"
	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

type fakeSource struct {
	mu        sync.Mutex
	count     int
	submitErr error
	idsSeen   [][]int64
	targets   []int
}

func (f *fakeSource) Submit(_ context.Context, target int) (tracking.JobHandle, error) {
	return f.submit(target, nil)
}

func (f *fakeSource) FetchCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeSource) withIDs(ids []int64) tracking.Submitter {
	return tracking.SubmitterFunc(func(_ context.Context, target int) (tracking.JobHandle, error) {
		return f.submit(target, ids)
	})
}

func (f *fakeSource) submit(target int, ids []int64) (tracking.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return tracking.JobHandle{}, f.submitErr
	}
	f.targets = append(f.targets, target)
	if ids != nil {
		f.idsSeen = append(f.idsSeen, ids)
	}
	return tracking.JobHandle{ID: "task-1", Status: "processing"}, nil
}

var slowCadences = tracking.Cadences{
	Single: tracking.Cadence{Period: time.Hour, MaxAttempts: 60},
	Batch:  tracking.Cadence{Period: time.Hour, MaxAttempts: 20},
}

func newTestTracker(t *testing.T, kind string, src *fakeSource) *tracking.Tracker {
	t.Helper()
	store, err := tracking.NewPersistence(memory.NewKV(), tracking.PersistenceConfig{Kind: kind})
	require.NoError(t, err)
	tr, err := tracking.NewTracker(tracking.Config{
		Kind:     kind,
		Cadences: slowCadences,
		Store:    store,
	}, src)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Cancel() })
	return tr
}

var errBackend = errors.New("backend unavailable")

func doRequest(t *testing.T, h http.Handler, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if ct := rec.Header().Get("Content-Type"); ct == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}
