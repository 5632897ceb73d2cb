package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/app"
	"github.com/JakeFAU/curation-tracker/internal/config"
	"github.com/JakeFAU/curation-tracker/internal/store"
	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

// fakeBackend serves the two curation endpoints. Every stats read advances
// the analyzed counter by step.
type fakeBackend struct {
	mu       sync.Mutex
	analyzed int
	step     int
	submits  []map[string]any
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scraper/analyze/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.submits = append(b.submits, body)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-9", "message": "Analysis queued", "status": "processing"})
	})
	mux.HandleFunc("GET /api/products/stats/", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		n := b.analyzed
		b.analyzed += b.step
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]int{"analyzed_products": n})
	})
	return mux
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.API.BaseURL = baseURL + "/api/"
	cfg.Storage.Backend = "memory"
	cfg.History.Backend = "memory"
	cfg.Notify.Log = false
	cfg.Hub.MaxBatchWait = 5 * time.Millisecond
	cfg.Tracking.Batch = tracking.Cadence{Period: 10 * time.Millisecond, MaxAttempts: 200}
	return cfg
}

func build(t *testing.T, cfg config.Config, console *bytes.Buffer) *app.App {
	t.Helper()
	a, err := app.Build(context.Background(), cfg,
		app.WithLogger(zap.NewNop()),
		app.WithConsole(console),
		app.WithRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	return a
}

func TestBuildTracksJobToCompletion(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{analyzed: 100, step: 1}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	var console bytes.Buffer
	a := build(t, testConfig(t, srv.URL), &console)
	require.Equal(t, []string{"posts", "products"}, a.Kinds())

	tracker, err := a.Tracker("products")
	require.NoError(t, err)
	submitter, err := a.Submitter("products", []int64{4, 5, 6})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := tracker.StartWith(ctx, 3, submitter)
	require.NoError(t, err)
	require.NoError(t, session.Wait(ctx))
	require.Equal(t, tracking.StateCompleted, session.Snapshot().State)

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx), "close is idempotent")

	require.Contains(t, console.String(), "[info] products: Analysis queued\n")
	require.Contains(t, console.String(), "[success] products: Analysis complete: 3/3 products analyzed\n")

	backend.mu.Lock()
	require.Len(t, backend.submits, 1)
	require.EqualValues(t, 3, backend.submits[0]["limit"])
	require.Len(t, backend.submits[0]["product_ids"], 3)
	backend.mu.Unlock()

	run, err := a.Runs().GetRun(ctx, session.ID())
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, run.Status)
	require.Equal(t, "task-9", run.JobID)
}

func TestCloseKeepsDescriptorForResume(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{analyzed: 10}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Storage.Backend = "local"
	cfg.Storage.Local.BaseDir = t.TempDir()
	cfg.Tracking.Batch = tracking.Cadence{Period: time.Hour, MaxAttempts: 20}
	ctx := context.Background()

	first := build(t, cfg, &bytes.Buffer{})
	tracker, err := first.Tracker("products")
	require.NoError(t, err)
	_, err = tracker.Start(ctx, 5)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	backend.mu.Lock()
	backend.analyzed = 12
	backend.mu.Unlock()

	var console bytes.Buffer
	second := build(t, cfg, &console)
	sessions, err := second.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	snap := sessions[0].Snapshot()
	require.True(t, snap.Resumed)
	require.Equal(t, 2, snap.Progress)
	require.Equal(t, 10, snap.Baseline)

	again, err := second.Resume(ctx)
	require.NoError(t, err)
	require.Empty(t, again, "resume runs once per process")

	require.NoError(t, second.Close(ctx))
	require.Contains(t, console.String(), "Resumed tracking products analysis: 2/5")
}

func TestServerServesTrackers(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{analyzed: 1}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	a := build(t, testConfig(t, srv.URL), &bytes.Buffer{})
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	apiServer, err := a.Server()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tracking", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	require.NoError(t, a.Ready(context.Background()))
}

func TestUnknownKind(t *testing.T) {
	t.Parallel()

	a := build(t, testConfig(t, "http://127.0.0.1:1"), &bytes.Buffer{})
	defer func() { _ = a.Close(context.Background()) }()

	_, err := a.Tracker("widgets")
	require.ErrorIs(t, err, app.ErrUnknownKind)
	_, err = a.Submitter("widgets", nil)
	require.ErrorIs(t, err, app.ErrUnknownKind)
	_, err = a.Resume(context.Background(), "widgets")
	require.ErrorIs(t, err, app.ErrUnknownKind)
}

func TestBuildFailsOnUnusableStorage(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Storage.Backend = "local"
	cfg.Storage.Local.BaseDir = file

	_, err := app.Build(context.Background(), cfg, app.WithLogger(zap.NewNop()), app.WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
}
