// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/api"
	"github.com/JakeFAU/curation-tracker/internal/clock/system"
	"github.com/JakeFAU/curation-tracker/internal/config"
	"github.com/JakeFAU/curation-tracker/internal/curator"
	"github.com/JakeFAU/curation-tracker/internal/id/uuid"
	"github.com/JakeFAU/curation-tracker/internal/logging"
	"github.com/JakeFAU/curation-tracker/internal/metrics"
	"github.com/JakeFAU/curation-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/curation-tracker/internal/progress"
	progresssinks "github.com/JakeFAU/curation-tracker/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/curation-tracker/internal/publisher/pubsub"
	"github.com/JakeFAU/curation-tracker/internal/storage"
	gcsstorage "github.com/JakeFAU/curation-tracker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/curation-tracker/internal/storage/local"
	memoryStorage "github.com/JakeFAU/curation-tracker/internal/storage/memory"
	pgstore "github.com/JakeFAU/curation-tracker/internal/storage/postgres"
	redisstorage "github.com/JakeFAU/curation-tracker/internal/storage/redis"
	"github.com/JakeFAU/curation-tracker/internal/store"
	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

// ErrUnknownKind is returned for resource kinds missing from the config.
var ErrUnknownKind = errors.New("unknown resource kind")

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger   *zap.Logger
	console  io.Writer
	registry *prometheus.Registry
}

// WithLogger uses logger instead of building one from the config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithConsole directs console notifications to w (stdout by default).
func WithConsole(w io.Writer) Option {
	return func(o *buildOptions) { o.console = w }
}

// WithRegistry registers collectors on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *buildOptions) { o.registry = reg }
}

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	http     *metrics.HTTP

	pool      *pgxpool.Pool
	gcsClient *gcs.Client
	redis     *redisstorage.KV
	kv        storage.KV
	runs      store.RunRepository
	hub       *progress.Hub

	client    *curator.Client
	resources map[string]*curator.Resource
	trackers  map[string]*tracking.Tracker

	closeOnce sync.Once
	closeErr  error
}

// Build creates the application's dependencies. Everything opened before a
// failure is released again.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	app := &App{
		cfg:       cfg,
		logger:    logger,
		registry:  o.registry,
		resources: make(map[string]*curator.Resource),
		trackers:  make(map[string]*tracking.Tracker),
	}
	app.logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("history", cfg.History.Backend),
		zap.Strings("kinds", cfg.Kinds()),
	)

	steps := []func(context.Context) error{
		app.setupDatabase,
		app.setupStorage,
		app.setupHistory,
		func(ctx context.Context) error { return app.setupNotifications(ctx, o.console) },
		app.setupTrackers,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = app.Close(closeCtx)
			cancel()
			return nil, err
		}
	}
	var err error
	if app.http, err = metrics.NewHTTP(app.registry); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if !a.cfg.NeedsDatabase() {
		return nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	a.logger.Info("postgres pool initialized")
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "local":
		a.kv, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("local storage init failed: %w", err)
		}
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
	case "redis":
		a.redis, err = redisstorage.New(ctx, redisstorage.Config{
			Addr:     a.cfg.Storage.Redis.Addr,
			Username: a.cfg.Storage.Redis.Username,
			Password: a.cfg.Storage.Redis.Password,
			DB:       a.cfg.Storage.Redis.DB,
			Expiry:   a.cfg.Storage.Redis.Expiry,
		})
		if err != nil {
			return fmt.Errorf("redis storage init failed: %w", err)
		}
		a.kv = a.redis
		a.logger.Debug("redis storage backend", zap.String("addr", a.cfg.Storage.Redis.Addr))
	case "postgres":
		kv, err := pgstore.NewKVStore(a.pool, a.cfg.Storage.Postgres.Table)
		if err != nil {
			return fmt.Errorf("postgres storage init failed: %w", err)
		}
		if err := kv.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres storage schema: %w", err)
		}
		a.kv = kv
	case "gcs":
		a.gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.kv, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCS.Bucket,
			Prefix: a.cfg.Storage.GCS.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs storage init failed: %w", err)
		}
		a.logger.Debug("GCS storage backend", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
	default:
		a.logger.Warn("using in-memory storage backend; tracking will not survive a restart")
		a.kv = memoryStorage.NewKV()
	}
	return nil
}

func (a *App) setupHistory(ctx context.Context) error {
	switch a.cfg.History.Backend {
	case "postgres":
		runs, err := pgstore.NewRunStore(a.pool, a.cfg.History.Table)
		if err != nil {
			return fmt.Errorf("run history init failed: %w", err)
		}
		if err := runs.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("run history schema: %w", err)
		}
		a.runs = runs
	case "memory":
		a.runs = memoryStorage.NewRunStore()
	default:
		a.logger.Info("run history disabled")
	}
	return nil
}

func (a *App) setupNotifications(ctx context.Context, console io.Writer) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if a.runs != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")))
		a.logger.Debug("Added run history sink")
	}
	if a.cfg.Notify.Log {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
		a.logger.Debug("Added progress log sink")
	}
	if a.cfg.Notify.Console {
		if console == nil {
			console = os.Stdout
		}
		sinkList = append(sinkList, progresssinks.NewConsoleSink(console, a.cfg.Notify.ShowProgress))
	}
	if a.cfg.Notify.PubSub.Enabled {
		pub, err := gcppublisher.Connect(ctx, a.cfg.Notify.PubSub.ProjectID, a.cfg.Notify.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		pubSink, err := progresssinks.NewPubSubSink(pub, a.cfg.Notify.PubSub.IncludeProgress, a.logger.Named("progress_pubsub"))
		if err != nil {
			_ = pub.Close(ctx)
			return fmt.Errorf("pubsub sink init failed: %w", err)
		}
		sinkList = append(sinkList, pubSink)
		a.logger.Info("Pub/Sub notifications enabled",
			zap.String("project", a.cfg.Notify.PubSub.ProjectID),
			zap.String("topic", a.cfg.Notify.PubSub.TopicName),
		)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Hub.BufferSize,
		MaxBatchEvents: a.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Hub.MaxBatchWait,
		SinkTimeout:    a.cfg.Hub.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupTrackers(context.Context) error {
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.API.RequestsPerSecond,
		Burst: a.cfg.API.Burst,
		OnDelay: func(host string, d time.Duration) {
			a.logger.Debug("backend request paced", zap.String("host", host), zap.Duration("delay", d))
		},
	})
	client, err := curator.New(curator.Config{
		BaseURL:   a.cfg.API.BaseURL,
		Token:     a.cfg.API.Token,
		Timeout:   a.cfg.API.Timeout,
		UserAgent: a.cfg.API.UserAgent,
		Limiter:   limiter,
	}, a.logger.Named("curator"))
	if err != nil {
		return fmt.Errorf("curator client init failed: %w", err)
	}
	a.client = client

	clock := system.New()
	ids := uuid.New()
	for _, kind := range a.cfg.Kinds() {
		res, err := curator.NewResource(kind, a.cfg.Resources[kind], client)
		if err != nil {
			return err
		}
		slot, err := tracking.NewPersistence(a.kv, tracking.PersistenceConfig{
			Namespace: a.cfg.Tracking.Namespace,
			Kind:      kind,
			TTL:       a.cfg.Tracking.TTL,
			Clock:     clock,
			Logger:    a.logger.Named("persistence"),
		})
		if err != nil {
			return fmt.Errorf("persistence %s: %w", kind, err)
		}
		tracker, err := tracking.NewTracker(tracking.Config{
			Kind:        kind,
			Noun:        res.Noun(),
			Cadences:    a.cfg.Tracking.Cadences(),
			PollTimeout: a.cfg.Tracking.PollTimeout,
			Store:       slot,
			Emitter:     a.hub,
			Clock:       clock,
			IDs:         ids,
			Logger:      a.logger,
		}, res)
		if err != nil {
			return fmt.Errorf("tracker %s: %w", kind, err)
		}
		a.resources[kind] = res
		a.trackers[kind] = tracker
		a.logger.Debug("tracker ready", zap.String("kind", kind), zap.String("slot", slot.Key()))
	}
	return nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Kinds lists the tracked resource kinds in a stable order.
func (a *App) Kinds() []string {
	return a.cfg.Kinds()
}

// Tracker returns the tracker for kind.
func (a *App) Tracker(kind string) (*tracking.Tracker, error) {
	t, ok := a.trackers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}

// Submitter returns a submitter for kind, restricted to ids when given.
func (a *App) Submitter(kind string, ids []int64) (tracking.Submitter, error) {
	res, ok := a.resources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if len(ids) == 0 {
		return res, nil
	}
	return res.WithIDs(ids), nil
}

// Runs returns the run history repository, or nil when disabled.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Resume runs the once-per-process resume pass for kinds (all when empty)
// and returns the sessions it reconstructed.
func (a *App) Resume(ctx context.Context, kinds ...string) ([]*tracking.Session, error) {
	if len(kinds) == 0 {
		kinds = a.Kinds()
	}
	var (
		sessions []*tracking.Session
		errs     []error
	)
	for _, kind := range kinds {
		t, err := a.Tracker(kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s, err := t.Resume(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", kind, err))
			continue
		}
		if s != nil {
			sessions = append(sessions, s)
		}
	}
	return sessions, errors.Join(errs...)
}

// Ready checks downstream dependencies for /readyz.
func (a *App) Ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
	}
	return nil
}

// Server builds the status API over the trackers.
func (a *App) Server() (*api.Server, error) {
	resources := make(map[string]api.Resource, len(a.trackers))
	for kind, t := range a.trackers {
		resources[kind] = api.Resource{Tracker: t, WithIDs: a.resources[kind].WithIDs}
	}
	return api.NewServer(api.Options{
		Resources: resources,
		Runs:      a.runs,
		Gatherer:  a.registry,
		Metrics:   a.http,
		Ready:     a.Ready,
		APIKey:    a.cfg.Server.APIKey,
		Logger:    a.logger,
	})
}

// Serve resumes persisted jobs, then serves the status API until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if _, err := a.Resume(ctx); err != nil {
		a.logger.Warn("resume failed", zap.Error(err))
	}
	apiServer, err := a.Server()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// Close stops every active session, flushes notifications and releases
// infrastructure. Persisted descriptors survive so a later run can resume.
// Repeated calls are safe.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		kinds := make([]string, 0, len(a.trackers))
		for kind := range a.trackers {
			kinds = append(kinds, kind)
		}
		slices.Sort(kinds)
		for _, kind := range kinds {
			if a.trackers[kind].Cancel() {
				a.logger.Info("tracking paused; resume to continue", zap.String("kind", kind))
			}
		}
		a.closeErr = a.closeInfrastructure(ctx)
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
	})
	return a.closeErr
}

func (a *App) closeInfrastructure(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
