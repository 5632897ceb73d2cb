package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/metrics"
	"github.com/JakeFAU/curation-tracker/internal/store"
	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

const (
	requestTimeout = 60 * time.Second
	statusTimeout  = 3 * time.Second
	maxRequestBody = 1 << 16
)

// Resource exposes one tracked kind over HTTP.
type Resource struct {
	Tracker *tracking.Tracker
	// WithIDs builds a submitter restricted to specific item ids. Requests
	// carrying ids are rejected when it is nil.
	WithIDs func(ids []int64) tracking.Submitter
}

// Options wires the server's collaborators. Only Resources is required.
type Options struct {
	Resources map[string]Resource
	Runs      store.RunRepository
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.HTTP
	// Ready reports whether downstream dependencies are reachable.
	Ready  func(context.Context) error
	APIKey string
	Logger *zap.Logger
}

// Server wires HTTP handlers to the trackers and the run history.
type Server struct {
	router    chi.Router
	resources map[string]Resource
	kinds     []string
	ready     func(context.Context) error
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) (*Server, error) {
	if len(opts.Resources) == 0 {
		return nil, errors.New("api: at least one resource is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		resources: make(map[string]Resource, len(opts.Resources)),
		ready:     opts.Ready,
		logger:    opts.Logger.Named("api"),
	}
	for kind, res := range opts.Resources {
		if res.Tracker == nil {
			return nil, fmt.Errorf("api: resource %s has no tracker", kind)
		}
		s.resources[kind] = res
		s.kinds = append(s.kinds, kind)
	}
	slices.Sort(s.kinds)

	runs := NewRunHandler(opts.Runs, s.logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/tracking", func(r chi.Router) {
			r.Get("/", s.listTracking)
			r.Route("/{kind}", func(r chi.Router) {
				r.Get("/", s.getTracking)
				r.Post("/jobs", s.startJob)
				r.Post("/cancel", s.cancelSession)
			})
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", runs.ListRuns)
			r.Get("/{run_id}", runs.GetRun)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listTracking(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	out := make([]tracking.Status, 0, len(s.kinds))
	for _, kind := range s.kinds {
		st, err := s.resources[kind].Tracker.Status(ctx)
		if err != nil {
			s.logger.Error("tracking status failed", zap.String("kind", kind), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load tracking status")
			return
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackers": out})
}

func (s *Server) getTracking(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	st, err := res.Tracker.Status(ctx)
	if err != nil {
		s.logger.Error("tracking status failed", zap.String("kind", res.Tracker.Kind()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tracking status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type startJobRequest struct {
	Target int     `json:"target"`
	IDs    []int64 `json:"ids"`
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	var req startJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Target == 0 && len(req.IDs) > 0 {
		req.Target = len(req.IDs)
	}
	if req.Target <= 0 {
		writeError(w, http.StatusBadRequest, "target must be > 0")
		return
	}
	var submitter tracking.Submitter
	if len(req.IDs) > 0 {
		if res.WithIDs == nil {
			writeError(w, http.StatusBadRequest, "this resource does not accept ids")
			return
		}
		submitter = res.WithIDs(req.IDs)
	}

	session, err := res.Tracker.StartWith(r.Context(), req.Target, submitter)
	if err != nil {
		var subErr *tracking.SubmissionError
		switch {
		case errors.Is(err, tracking.ErrInvalidTarget):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &subErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			s.logger.Error("start job failed", zap.String("kind", res.Tracker.Kind()), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start tracking")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"session": session.Snapshot()})
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":      res.Tracker.Kind(),
		"cancelled": res.Tracker.Cancel(),
	})
}

func (s *Server) resource(w http.ResponseWriter, r *http.Request) (Resource, bool) {
	kind := chi.URLParam(r, "kind")
	res, ok := s.resources[kind]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown resource kind")
		return Resource{}, false
	}
	return res, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", reqID),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
