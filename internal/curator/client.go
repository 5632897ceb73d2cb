// Package curator talks to the curation backend's REST API: it submits
// analysis jobs and reads the aggregate counters used to estimate progress.
package curator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Config controls the REST client.
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
	// Limiter, when set, paces every request.
	Limiter Limiter
}

// Limiter blocks until a request to rawURL may proceed.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// TaskResponse is the acknowledgement returned by analysis endpoints.
type TaskResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Client issues authenticated JSON requests against the backend.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	limiter   Limiter
	http      *http.Client
	logger    *zap.Logger
}

// New validates cfg and builds a Client. A nil logger is replaced by a no-op.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("curator: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("curator: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("curator: base url must be http(s), got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "curation-tracker"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:      base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		limiter:   cfg.Limiter,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}, nil
}

// SubmitAnalysis POSTs body to path and decodes the task acknowledgement.
func (c *Client) SubmitAnalysis(ctx context.Context, path string, body any) (TaskResponse, error) {
	var out TaskResponse
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return TaskResponse{}, err
	}
	return out, nil
}

// FetchStat GETs the stats document at path and returns the integer field.
func (c *Client) FetchStat(ctx context.Context, path, field string) (int, error) {
	var doc map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return 0, err
	}
	raw, ok := doc[field]
	if !ok {
		return 0, fmt.Errorf("curator: %s response has no %q field", path, field)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("curator: decode %q: %w", field, err)
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return fmt.Errorf("curator: parse path %q: %w", path, err)
	}
	target := c.base.ResolveReference(ref)

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("curator: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("curator: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target.String()); err != nil {
			return fmt.Errorf("curator: %s %s: %w", method, path, err)
		}
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("curator: %s %s: %w", method, path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close response body", zap.Error(cerr))
		}
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("curator: read %s response: %w", path, err)
	}
	c.logger.Debug("curator request",
		zap.String("method", method),
		zap.String("path", target.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			Path:       target.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bytes.ToValidUTF8(data[:min(len(data), 256)], nil))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("curator: decode %s response: %w", path, err)
	}
	return nil
}
