package curator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

// ResourceConfig maps a resource kind onto backend endpoints.
type ResourceConfig struct {
	// Noun is used in messages ("products").
	Noun string `mapstructure:"noun"`
	// SubmitPath receives the analysis job, e.g. "scraper/analyze/".
	SubmitPath string `mapstructure:"submit_path" validate:"required"`
	// IDsField names the optional id list in the submit body.
	IDsField string `mapstructure:"ids_field" validate:"required"`
	// StatsPath serves the aggregate counters.
	StatsPath string `mapstructure:"stats_path" validate:"required"`
	// CountField is the counter read from StatsPath.
	CountField string `mapstructure:"count_field" validate:"required"`
}

// DefaultResources describes the two kinds the backend exposes.
func DefaultResources() map[string]ResourceConfig {
	return map[string]ResourceConfig{
		"products": {
			Noun:       "products",
			SubmitPath: "scraper/analyze/",
			IDsField:   "product_ids",
			StatsPath:  "products/stats/",
			CountField: "analyzed_products",
		},
		"posts": {
			Noun:       "posts",
			SubmitPath: "scraper/analyze-posts/",
			IDsField:   "post_ids",
			StatsPath:  "posts/stats/",
			CountField: "analyzed_posts",
		},
	}
}

// Resource adapts one backend resource kind to tracking.Source.
type Resource struct {
	kind   string
	cfg    ResourceConfig
	client *Client
}

var _ tracking.Source = (*Resource)(nil)

// NewResource binds kind to client.
func NewResource(kind string, cfg ResourceConfig, client *Client) (*Resource, error) {
	if strings.TrimSpace(kind) == "" {
		return nil, errors.New("curator: resource kind is required")
	}
	if client == nil {
		return nil, errors.New("curator: client is required")
	}
	if cfg.SubmitPath == "" || cfg.StatsPath == "" || cfg.CountField == "" || cfg.IDsField == "" {
		return nil, fmt.Errorf("curator: resource %s: submit path, ids field, stats path and count field are required", kind)
	}
	if cfg.Noun == "" {
		cfg.Noun = kind
	}
	return &Resource{kind: kind, cfg: cfg, client: client}, nil
}

// Kind returns the resource kind.
func (r *Resource) Kind() string { return r.kind }

// Noun returns the user-facing noun.
func (r *Resource) Noun() string { return r.cfg.Noun }

// Submit asks the backend to analyze up to target unanalyzed items.
func (r *Resource) Submit(ctx context.Context, target int) (tracking.JobHandle, error) {
	return r.submit(ctx, target, nil)
}

// FetchCount reads the aggregate analyzed counter.
func (r *Resource) FetchCount(ctx context.Context) (int, error) {
	return r.client.FetchStat(ctx, r.cfg.StatsPath, r.cfg.CountField)
}

// WithIDs returns a submitter restricted to the given item ids. The target
// passed to it still bounds the job.
func (r *Resource) WithIDs(ids []int64) tracking.Submitter {
	ids = append([]int64(nil), ids...)
	return tracking.SubmitterFunc(func(ctx context.Context, target int) (tracking.JobHandle, error) {
		return r.submit(ctx, target, ids)
	})
}

func (r *Resource) submit(ctx context.Context, target int, ids []int64) (tracking.JobHandle, error) {
	body := map[string]any{"limit": target}
	if len(ids) > 0 {
		body[r.cfg.IDsField] = ids
	}
	resp, err := r.client.SubmitAnalysis(ctx, r.cfg.SubmitPath, body)
	if err != nil {
		return tracking.JobHandle{}, err
	}
	if strings.EqualFold(resp.Status, "error") || strings.EqualFold(resp.Status, "failed") {
		return tracking.JobHandle{}, fmt.Errorf("curator: backend refused %s analysis: %s %s", r.kind, resp.Status, resp.Message)
	}
	return tracking.JobHandle{ID: resp.TaskID, Message: resp.Message, Status: resp.Status}, nil
}
