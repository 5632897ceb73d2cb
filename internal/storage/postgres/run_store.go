package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/curation-tracker/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool  dbPool
	table string
}

// NewRunStore wraps pool. An empty table defaults to "tracking_runs".
func NewRunStore(pool dbPool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "tracking_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the run table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id uuid PRIMARY KEY,
		kind text NOT NULL,
		status text NOT NULL,
		progress integer NOT NULL DEFAULT 0,
		target integer NOT NULL,
		job_id text NOT NULL DEFAULT '',
		started_at timestamptz NOT NULL,
		finished_at timestamptz,
		note text NOT NULL DEFAULT ''
	)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// StartRun inserts a running record; a repeated start refreshes progress only.
func (s *RunStore) StartRun(ctx context.Context, run store.RunRecord) error {
	if run.ID == uuid.Nil {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, kind, status, progress, target, job_id, started_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET progress = EXCLUDED.progress`, s.table)
	_, err := s.pool.Exec(ctx, query,
		run.ID,
		run.Kind,
		store.RunRunning,
		run.Progress,
		run.Target,
		run.JobID,
		run.StartedAt,
		run.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// UpdateProgress stores the latest progress for a running record.
func (s *RunStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := fmt.Sprintf(`UPDATE %s SET progress = $1 WHERE id = $2 AND status = $3`, s.table)
	if _, err := s.pool.Exec(ctx, query, progress, id, store.RunRunning); err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

// FinishRun marks a run terminal.
func (s *RunStore) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	status store.RunStatus,
	progress int,
	finishedAt time.Time,
	note string,
) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, progress = $2, finished_at = $3, note = COALESCE(NULLIF($4, ''), note)
		WHERE id = $5`, s.table)
	res, err := s.pool.Exec(ctx, query, status, progress, finishedAt, note, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.RunRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, status, progress, target, job_id, started_at, finished_at, note
		FROM %s
		WHERE id = $1`, s.table)
	var run store.RunRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Kind,
		&run.Status,
		&run.Progress,
		&run.Target,
		&run.JobID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Note,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first with optional kind/status filters.
func (s *RunStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.RunRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id, kind, status, progress, target, job_id, started_at, finished_at, note
		FROM %s
		WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4`, s.table)
	rows, err := s.pool.Query(ctx, query, filter.Kind, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.RunRecord{}
	for rows.Next() {
		var run store.RunRecord
		err := rows.Scan(
			&run.ID,
			&run.Kind,
			&run.Status,
			&run.Progress,
			&run.Target,
			&run.JobID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
