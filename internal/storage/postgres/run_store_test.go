package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/curation-tracker/internal/store"
)

var runColumns = []string{"id", "kind", "status", "progress", "target", "job_id", "started_at", "finished_at", "note"}

func TestRunStoreStartRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	rec := store.RunRecord{
		ID:        uuid.New(),
		Kind:      "products",
		Target:    5,
		JobID:     "task-1",
		StartedAt: started,
		Note:      "Analysis started",
	}
	mock.ExpectExec("INSERT INTO tracking_runs").
		WithArgs(rec.ID, rec.Kind, store.RunRunning, 0, 5, "task-1", started, "Analysis started").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, runs.StartRun(context.Background(), rec))
	require.Error(t, runs.StartRun(context.Background(), store.RunRecord{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreUpdateAndFinish(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock, "runs")
	require.NoError(t, err)
	ctx := context.Background()
	id := uuid.New()
	finished := time.Unix(1700000300, 0).UTC()

	mock.ExpectExec("UPDATE runs SET progress").
		WithArgs(3, id, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, runs.UpdateProgress(ctx, id, 3))

	mock.ExpectExec("UPDATE runs").
		WithArgs(store.RunCompleted, 5, finished, "done", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, runs.FinishRun(ctx, id, store.RunCompleted, 5, finished, "done"))

	mock.ExpectExec("UPDATE runs").
		WithArgs(store.RunTimedOut, 1, finished, "", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = runs.FinishRun(ctx, id, store.RunTimedOut, 1, finished, "")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock, "runs")
	require.NoError(t, err)
	ctx := context.Background()
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)

	mock.ExpectQuery("SELECT id, kind, status").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow(id, "posts", store.RunCompleted, 2, 2, "task-9", started, &finished, "done"))

	run, err := runs.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, "posts", run.Kind)
	require.Equal(t, store.RunCompleted, run.Status)
	require.Equal(t, 2, run.Progress)
	require.NotNil(t, run.FinishedAt)

	mock.ExpectQuery("SELECT id, kind, status").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = runs.GetRun(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock, "runs")
	require.NoError(t, err)
	started := time.Unix(1700000000, 0).UTC()
	var unfinished *time.Time

	mock.ExpectQuery("SELECT id, kind, status").
		WithArgs("products", "", 50, 0).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow(uuid.New(), "products", store.RunRunning, 1, 5, "", started, unfinished, "").
			AddRow(uuid.New(), "products", store.RunTimedOut, 2, 5, "", started.Add(-time.Hour), unfinished, ""))

	list, err := runs.ListRuns(context.Background(), store.RunFilter{Kind: "products"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, store.RunRunning, list[0].Status)
	require.Nil(t, list[0].FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
