package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithDB(mock, fixedClock{now: testNow})
	require.NoError(t, err)
	return store, mock
}

func TestInsertRawRecordReportsDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := scrape.RawRecord{
		ID:          "raw-1",
		SourceID:    "src-1",
		SourceURL:   "https://boards.acme.com/jobs/42",
		FetchedAt:   testNow,
		Fingerprint: "fp-1",
		Title:       "Backend Engineer",
	}

	mock.ExpectExec("INSERT INTO raw_records").
		WithArgs(rec.ID, rec.SourceID, rec.SourceURL, rec.Payload, rec.FetchedAt, rec.Fingerprint, rec.PostedAt, rec.Title, rec.Company).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	inserted, err := store.InsertRawRecord(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, inserted)

	// Conflicting fingerprint: ON CONFLICT DO NOTHING affects zero rows.
	mock.ExpectExec("INSERT INTO raw_records").
		WithArgs(rec.ID, rec.SourceID, rec.SourceURL, rec.Payload, rec.FetchedAt, rec.Fingerprint, rec.PostedAt, rec.Title, rec.Company).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	inserted, err = store.InsertRawRecord(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusGuardsTransitions(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()

	// Legal transition updates exactly one row.
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("job-1", scrape.JobStatusPaused, "", testNow, false, []string{"running"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", scrape.JobStatusPaused, ""))

	// Guarded update misses; the job is already terminal.
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("job-1", scrape.JobStatusRunning, "", testNow, false, []string{"queued", "paused"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(jobRows("job-1", scrape.JobStatusSucceeded))
	err := store.UpdateJobStatus(ctx, "job-1", scrape.JobStatusRunning, "")
	require.ErrorIs(t, err, scrape.ErrAlreadyTerminal)

	// Guarded update misses but the job already carries the target status.
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("job-2", scrape.JobStatusPaused, "", testNow, false, []string{"running"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs WHERE id").
		WithArgs("job-2").
		WillReturnRows(jobRows("job-2", scrape.JobStatusPaused))
	require.NoError(t, store.UpdateJobStatus(ctx, "job-2", scrape.JobStatusPaused, ""))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddJobCountsIncrementsInPlace(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE scrape_jobs SET items_found = items_found").
		WithArgs("job-1", int64(10), int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.AddJobCounts(context.Background(), "job-1", 10, 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimJobRejectsNonQueued(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE scrape_jobs").
		WithArgs("job-1", testNow).
		WillReturnRows(pgxmock.NewRows(jobColumnList()))
	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(jobRows("job-1", scrape.JobStatusRunning))

	_, err := store.ClaimJob(context.Background(), "job-1")
	require.ErrorIs(t, err, scrape.ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelActiveReturnsIDs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE scrape_jobs").
		WithArgs(testNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("job-1").AddRow("job-2"))

	ids, err := store.CancelActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"job-1", "job-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFetchCacheMissingSource(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE sources SET etag").
		WithArgs("src-404", `"v1"`, "Thu, 04 Jan 2024 09:00:00 GMT", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SaveFetchCache(context.Background(), "src-404", `"v1"`, "Thu, 04 Jan 2024 09:00:00 GMT")
	require.ErrorIs(t, err, scrape.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadEngineStateBootstrapsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT status, heartbeat, active_workers, queue_depth FROM engine_state").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO engine_state").
		WithArgs(scrape.EngineIdle, testNow, 0, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	snap, err := store.LoadEngineState(context.Background())
	require.NoError(t, err)
	require.Equal(t, scrape.EngineIdle, snap.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func jobColumnList() []string {
	return []string{
		"id", "source_id", "mode", "requester", "status",
		"max_concurrency", "requests_per_minute",
		"queued_at", "started_at", "finished_at",
		"items_found", "items_saved", "last_error",
	}
}

func jobRows(id string, status scrape.JobStatus) *pgxmock.Rows {
	return pgxmock.NewRows(jobColumnList()).AddRow(
		id, (*string)(nil), scrape.ModeAuto, "operator", status,
		0, 0, testNow, (*time.Time)(nil), (*time.Time)(nil),
		int64(0), int64(0), "",
	)
}
