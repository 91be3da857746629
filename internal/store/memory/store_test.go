package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return New(fixedClock{now: testNow})
}

func TestSourceLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	src, err := s.CreateSource(ctx, scrape.Source{ID: "src-1", Name: "Acme Boards", BaseURL: "https://boards.acme.com", Active: true})
	require.NoError(t, err)
	require.Equal(t, testNow, src.CreatedAt)

	_, err = s.CreateSource(ctx, scrape.Source{ID: "src-1"})
	require.ErrorIs(t, err, scrape.ErrAlreadyExists)

	require.NoError(t, s.SaveFetchCache(ctx, "src-1", `"v1"`, "Thu, 04 Jan 2024 09:00:00 GMT"))

	// Updating editable fields must not clobber fetch-cache tokens.
	updated, err := s.UpdateSource(ctx, scrape.Source{ID: "src-1", Name: "Acme Careers", BaseURL: "https://boards.acme.com", Active: true})
	require.NoError(t, err)
	require.Equal(t, `"v1"`, updated.ETag)

	require.NoError(t, s.DeactivateSource(ctx, "src-1"))
	got, err := s.GetSource(ctx, "src-1")
	require.NoError(t, err)
	require.False(t, got.Active)

	active := true
	list, err := s.ListSources(ctx, scrape.SourceFilter{Active: &active})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestJobStateMachine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.CreateJob(ctx, scrape.Job{ID: "job-1", Mode: scrape.ModeAuto}))

	job, err := s.ClaimJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	// A claimed job cannot be claimed again.
	_, err = s.ClaimJob(ctx, "job-1")
	require.ErrorIs(t, err, scrape.ErrIllegalTransition)

	require.NoError(t, s.UpdateJobStatus(ctx, "job-1", scrape.JobStatusPaused, ""))
	// From paused only running and stopped are reachable.
	require.ErrorIs(t, s.UpdateJobStatus(ctx, "job-1", scrape.JobStatusSucceeded, ""), scrape.ErrIllegalTransition)
	require.NoError(t, s.UpdateJobStatus(ctx, "job-1", scrape.JobStatusRunning, ""))
	require.NoError(t, s.UpdateJobStatus(ctx, "job-1", scrape.JobStatusSucceeded, ""))

	// Terminal is write-once.
	err = s.UpdateJobStatus(ctx, "job-1", scrape.JobStatusFailed, "late")
	require.ErrorIs(t, err, scrape.ErrAlreadyTerminal)

	// Re-applying the current status is a no-op.
	require.NoError(t, s.UpdateJobStatus(ctx, "job-1", scrape.JobStatusSucceeded, ""))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
}

func TestAddJobCounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.CreateJob(ctx, scrape.Job{ID: "job-1"}))

	require.NoError(t, s.AddJobCounts(ctx, "job-1", 10, 4))
	require.NoError(t, s.AddJobCounts(ctx, "job-1", 5, 1))

	job, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, int64(15), job.ItemsFound)
	require.Equal(t, int64(5), job.ItemsSaved)
}

func TestCancelActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.CreateJob(ctx, scrape.Job{ID: "job-q", Status: scrape.JobStatusQueued}))
	require.NoError(t, s.CreateJob(ctx, scrape.Job{ID: "job-r", Status: scrape.JobStatusRunning}))
	require.NoError(t, s.CreateJob(ctx, scrape.Job{ID: "job-p", Status: scrape.JobStatusPaused}))
	require.NoError(t, s.CreateJob(ctx, scrape.Job{ID: "job-d", Status: scrape.JobStatusSucceeded}))

	ids, err := s.CancelActive(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"job-p", "job-q", "job-r"}, ids)

	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		require.Equal(t, scrape.JobStatusCanceled, job.Status)
	}
	done, err := s.GetJob(ctx, "job-d")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusSucceeded, done.Status)
}

func TestInsertRawRecordDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	rec := scrape.RawRecord{ID: "raw-1", SourceURL: "https://boards.acme.com/jobs/42", Fingerprint: "fp-1"}
	inserted, err := s.InsertRawRecord(ctx, rec)
	require.NoError(t, err)
	require.True(t, inserted)

	// Same fingerprint, different URL: dropped.
	dup := scrape.RawRecord{ID: "raw-2", SourceURL: "https://other.example.net/jobs/42", Fingerprint: "fp-1"}
	inserted, err = s.InsertRawRecord(ctx, dup)
	require.NoError(t, err)
	require.False(t, inserted)

	// Same URL, different fingerprint: dropped too.
	dup2 := scrape.RawRecord{ID: "raw-3", SourceURL: "https://boards.acme.com/jobs/42", Fingerprint: "fp-2"}
	inserted, err = s.InsertRawRecord(ctx, dup2)
	require.NoError(t, err)
	require.False(t, inserted)

	_, err = s.GetRawRecord(ctx, "raw-1")
	require.NoError(t, err)
	_, err = s.GetRawRecord(ctx, "raw-2")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestNormalizedJobQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	_, err := s.InsertRawRecord(ctx, scrape.RawRecord{ID: "raw-1", SourceURL: "u1", Fingerprint: "f1"})
	require.NoError(t, err)
	_, err = s.InsertRawRecord(ctx, scrape.RawRecord{ID: "raw-2", SourceURL: "u2", Fingerprint: "f2"})
	require.NoError(t, err)

	require.NoError(t, s.InsertNormalizedJob(ctx, scrape.NormalizedJob{ID: "n-1", RawRecordID: "raw-1", Title: "Backend Engineer", Company: "Acme", Region: "eu", QualityScore: 80}))
	require.NoError(t, s.InsertNormalizedJob(ctx, scrape.NormalizedJob{ID: "n-2", RawRecordID: "raw-2", Title: "SRE", Company: "Globex", Region: "us", QualityScore: 40}))
	require.ErrorIs(t, s.InsertNormalizedJob(ctx, scrape.NormalizedJob{ID: "n-3", RawRecordID: "raw-missing"}), scrape.ErrNotFound)

	byScore, err := s.ListNormalizedJobs(ctx, scrape.NormalizedFilter{MinScore: 50})
	require.NoError(t, err)
	require.Len(t, byScore, 1)
	require.Equal(t, "n-1", byScore[0].ID)

	published, err := s.MarkPublished(ctx, []string{"n-1"})
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.True(t, published[0].Published)

	// Re-publishing is a no-op that returns nothing new, and unknown ids
	// are skipped rather than failing the batch.
	published, err = s.MarkPublished(ctx, []string{"n-1", "ghost"})
	require.NoError(t, err)
	require.Empty(t, published)

	published, err = s.MarkPublished(ctx, []string{"ghost", "n-2"})
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.Equal(t, "n-2", published[0].ID)

	require.NoError(t, s.UpdateQualityScore(ctx, "n-2", 65))
	jobs, err := s.ListNormalizedJobs(ctx, scrape.NormalizedFilter{Company: "globex"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, 65.0, jobs[0].QualityScore)
}

func TestRunQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	base := testNow.Add(-time.Hour)
	require.NoError(t, s.RecordRun(ctx, scrape.Run{ID: "run-1", JobID: "job-1", SourceID: "src-1", Status: scrape.RunStatusSucceeded, StartedAt: base}))
	require.NoError(t, s.RecordRun(ctx, scrape.Run{ID: "run-2", JobID: "job-1", SourceID: "src-1", Status: scrape.RunStatusFailed, StartedAt: base.Add(time.Minute), HTTPStatus: 503}))
	require.NoError(t, s.RecordRun(ctx, scrape.Run{ID: "run-3", JobID: "job-2", SourceID: "src-2", Status: scrape.RunStatusFailed, StartedAt: base.Add(-time.Hour)}))

	runs, err := s.ListRuns(ctx, scrape.RunFilter{JobID: "job-1"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID) // newest first

	failed, err := s.FailedRuns(ctx, base)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "run-2", failed[0].ID)
}

func TestEngineStateSingleton(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	snap, err := s.LoadEngineState(ctx)
	require.NoError(t, err)
	require.Equal(t, scrape.EngineIdle, snap.Status)

	snap.Status = scrape.EngineRunning
	snap.ActiveWorkers = 3
	require.NoError(t, s.SaveEngineState(ctx, snap))

	got, err := s.LoadEngineState(ctx)
	require.NoError(t, err)
	require.Equal(t, scrape.EngineRunning, got.Status)
	require.Equal(t, 3, got.ActiveWorkers)
}

func TestScheduleStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()
	next := testNow.Add(-time.Minute)
	src := "src-1"
	_, err := s.UpsertSchedule(ctx, scrape.Schedule{ID: "sch-1", SourceID: &src, CronExpr: "0 * * * *", Enabled: true, NextFire: &next})
	require.NoError(t, err)
	future := testNow.Add(time.Hour)
	_, err = s.UpsertSchedule(ctx, scrape.Schedule{ID: "sch-2", Interval: time.Hour, Enabled: true, NextFire: &future})
	require.NoError(t, err)
	_, err = s.UpsertSchedule(ctx, scrape.Schedule{ID: "sch-3", Interval: time.Hour, Enabled: false, NextFire: &next})
	require.NoError(t, err)

	due, err := s.DueSchedules(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "sch-1", due[0].ID)

	newNext := testNow.Add(time.Hour)
	require.NoError(t, s.MarkFired(ctx, "sch-1", testNow, newNext))
	sch, err := s.GetSchedule(ctx, "sch-1")
	require.NoError(t, err)
	require.Equal(t, testNow, *sch.LastFire)
	require.Equal(t, newNext, *sch.NextFire)

	due, err = s.DueSchedules(ctx, testNow)
	require.NoError(t, err)
	require.Empty(t, due)
}
