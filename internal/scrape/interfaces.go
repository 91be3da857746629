package scrape

import (
	"context"
	"time"
)

// SourceStore persists source descriptors. Sources referenced by historical
// runs are never hard-deleted, only deactivated.
type SourceStore interface {
	CreateSource(ctx context.Context, src Source) (Source, error)
	UpdateSource(ctx context.Context, src Source) (Source, error)
	DeactivateSource(ctx context.Context, id string) error
	GetSource(ctx context.Context, id string) (Source, error)
	ListSources(ctx context.Context, f SourceFilter) ([]Source, error)
	// SaveFetchCache stores the conditional-fetch tokens returned by the
	// last successful feed retrieval.
	SaveFetchCache(ctx context.Context, id, etag, lastModified string) error
}

// ScheduleStore persists schedule configs and their fire bookkeeping.
type ScheduleStore interface {
	UpsertSchedule(ctx context.Context, sch Schedule) (Schedule, error)
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ListSchedules(ctx context.Context, f ScheduleFilter) ([]Schedule, error)
	// DueSchedules returns enabled schedules whose next fire time is at or
	// before now, including paused ones (the scheduler still advances them).
	DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error)
	MarkFired(ctx context.Context, id string, last, next time.Time) error
}

// JobStore persists scrape jobs. Status writes go through UpdateJobStatus,
// which enforces the state machine and write-once terminal statuses.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	// ClaimJob moves a queued job to running and stamps its start time.
	ClaimJob(ctx context.Context, id string) (Job, error)
	UpdateJobStatus(ctx context.Context, id string, status JobStatus, errText string) error
	// AddJobCounts increments the aggregate counters atomically; callers
	// never read-modify-write them.
	AddJobCounts(ctx context.Context, id string, found, saved int64) error
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]Job, error)
	// CancelActive forces every queued, running, or paused job to canceled
	// and returns the affected ids. Used by hard reset only.
	CancelActive(ctx context.Context) ([]string, error)
}

// RunStore persists per-target fetch attempts.
type RunStore interface {
	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, f RunFilter) ([]Run, error)
	// FailedRuns returns failed runs since the given time for the
	// reindex maintenance pass.
	FailedRuns(ctx context.Context, since time.Time) ([]Run, error)
}

// RecordStore persists raw records and normalized jobs.
type RecordStore interface {
	// InsertRawRecord performs the idempotent dedup upsert. It returns false
	// when the fingerprint or source URL was already seen, in which case
	// nothing was written.
	InsertRawRecord(ctx context.Context, rec RawRecord) (bool, error)
	InsertNormalizedJob(ctx context.Context, job NormalizedJob) error
	GetRawRecord(ctx context.Context, id string) (RawRecord, error)
	ListNormalizedJobs(ctx context.Context, f NormalizedFilter) ([]NormalizedJob, error)
	// MarkPublished flips the publish flag for the given ids and returns the
	// newly published rows for the downstream hand-off. Unknown and
	// already-published ids are skipped, not errors.
	MarkPublished(ctx context.Context, ids []string) ([]NormalizedJob, error)
	// UpdateQualityScore overwrites a stored score. Only the explicit
	// rescore maintenance pass calls this.
	UpdateQualityScore(ctx context.Context, id string, score float64) error
}

// StateStore persists the singleton engine state row.
type StateStore interface {
	// LoadEngineState returns the row, creating an idle one at bootstrap.
	LoadEngineState(ctx context.Context) (EngineSnapshot, error)
	SaveEngineState(ctx context.Context, snap EngineSnapshot) error
}

// Fetcher retrieves raw content for one target.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) (FetchResult, error)
}

// Extractor parses fetched content into candidates. A nil error with zero
// candidates means "no match"; the orchestrator advances to the next
// strategy in its chain.
type Extractor interface {
	Extract(pageURL string, body []byte) ([]Candidate, error)
}

// Limiter enforces per-registrable-domain request budgets. Wait blocks until
// a token is available or ctx ends. A positive perMinute overrides the
// domain's budget for this and subsequent waits.
type Limiter interface {
	Wait(ctx context.Context, rawURL string, perMinute int) error
}

// Publisher pushes events to the notification topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SnapshotStore archives raw fetched payloads and returns a URI.
type SnapshotStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
