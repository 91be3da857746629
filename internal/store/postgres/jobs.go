package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

const jobColumns = `id, source_id, mode, requester, status, max_concurrency, requests_per_minute, queued_at, started_at, finished_at, items_found, items_saved, last_error`

func scanJob(row pgx.Row) (scrape.Job, error) {
	var job scrape.Job
	err := row.Scan(
		&job.ID, &job.SourceID, &job.Mode, &job.Requester, &job.Status,
		&job.MaxConcurrency, &job.RequestsPerMinute,
		&job.QueuedAt, &job.StartedAt, &job.FinishedAt,
		&job.ItemsFound, &job.ItemsSaved, &job.LastError,
	)
	return job, err
}

// CreateJob inserts a new job in queued status.
func (s *Store) CreateJob(ctx context.Context, job scrape.Job) error {
	if job.Status == "" {
		job.Status = scrape.JobStatusQueued
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = s.clock.Now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO scrape_jobs (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		job.ID, job.SourceID, job.Mode, job.Requester, job.Status,
		job.MaxConcurrency, job.RequestsPerMinute,
		job.QueuedAt, job.StartedAt, job.FinishedAt,
		job.ItemsFound, job.ItemsSaved, job.LastError,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.ID, scrape.ErrAlreadyExists)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// ClaimJob atomically moves a queued job to running. A job canceled while
// queued (hard reset) fails the claim.
func (s *Store) ClaimJob(ctx context.Context, id string) (scrape.Job, error) {
	row := s.db.QueryRow(ctx, `
UPDATE scrape_jobs
SET status = 'running', started_at = $2
WHERE id = $1 AND status = 'queued'
RETURNING `+jobColumns, id, s.clock.Now())

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return scrape.Job{}, getErr
		}
		return scrape.Job{}, fmt.Errorf("claim job %s: %w", id, scrape.ErrIllegalTransition)
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// allowedPrior returns the statuses a job may be in for the given transition
// target, mirroring JobStatus.CanTransitionTo.
func allowedPrior(next scrape.JobStatus) []string {
	switch next {
	case scrape.JobStatusRunning:
		return []string{"queued", "paused"}
	case scrape.JobStatusPaused:
		return []string{"running"}
	case scrape.JobStatusSucceeded, scrape.JobStatusFailed:
		return []string{"running"}
	case scrape.JobStatusStopped:
		return []string{"running", "paused"}
	case scrape.JobStatusCanceled:
		return []string{"queued", "running", "paused"}
	default:
		return nil
	}
}

// UpdateJobStatus applies one state machine transition with a single guarded
// update, so concurrent writers cannot race a terminal status.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status scrape.JobStatus, errText string) error {
	prior := allowedPrior(status)
	if prior == nil {
		return fmt.Errorf("job %s: unknown status %s: %w", id, status, scrape.ErrIllegalTransition)
	}
	tag, err := s.db.Exec(ctx, `
UPDATE scrape_jobs
SET status = $2,
    last_error = CASE WHEN $3::text <> '' THEN $3 ELSE last_error END,
    started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, $4) ELSE started_at END,
    finished_at = CASE WHEN $5 THEN $4 ELSE finished_at END
WHERE id = $1 AND status = ANY($6)`,
		id, status, errText, s.clock.Now(), status.Terminal(), prior)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == status {
		return nil // idempotent
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s: %w", id, job.Status, scrape.ErrAlreadyTerminal)
	}
	return fmt.Errorf("job %s: %s -> %s: %w", id, job.Status, status, scrape.ErrIllegalTransition)
}

// AddJobCounts increments the aggregate counters in place; callers never
// read-modify-write them.
func (s *Store) AddJobCounts(ctx context.Context, id string, found, saved int64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE scrape_jobs SET items_found = items_found + $2, items_saved = items_saved + $3 WHERE id = $1`,
		id, found, saved)
	if err != nil {
		return fmt.Errorf("add job counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, scrape.ErrNotFound)
	}
	return nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (scrape.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Job{}, fmt.Errorf("job %s: %w", id, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(ctx context.Context, f scrape.JobFilter) ([]scrape.Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
SELECT `+jobColumns+` FROM scrape_jobs
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR source_id = $2)
  AND ($3::timestamptz IS NULL OR queued_at >= $3)
  AND ($4::timestamptz IS NULL OR queued_at <= $4)
ORDER BY queued_at DESC
LIMIT $5`,
		string(f.Status), f.SourceID, f.Since, f.Until, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []scrape.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CancelActive forces every queued, running, or paused job to canceled and
// returns the affected ids. Used by hard reset only.
func (s *Store) CancelActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
UPDATE scrape_jobs
SET status = 'canceled', finished_at = $1
WHERE status IN ('queued', 'running', 'paused')
RETURNING id`, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("cancel active jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan canceled id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
