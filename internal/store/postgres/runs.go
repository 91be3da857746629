package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

const runColumns = `id, job_id, source_id, target_url, mode, status, started_at, finished_at, found, saved, http_status, error_text, log, snapshot_uri`

func scanRun(row pgx.Row) (scrape.Run, error) {
	var run scrape.Run
	err := row.Scan(
		&run.ID, &run.JobID, &run.SourceID, &run.TargetURL, &run.Mode,
		&run.Status, &run.StartedAt, &run.FinishedAt,
		&run.Found, &run.Saved, &run.HTTPStatus, &run.ErrorText,
		&run.Log, &run.SnapshotURI,
	)
	return run, err
}

// RecordRun inserts one finished fetch attempt.
func (s *Store) RecordRun(ctx context.Context, run scrape.Run) error {
	log := run.Log
	if log == nil {
		log = []string{}
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO scrape_runs (`+runColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		run.ID, run.JobID, run.SourceID, run.TargetURL, run.Mode,
		run.Status, run.StartedAt, run.FinishedAt,
		run.Found, run.Saved, run.HTTPStatus, run.ErrorText,
		log, run.SnapshotURI,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *Store) ListRuns(ctx context.Context, f scrape.RunFilter) ([]scrape.Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
SELECT `+runColumns+` FROM scrape_runs
WHERE ($1 = '' OR job_id = $1)
  AND ($2 = '' OR source_id = $2)
  AND ($3 = '' OR status = $3)
  AND ($4::timestamptz IS NULL OR started_at >= $4)
  AND ($5::timestamptz IS NULL OR started_at <= $5)
ORDER BY started_at DESC
LIMIT $6`,
		f.JobID, f.SourceID, string(f.Status), f.Since, f.Until, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []scrape.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// FailedRuns returns failed runs started at or after since, for the reindex
// maintenance pass.
func (s *Store) FailedRuns(ctx context.Context, since time.Time) ([]scrape.Run, error) {
	return s.ListRuns(ctx, scrape.RunFilter{Status: scrape.RunStatusFailed, Since: &since})
}
