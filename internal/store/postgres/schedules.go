package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

const scheduleColumns = `id, source_id, cron_expr, interval_ns, timezone, paused, enabled, max_concurrency, requests_per_minute, next_fire, last_fire, created_at, updated_at`

func scanSchedule(row pgx.Row) (scrape.Schedule, error) {
	var (
		sch        scrape.Schedule
		intervalNS int64
	)
	err := row.Scan(
		&sch.ID, &sch.SourceID, &sch.CronExpr, &intervalNS, &sch.Timezone,
		&sch.Paused, &sch.Enabled, &sch.MaxConcurrency, &sch.RequestsPerMinute,
		&sch.NextFire, &sch.LastFire, &sch.CreatedAt, &sch.UpdatedAt,
	)
	sch.Interval = time.Duration(intervalNS)
	return sch, err
}

// UpsertSchedule creates or replaces a schedule config, preserving
// created-at and last-fire bookkeeping on update.
func (s *Store) UpsertSchedule(ctx context.Context, sch scrape.Schedule) (scrape.Schedule, error) {
	now := s.clock.Now()
	row := s.db.QueryRow(ctx, `
INSERT INTO schedules (`+scheduleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL,$11,$11)
ON CONFLICT (id) DO UPDATE SET
	source_id = EXCLUDED.source_id,
	cron_expr = EXCLUDED.cron_expr,
	interval_ns = EXCLUDED.interval_ns,
	timezone = EXCLUDED.timezone,
	paused = EXCLUDED.paused,
	enabled = EXCLUDED.enabled,
	max_concurrency = EXCLUDED.max_concurrency,
	requests_per_minute = EXCLUDED.requests_per_minute,
	next_fire = EXCLUDED.next_fire,
	updated_at = EXCLUDED.updated_at
RETURNING `+scheduleColumns,
		sch.ID, sch.SourceID, sch.CronExpr, int64(sch.Interval), sch.Timezone,
		sch.Paused, sch.Enabled, sch.MaxConcurrency, sch.RequestsPerMinute,
		sch.NextFire, now)

	stored, err := scanSchedule(row)
	if err != nil {
		return scrape.Schedule{}, fmt.Errorf("upsert schedule: %w", err)
	}
	return stored, nil
}

// GetSchedule fetches one schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (scrape.Schedule, error) {
	sch, err := scanSchedule(s.db.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Schedule{}, fmt.Errorf("schedule %s: %w", id, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Schedule{}, fmt.Errorf("get schedule: %w", err)
	}
	return sch, nil
}

// ListSchedules returns schedules matching the filter.
func (s *Store) ListSchedules(ctx context.Context, f scrape.ScheduleFilter) ([]scrape.Schedule, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+scheduleColumns+` FROM schedules
WHERE ($1 = '' OR source_id = $1)
  AND ($2::boolean IS NULL OR enabled = $2)
ORDER BY id`, f.SourceID, f.Enabled)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// DueSchedules returns enabled schedules whose next fire time has passed,
// paused ones included.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]scrape.Schedule, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+scheduleColumns+` FROM schedules
WHERE enabled AND next_fire IS NOT NULL AND next_fire <= $1
ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("due schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// MarkFired records a fire and the recomputed next fire time.
func (s *Store) MarkFired(ctx context.Context, id string, last, next time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE schedules SET last_fire = $2, next_fire = $3, updated_at = $4 WHERE id = $1`,
		id, last, next, s.clock.Now())
	if err != nil {
		return fmt.Errorf("mark fired: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s: %w", id, scrape.ErrNotFound)
	}
	return nil
}

func collectSchedules(rows pgx.Rows) ([]scrape.Schedule, error) {
	var out []scrape.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}
