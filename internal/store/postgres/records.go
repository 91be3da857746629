package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

const normalizedColumns = `id, raw_record_id, title, company, location, remote, employment_type, description, tags, salary_text, apply_url, posted_at, region, quality_score, published, created_at`

func scanNormalized(row pgx.Row) (scrape.NormalizedJob, error) {
	var job scrape.NormalizedJob
	err := row.Scan(
		&job.ID, &job.RawRecordID, &job.Title, &job.Company, &job.Location,
		&job.Remote, &job.EmploymentType, &job.Description, &job.Tags,
		&job.SalaryText, &job.ApplyURL, &job.PostedAt, &job.Region,
		&job.QualityScore, &job.Published, &job.CreatedAt,
	)
	return job, err
}

// InsertRawRecord performs the idempotent dedup upsert. The fingerprint and
// source-URL uniqueness constraints make concurrent identical inserts
// collapse into a single winner; losers report false.
func (s *Store) InsertRawRecord(ctx context.Context, rec scrape.RawRecord) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO raw_records (id, source_id, source_url, payload, fetched_at, fingerprint, posted_at, title, company)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT DO NOTHING`,
		rec.ID, rec.SourceID, rec.SourceURL, rec.Payload, rec.FetchedAt,
		rec.Fingerprint, rec.PostedAt, rec.Title, rec.Company,
	)
	if err != nil {
		return false, fmt.Errorf("insert raw record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertNormalizedJob stores the cleaned entity for a raw record.
func (s *Store) InsertNormalizedJob(ctx context.Context, job scrape.NormalizedJob) error {
	tags := job.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO normalized_jobs (`+normalizedColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		job.ID, job.RawRecordID, job.Title, job.Company, job.Location,
		job.Remote, job.EmploymentType, job.Description, tags,
		job.SalaryText, job.ApplyURL, job.PostedAt, job.Region,
		job.QualityScore, job.Published, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert normalized job: %w", err)
	}
	return nil
}

// GetRawRecord fetches one raw record by id.
func (s *Store) GetRawRecord(ctx context.Context, id string) (scrape.RawRecord, error) {
	var rec scrape.RawRecord
	err := s.db.QueryRow(ctx, `
SELECT id, source_id, source_url, payload, fetched_at, fingerprint, posted_at, title, company
FROM raw_records WHERE id = $1`, id).Scan(
		&rec.ID, &rec.SourceID, &rec.SourceURL, &rec.Payload, &rec.FetchedAt,
		&rec.Fingerprint, &rec.PostedAt, &rec.Title, &rec.Company,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.RawRecord{}, fmt.Errorf("raw record %s: %w", id, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.RawRecord{}, fmt.Errorf("get raw record: %w", err)
	}
	return rec, nil
}

// ListNormalizedJobs returns normalized jobs matching the filter, newest
// posted first.
func (s *Store) ListNormalizedJobs(ctx context.Context, f scrape.NormalizedFilter) ([]scrape.NormalizedJob, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
SELECT `+normalizedColumns+` FROM normalized_jobs
WHERE ($1 = '' OR region = $1)
  AND ($2 = '' OR lower(company) = lower($2))
  AND ($3::boolean IS NULL OR published = $3)
  AND quality_score >= $4
ORDER BY posted_at DESC NULLS LAST
LIMIT $5`,
		f.Region, f.Company, f.Published, f.MinScore, limit)
	if err != nil {
		return nil, fmt.Errorf("list normalized jobs: %w", err)
	}
	defer rows.Close()
	return collectNormalized(rows)
}

// MarkPublished flips the publish flag for the given ids and returns the
// newly published rows.
func (s *Store) MarkPublished(ctx context.Context, ids []string) ([]scrape.NormalizedJob, error) {
	rows, err := s.db.Query(ctx, `
UPDATE normalized_jobs SET published = TRUE
WHERE id = ANY($1) AND NOT published
RETURNING `+normalizedColumns, ids)
	if err != nil {
		return nil, fmt.Errorf("mark published: %w", err)
	}
	defer rows.Close()
	return collectNormalized(rows)
}

// UpdateQualityScore overwrites a stored score; only the rescore
// maintenance pass calls this.
func (s *Store) UpdateQualityScore(ctx context.Context, id string, score float64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE normalized_jobs SET quality_score = $2 WHERE id = $1`, id, score)
	if err != nil {
		return fmt.Errorf("update quality score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("normalized job %s: %w", id, scrape.ErrNotFound)
	}
	return nil
}

func collectNormalized(rows pgx.Rows) ([]scrape.NormalizedJob, error) {
	var out []scrape.NormalizedJob
	for rows.Next() {
		job, err := scanNormalized(rows)
		if err != nil {
			return nil, fmt.Errorf("scan normalized job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
