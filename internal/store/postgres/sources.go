package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

const sourceColumns = `id, name, base_url, feed_url, region, active, notes, etag, last_modified, created_at, updated_at`

func scanSource(row pgx.Row) (scrape.Source, error) {
	var src scrape.Source
	err := row.Scan(
		&src.ID, &src.Name, &src.BaseURL, &src.FeedURL, &src.Region,
		&src.Active, &src.Notes, &src.ETag, &src.LastModified,
		&src.CreatedAt, &src.UpdatedAt,
	)
	return src, err
}

// CreateSource inserts a new source descriptor.
func (s *Store) CreateSource(ctx context.Context, src scrape.Source) (scrape.Source, error) {
	now := s.clock.Now()
	src.CreatedAt = now
	src.UpdatedAt = now
	_, err := s.db.Exec(ctx, `
INSERT INTO sources (`+sourceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		src.ID, src.Name, src.BaseURL, src.FeedURL, src.Region,
		src.Active, src.Notes, src.ETag, src.LastModified,
		src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return scrape.Source{}, fmt.Errorf("source %s: %w", src.ID, scrape.ErrAlreadyExists)
		}
		return scrape.Source{}, fmt.Errorf("insert source: %w", err)
	}
	return src, nil
}

// UpdateSource replaces the editable fields of a source, preserving the
// conditional-fetch tokens.
func (s *Store) UpdateSource(ctx context.Context, src scrape.Source) (scrape.Source, error) {
	row := s.db.QueryRow(ctx, `
UPDATE sources
SET name = $2, base_url = $3, feed_url = $4, region = $5, active = $6, notes = $7, updated_at = $8
WHERE id = $1
RETURNING `+sourceColumns,
		src.ID, src.Name, src.BaseURL, src.FeedURL, src.Region, src.Active, src.Notes, s.clock.Now(),
	)
	updated, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Source{}, fmt.Errorf("source %s: %w", src.ID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Source{}, fmt.Errorf("update source: %w", err)
	}
	return updated, nil
}

// DeactivateSource soft-deletes a source.
func (s *Store) DeactivateSource(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE sources SET active = FALSE, updated_at = $2 WHERE id = $1`, id, s.clock.Now())
	if err != nil {
		return fmt.Errorf("deactivate source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, scrape.ErrNotFound)
	}
	return nil
}

// GetSource fetches one source by id.
func (s *Store) GetSource(ctx context.Context, id string) (scrape.Source, error) {
	src, err := scanSource(s.db.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Source{}, fmt.Errorf("source %s: %w", id, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Source{}, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// ListSources returns sources matching the filter, name-ordered.
func (s *Store) ListSources(ctx context.Context, f scrape.SourceFilter) ([]scrape.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE ($1 = '' OR region = $1) AND ($2::boolean IS NULL OR active = $2) ORDER BY name`
	var active *bool
	if f.Active != nil {
		active = f.Active
	}
	rows, err := s.db.Query(ctx, query, f.Region, active)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []scrape.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// SaveFetchCache stores the conditional-fetch tokens for a source.
func (s *Store) SaveFetchCache(ctx context.Context, id, etag, lastModified string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE sources SET etag = $2, last_modified = $3, updated_at = $4 WHERE id = $1`,
		id, etag, lastModified, s.clock.Now())
	if err != nil {
		return fmt.Errorf("save fetch cache: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, scrape.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
