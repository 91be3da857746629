// Package postgres provides the pgx-backed persistence implementation.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the pool surface the store needs; pgxpool.Pool and pgxmock both
// satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements every scrape store interface over Postgres.
type Store struct {
	db    DB
	clock scrape.Clock
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config, clock scrape.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool, clock: clock}, nil
}

// NewWithDB constructs a Store from an existing pool, primarily for tests.
func NewWithDB(db DB, clock scrape.Clock) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db, clock: clock}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// EnsureSchema creates the tables and indexes when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	base_url      TEXT NOT NULL,
	feed_url      TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL DEFAULT '',
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	notes         TEXT NOT NULL DEFAULT '',
	etag          TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
	id                  TEXT PRIMARY KEY,
	source_id           TEXT REFERENCES sources(id),
	cron_expr           TEXT NOT NULL DEFAULT '',
	interval_ns         BIGINT NOT NULL DEFAULT 0,
	timezone            TEXT NOT NULL DEFAULT '',
	paused              BOOLEAN NOT NULL DEFAULT FALSE,
	enabled             BOOLEAN NOT NULL DEFAULT TRUE,
	max_concurrency     INT NOT NULL DEFAULT 0,
	requests_per_minute INT NOT NULL DEFAULT 0,
	next_fire           TIMESTAMPTZ,
	last_fire           TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id                  TEXT PRIMARY KEY,
	source_id           TEXT REFERENCES sources(id),
	mode                TEXT NOT NULL,
	requester           TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	max_concurrency     INT NOT NULL DEFAULT 0,
	requests_per_minute INT NOT NULL DEFAULT 0,
	queued_at           TIMESTAMPTZ NOT NULL,
	started_at          TIMESTAMPTZ,
	finished_at         TIMESTAMPTZ,
	items_found         BIGINT NOT NULL DEFAULT 0,
	items_saved         BIGINT NOT NULL DEFAULT 0,
	last_error          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs (status);
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_queued_at ON scrape_jobs (queued_at);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id           TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL REFERENCES scrape_jobs(id),
	source_id    TEXT NOT NULL,
	target_url   TEXT NOT NULL,
	mode         TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	found        INT NOT NULL DEFAULT 0,
	saved        INT NOT NULL DEFAULT 0,
	http_status  INT NOT NULL DEFAULT 0,
	error_text   TEXT NOT NULL DEFAULT '',
	log          TEXT[] NOT NULL DEFAULT '{}',
	snapshot_uri TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_job ON scrape_runs (job_id);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_status_started ON scrape_runs (status, started_at);

CREATE TABLE IF NOT EXISTS raw_records (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	source_url  TEXT NOT NULL UNIQUE,
	payload     BYTEA,
	fetched_at  TIMESTAMPTZ NOT NULL,
	fingerprint TEXT NOT NULL UNIQUE,
	posted_at   TIMESTAMPTZ,
	title       TEXT NOT NULL DEFAULT '',
	company     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_raw_records_fingerprint ON raw_records (fingerprint);

CREATE TABLE IF NOT EXISTS normalized_jobs (
	id              TEXT PRIMARY KEY,
	raw_record_id   TEXT NOT NULL UNIQUE REFERENCES raw_records(id),
	title           TEXT NOT NULL,
	company         TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	remote          BOOLEAN NOT NULL DEFAULT FALSE,
	employment_type TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	tags            TEXT[] NOT NULL DEFAULT '{}',
	salary_text     TEXT NOT NULL DEFAULT '',
	apply_url       TEXT NOT NULL,
	posted_at       TIMESTAMPTZ,
	region          TEXT NOT NULL DEFAULT '',
	quality_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	published       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_normalized_jobs_posted_at ON normalized_jobs (posted_at);
CREATE INDEX IF NOT EXISTS idx_normalized_jobs_company ON normalized_jobs (company);
CREATE INDEX IF NOT EXISTS idx_normalized_jobs_region ON normalized_jobs (region);

CREATE TABLE IF NOT EXISTS engine_state (
	id             BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
	status         TEXT NOT NULL,
	heartbeat      TIMESTAMPTZ NOT NULL,
	active_workers INT NOT NULL DEFAULT 0,
	queue_depth    INT NOT NULL DEFAULT 0
);
`
