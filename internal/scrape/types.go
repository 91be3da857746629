// Package scrape defines core types shared across the ingestion subsystems.
package scrape

import (
	"net/http"
	"time"
)

// Mode selects how a source is fetched.
type Mode string

// Fetch modes accepted by the control API. ModeAuto resolves to feed when the
// source carries a feed URL, otherwise to HTML.
const (
	ModeAuto Mode = "auto"
	ModeFeed Mode = "feed"
	ModeHTML Mode = "html"
)

// Valid reports whether m is one of the accepted fetch modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeFeed, ModeHTML:
		return true
	default:
		return false
	}
}

// Resolve maps ModeAuto to a concrete mode for the given source. Resolution
// happens once per source at job start, never mid-run.
func (m Mode) Resolve(src Source) Mode {
	if m != ModeAuto {
		return m
	}
	if src.FeedURL != "" {
		return ModeFeed
	}
	return ModeHTML
}

// Source describes one external job board the engine ingests from.
type Source struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BaseURL      string    `json:"base_url"`
	FeedURL      string    `json:"feed_url,omitempty"`
	Region       string    `json:"region,omitempty"`
	Active       bool      `json:"active"`
	Notes        string    `json:"notes,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Schedule binds a recurrence to one source or to all sources (nil SourceID).
type Schedule struct {
	ID                string        `json:"id"`
	SourceID          *string       `json:"source_id,omitempty"`
	CronExpr          string        `json:"cron,omitempty"`
	Interval          time.Duration `json:"interval,omitempty"`
	Timezone          string        `json:"timezone,omitempty"`
	Paused            bool          `json:"paused"`
	Enabled           bool          `json:"enabled"`
	MaxConcurrency    int           `json:"max_concurrency,omitempty"`
	RequestsPerMinute int           `json:"requests_per_minute,omitempty"`
	NextFire          *time.Time    `json:"next_fire,omitempty"`
	LastFire          *time.Time    `json:"last_fire,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Job represents one logical scrape execution request.
type Job struct {
	ID                string     `json:"id"`
	SourceID          *string    `json:"source_id,omitempty"`
	Mode              Mode       `json:"mode"`
	Requester         string     `json:"requester"`
	Status            JobStatus  `json:"status"`
	MaxConcurrency    int        `json:"max_concurrency,omitempty"`
	RequestsPerMinute int        `json:"requests_per_minute,omitempty"`
	QueuedAt          time.Time  `json:"queued_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	ItemsFound        int64      `json:"items_found"`
	ItemsSaved        int64      `json:"items_saved"`
	LastError         string     `json:"last_error,omitempty"`
}

// Run is one fetch attempt against one concrete target URL within a Job.
type Run struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	SourceID    string    `json:"source_id"`
	TargetURL   string    `json:"target_url"`
	Mode        Mode      `json:"mode"`
	Status      RunStatus `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Found       int       `json:"found"`
	Saved       int       `json:"saved"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	ErrorText   string    `json:"error_text,omitempty"`
	Log         []string  `json:"log,omitempty"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
}

// RawRecord is the as-fetched candidate, write-once after insert.
type RawRecord struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	SourceURL   string     `json:"source_url"`
	Payload     []byte     `json:"payload,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Fingerprint string     `json:"fingerprint"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	Title       string     `json:"title,omitempty"`
	Company     string     `json:"company,omitempty"`
}

// NormalizedJob is the cleaned entity derived from exactly one RawRecord.
type NormalizedJob struct {
	ID             string     `json:"id"`
	RawRecordID    string     `json:"raw_record_id"`
	Title          string     `json:"title"`
	Company        string     `json:"company,omitempty"`
	Location       string     `json:"location,omitempty"`
	Remote         bool       `json:"remote"`
	EmploymentType string     `json:"employment_type,omitempty"`
	Description    string     `json:"description,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	SalaryText     string     `json:"salary_text,omitempty"`
	ApplyURL       string     `json:"apply_url"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	Region         string     `json:"region,omitempty"`
	QualityScore   float64    `json:"quality_score"`
	Published      bool       `json:"published"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Confidence grades how an extractor arrived at a candidate.
type Confidence string

// Extraction confidence levels, highest first.
const (
	ConfidenceFeed        Confidence = "feed"
	ConfidenceCard        Confidence = "card"
	ConfidenceReadability Confidence = "readability"
)

// Candidate is a loosely-structured job record produced by an extractor,
// upstream of the validity and deduplication gates.
type Candidate struct {
	Title      string
	Link       string
	Company    string
	Location   string
	Summary    string
	PostedRaw  string
	Tags       []string
	Payload    []byte
	Confidence Confidence
}

// Valid reports whether the candidate passes the one hard validity gate:
// both a title and a link must be present.
func (c Candidate) Valid() bool {
	return c.Title != "" && c.Link != ""
}

// Target is one concrete fetch unit inside a job: a source plus the mode and
// URL resolved for it at job start. PerMinute carries the job's rate override
// so every outbound request, retries included, passes through the limiter
// with the right budget.
type Target struct {
	Source    Source
	Mode      Mode
	URL       string
	PerMinute int
}

// FetchResult is returned by a Fetcher implementation.
type FetchResult struct {
	URL          string
	StatusCode   int
	Header       http.Header
	Body         []byte
	Duration     time.Duration
	NotModified  bool
	Rendered     bool
	ETag         string
	LastModified string
}

// EngineSnapshot is the observable control-plane state returned by health().
type EngineSnapshot struct {
	Status        EngineStatus `json:"status"`
	Heartbeat     time.Time    `json:"heartbeat"`
	ActiveWorkers int          `json:"active_workers"`
	QueueDepth    int          `json:"queue_depth"`
}

// SourceFilter narrows source listings.
type SourceFilter struct {
	Region string
	Active *bool
}

// ScheduleFilter narrows schedule listings.
type ScheduleFilter struct {
	SourceID string
	Enabled  *bool
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status   JobStatus
	SourceID string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// RunFilter narrows run listings.
type RunFilter struct {
	JobID    string
	SourceID string
	Status   RunStatus
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// NormalizedFilter narrows normalized job listings.
type NormalizedFilter struct {
	Region    string
	Company   string
	Published *bool
	MinScore  float64
	Limit     int
}
