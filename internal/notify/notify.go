// Package notify emits job lifecycle events and the published-posting
// hand-off to the configured topic. Delivery beyond the topic (email, chat)
// belongs to downstream consumers.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Event types emitted on the event topic.
const (
	EventJobSucceeded = "job.succeeded"
	EventJobFailed    = "job.failed"
	EventJobStopped   = "job.stopped"
	EventJobCanceled  = "job.canceled"
	EventHardReset    = "engine.hard_reset"
)

// Event is the lifecycle payload placed on the event topic.
type Event struct {
	Type         string    `json:"type"`
	JobID        string    `json:"job_id,omitempty"`
	SourceID     string    `json:"source_id,omitempty"`
	ItemsFound   int64     `json:"items_found,omitempty"`
	ItemsSaved   int64     `json:"items_saved,omitempty"`
	CanceledJobs int64     `json:"canceled_jobs,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// PublishedBatch is the hand-off payload for the downstream job feed.
type PublishedBatch struct {
	Jobs []scrape.NormalizedJob `json:"jobs"`
	At   time.Time              `json:"at"`
}

// Config names the topics.
type Config struct {
	EventTopic   string
	PublishTopic string
}

// Notifier fans lifecycle events out through a Publisher. Publish failures
// are logged, never propagated; notifications must not fail the pipeline.
type Notifier struct {
	pub    scrape.Publisher
	cfg    Config
	clock  scrape.Clock
	logger *zap.Logger
}

// New builds a Notifier.
func New(pub scrape.Publisher, cfg Config, clock scrape.Clock, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, cfg: cfg, clock: clock, logger: logger}
}

// JobFinished emits the terminal event for a job.
func (n *Notifier) JobFinished(ctx context.Context, job scrape.Job) {
	var typ string
	switch job.Status {
	case scrape.JobStatusSucceeded:
		typ = EventJobSucceeded
	case scrape.JobStatusFailed:
		typ = EventJobFailed
	case scrape.JobStatusStopped:
		typ = EventJobStopped
	case scrape.JobStatusCanceled:
		typ = EventJobCanceled
	default:
		return
	}
	event := Event{
		Type:       typ,
		JobID:      job.ID,
		ItemsFound: job.ItemsFound,
		ItemsSaved: job.ItemsSaved,
		Error:      job.LastError,
		At:         n.clock.Now(),
	}
	if job.SourceID != nil {
		event.SourceID = *job.SourceID
	}
	n.emit(ctx, n.cfg.EventTopic, event)
}

// HardReset emits the engine-wide emergency stop event.
func (n *Notifier) HardReset(ctx context.Context, canceledJobs int64) {
	n.emit(ctx, n.cfg.EventTopic, Event{
		Type:         EventHardReset,
		CanceledJobs: canceledJobs,
		At:           n.clock.Now(),
	})
}

// JobsPublished hands a batch of published postings to the downstream feed.
func (n *Notifier) JobsPublished(ctx context.Context, jobs []scrape.NormalizedJob) {
	if len(jobs) == 0 {
		return
	}
	n.emit(ctx, n.cfg.PublishTopic, PublishedBatch{Jobs: jobs, At: n.clock.Now()})
}

func (n *Notifier) emit(ctx context.Context, topic string, payload any) {
	if n.pub == nil || topic == "" {
		return
	}
	if _, err := n.pub.Publish(ctx, topic, payload); err != nil {
		n.logger.Warn("notification publish failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
