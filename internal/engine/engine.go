package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/normalize"
	"github.com/remotehive-dev/jobscraper/internal/notify"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Engine is the control plane: a fixed worker pool draining the job queue,
// plus the operations the HTTP API exposes (start, pause, resume, stop,
// hard reset, health, publish, maintenance).
type Engine struct {
	queue *Queue
	gates *gateSet
	state *State
	orch  *Orchestrator

	jobs       scrape.JobStore
	runs       scrape.RunStore
	records    scrape.RecordStore
	notifier   *notify.Notifier
	normalizer *normalize.Normalizer

	ids     scrape.IDGenerator
	clock   scrape.Clock
	workers int
	logger  *zap.Logger

	inflight trackedGroup
}

// Options bundles the engine's collaborators.
type Options struct {
	Queue      *Queue
	State      *State
	Orch       *Orchestrator
	Jobs       scrape.JobStore
	Runs       scrape.RunStore
	Records    scrape.RecordStore
	Notifier   *notify.Notifier
	Normalizer *normalize.Normalizer
	IDs        scrape.IDGenerator
	Clock      scrape.Clock
	Workers    int
}

// New builds an Engine.
func New(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		queue:      opts.Queue,
		gates:      newGateSet(),
		state:      opts.State,
		orch:       opts.Orch,
		jobs:       opts.Jobs,
		runs:       opts.Runs,
		records:    opts.Records,
		notifier:   opts.Notifier,
		normalizer: opts.Normalizer,
		ids:        opts.IDs,
		clock:      opts.Clock,
		workers:    workers,
		logger:     logger.Named("engine"),
	}
}

// Run starts the worker pool and blocks until ctx ends and every in-flight
// job has wound down.
func (e *Engine) Run(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		go e.worker(ctx, i)
	}
	<-ctx.Done()
	e.gates.stopAll()
	e.inflight.Wait()
}

func (e *Engine) worker(ctx context.Context, n int) {
	log := e.logger.With(zap.Int("worker", n))
	for {
		jobID, err := e.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		e.state.SetQueueDepth(ctx, e.queue.Len())
		e.runJob(ctx, jobID, log)
	}
}

func (e *Engine) runJob(ctx context.Context, jobID string, log *zap.Logger) {
	e.inflight.Add()
	defer e.inflight.Done()

	gate := e.gates.add(jobID)
	defer e.gates.remove(jobID)

	e.state.JobStarted(ctx)
	defer e.state.JobFinished(ctx)

	job, err := e.orch.Execute(ctx, jobID, gate, e.state)
	if err != nil {
		log.Error("job execution failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.ID != "" && job.Status.Terminal() {
		log.Info("job finished",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Int64("found", job.ItemsFound),
			zap.Int64("saved", job.ItemsSaved))
		e.notifier.JobFinished(ctx, job)
	}
}

// StartRequest describes a job submission.
type StartRequest struct {
	SourceID          *string
	Mode              scrape.Mode
	Requester         string
	MaxConcurrency    int
	RequestsPerMinute int
}

// Start creates a queued job and hands it to the pool. A full queue rejects
// the submission with ErrQueueFull; the provisional job row is canceled so
// nothing dangles.
func (e *Engine) Start(ctx context.Context, req StartRequest) (scrape.Job, error) {
	mode := req.Mode
	if mode == "" {
		mode = scrape.ModeAuto
	}
	if !mode.Valid() {
		return scrape.Job{}, fmt.Errorf("invalid mode %q", mode)
	}
	id, err := e.ids.NewID()
	if err != nil {
		return scrape.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := scrape.Job{
		ID:                id,
		SourceID:          req.SourceID,
		Mode:              mode,
		Requester:         req.Requester,
		Status:            scrape.JobStatusQueued,
		MaxConcurrency:    req.MaxConcurrency,
		RequestsPerMinute: req.RequestsPerMinute,
		QueuedAt:          e.clock.Now(),
	}
	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return scrape.Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := e.queue.Enqueue(job.ID); err != nil {
		if updErr := e.jobs.UpdateJobStatus(ctx, job.ID, scrape.JobStatusCanceled, "queue full"); updErr != nil {
			e.logger.Warn("cancel rejected job", zap.String("job_id", job.ID), zap.Error(updErr))
		}
		return scrape.Job{}, err
	}
	e.state.SetQueueDepth(ctx, e.queue.Len())
	e.logger.Info("job queued", zap.String("job_id", job.ID), zap.String("mode", string(mode)))
	return job, nil
}

// Pause asks a running job to hold at its next target boundary. Pausing a
// job that is already paused is a no-op.
func (e *Engine) Pause(ctx context.Context, jobID string) error {
	return e.signal(ctx, jobID, scrape.JobStatusPaused, func(g *Gate) { g.Pause() })
}

// Resume reopens a paused job. Resuming a running job is a no-op.
func (e *Engine) Resume(ctx context.Context, jobID string) error {
	return e.signal(ctx, jobID, scrape.JobStatusRunning, func(g *Gate) { g.Resume() })
}

// Stop gracefully ends a running or paused job at its next boundary.
func (e *Engine) Stop(ctx context.Context, jobID string) error {
	return e.signal(ctx, jobID, scrape.JobStatusStopped, func(g *Gate) { g.Stop() })
}

// signal validates the job's lifecycle position, then flips its gate. The
// gate drives the actual status write from the worker goroutine so the
// transition lands exactly when the job observes it.
func (e *Engine) signal(ctx context.Context, jobID string, want scrape.JobStatus, apply func(*Gate)) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return scrape.ErrAlreadyTerminal
	}
	if job.Status == want {
		return nil
	}
	gate, ok := e.gates.get(jobID)
	if !ok {
		// Still queued: no worker has claimed it, nothing to signal.
		return scrape.ErrIllegalTransition
	}
	apply(gate)
	return nil
}

// HardReset discards everything: drains the queue, cancels every
// non-terminal job, stops in-flight work, and returns once the engine is
// idle.
func (e *Engine) HardReset(ctx context.Context) (int, error) {
	drained := e.queue.Drain()
	e.state.SetQueueDepth(ctx, 0)

	canceled, err := e.jobs.CancelActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("cancel active jobs: %w", err)
	}
	e.gates.stopAll()
	e.inflight.Wait()
	e.state.ForceIdle(ctx)

	total := len(canceled)
	e.logger.Warn("hard reset",
		zap.Int("canceled", total),
		zap.Int("drained", len(drained)))
	e.notifier.HardReset(ctx, int64(total))
	return total, nil
}

// Health returns the control-plane snapshot.
func (e *Engine) Health() scrape.EngineSnapshot {
	return e.state.Snapshot()
}

// Publish marks the given normalized jobs published and emits them on the
// downstream feed topic.
func (e *Engine) Publish(ctx context.Context, ids []string) ([]scrape.NormalizedJob, error) {
	if len(ids) == 0 {
		return nil, errors.New("no ids to publish")
	}
	jobs, err := e.records.MarkPublished(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("mark published: %w", err)
	}
	if len(jobs) > 0 {
		e.notifier.JobsPublished(ctx, jobs)
	}
	return jobs, nil
}

// Rescore recomputes the quality score for every stored normalized job.
// Scores are overwritten; the operation is idempotent and auditable through
// its log line.
func (e *Engine) Rescore(ctx context.Context) (int, error) {
	jobs, err := e.records.ListNormalizedJobs(ctx, scrape.NormalizedFilter{})
	if err != nil {
		return 0, fmt.Errorf("list normalized jobs: %w", err)
	}
	updated := 0
	for _, job := range jobs {
		score := e.normalizer.Score(job)
		if score == job.QualityScore {
			continue
		}
		if err := e.records.UpdateQualityScore(ctx, job.ID, score); err != nil {
			e.logger.Warn("rescore", zap.String("id", job.ID), zap.Error(err))
			continue
		}
		updated++
	}
	e.logger.Info("rescore pass complete", zap.Int("scanned", len(jobs)), zap.Int("updated", updated))
	return updated, nil
}

// ReindexFailedRuns re-queues one job per source that had a failed run since
// the given time, replaying coverage the failures left behind.
func (e *Engine) ReindexFailedRuns(ctx context.Context, since time.Time) ([]scrape.Job, error) {
	failed, err := e.runs.FailedRuns(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list failed runs: %w", err)
	}
	seen := make(map[string]bool)
	var jobs []scrape.Job
	for _, run := range failed {
		if seen[run.SourceID] {
			continue
		}
		seen[run.SourceID] = true
		sourceID := run.SourceID
		job, err := e.Start(ctx, StartRequest{
			SourceID:  &sourceID,
			Mode:      run.Mode,
			Requester: "maintenance:reindex",
		})
		if err != nil {
			e.logger.Warn("reindex enqueue", zap.String("source_id", sourceID), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// trackedGroup counts in-flight jobs. Unlike sync.WaitGroup it tolerates
// Add racing with Wait, which happens when hard reset overlaps a dequeue.
type trackedGroup struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func (g *trackedGroup) Add() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
}

func (g *trackedGroup) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n--
	if g.n == 0 && g.cond != nil {
		g.cond.Broadcast()
	}
}

func (g *trackedGroup) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cond == nil {
		g.cond = sync.NewCond(&g.mu)
	}
	for g.n > 0 {
		g.cond.Wait()
	}
}
