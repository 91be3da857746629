package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/remotehive-dev/jobscraper/internal/extract"
	"github.com/remotehive-dev/jobscraper/internal/fingerprint"
	"github.com/remotehive-dev/jobscraper/internal/metrics"
	"github.com/remotehive-dev/jobscraper/internal/normalize"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Orchestrator executes one claimed job end to end: resolve sources into
// targets, fetch each target under the politeness limiter, extract and
// normalize candidates, and record runs. Per-target failures are recorded and
// absorbed; only configuration errors fail the job outright.
type Orchestrator struct {
	sources scrape.SourceStore
	jobs    scrape.JobStore
	runs    scrape.RunStore
	records scrape.RecordStore

	feedFetcher scrape.Fetcher
	htmlFetcher scrape.Fetcher
	headless    scrape.Fetcher
	headlessOn  bool

	feedExtractor scrape.Extractor
	htmlExtractor scrape.Extractor
	detector      *extract.ShellDetector

	normalizer *normalize.Normalizer
	snapshots  scrape.SnapshotStore
	snapPrefix string

	ids         scrape.IDGenerator
	clock       scrape.Clock
	concurrency int
	logger      *zap.Logger
}

// OrchestratorConfig bundles the orchestrator's collaborators.
type OrchestratorConfig struct {
	Sources scrape.SourceStore
	Jobs    scrape.JobStore
	Runs    scrape.RunStore
	Records scrape.RecordStore

	FeedFetcher     scrape.Fetcher
	HTMLFetcher     scrape.Fetcher
	HeadlessFetcher scrape.Fetcher
	HeadlessEnabled bool

	Normalizer     *normalize.Normalizer
	Snapshots      scrape.SnapshotStore
	SnapshotPrefix string

	IDs            scrape.IDGenerator
	Clock          scrape.Clock
	JobConcurrency int
}

// NewOrchestrator builds an Orchestrator. The feed extractor and the
// card-then-readability chain are fixed; fetchers and stores come from the
// caller so tests can substitute fakes.
func NewOrchestrator(cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.JobConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Orchestrator{
		sources:       cfg.Sources,
		jobs:          cfg.Jobs,
		runs:          cfg.Runs,
		records:       cfg.Records,
		feedFetcher:   cfg.FeedFetcher,
		htmlFetcher:   cfg.HTMLFetcher,
		headless:      cfg.HeadlessFetcher,
		headlessOn:    cfg.HeadlessEnabled && cfg.HeadlessFetcher != nil,
		feedExtractor: extract.NewFeed(),
		htmlExtractor: extract.NewHTMLChain(),
		detector:      extract.NewShellDetector(0),
		normalizer:    cfg.Normalizer,
		snapshots:     cfg.Snapshots,
		snapPrefix:    cfg.SnapshotPrefix,
		ids:           cfg.IDs,
		clock:         cfg.Clock,
		concurrency:   concurrency,
		logger:        logger.Named("orchestrator"),
	}
}

// targetResult accumulates what one target contributed.
type targetResult struct {
	found  int
	saved  int
	failed bool
}

// Execute claims and runs the job. It returns the job's terminal status, or
// an error only when the job could not be driven at all (already claimed,
// store unavailable).
func (o *Orchestrator) Execute(ctx context.Context, jobID string, gate *Gate, state *State) (scrape.Job, error) {
	job, err := o.jobs.ClaimJob(ctx, jobID)
	if err != nil {
		// Hard reset may have canceled the job between enqueue and claim.
		if errors.Is(err, scrape.ErrNotFound) || errors.Is(err, scrape.ErrIllegalTransition) || errors.Is(err, scrape.ErrAlreadyTerminal) {
			o.logger.Info("job no longer claimable", zap.String("job_id", jobID), zap.Error(err))
			return scrape.Job{}, nil
		}
		return scrape.Job{}, fmt.Errorf("claim job %s: %w", jobID, err)
	}
	log := o.logger.With(zap.String("job_id", job.ID))

	targets, err := o.resolveTargets(ctx, job)
	if err != nil {
		log.Warn("job has no runnable sources", zap.Error(err))
		return o.finish(ctx, job.ID, scrape.JobStatusFailed, err.Error())
	}
	log.Info("job started",
		zap.Int("targets", len(targets)),
		zap.String("mode", string(job.Mode)))

	concurrency := o.concurrency
	if job.MaxConcurrency > 0 {
		concurrency = job.MaxConcurrency
	}

	var (
		mu       sync.Mutex
		lastFail string
		stopped  bool
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

dispatch:
	for _, target := range targets {
		// Iteration boundary: honor pause and stop before dispatching the
		// next target. The job status flips exactly once per pause episode.
		err := gate.Wait(groupCtx,
			func() {
				o.setStatus(ctx, job.ID, scrape.JobStatusPaused, "")
				state.JobPaused(ctx)
				log.Info("job paused")
			},
			func() {
				o.setStatus(ctx, job.ID, scrape.JobStatusRunning, "")
				state.JobResumed(ctx)
				log.Info("job resumed")
			})
		switch {
		case errors.Is(err, scrape.ErrJobStopped):
			stopped = true
			break dispatch
		case err != nil:
			break dispatch
		}

		target := target
		group.Go(func() error {
			res := o.processTarget(groupCtx, job, target)
			if res.failed {
				mu.Lock()
				lastFail = target.URL
				mu.Unlock()
			}
			if res.found > 0 || res.saved > 0 {
				if err := o.jobs.AddJobCounts(ctx, job.ID, int64(res.found), int64(res.saved)); err != nil {
					log.Warn("update job counters", zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = group.Wait()

	if gate.Stopped() {
		stopped = true
	}

	switch {
	case ctx.Err() != nil:
		// Shutdown or hard reset. Hard reset cancels statuses itself; a plain
		// shutdown leaves the best-effort cancel below.
		o.setStatus(ctx, job.ID, scrape.JobStatusCanceled, "engine shutdown")
		return o.current(job.ID)
	case stopped:
		return o.finish(ctx, job.ID, scrape.JobStatusStopped, "")
	default:
		// Target-level fetch failures never fail the job; they live on
		// the run rows. The last one is surfaced on the job for triage.
		var errText string
		if lastFail != "" {
			errText = fmt.Sprintf("target failures, last: %s", lastFail)
		}
		return o.finish(ctx, job.ID, scrape.JobStatusSucceeded, errText)
	}
}

// resolveTargets turns the job's source selection into concrete fetch units.
// A single explicit source must be usable or the job is a configuration
// failure; a run over all sources silently skips unsuitable ones.
func (o *Orchestrator) resolveTargets(ctx context.Context, job scrape.Job) ([]scrape.Target, error) {
	if job.SourceID != nil {
		src, err := o.sources.GetSource(ctx, *job.SourceID)
		if err != nil {
			return nil, fmt.Errorf("%w: source %s: %v", scrape.ErrNoSources, *job.SourceID, err)
		}
		if !src.Active {
			return nil, fmt.Errorf("%w: source %s is inactive", scrape.ErrNoSources, src.ID)
		}
		target, ok := o.targetFor(job, src)
		if !ok {
			return nil, fmt.Errorf("%w: source %s has no feed URL", scrape.ErrNoSources, src.ID)
		}
		return []scrape.Target{target}, nil
	}

	active := true
	srcs, err := o.sources.ListSources(ctx, scrape.SourceFilter{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	targets := make([]scrape.Target, 0, len(srcs))
	for _, src := range srcs {
		if target, ok := o.targetFor(job, src); ok {
			targets = append(targets, target)
		}
	}
	if len(targets) == 0 {
		return nil, scrape.ErrNoSources
	}
	return targets, nil
}

// targetFor resolves the fetch mode for one source. Resolution happens here,
// once, never mid-run.
func (o *Orchestrator) targetFor(job scrape.Job, src scrape.Source) (scrape.Target, bool) {
	mode := job.Mode.Resolve(src)
	url := src.BaseURL
	if mode == scrape.ModeFeed {
		if src.FeedURL == "" {
			return scrape.Target{}, false
		}
		url = src.FeedURL
	}
	return scrape.Target{
		Source:    src,
		Mode:      mode,
		URL:       url,
		PerMinute: job.RequestsPerMinute,
	}, true
}

// processTarget performs one fetch-extract-persist pass and records the run.
func (o *Orchestrator) processTarget(ctx context.Context, job scrape.Job, target scrape.Target) targetResult {
	log := o.logger.With(
		zap.String("job_id", job.ID),
		zap.String("source_id", target.Source.ID),
		zap.String("url", target.URL))

	run := scrape.Run{
		JobID:     job.ID,
		SourceID:  target.Source.ID,
		TargetURL: target.URL,
		Mode:      target.Mode,
		StartedAt: o.clock.Now(),
	}
	if id, err := o.ids.NewID(); err == nil {
		run.ID = id
	}

	fetcher := o.htmlFetcher
	if target.Mode == scrape.ModeFeed {
		fetcher = o.feedFetcher
	}
	result, err := fetcher.Fetch(ctx, target)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		run.Status = scrape.RunStatusFailed
		run.ErrorText = err.Error()
		var statusErr *scrape.StatusError
		if errors.As(err, &statusErr) {
			run.HTTPStatus = statusErr.Code
		}
		o.recordRun(ctx, run, target)
		return targetResult{failed: true}
	}
	run.HTTPStatus = result.StatusCode

	// Conditional fetch short-circuit: nothing changed upstream, keep a
	// cheap audit row and move on.
	if result.NotModified {
		run.Status = scrape.RunStatusNotModified
		run.Log = append(run.Log, "upstream not modified")
		o.recordRun(ctx, run, target)
		return targetResult{}
	}

	if target.Mode == scrape.ModeFeed && (result.ETag != "" || result.LastModified != "") {
		if err := o.sources.SaveFetchCache(ctx, target.Source.ID, result.ETag, result.LastModified); err != nil {
			log.Warn("save fetch cache", zap.Error(err))
		}
	}

	run.SnapshotURI = o.archive(ctx, job.ID, run.ID, target.Mode, result.Body)

	candidates, rendered := o.extractCandidates(ctx, target, result, &run)
	run.Log = append(run.Log, fmt.Sprintf("extracted %d candidates", len(candidates)))
	if rendered {
		run.Log = append(run.Log, "promoted to headless render")
	}

	res := o.persistCandidates(ctx, target, candidates, log)
	run.Found = res.found
	run.Saved = res.saved
	run.Status = scrape.RunStatusSucceeded
	o.recordRun(ctx, run, target)
	return res
}

// extractCandidates runs the extraction strategy for the target's mode,
// promoting an empty HTML result to a headless re-fetch when the page looks
// like a script shell.
func (o *Orchestrator) extractCandidates(ctx context.Context, target scrape.Target, result scrape.FetchResult, run *scrape.Run) ([]scrape.Candidate, bool) {
	extractor := o.htmlExtractor
	if target.Mode == scrape.ModeFeed {
		extractor = o.feedExtractor
	}
	candidates, err := extractor.Extract(result.URL, result.Body)
	if err != nil {
		run.Log = append(run.Log, fmt.Sprintf("extract: %v", err))
		return nil, false
	}
	if len(candidates) > 0 || target.Mode == scrape.ModeFeed {
		return candidates, false
	}
	if !o.headlessOn || !o.detector.LooksRendered(result.Body) {
		return candidates, false
	}

	rendered, err := o.headless.Fetch(ctx, target)
	if err != nil {
		run.Log = append(run.Log, fmt.Sprintf("headless fetch: %v", err))
		return candidates, false
	}
	candidates, err = o.htmlExtractor.Extract(rendered.URL, rendered.Body)
	if err != nil {
		run.Log = append(run.Log, fmt.Sprintf("extract rendered: %v", err))
		return nil, true
	}
	return candidates, true
}

// persistCandidates pushes candidates through validity, dedup, and
// normalization. Duplicates count as found but not saved.
func (o *Orchestrator) persistCandidates(ctx context.Context, target scrape.Target, candidates []scrape.Candidate, log *zap.Logger) targetResult {
	var res targetResult
	for _, cand := range candidates {
		if !cand.Valid() {
			metrics.AddCandidates(metrics.OutcomeInvalid, 1)
			continue
		}
		res.found++
		metrics.AddCandidates(metrics.OutcomeFound, 1)

		postedAt := normalize.ParseDate(cand.PostedRaw)
		fp := fingerprint.Compute(cand.Title, cand.Company, postedAt, cand.Link)

		rawID, err := o.ids.NewID()
		if err != nil {
			log.Error("generate id", zap.Error(err))
			continue
		}
		inserted, err := o.records.InsertRawRecord(ctx, scrape.RawRecord{
			ID:          rawID,
			SourceID:    target.Source.ID,
			SourceURL:   cand.Link,
			Payload:     cand.Payload,
			FetchedAt:   o.clock.Now(),
			Fingerprint: fp,
			PostedAt:    postedAt,
			Title:       cand.Title,
			Company:     cand.Company,
		})
		if err != nil {
			log.Warn("insert raw record", zap.Error(err))
			continue
		}
		if !inserted {
			metrics.AddCandidates(metrics.OutcomeDuplicate, 1)
			continue
		}

		job := o.normalizer.Normalize(cand, postedAt, target.Source)
		job.RawRecordID = rawID
		job.CreatedAt = o.clock.Now()
		if job.ID, err = o.ids.NewID(); err != nil {
			log.Error("generate id", zap.Error(err))
			continue
		}
		if err := o.records.InsertNormalizedJob(ctx, job); err != nil {
			log.Warn("insert normalized job", zap.Error(err))
			continue
		}
		res.saved++
		metrics.AddCandidates(metrics.OutcomeSaved, 1)
	}
	return res
}

// archive writes the raw payload to the snapshot store, keyed by job, run,
// and content hash so replays of the same body collapse to one object.
func (o *Orchestrator) archive(ctx context.Context, jobID, runID string, mode scrape.Mode, body []byte) string {
	if o.snapshots == nil || len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	ext := ".html"
	contentType := "text/html; charset=utf-8"
	if mode == scrape.ModeFeed {
		ext = ".xml"
		contentType = "application/xml"
	}
	key := path.Join(o.snapPrefix, jobID, runID+"-"+hex.EncodeToString(sum[:8])+ext)
	uri, err := o.snapshots.Put(ctx, key, contentType, body)
	if err != nil {
		o.logger.Warn("archive snapshot", zap.String("key", key), zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) recordRun(ctx context.Context, run scrape.Run, target scrape.Target) {
	run.FinishedAt = o.clock.Now()
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	if err := o.runs.RecordRun(ctx, run); err != nil {
		o.logger.Warn("record run", zap.String("job_id", run.JobID), zap.Error(err))
	}
	metrics.RecordRun(target.Source.ID, string(run.Status))
	metrics.ObserveFetch(string(run.Mode), run.FinishedAt.Sub(run.StartedAt))
}

// setStatus applies a non-terminal transition, tolerating races with stop
// and cancel.
func (o *Orchestrator) setStatus(ctx context.Context, jobID string, status scrape.JobStatus, errText string) {
	if err := o.jobs.UpdateJobStatus(ctx, jobID, status, errText); err != nil &&
		!errors.Is(err, scrape.ErrAlreadyTerminal) && !errors.Is(err, scrape.ErrIllegalTransition) {
		o.logger.Warn("update job status",
			zap.String("job_id", jobID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// finish applies the terminal status and returns the final job row.
func (o *Orchestrator) finish(ctx context.Context, jobID string, status scrape.JobStatus, errText string) (scrape.Job, error) {
	o.setStatus(ctx, jobID, status, errText)
	metrics.RecordJob(string(status))
	return o.current(jobID)
}

func (o *Orchestrator) current(jobID string) (scrape.Job, error) {
	job, err := o.jobs.GetJob(context.Background(), jobID)
	if err != nil {
		return scrape.Job{}, fmt.Errorf("load finished job %s: %w", jobID, err)
	}
	return job, nil
}
