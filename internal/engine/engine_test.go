package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/clock/system"
	"github.com/remotehive-dev/jobscraper/internal/id/uuid"
	"github.com/remotehive-dev/jobscraper/internal/normalize"
	"github.com/remotehive-dev/jobscraper/internal/notify"
	notifymem "github.com/remotehive-dev/jobscraper/internal/notify/memory"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
	snapmem "github.com/remotehive-dev/jobscraper/internal/snapshot/memory"
	storemem "github.com/remotehive-dev/jobscraper/internal/store/memory"
)

const rssTwoItems = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Remote Jobs</title>
  <link>https://jobs.example.com</link>
  <item>
    <title>Senior Go Engineer</title>
    <link>https://jobs.example.com/postings/go-1</link>
    <author>Acme Corp</author>
    <description>Build distributed ingestion pipelines. Remote friendly.</description>
    <pubDate>Mon, 04 Aug 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Platform Engineer</title>
    <link>https://jobs.example.com/postings/platform-2</link>
    <author>Beta Industries</author>
    <description>Kubernetes and Postgres at scale. Full-time.</description>
    <pubDate>Tue, 05 Aug 2025 09:30:00 GMT</pubDate>
  </item>
</channel>
</rss>`

// stubFetcher serves a fixed body with an optional per-call delay and
// counts invocations.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	body  []byte
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, target scrape.Target) (scrape.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	delay, body, err := f.delay, f.body, f.err
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return scrape.FetchResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return scrape.FetchResult{}, err
	}
	return scrape.FetchResult{
		URL:        target.URL,
		StatusCode: http.StatusOK,
		Body:       body,
	}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	store *storemem.Store
	pub   *notifymem.Publisher
	eng   *Engine
}

func newHarness(t *testing.T, fetcher scrape.Fetcher, workers, queueDepth int) *harness {
	t.Helper()
	clk := system.New()
	store := storemem.New(clk)

	state, err := NewState(context.Background(), store, clk, zap.NewNop())
	require.NoError(t, err)

	normalizer := normalize.New(normalize.Config{}, clk)
	orch := NewOrchestrator(OrchestratorConfig{
		Sources:        store,
		Jobs:           store,
		Runs:           store,
		Records:        store,
		FeedFetcher:    fetcher,
		HTMLFetcher:    fetcher,
		Normalizer:     normalizer,
		Snapshots:      snapmem.New(),
		SnapshotPrefix: "snapshots",
		IDs:            uuid.New(),
		Clock:          clk,
		JobConcurrency: 1,
	}, zap.NewNop())

	pub := notifymem.New()
	notifier := notify.New(pub, notify.Config{EventTopic: "events", PublishTopic: "published"}, clk, zap.NewNop())

	eng := New(Options{
		Queue:      NewQueue(queueDepth),
		State:      state,
		Orch:       orch,
		Jobs:       store,
		Runs:       store,
		Records:    store,
		Notifier:   notifier,
		Normalizer: normalizer,
		IDs:        uuid.New(),
		Clock:      clk,
		Workers:    workers,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{store: store, pub: pub, eng: eng}
}

func (h *harness) addFeedSource(t *testing.T, name string) scrape.Source {
	t.Helper()
	src, err := h.store.CreateSource(context.Background(), scrape.Source{
		Name:    name,
		BaseURL: "https://jobs.example.com",
		FeedURL: "https://jobs.example.com/feed.xml",
		Active:  true,
	})
	require.NoError(t, err)
	return src
}

func (h *harness) waitTerminal(t *testing.T, jobID string) scrape.Job {
	t.Helper()
	var job scrape.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.store.GetJob(context.Background(), jobID)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestEngineIngestsFeedAndDeduplicates(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(rssTwoItems)}
	h := newHarness(t, fetcher, 1, 8)
	src := h.addFeedSource(t, "example")

	first, err := h.eng.Start(context.Background(), StartRequest{SourceID: &src.ID, Requester: "test"})
	require.NoError(t, err)
	job := h.waitTerminal(t, first.ID)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.EqualValues(t, 2, job.ItemsFound)
	require.EqualValues(t, 2, job.ItemsSaved)

	// Re-ingesting the same feed finds the same postings but saves nothing.
	second, err := h.eng.Start(context.Background(), StartRequest{SourceID: &src.ID, Requester: "test"})
	require.NoError(t, err)
	job = h.waitTerminal(t, second.ID)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.EqualValues(t, 2, job.ItemsFound)
	require.EqualValues(t, 0, job.ItemsSaved)

	saved, err := h.store.ListNormalizedJobs(context.Background(), scrape.NormalizedFilter{})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	runs, err := h.store.ListRuns(context.Background(), scrape.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// A terminal event went out for each job.
	require.Eventually(t, func() bool {
		return len(h.pub.Messages()) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineFailsJobWithNoSources(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &stubFetcher{body: []byte(rssTwoItems)}, 1, 8)

	started, err := h.eng.Start(context.Background(), StartRequest{Requester: "test"})
	require.NoError(t, err)
	job := h.waitTerminal(t, started.ID)
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Contains(t, job.LastError, "no resolvable sources")
}

func TestEngineFailsJobForInactiveSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &stubFetcher{body: []byte(rssTwoItems)}, 1, 8)
	src := h.addFeedSource(t, "inactive")
	require.NoError(t, h.store.DeactivateSource(context.Background(), src.ID))

	started, err := h.eng.Start(context.Background(), StartRequest{SourceID: &src.ID, Requester: "test"})
	require.NoError(t, err)
	job := h.waitTerminal(t, started.ID)
	require.Equal(t, scrape.JobStatusFailed, job.Status)
}

func TestEngineTargetFetchFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connect timeout")}
	h := newHarness(t, fetcher, 1, 8)
	src := h.addFeedSource(t, "example")

	started, err := h.eng.Start(context.Background(), StartRequest{SourceID: &src.ID, Requester: "test"})
	require.NoError(t, err)
	job := h.waitTerminal(t, started.ID)

	// A down upstream is a run-level failure. Only configuration errors
	// fail the job itself.
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.EqualValues(t, 0, job.ItemsFound)
	require.EqualValues(t, 0, job.ItemsSaved)
	require.Contains(t, job.LastError, src.FeedURL)

	runs, err := h.store.ListRuns(context.Background(), scrape.RunFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, scrape.RunStatusFailed, runs[0].Status)
	require.Contains(t, runs[0].ErrorText, "connect timeout")
}

func TestEnginePauseResumeStop(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(rssTwoItems), delay: 60 * time.Millisecond}
	h := newHarness(t, fetcher, 1, 8)
	for _, name := range []string{"one", "two", "three", "four"} {
		h.addFeedSource(t, name)
	}

	started, err := h.eng.Start(context.Background(), StartRequest{Requester: "test"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := h.store.GetJob(context.Background(), started.ID)
		return err == nil && job.Status == scrape.JobStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.eng.Pause(context.Background(), started.ID))
	require.Eventually(t, func() bool {
		job, err := h.store.GetJob(context.Background(), started.ID)
		return err == nil && job.Status == scrape.JobStatusPaused
	}, 2*time.Second, 5*time.Millisecond)

	// Pausing a paused job is a no-op.
	require.NoError(t, h.eng.Pause(context.Background(), started.ID))

	require.NoError(t, h.eng.Resume(context.Background(), started.ID))
	require.NoError(t, h.eng.Stop(context.Background(), started.ID))

	job := h.waitTerminal(t, started.ID)
	require.Equal(t, scrape.JobStatusStopped, job.Status)

	// Terminal jobs reject further signals.
	require.ErrorIs(t, h.eng.Pause(context.Background(), started.ID), scrape.ErrAlreadyTerminal)
	require.ErrorIs(t, h.eng.Stop(context.Background(), started.ID), scrape.ErrAlreadyTerminal)
}

func TestEngineSignalUnknownJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &stubFetcher{}, 1, 8)
	require.ErrorIs(t, h.eng.Pause(context.Background(), "missing"), scrape.ErrNotFound)
}

func TestEngineHardReset(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(rssTwoItems), delay: 80 * time.Millisecond}
	h := newHarness(t, fetcher, 1, 8)
	for _, name := range []string{"a", "b", "c"} {
		h.addFeedSource(t, name)
	}

	// One job running, two stuck behind the single worker.
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := h.eng.Start(context.Background(), StartRequest{Requester: "test"})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	require.Eventually(t, func() bool {
		return h.eng.Health().Status == scrape.EngineRunning
	}, 2*time.Second, 5*time.Millisecond)

	canceled, err := h.eng.HardReset(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, canceled, 1)

	for _, id := range ids {
		job, err := h.store.GetJob(context.Background(), id)
		require.NoError(t, err)
		require.True(t, job.Status.Terminal(), "job %s left in %s", id, job.Status)
	}

	require.Eventually(t, func() bool {
		health := h.eng.Health()
		return health.Status == scrape.EngineIdle && health.ActiveWorkers == 0 && health.QueueDepth == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngineStartRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()

	// Zero workers: nothing drains the queue.
	clk := system.New()
	store := storemem.New(clk)
	state, err := NewState(context.Background(), store, clk, zap.NewNop())
	require.NoError(t, err)
	eng := New(Options{
		Queue: NewQueue(1),
		State: state,
		Jobs:  store,
		IDs:   uuid.New(),
		Clock: clk,
	}, zap.NewNop())

	_, err = eng.Start(context.Background(), StartRequest{Requester: "test"})
	require.NoError(t, err)

	rejected, err := eng.Start(context.Background(), StartRequest{Requester: "test"})
	require.ErrorIs(t, err, ErrQueueFull)
	require.Empty(t, rejected.ID)

	// The provisional row was canceled, not left queued.
	jobs, err := store.ListJobs(context.Background(), scrape.JobFilter{Status: scrape.JobStatusCanceled})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestEngineStartRejectsInvalidMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &stubFetcher{}, 1, 8)
	_, err := h.eng.Start(context.Background(), StartRequest{Mode: "carrier-pigeon"})
	require.Error(t, err)
}

func TestEnginePublish(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(rssTwoItems)}
	h := newHarness(t, fetcher, 1, 8)
	src := h.addFeedSource(t, "example")

	started, err := h.eng.Start(context.Background(), StartRequest{SourceID: &src.ID, Requester: "test"})
	require.NoError(t, err)
	h.waitTerminal(t, started.ID)

	saved, err := h.store.ListNormalizedJobs(context.Background(), scrape.NormalizedFilter{})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	published, err := h.eng.Publish(context.Background(), []string{saved[0].ID})
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.True(t, published[0].Published)

	_, err = h.eng.Publish(context.Background(), nil)
	require.Error(t, err)
}

func TestEngineRescore(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(rssTwoItems)}
	h := newHarness(t, fetcher, 1, 8)
	src := h.addFeedSource(t, "example")

	started, err := h.eng.Start(context.Background(), StartRequest{SourceID: &src.ID, Requester: "test"})
	require.NoError(t, err)
	h.waitTerminal(t, started.ID)

	saved, err := h.store.ListNormalizedJobs(context.Background(), scrape.NormalizedFilter{})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	// Degrade one stored score, then let the maintenance pass repair it.
	require.NoError(t, h.store.UpdateQualityScore(context.Background(), saved[0].ID, 1))
	updated, err := h.eng.Rescore(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, updated, 1)

	repaired, err := h.store.ListNormalizedJobs(context.Background(), scrape.NormalizedFilter{})
	require.NoError(t, err)
	for _, job := range repaired {
		require.Greater(t, job.QualityScore, 1.0)
	}
}

func TestEngineReindexFailedRuns(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(rssTwoItems), err: errors.New("upstream down")}
	h := newHarness(t, fetcher, 1, 8)
	src := h.addFeedSource(t, "example")

	started, err := h.eng.Start(context.Background(), StartRequest{SourceID: &src.ID, Requester: "test"})
	require.NoError(t, err)
	job := h.waitTerminal(t, started.ID)
	require.Equal(t, scrape.JobStatusSucceeded, job.Status)
	require.EqualValues(t, 0, job.ItemsSaved)

	// Upstream recovers; the reindex pass replays the failed coverage.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()

	requeued, err := h.eng.ReindexFailedRuns(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, requeued, 1)

	replay := h.waitTerminal(t, requeued[0].ID)
	require.Equal(t, scrape.JobStatusSucceeded, replay.Status)
	require.EqualValues(t, 2, replay.ItemsSaved)
}
