package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	memorypub "github.com/remotehive-dev/jobscraper/internal/notify/memory"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestNotifier() (*Notifier, *memorypub.Publisher) {
	pub := memorypub.New()
	cfg := Config{EventTopic: "scrape-events", PublishTopic: "published-jobs"}
	clock := fixedClock{now: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}
	return New(pub, cfg, clock, zap.NewNop()), pub
}

func TestJobFinishedEmitsTerminalEvent(t *testing.T) {
	t.Parallel()

	n, pub := newTestNotifier()
	src := "src-1"
	n.JobFinished(context.Background(), scrape.Job{
		ID:         "job-1",
		SourceID:   &src,
		Status:     scrape.JobStatusFailed,
		ItemsFound: 10,
		ItemsSaved: 4,
		LastError:  "no resolvable sources",
	})

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "scrape-events", msgs[0].Topic)

	event, ok := msgs[0].Payload.(Event)
	require.True(t, ok)
	require.Equal(t, EventJobFailed, event.Type)
	require.Equal(t, "job-1", event.JobID)
	require.Equal(t, "src-1", event.SourceID)
	require.Equal(t, int64(10), event.ItemsFound)
	require.Equal(t, "no resolvable sources", event.Error)
}

func TestJobFinishedIgnoresNonTerminalStatus(t *testing.T) {
	t.Parallel()

	n, pub := newTestNotifier()
	n.JobFinished(context.Background(), scrape.Job{ID: "job-1", Status: scrape.JobStatusRunning})
	require.Empty(t, pub.Messages())
}

func TestHardResetCarriesCanceledCount(t *testing.T) {
	t.Parallel()

	n, pub := newTestNotifier()
	n.HardReset(context.Background(), 3)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)

	event, ok := msgs[0].Payload.(Event)
	require.True(t, ok)
	require.Equal(t, EventHardReset, event.Type)
	require.Equal(t, int64(3), event.CanceledJobs)
	require.Zero(t, event.ItemsFound)
}

func TestJobsPublishedHandsOffBatch(t *testing.T) {
	t.Parallel()

	n, pub := newTestNotifier()
	n.JobsPublished(context.Background(), []scrape.NormalizedJob{{ID: "n-1", Title: "Backend Engineer"}})
	n.JobsPublished(context.Background(), nil)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "published-jobs", msgs[0].Topic)

	batch, ok := msgs[0].Payload.(PublishedBatch)
	require.True(t, ok)
	require.Len(t, batch.Jobs, 1)
}
