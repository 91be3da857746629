package htmlfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

func testTarget(url string) scrape.Target {
	return scrape.Target{
		Source: scrape.Source{ID: "src-1", BaseURL: url},
		Mode:   scrape.ModeHTML,
		URL:    url,
	}
}

func newTestFetcher(agents []string) *Fetcher {
	pool := scrape.NewUserAgentPool(agents)
	retry := scrape.NewExponentialRetryPolicy(3, time.Millisecond, 5*time.Millisecond)
	return New(Config{Timeout: 2 * time.Second}, pool, nil, retry, zap.NewNop())
}

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>jobs</body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	res, err := f.Fetch(context.Background(), testTarget(srv.URL))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(res.Body), "jobs")
	require.Equal(t, `"v1"`, res.ETag)
	require.False(t, res.NotModified)
	require.Greater(t, res.Duration, time.Duration(0))
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	res, err := f.Fetch(context.Background(), testTarget(srv.URL))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchDoesNotRetryPermanentStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	_, err := f.Fetch(context.Background(), testTarget(srv.URL))
	require.Error(t, err)

	var statusErr *scrape.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)
	require.EqualValues(t, 1, calls.Load())
}

func TestFetchRotatesUserAgents(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.UserAgent()] = true
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher([]string{"agent-a", "agent-b"})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), testTarget(srv.URL))
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, seen["agent-a"])
	require.True(t, seen["agent-b"])
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := newTestFetcher(nil)
	start := time.Now()
	_, err := f.Fetch(ctx, testTarget(srv.URL))
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	limiter := &recordingLimiter{}
	retry := scrape.NewExponentialRetryPolicy(1, time.Millisecond, time.Millisecond)
	f := New(Config{Timeout: time.Second}, scrape.NewUserAgentPool(nil), limiter, retry, zap.NewNop())

	target := testTarget(srv.URL)
	target.PerMinute = 12
	_, err := f.Fetch(context.Background(), target)
	require.NoError(t, err)

	require.EqualValues(t, 1, limiter.calls.Load())
	require.Equal(t, 12, limiter.lastPerMinute)
}

func TestFetchStopsWhenLimiterRefuses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach the server")
	}))
	defer srv.Close()

	limiter := &recordingLimiter{err: errors.New("budget exhausted")}
	f := New(Config{Timeout: time.Second}, scrape.NewUserAgentPool(nil), limiter, nil, zap.NewNop())

	_, err := f.Fetch(context.Background(), testTarget(srv.URL))
	require.ErrorContains(t, err, "budget exhausted")
}

type recordingLimiter struct {
	calls         atomic.Int32
	lastPerMinute int
	err           error
}

func (l *recordingLimiter) Wait(_ context.Context, _ string, perMinute int) error {
	l.calls.Add(1)
	l.lastPerMinute = perMinute
	return l.err
}
