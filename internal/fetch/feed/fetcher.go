// Package feedfetch retrieves RSS/Atom documents with conditional GETs.
package feedfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/metrics"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// maxFeedBytes caps how much of a feed document is read.
const maxFeedBytes = 8 << 20

// Config controls feed retrieval.
type Config struct {
	Timeout time.Duration
	// WaitDeadline bounds how long a fetch may block on the rate limiter
	// before the attempt is abandoned.
	WaitDeadline time.Duration
}

// Fetcher issues conditional GETs against feed URLs, sending the source's
// stored ETag and Last-Modified tokens. A 304 comes back as a zero-body
// result with NotModified set; the caller records a cheap run for it.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	agents  *scrape.UserAgentPool
	limiter scrape.Limiter
	retry   scrape.RetryPolicy
	logger  *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, agents *scrape.UserAgentPool, limiter scrape.Limiter, retry scrape.RetryPolicy, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if agents == nil {
		agents = scrape.NewUserAgentPool(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		agents:  agents,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}
}

// Fetch retrieves the target feed, retrying transient failures with backoff.
// Every attempt waits on the domain limiter first.
func (f *Fetcher) Fetch(ctx context.Context, target scrape.Target) (scrape.FetchResult, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := f.waitLimiter(ctx, target); err != nil {
			return scrape.FetchResult{}, err
		}

		result, err := f.fetchOnce(ctx, target)
		if err == nil {
			metrics.ObserveFetch(string(scrape.ModeFeed), result.Duration)
			return result, nil
		}
		lastErr = err

		if f.retry == nil || !f.retry.ShouldRetry(err, attempt+1) {
			return scrape.FetchResult{}, lastErr
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying feed fetch",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := scrape.Sleep(ctx, delay); err != nil {
			return scrape.FetchResult{}, lastErr
		}
	}
}

func (f *Fetcher) waitLimiter(ctx context.Context, target scrape.Target) error {
	if f.limiter == nil {
		return nil
	}
	waitCtx := ctx
	if f.cfg.WaitDeadline > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, f.cfg.WaitDeadline)
		defer cancel()
	}
	if err := f.limiter.Wait(waitCtx, target.URL, target.PerMinute); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, target scrape.Target) (scrape.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return scrape.FetchResult{}, fmt.Errorf("build request %s: %w", target.URL, err)
	}
	req.Header.Set("User-Agent", f.agents.Next())
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if target.Source.ETag != "" {
		req.Header.Set("If-None-Match", target.Source.ETag)
	}
	if target.Source.LastModified != "" {
		req.Header.Set("If-Modified-Since", target.Source.LastModified)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return scrape.FetchResult{}, fmt.Errorf("fetch %s: %w", target.URL, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotModified {
		return scrape.FetchResult{
			URL:         target.URL,
			StatusCode:  resp.StatusCode,
			Header:      resp.Header.Clone(),
			Duration:    time.Since(start),
			NotModified: true,
		}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return scrape.FetchResult{}, &scrape.StatusError{Code: resp.StatusCode, URL: target.URL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return scrape.FetchResult{}, fmt.Errorf("read feed body %s: %w", target.URL, err)
	}

	return scrape.FetchResult{
		URL:          target.URL,
		StatusCode:   resp.StatusCode,
		Header:       resp.Header.Clone(),
		Body:         body,
		Duration:     time.Since(start),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
