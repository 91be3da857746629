// Package htmlfetch implements scrape.Fetcher using gocolly.
package htmlfetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/metrics"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	Timeout       time.Duration
	RespectRobots bool
	MaxBodyBytes  int
	// WaitDeadline bounds how long a fetch may block on the rate limiter
	// before the attempt is abandoned.
	WaitDeadline time.Duration
}

// Fetcher retrieves listing pages over plain HTTP with per-domain
// politeness, user-agent rotation, and transient-error retries.
type Fetcher struct {
	cfg           Config
	agents        *scrape.UserAgentPool
	limiter       scrape.Limiter
	retry         scrape.RetryPolicy
	logger        *zap.Logger
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, agents *scrape.UserAgentPool, limiter scrape.Limiter, retry scrape.RetryPolicy, logger *zap.Logger) *Fetcher {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodyBytes))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(newHTTPTransport())

	if agents == nil {
		agents = scrape.NewUserAgentPool(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		cfg:           cfg,
		agents:        agents,
		limiter:       limiter,
		retry:         retry,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET against the target, retrying transient
// failures. Every attempt, retries included, waits on the domain limiter
// first.
func (f *Fetcher) Fetch(ctx context.Context, target scrape.Target) (scrape.FetchResult, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := f.waitLimiter(ctx, target); err != nil {
			return scrape.FetchResult{}, err
		}

		result, err := f.fetchOnce(ctx, target)
		if err == nil {
			metrics.ObserveFetch(string(scrape.ModeHTML), result.Duration)
			return result, nil
		}
		lastErr = err

		if f.retry == nil || !f.retry.ShouldRetry(err, attempt+1) {
			return scrape.FetchResult{}, lastErr
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
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
	var (
		result   scrape.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.agents.Next()
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = scrape.FetchResult{
			URL:          r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			Header:       r.Headers.Clone(),
			Body:         append([]byte(nil), r.Body...),
			Duration:     time.Since(start),
			NotModified:  r.StatusCode == http.StatusNotModified,
			ETag:         r.Headers.Get("ETag"),
			LastModified: r.Headers.Get("Last-Modified"),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, target.URL); err != nil {
		return scrape.FetchResult{}, err
	}
	if fetchErr != nil {
		return scrape.FetchResult{}, fmt.Errorf("fetch %s: %w", target.URL, fetchErr)
	}
	if !result.NotModified && (result.StatusCode < 200 || result.StatusCode >= 300) {
		return scrape.FetchResult{}, &scrape.StatusError{Code: result.StatusCode, URL: target.URL}
	}
	return result, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
