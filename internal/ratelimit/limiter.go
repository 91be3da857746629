// Package ratelimit implements token-bucket request budgets keyed by
// registrable domain.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/remotehive-dev/jobscraper/internal/domainutil"
	"github.com/remotehive-dev/jobscraper/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerMinute is the default replenishment rate per domain.
	RequestsPerMinute int
	// Burst caps immediately grantable tokens; defaults to the per-minute
	// budget so a full budget is grantable up front.
	Burst int
}

type bucket struct {
	limiter   *rate.Limiter
	perMinute int
}

// Limiter manages per-registrable-domain token buckets. A worker asking to
// fetch from a domain blocks until a token is available or its context ends;
// the caller treats a context deadline as an abandoned fetch attempt.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     Config
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
	}
}

// Wait blocks until the domain owning rawURL grants a token. A positive
// perMinute overrides the domain's budget (schedules may carry their own);
// zero keeps the configured default. The override sticks to the domain until
// another caller changes it.
func (l *Limiter) Wait(ctx context.Context, rawURL string, perMinute int) error {
	domain := domainutil.RegistrableOrHost(rawURL)
	if domain == "" {
		domain = "unknown"
	}

	b := l.bucketFor(domain, perMinute)

	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", domain, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(domain, waited)
	}
	return nil
}

func (l *Limiter) bucketFor(domain string, perMinute int) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := perMinute
	if want <= 0 {
		want = l.cfg.RequestsPerMinute
	}

	b, ok := l.buckets[domain]
	if !ok {
		b = &bucket{
			limiter:   rate.NewLimiter(perMinuteRate(want), burstFor(want, l.cfg)),
			perMinute: want,
		}
		l.buckets[domain] = b
		return b
	}
	if perMinute > 0 && b.perMinute != perMinute {
		b.perMinute = perMinute
		b.limiter.SetLimit(perMinuteRate(perMinute))
		b.limiter.SetBurst(burstFor(perMinute, l.cfg))
	}
	return b
}

func perMinuteRate(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}

func burstFor(perMinute int, cfg Config) int {
	// When the operator pinned an explicit burst below the budget, honor it.
	if cfg.Burst > 0 && cfg.Burst < perMinute {
		return cfg.Burst
	}
	return perMinute
}
