package headless

import (
	"context"
	"errors"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Noop implements scrape.Fetcher but always errors, for builds where
// headless rendering is disabled.
type Noop struct{}

// NewNoop creates a Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns an error since this is a stub implementation.
func (Noop) Fetch(_ context.Context, _ scrape.Target) (scrape.FetchResult, error) {
	return scrape.FetchResult{}, errors.New("headless fetcher not configured")
}
