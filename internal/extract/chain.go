package extract

import "github.com/remotehive-dev/jobscraper/internal/scrape"

// Chain tries each strategy in order and returns the first non-empty result.
// A strategy signals no-match by returning zero candidates with a nil error.
type Chain []scrape.Extractor

// NewHTMLChain is the default chain for HTML pages: card detection first,
// readability fallback second.
func NewHTMLChain() Chain {
	return Chain{NewCards(), NewReadability()}
}

// Extract advances through the chain until a strategy yields candidates.
// Errors stop the chain; they mean the payload itself is unusable.
func (c Chain) Extract(pageURL string, body []byte) ([]scrape.Candidate, error) {
	for _, strategy := range c {
		candidates, err := strategy.Extract(pageURL, body)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return nil, nil
}
