package extract

import (
	"bytes"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// summaryLimit bounds the text carried out of a readability pass.
const summaryLimit = 4000

// Readability is the last HTML strategy: when no card structure exists the
// whole page is distilled to its main content and treated as one
// lower-confidence candidate, usually a single-posting page.
type Readability struct{}

// NewReadability builds a Readability extractor.
func NewReadability() *Readability {
	return &Readability{}
}

// Extract runs a readability pass over the document. A page without a usable
// title yields zero candidates.
func (r *Readability) Extract(pageURL string, body []byte) ([]scrape.Candidate, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		// Unparseable markup is a no-match, not a failure of the chain.
		return nil, nil
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		return nil, nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > summaryLimit {
		text = text[:summaryLimit]
	}

	return []scrape.Candidate{{
		Title:      title,
		Link:       pageURL,
		Company:    strings.TrimSpace(article.Byline),
		Summary:    text,
		Payload:    []byte(article.Content),
		Confidence: scrape.ConfidenceReadability,
	}}, nil
}
