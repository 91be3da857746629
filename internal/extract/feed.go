// Package extract turns fetched payloads into candidate job records. HTML
// extraction is an ordered chain of strategies; each returns zero candidates
// rather than an error when it does not match.
package extract

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Feed maps RSS/Atom entries directly onto candidates. No heuristics are
// involved; the feed structure is the contract.
type Feed struct {
	parser *gofeed.Parser
}

// NewFeed builds a Feed extractor.
func NewFeed() *Feed {
	return &Feed{parser: gofeed.NewParser()}
}

// Extract parses the feed document and emits one candidate per entry.
func (f *Feed) Extract(pageURL string, body []byte) ([]scrape.Candidate, error) {
	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", pageURL, err)
	}

	candidates := make([]scrape.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		cand := scrape.Candidate{
			Title:      item.Title,
			Link:       item.Link,
			Company:    feedAuthor(item, parsed),
			Summary:    firstNonEmpty(item.Description, item.Content),
			PostedRaw:  item.Published,
			Tags:       append([]string(nil), item.Categories...),
			Confidence: scrape.ConfidenceFeed,
		}
		if cand.PostedRaw == "" && item.PublishedParsed != nil {
			cand.PostedRaw = item.PublishedParsed.Format("2006-01-02")
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// feedAuthor prefers the entry author, falling back to the feed-level one.
// Many job feeds put the hiring company there.
func feedAuthor(item *gofeed.Item, feed *gofeed.Feed) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if feed.Author != nil {
		return feed.Author.Name
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
