package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

var (
	cardMarker     = regexp.MustCompile(`(?i)\b(job|position|opening|posting|vacanc|listing|opportunit|career|role|card)`)
	companyMarker  = regexp.MustCompile(`(?i)\b(company|employer|org|organization|hiring)`)
	locationMarker = regexp.MustCompile(`(?i)\b(location|place|city|region|where)`)
	dateMarker     = regexp.MustCompile(`(?i)\b(date|posted|published|time|ago)`)
	tagMarker      = regexp.MustCompile(`(?i)\b(tag|skill|badge|chip|label|categor)`)
)

// minSiblingCards is how many structurally similar siblings a block needs
// before it counts as a repeated card pattern rather than page chrome.
const minSiblingCards = 2

// Cards detects repeated sibling blocks that look like job cards: a
// title-like element plus a link, usually grouped under one list or grid
// container.
type Cards struct{}

// NewCards builds a Cards extractor.
func NewCards() *Cards {
	return &Cards{}
}

// Extract returns one candidate per detected card. Zero candidates with a
// nil error means the page carries no recognizable card structure and the
// caller should fall through to the next strategy.
func (c *Cards) Extract(pageURL string, body []byte) ([]scrape.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", pageURL, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %s: %w", pageURL, err)
	}

	groups := make(map[string][]*goquery.Selection)
	doc.Find("li, article, div, tr, section").Each(func(_ int, sel *goquery.Selection) {
		if !looksLikeCard(sel) {
			return
		}
		groups[signature(sel)] = append(groups[signature(sel)], sel)
	})

	var candidates []scrape.Candidate
	seen := make(map[string]bool)
	for _, group := range groups {
		if len(group) < minSiblingCards {
			continue
		}
		for _, sel := range group {
			cand, ok := cardCandidate(sel, base)
			if !ok || seen[cand.Link] {
				continue
			}
			seen[cand.Link] = true
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// looksLikeCard requires a job-ish class or id plus an anchor with text.
// Nested matches are attributed to the innermost block only.
func looksLikeCard(sel *goquery.Selection) bool {
	attrs := sel.AttrOr("class", "") + " " + sel.AttrOr("id", "")
	if !cardMarker.MatchString(attrs) {
		return false
	}
	link := sel.Find("a[href]").First()
	if link.Length() == 0 || strings.TrimSpace(link.Text()) == "" {
		return false
	}
	inner := false
	sel.Find("li, article, div, tr, section").EachWithBreak(func(_ int, child *goquery.Selection) bool {
		childAttrs := child.AttrOr("class", "") + " " + child.AttrOr("id", "")
		if cardMarker.MatchString(childAttrs) && child.Find("a[href]").Length() > 0 {
			inner = true
			return false
		}
		return true
	})
	return !inner
}

// signature groups siblings by parent node plus their own tag and class, so
// repeated card markup clusters together.
func signature(sel *goquery.Selection) string {
	var parts []string
	if parent := sel.Parent(); parent.Length() > 0 {
		parts = append(parts, goquery.NodeName(parent), parent.AttrOr("class", ""))
	}
	parts = append(parts, goquery.NodeName(sel), sel.AttrOr("class", ""))
	return strings.Join(parts, "|")
}

func cardCandidate(sel *goquery.Selection, base *url.URL) (scrape.Candidate, bool) {
	title, link := titleAndLink(sel, base)
	if title == "" || link == "" {
		return scrape.Candidate{}, false
	}

	cand := scrape.Candidate{
		Title:      title,
		Link:       link,
		Company:    textByMarker(sel, companyMarker),
		Location:   textByMarker(sel, locationMarker),
		PostedRaw:  postedText(sel),
		Confidence: scrape.ConfidenceCard,
	}
	sel.Find("*").Each(func(_ int, child *goquery.Selection) {
		if !tagMarker.MatchString(child.AttrOr("class", "")) {
			return
		}
		if tag := strings.TrimSpace(child.Text()); tag != "" && len(tag) < 40 {
			cand.Tags = append(cand.Tags, tag)
		}
	})
	if summary := sel.Find("p").First(); summary.Length() > 0 {
		cand.Summary = strings.TrimSpace(summary.Text())
	}
	html, err := goquery.OuterHtml(sel)
	if err == nil {
		cand.Payload = []byte(html)
	}
	return cand, true
}

// titleAndLink prefers a heading with an anchor inside, then the first
// anchor with meaningful text.
func titleAndLink(sel *goquery.Selection, base *url.URL) (string, string) {
	heading := sel.Find("h1, h2, h3, h4").First()
	if heading.Length() > 0 {
		anchor := heading.Find("a[href]").First()
		if anchor.Length() == 0 {
			anchor = heading.Closest("a[href]")
		}
		if anchor.Length() > 0 {
			return strings.TrimSpace(heading.Text()), resolveHref(anchor, base)
		}
		// Heading without its own link: pair it with the card's anchor.
		if anchor := sel.Find("a[href]").First(); anchor.Length() > 0 {
			return strings.TrimSpace(heading.Text()), resolveHref(anchor, base)
		}
	}
	anchor := sel.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return len(strings.TrimSpace(a.Text())) > 3
	}).First()
	if anchor.Length() == 0 {
		return "", ""
	}
	return strings.TrimSpace(anchor.Text()), resolveHref(anchor, base)
}

func resolveHref(anchor *goquery.Selection, base *url.URL) string {
	href := strings.TrimSpace(anchor.AttrOr("href", ""))
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func textByMarker(sel *goquery.Selection, marker *regexp.Regexp) string {
	var out string
	sel.Find("*").EachWithBreak(func(_ int, child *goquery.Selection) bool {
		attrs := child.AttrOr("class", "") + " " + child.AttrOr("id", "") + " " + child.AttrOr("itemprop", "")
		if !marker.MatchString(attrs) {
			return true
		}
		if text := strings.TrimSpace(child.Text()); text != "" && len(text) < 120 {
			out = text
			return false
		}
		return true
	})
	return out
}

func postedText(sel *goquery.Selection) string {
	timeEl := sel.Find("time").First()
	if timeEl.Length() > 0 {
		if dt := timeEl.AttrOr("datetime", ""); dt != "" {
			return dt
		}
		if text := strings.TrimSpace(timeEl.Text()); text != "" {
			return text
		}
	}
	return textByMarker(sel, dateMarker)
}
