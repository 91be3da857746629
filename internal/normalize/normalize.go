// Package normalize turns raw candidates into normalized job entities and
// computes their quality score.
package normalize

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/remotehive-dev/jobscraper/internal/domainutil"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Config carries the scoring knobs.
type Config struct {
	// TrustedDomains lists registrable domains granted the trust weight.
	TrustedDomains []string
	// MinDescriptionLen is the description length earning the length weight.
	MinDescriptionLen int
}

// Normalizer applies rule-based field extraction and scoring.
type Normalizer struct {
	trusted map[string]bool
	minDesc int
	clock   scrape.Clock
}

// New builds a Normalizer.
func New(cfg Config, clock scrape.Clock) *Normalizer {
	trusted := make(map[string]bool, len(cfg.TrustedDomains))
	for _, d := range cfg.TrustedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			trusted[d] = true
		}
	}
	minDesc := cfg.MinDescriptionLen
	if minDesc <= 0 {
		minDesc = 140
	}
	return &Normalizer{trusted: trusted, minDesc: minDesc, clock: clock}
}

var (
	salaryPattern = regexp.MustCompile(`(?i)(?:[$£€]\s?\d[\d,.]*k?|\d[\d,.]*k?\s?(?:usd|eur|gbp))(?:\s*[-–]\s*(?:[$£€]\s?)?\d[\d,.]*k?)?(?:\s*(?:per|/|a)\s*(?:year|yr|annum|month|mo|hour|hr))?`)

	remoteWords = []string{"remote", "work from home", "work-from-home", "anywhere", "distributed"}

	employmentTypes = []struct {
		keyword string
		label   string
	}{
		{"full-time", "full_time"},
		{"full time", "full_time"},
		{"part-time", "part_time"},
		{"part time", "part_time"},
		{"contract", "contract"},
		{"freelance", "contract"},
		{"internship", "internship"},
		{"intern", "internship"},
		{"temporary", "temporary"},
	}
)

// Normalize derives the cleaned entity for one deduplicated candidate. The
// caller assigns identity fields (ID, RawRecordID, CreatedAt).
func (n *Normalizer) Normalize(cand scrape.Candidate, postedAt *time.Time, src scrape.Source) scrape.NormalizedJob {
	title := collapseSpace(cand.Title)
	description := collapseSpace(cand.Summary)
	haystack := strings.ToLower(title + " " + description + " " + cand.Location)

	job := scrape.NormalizedJob{
		Title:          title,
		Company:        collapseSpace(cand.Company),
		Location:       collapseSpace(cand.Location),
		Remote:         containsAny(haystack, remoteWords),
		EmploymentType: employmentType(haystack),
		Description:    description,
		Tags:           normalizeTags(cand.Tags),
		SalaryText:     salaryPattern.FindString(title + " " + description),
		ApplyURL:       cand.Link,
		PostedAt:       postedAt,
		Region:         src.Region,
	}
	job.QualityScore = n.Score(job)
	return job
}

// ParseDate parses a free-text posted-at string. A best-effort operation:
// unparseable input yields nil, which downstream treats as unknown.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// Score weights and fixed points per factor. The scale is 0–100.
const (
	titlePoints     = 15
	companyPoints   = 15
	locationPoints  = 10
	salaryPoints    = 15
	lengthPoints    = 15
	recencyPoints   = 20
	trustPoints     = 10
	recencyHalfLife = 14 // days until the recency weight halves
)

// Score computes the completeness/trust score for a normalized job. Scores
// are stored by the caller and only overwritten by the explicit rescore
// maintenance pass.
func (n *Normalizer) Score(job scrape.NormalizedJob) float64 {
	score := 0.0
	if job.Title != "" {
		score += titlePoints
	}
	if job.Company != "" {
		score += companyPoints
	}
	if job.Location != "" {
		score += locationPoints
	}
	if job.SalaryText != "" {
		score += salaryPoints
	}
	if len(job.Description) >= n.minDesc {
		score += lengthPoints
	}
	score += n.recency(job.PostedAt)
	if n.trusted[domainutil.RegistrableOrHost(job.ApplyURL)] {
		score += trustPoints
	}
	if score > 100 {
		score = 100
	}
	return score
}

// recency decays geometrically with age; an unknown posted-at earns nothing.
func (n *Normalizer) recency(postedAt *time.Time) float64 {
	if postedAt == nil {
		return 0
	}
	now := time.Now().UTC()
	if n.clock != nil {
		now = n.clock.Now()
	}
	days := now.Sub(*postedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return recencyPoints * math.Pow(0.5, days/recencyHalfLife)
}

func containsAny(haystack string, needles []string) bool {
	for _, w := range needles {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

func employmentType(haystack string) string {
	for _, et := range employmentTypes {
		if strings.Contains(haystack, et.keyword) {
			return et.label
		}
	}
	return ""
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(collapseSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var spaceRun = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
