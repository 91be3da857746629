// Package fingerprint computes the content hash used as the deduplication key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/remotehive-dev/jobscraper/internal/domainutil"
)

// delimiter separates the hash inputs so field boundaries cannot collide.
const delimiter = "\n"

// Compute derives the deduplication fingerprint for a candidate posting:
// a SHA-256 over the lowercase title, lowercase company (or empty), the
// calendar date of the best-effort posted-at (or empty), and the registrable
// domain of the source URL. The same posting re-fetched yields the same
// fingerprint; changing any input changes it.
func Compute(title, company string, postedAt *time.Time, sourceURL string) string {
	date := ""
	if postedAt != nil {
		date = postedAt.UTC().Format("2006-01-02")
	}
	parts := []string{
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(company)),
		date,
		domainutil.RegistrableOrHost(sourceURL),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, delimiter)))
	return hex.EncodeToString(sum[:])
}
