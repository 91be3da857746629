package extract

import (
	"bytes"
	"strings"
)

// defaultShellThreshold is the body size below which a script-heavy page is
// treated as a JavaScript shell.
const defaultShellThreshold = 2048

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// ShellDetector decides whether a page that produced no candidates is likely
// a JavaScript shell worth re-fetching through a headless browser.
type ShellDetector struct {
	BodyLengthThreshold int
}

// NewShellDetector creates a detector with the given minimum body size;
// zero selects the default.
func NewShellDetector(threshold int) *ShellDetector {
	if threshold == 0 {
		threshold = defaultShellThreshold
	}
	return &ShellDetector{BodyLengthThreshold: threshold}
}

// LooksRendered reports whether the body appears to need browser rendering.
func (d *ShellDetector) LooksRendered(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	if len(body) < d.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script tags cover at least a quarter of
// the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relEnd := strings.Index(lower[contentStart:], closeTag)
		var next int
		if relEnd == -1 {
			next = total
		} else {
			next = contentStart + relEnd + len(closeTag)
		}
		coverage += next - start
		pos = next
	}

	if coverage == 0 {
		return false
	}
	return coverage*100/total >= 25
}
