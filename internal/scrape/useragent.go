package scrape

import "sync/atomic"

// Browser-shaped identification headers rotated across HTML fetches when the
// operator does not configure a pool.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// UserAgentPool hands out identification headers round-robin. Safe for
// concurrent use.
type UserAgentPool struct {
	agents []string
	next   atomic.Uint64
}

// NewUserAgentPool builds a pool from the configured agents, falling back to
// the built-in browser set when none are given.
func NewUserAgentPool(agents []string) *UserAgentPool {
	cleaned := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, defaultUserAgents...)
	}
	return &UserAgentPool{agents: cleaned}
}

// Next returns the next agent in rotation.
func (p *UserAgentPool) Next() string {
	n := p.next.Add(1) - 1
	return p.agents[n%uint64(len(p.agents))]
}
