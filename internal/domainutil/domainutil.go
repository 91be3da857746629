// Package domainutil derives the public-suffix-aware registrable domain used
// as the rate-limiting and deduplication unit.
package domainutil

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Registrable returns the registrable domain for rawURL, e.g.
// "boards.acme.com" → "acme.com". Hosts without a public suffix (IPs,
// localhost, bare names) fall back to the lowercased host itself.
func Registrable(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	etld, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return etld, nil
}

// RegistrableOrHost is Registrable with the error collapsed to an empty
// string, for callers composing best-effort keys.
func RegistrableOrHost(rawURL string) string {
	domain, err := Registrable(rawURL)
	if err != nil {
		return ""
	}
	return domain
}
