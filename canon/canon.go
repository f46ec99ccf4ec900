// Package canon implements the CHAI URL canonicalizer (§4.1): a pure,
// deterministic function from a raw upstream URL to its canonical form, used
// by the Diff engine and the Deduplicator as an identity key.
package canon

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrMalformedURL is returned for input that cannot be canonicalized:
// unparseable strings, empty hosts, malformed IPv6 bracketing, or schemes
// outside http/https/git.
var ErrMalformedURL = fmt.Errorf("canon: malformed url")

// trackingParams are stripped regardless of host, matching common upstream
// README/homepage link noise.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"ref":          {},
	"fbclid":       {},
	"gclid":        {},
}

// httpsUpgradeHosts lists forges/registries well-known enough to assume
// https is always available; http links to them are rewritten.
var httpsUpgradeHosts = []string{
	"github.com",
	"gitlab.com",
	"sourceforge.net",
	"bitbucket.org",
	"crates.io",
	"pypi.org",
	"npmjs.com",
}

// dotGitForges strip a trailing ".git" path suffix since it identifies the
// same project page as the bare path.
var dotGitForges = []string{
	"github.com",
	"gitlab.com",
	"bitbucket.org",
}

// Canonical normalizes a URL per §4.1. It is idempotent:
// Canonical(Canonical(u)) == Canonical(u).
func Canonical(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrMalformedURL)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "http", "https", "git":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrMalformedURL, parsed.Scheme)
	}

	if err := validateIPv6Bracketing(raw, parsed); err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrMalformedURL)
	}

	if shouldUpgradeScheme(scheme, host) {
		scheme = "https"
	}

	path := stripIndexFile(strings.TrimRight(parsed.EscapedPath(), "/"))
	if shouldStripDotGit(host, path) {
		path = strings.TrimSuffix(path, ".git")
	}

	query := stripTrackingParams(parsed.RawQuery)

	port := canonicalPort(parsed.Port(), scheme)

	// path is already escaped; carry it as RawPath so String() does not
	// escape it a second time.
	unescapedPath, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	result := url.URL{
		Scheme:   scheme,
		Host:     hostWithPort(host, port),
		Path:     unescapedPath,
		RawPath:  path,
		RawQuery: query,
	}
	return result.String(), nil
}

// IsCanonical reports whether url already equals its own canonical form.
func IsCanonical(raw string) bool {
	canonical, err := Canonical(raw)
	if err != nil {
		return false
	}
	return canonical == raw
}

func validateIPv6Bracketing(raw string, parsed *url.URL) error {
	host := parsed.Host
	if !strings.Contains(host, ":") {
		return nil
	}
	// net/url leaves malformed bracketing in parsed.Host verbatim; a valid
	// IPv6 literal is always wrapped in brackets when a port follows, or
	// wrapped entirely when there is no port.
	if strings.Contains(raw, "[") != strings.Contains(raw, "]") {
		return fmt.Errorf("%w: unbalanced ipv6 brackets", ErrMalformedURL)
	}
	return nil
}

func shouldUpgradeScheme(scheme, host string) bool {
	if scheme != "http" {
		return false
	}
	return matchesHostList(host, httpsUpgradeHosts)
}

func shouldStripDotGit(host, path string) bool {
	if !strings.HasSuffix(path, ".git") {
		return false
	}
	return matchesHostList(host, dotGitForges)
}

func matchesHostList(host string, list []string) bool {
	for _, candidate := range list {
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}

func stripIndexFile(path string) string {
	lower := strings.ToLower(path)
	for _, suffix := range []string{"/index.html", "/index.htm"} {
		if strings.HasSuffix(lower, suffix) {
			return path[:len(path)-len(suffix)]
		}
	}
	return path
}

func stripTrackingParams(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	for key := range values {
		if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
			values.Del(key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	encoded := url.Values{}
	for _, key := range keys {
		for _, value := range values[key] {
			encoded.Add(key, value)
		}
	}
	return encoded.Encode()
}

func canonicalPort(port, scheme string) string {
	if port == "" {
		return ""
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return ""
	}
	return port
}

func hostWithPort(host, port string) string {
	if port == "" {
		return host
	}
	return host + ":" + port
}
