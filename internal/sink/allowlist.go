package sink

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HostAllowlist restricts report delivery to https URLs on listed hosts.
// An entry is a hostname ("hooks.example.org"), a single-label wildcard
// ("*.example.org" matches "ops.example.org" but not "a.ops.example.org"
// or "example.org"), or "*" for any public hostname. IP literals and local
// or cloud metadata hostnames are always refused.
type HostAllowlist struct {
	entries []string
}

// NewHostAllowlist validates and normalizes entries.
func NewHostAllowlist(entries []string) (*HostAllowlist, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("host allowlist is empty")
	}
	normalized := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "*" && !validHostname(strings.TrimPrefix(e, "*.")) {
			return nil, fmt.Errorf("invalid allowlist entry %q", e)
		}
		normalized = append(normalized, e)
	}
	return &HostAllowlist{entries: normalized}, nil
}

// Check returns an error unless rawURL is an https URL whose host is
// public and matches an entry.
func (a *HostAllowlist) Check(rawURL string) error {
	host, err := publicHTTPSHost(rawURL)
	if err != nil {
		return err
	}
	for _, e := range a.entries {
		if hostMatches(e, host) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not on the allowlist", host)
}

func hostMatches(entry, host string) bool {
	switch {
	case entry == "*":
		return true
	case strings.HasPrefix(entry, "*."):
		label, ok := strings.CutSuffix(host, entry[1:])
		return ok && label != "" && !strings.Contains(label, ".")
	default:
		return host == entry
	}
}

// validHostname reports whether h is a dotted sequence of LDH labels.
func validHostname(h string) bool {
	if h == "" || len(h) > 253 {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return false
			}
		}
	}
	return true
}

// localHosts resolve to the machine itself or to a cloud metadata service.
var localHosts = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"ip6-localhost":            true,
	"ip6-loopback":             true,
	"metadata.google.internal": true,
	"metadata.google":          true,
	"metadata.azure.com":       true,
}

// publicHTTPSHost returns the lowercased host of rawURL after checking the
// scheme and refusing IP literals and local hostnames.
func publicHTTPSHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be https, got %q", u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	switch {
	case host == "":
		return "", fmt.Errorf("URL has no host")
	case net.ParseIP(host) != nil:
		return "", fmt.Errorf("IP address hosts are refused, use a hostname")
	case localHosts[host]:
		return "", fmt.Errorf("local host %q is refused", host)
	}
	return host, nil
}

// slackHosts is the allowlist for Slack incoming webhook URLs.
var slackHosts = &HostAllowlist{entries: []string{"hooks.slack.com"}}
