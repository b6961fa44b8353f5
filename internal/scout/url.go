package scout

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeLink standardizes a canonical link for use as the dedup key.
// Only the scheme and host are case-folded; path and query are preserved
// exactly as extracted. Default ports and fragments are dropped.
func NormalizeLink(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("link %q is not absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	return u.String(), nil
}
