package auth

import (
	"net/url"
	"strings"
)

// RedactURL masks the refresh_token query value so URLs can be logged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	parts := strings.Split(u.RawQuery, "&")
	for i, p := range parts {
		if k, _, ok := strings.Cut(p, "="); ok && k == "refresh_token" {
			parts[i] = k + "=" + "REDACTED"
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}

// Preview shortens a credential for logs, keeping its first and last six
// characters.
func Preview(token string) string {
	if len(token) > 12 {
		return token[:6] + "…" + token[len(token)-6:]
	}
	return token
}
