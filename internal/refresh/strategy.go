package refresh

import (
	"fmt"
	"net/url"
	"strings"
)

const refreshTokenParam = "refresh_token"

// URLStrategy decides how the refresh token travels to the endpoint and how
// the stored refreshUrl changes after a successful exchange.
type URLStrategy interface {
	// RequestURL is the URL to POST to, given the stored refreshUrl and the
	// refresh token of the stored token record ("" when there is none).
	RequestURL(refreshURL, currentRefreshToken string) string
	// UpdatedURL is the refreshUrl to store after the server issued
	// newRefreshToken in place of oldRefreshToken.
	UpdatedURL(refreshURL, oldRefreshToken, newRefreshToken string) string
}

// QueryMode selects how QueryStrategy writes the refresh_token parameter.
type QueryMode int

const (
	// QueryReplace sets the parameter in place, collapsing duplicates.
	QueryReplace QueryMode = iota
	// QueryAppend appends another refresh_token parameter and leaves any
	// existing one in place. Kept for endpoints that read the last value.
	QueryAppend
)

func (m QueryMode) String() string {
	switch m {
	case QueryReplace:
		return "replace"
	case QueryAppend:
		return "append"
	}
	return fmt.Sprintf("QueryMode(%d)", int(m))
}

// ParseQueryMode maps a configuration value to a QueryMode.
func ParseQueryMode(s string) (QueryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return QueryReplace, nil
	case "append":
		return QueryAppend, nil
	}
	return 0, fmt.Errorf("unknown query mode %q", s)
}

// QueryStrategy sends the refresh token as a refresh_token query parameter
// and records the newest one in the stored refreshUrl the same way.
type QueryStrategy struct {
	Mode QueryMode
}

func (q QueryStrategy) RequestURL(refreshURL, currentRefreshToken string) string {
	if currentRefreshToken == "" {
		return refreshURL
	}
	return q.withToken(refreshURL, currentRefreshToken)
}

func (q QueryStrategy) UpdatedURL(refreshURL, _, newRefreshToken string) string {
	return q.withToken(refreshURL, newRefreshToken)
}

func (q QueryStrategy) withToken(refreshURL, token string) string {
	if q.Mode == QueryAppend {
		return appendParam(refreshURL, token)
	}
	return replaceParam(refreshURL, token)
}

// EmbeddedStrategy treats the stored refreshUrl as already carrying the
// refresh token; the new token is spliced in where the old one was.
type EmbeddedStrategy struct{}

func (EmbeddedStrategy) RequestURL(refreshURL, _ string) string {
	return refreshURL
}

func (EmbeddedStrategy) UpdatedURL(refreshURL, oldRefreshToken, newRefreshToken string) string {
	if oldRefreshToken != "" {
		if i := strings.Index(refreshURL, oldRefreshToken); i >= 0 {
			return refreshURL[:i] + escapeAt(refreshURL, i, newRefreshToken) + refreshURL[i+len(oldRefreshToken):]
		}
		if escaped := url.QueryEscape(oldRefreshToken); escaped != oldRefreshToken {
			if i := strings.Index(refreshURL, escaped); i >= 0 {
				return refreshURL[:i] + url.QueryEscape(newRefreshToken) + refreshURL[i+len(escaped):]
			}
		}
	}
	return replaceParam(refreshURL, newRefreshToken)
}

// escapeAt escapes token for the URL component that contains offset i.
func escapeAt(rawURL string, i int, token string) string {
	if q := strings.Index(rawURL, "?"); q >= 0 && i > q {
		return url.QueryEscape(token)
	}
	return url.PathEscape(token)
}

// ParseStrategy maps configuration values to a URLStrategy.
func ParseStrategy(name, mode string) (URLStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "query":
		m, err := ParseQueryMode(mode)
		if err != nil {
			return nil, err
		}
		return QueryStrategy{Mode: m}, nil
	case "embedded":
		return EmbeddedStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown url strategy %q", name)
}

func appendParam(rawURL, token string) string {
	sep := "&"
	if !strings.Contains(rawURL, "?") {
		sep = "?"
	} else if strings.HasSuffix(rawURL, "?") || strings.HasSuffix(rawURL, "&") {
		sep = ""
	}
	return rawURL + sep + refreshTokenParam + "=" + url.QueryEscape(token)
}

// replaceParam sets refresh_token in the query string without reordering or
// re-encoding the other parameters. The first occurrence keeps its position;
// later duplicates are dropped.
func replaceParam(rawURL, token string) string {
	base, fragment, hasFragment := strings.Cut(rawURL, "#")
	path, query, hasQuery := strings.Cut(base, "?")
	if !hasQuery {
		return appendParam(base, token) + fragmentSuffix(fragment, hasFragment)
	}

	value := refreshTokenParam + "=" + url.QueryEscape(token)
	var parts []string
	replaced := false
	for _, p := range strings.Split(query, "&") {
		if p == "" {
			continue
		}
		k, _, _ := strings.Cut(p, "=")
		if k == refreshTokenParam {
			if replaced {
				continue
			}
			p = value
			replaced = true
		}
		parts = append(parts, p)
	}
	if !replaced {
		parts = append(parts, value)
	}
	return path + "?" + strings.Join(parts, "&") + fragmentSuffix(fragment, hasFragment)
}

func fragmentSuffix(fragment string, ok bool) string {
	if !ok {
		return ""
	}
	return "#" + fragment
}
