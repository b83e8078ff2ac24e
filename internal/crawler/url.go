package crawler

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const normalizeFlags = purell.FlagsSafe |
	purell.FlagRemoveFragment

// NormalizeURL standardizes a URL so equivalent spellings share one key.
// It lowercases the scheme and host, removes default ports and the fragment,
// orders query parameters by key, and gives an empty path a trailing slash. Only
// absolute http(s) URLs are accepted.
func NormalizeURL(rawURL string) (string, error) {
	u, err := normalize(rawURL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func normalize(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	normalized, err := url.Parse(purell.NormalizeURL(u, normalizeFlags))
	if err != nil {
		return nil, fmt.Errorf("reparse normalized url: %w", err)
	}
	normalized.RawQuery = sortQuery(normalized.RawQuery)
	return normalized, nil
}

// sortQuery orders parameters by key, keeping the order of repeated keys'
// values, and re-escapes keys and values. A query that does not parse cleanly
// is returned unchanged.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	return values.Encode()
}

func sameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Host, b.Host)
}

// IsTransientStatus reports whether a failed response is worth retrying:
// request timeout, rate limiting, or any server error.
func IsTransientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code < 600:
		return true
	default:
		return false
	}
}

// IsHTML reports whether a Content-Type header declares an HTML document.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
