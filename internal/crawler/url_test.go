package crawler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://Example.COM":                   "http://example.com/",
		"HTTP://example.com:80/a":              "http://example.com/a",
		"https://example.com:443/a":            "https://example.com/a",
		"http://example.com:8080/a":            "http://example.com:8080/a",
		"http://example.com/a#section":         "http://example.com/a",
		"http://example.com/search?b=2&a=1":    "http://example.com/search?a=1&b=2",
		"  http://example.com/padded  ":        "http://example.com/padded",
		"http://example.com/page_2.html":       "http://example.com/page_2.html",
		"https://example.com/docs/?q=go#intro": "https://example.com/docs/?q=go",
		"http://example.com/p?a=2&a=1":         "http://example.com/p?a=2&a=1",
		"http://example.com/p?b=1&a=2&b=0":     "http://example.com/p?a=2&b=1&b=0",
		"http://example.com/p?k%3Dx=1":         "http://example.com/p?k%3Dx=1",
		"http://example.com/p?k%26x=1&b=2":     "http://example.com/p?b=2&k%26x=1",
	}
	for in, want := range cases {
		got, err := NormalizeURL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestNormalizeURLRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"example.com/a",
		"/relative/path",
		"mailto:someone@example.com",
		"ftp://example.com/file",
		"javascript:void(0)",
		"http://[::1",
	} {
		_, err := NormalizeURL(in)
		require.Error(t, err, in)
	}
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"http://Example.com:80?z=1&a=2#frag",
		"http://h/p?a=2&a=1",
		"http://h/p?k%3Dx=1",
		"http://h/p?k%26x=1&b=2",
		"http://h/p?q=a+b&flag",
		"http://h/p?bad=%zz",
	} {
		once, err := NormalizeURL(in)
		require.NoError(t, err, in)
		twice, err := NormalizeURL(once)
		require.NoError(t, err, in)
		require.Equal(t, once, twice, in)
	}
}

func TestNormalizeURLKeepsRepeatedValuesDistinct(t *testing.T) {
	t.Parallel()

	first, err := NormalizeURL("http://h/p?a=2&a=1")
	require.NoError(t, err)
	second, err := NormalizeURL("http://h/p?a=1&a=2")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestIsTransientStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		599,
	} {
		require.True(t, IsTransientStatus(code), code)
	}
	for _, code := range []int{
		http.StatusOK,
		http.StatusMovedPermanently,
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusGone,
	} {
		require.False(t, IsTransientStatus(code), code)
	}
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, IsHTML("text/html"))
	require.True(t, IsHTML("text/html; charset=UTF-8"))
	require.True(t, IsHTML("TEXT/HTML"))
	require.True(t, IsHTML("application/xhtml+xml"))
	require.False(t, IsHTML(""))
	require.False(t, IsHTML("text/plain"))
	require.False(t, IsHTML("application/json"))
	require.False(t, IsHTML("image/png"))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Config{}.Validate())
	require.NoError(t, Config{MaxRequestsPerSecond: Unthrottled, MaxDepth: SeedOnly}.Validate())

	bad := []Config{
		{MaxConcurrentRequests: -1},
		{MaxRequestsPerSecond: -0.5},
		{MaxDepth: -2},
		{Timeout: -1},
		{MaxRetries: -1},
	}
	for _, cfg := range bad {
		require.Error(t, cfg.Validate())
	}
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{MaxDepth: 2}.withDefaults()
	require.Equal(t, 1, cfg.MaxConcurrentRequests)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, DefaultUserAgent, cfg.UserAgent)
	require.Equal(t, 2, cfg.MaxDepth)
	require.InDelta(t, 2.0, cfg.MaxRequestsPerSecond, 1e-9)

	zero := Config{}.withDefaults()
	require.Equal(t, 3, zero.MaxDepth)
	require.InDelta(t, 2.0, zero.MaxRequestsPerSecond, 1e-9)

	off := Config{MaxRequestsPerSecond: Unthrottled, MaxDepth: SeedOnly}.withDefaults()
	require.Zero(t, off.MaxDepth)
	require.Zero(t, off.MaxRequestsPerSecond)
}
