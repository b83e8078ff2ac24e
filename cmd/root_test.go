package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type siteServer struct {
	*httptest.Server
	hits atomic.Int64
}

func newSiteServer(t *testing.T) *siteServer {
	t.Helper()
	s := &siteServer{}
	mux := http.NewServeMux()
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(body))
		}
	}
	root := html(`<a href="/page_1.html">1</a><a href="https://elsewhere.test/">x</a>`)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		root(w, r)
	})
	mux.HandleFunc("/page_1.html", html(`<a href="/page_2.html">2</a><a href="/">home</a>`))
	mux.HandleFunc("/page_2.html", html(`<a href="/page_3.html">3</a>`))
	mux.HandleFunc("/page_3.html", html(`no links`))
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func testDeps(t *testing.T) (deps, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	return deps{
		stdout:     &stdout,
		stderr:     &stderr,
		registerer: prometheus.NewRegistry(),
		newLogger: func(bool) (*zap.Logger, error) {
			return zaptest.NewLogger(t), nil
		},
	}, &stdout, &stderr
}

func TestExecuteCrawlsSite(t *testing.T) {
	t.Parallel()

	site := newSiteServer(t)
	d, stdout, stderr := testDeps(t)

	err := execute(context.Background(), d, []string{
		"--followDepth", "2",
		"--maxRequestsPerSecond", "0",
		"--concurrency", "2",
		site.URL,
	})
	require.NoError(t, err)
	require.Empty(t, stderr.String())

	out := stdout.String()
	require.Contains(t, out, "- "+site.URL+"/\n = "+site.URL+"/page_1.html\n")
	require.Contains(t, out, "- "+site.URL+"/page_1.html\n")
	require.Contains(t, out, "- "+site.URL+"/page_2.html\n = "+site.URL+"/page_3.html\n")
	require.NotContains(t, out, "- "+site.URL+"/page_3.html")
	require.NotContains(t, out, "elsewhere.test")
	require.Equal(t, 3, strings.Count(out, "- "))
}

func TestExecuteRejectsInvalidFlagsBeforeFetching(t *testing.T) {
	t.Parallel()

	site := newSiteServer(t)
	cases := [][]string{
		{"--concurrency", "-1", site.URL},
		{"--maxRequestsPerSecond", "-2", site.URL},
		{"--followDepth", "-1", site.URL},
		{"--timeout", "-10", site.URL},
		{"--concurrency", "abc", site.URL},
		{"--timeout", "soon", site.URL},
		{},
		{"ftp://example.test/"},
		{"not a url"},
	}
	for _, args := range cases {
		d, _, _ := testDeps(t)
		err := execute(context.Background(), d, args)
		require.Error(t, err, args)
	}
	require.Zero(t, site.hits.Load())
}

func TestExecuteHelp(t *testing.T) {
	t.Parallel()

	d, stdout, _ := testDeps(t)
	require.NoError(t, execute(context.Background(), d, []string{"--help"}))
	require.Contains(t, stdout.String(), "--maxRequestsPerSecond")
	require.Contains(t, stdout.String(), "--followDepth")
}

func TestExecuteReportsErrorsToStderr(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	d, stdout, stderr := testDeps(t)

	err := execute(context.Background(), d, []string{
		"--max-retries", "1",
		"--maxRequestsPerSecond", "0",
		srv.URL,
	})
	require.NoError(t, err)
	require.Empty(t, stdout.String())
	require.Contains(t, stderr.String(), "error: "+srv.URL+"/")
	require.Contains(t, stderr.String(), "retries exhausted")
}

func TestExecuteCancelled(t *testing.T) {
	t.Parallel()

	site := newSiteServer(t)
	d, _, _ := testDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, execute(ctx, d, []string{site.URL}))
}
