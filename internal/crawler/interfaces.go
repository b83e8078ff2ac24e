package crawler

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Fetcher performs a single HTTP GET. Implementations must follow redirects
// and report the final URL, and must abort promptly when ctx is cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// LinkExtractor returns the deduplicated same-host absolute URLs referenced by
// anchor elements in an HTML body.
type LinkExtractor interface {
	ExtractLinks(body []byte, base *url.URL) ([]string, error)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation. Any status
// code is a successful fetch; only transport failures are errors.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
