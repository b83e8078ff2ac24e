package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes which lifecycle milestone an Event represents.
type Kind string

// Supported event kinds.
const (
	// KindVisited fires once per URL that was fetched and classified, even
	// when no links were followed from it.
	KindVisited Kind = "visited"
	// KindError fires when a fetch job fails with an unexpected error or when
	// a URL exhausts its retries.
	KindError Kind = "error"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single crawl lifecycle notification.
type Event struct {
	// RunID identifies the crawl run that produced the event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind is the milestone.
	Kind Kind
	// URL is the normalized page URL.
	URL string
	// Depth is the hop count from the seed.
	Depth int
	// Status is the HTTP status code when one was received.
	Status int
	// Links holds the same-host URLs discovered on a visited page.
	Links []string
	// Err carries the failure detail for error events.
	Err error
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.URL == "" {
		return errors.New("url is required")
	}
	switch e.Kind {
	case KindVisited:
	case KindError:
		if e.Err == nil {
			return errors.New("error event requires err")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
