// Package urlstate tracks the lifecycle of every URL touched by a crawl run.
//
// A URL is either in flight (claimed by a queued or running fetch job) or has a
// terminal state (visited or errored). The two are tracked independently, so a
// URL may briefly be both claimed and errored while a retry is pending.
package urlstate

import (
	"sync"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/clock/system"
)

// State is the terminal state recorded for a URL.
type State string

// Terminal states.
const (
	StateVisited State = "visited"
	StateErrored State = "errored"
)

// Visited describes a successfully fetched URL.
type Visited struct {
	URL       string    `json:"url"`
	VisitedAt time.Time `json:"visited_at"`
}

// Errored describes the last non-2xx/3xx outcome observed for a URL.
type Errored struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

type record struct {
	state     State
	visitedAt time.Time
	status    int
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Store is a concurrency-safe map of normalized URL to lifecycle state.
type Store struct {
	mu       sync.Mutex
	records  map[string]record
	inFlight map[string]struct{}
	clock    Clock
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for visit timestamps.
func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records:  make(map[string]record),
		inFlight: make(map[string]struct{}),
		clock:    system.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Claim marks url as in flight. Claiming twice is harmless.
func (s *Store) Claim(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[url] = struct{}{}
}

// TryClaim claims url only when it is neither visited nor already in flight.
// It reports whether the claim was taken. The check and the claim happen under
// one lock so concurrent discoverers of the same URL cannot both win.
func (s *Store) TryClaim(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[url]; ok {
		return false
	}
	if rec, ok := s.records[url]; ok && rec.state == StateVisited {
		return false
	}
	s.inFlight[url] = struct{}{}
	return true
}

// Release drops the in-flight claim for url.
func (s *Store) Release(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, url)
}

// IsInFlight reports whether url is currently claimed.
func (s *Store) IsInFlight(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[url]
	return ok
}

// MarkVisited records a successful fetch, replacing any earlier error.
func (s *Store) MarkVisited(url string) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[url] = record{state: StateVisited, visitedAt: now}
}

// IsVisited reports whether url has been fetched successfully.
func (s *Store) IsVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	return ok && rec.state == StateVisited
}

// MarkErrored records the status of a failed fetch. A URL that is already
// visited keeps its visited state.
func (s *Store) MarkErrored(url string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[url]; ok && rec.state == StateVisited {
		return
	}
	s.records[url] = record{state: StateErrored, status: status}
}

// ListVisited returns every visited URL. Order is unspecified.
func (s *Store) ListVisited() []Visited {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Visited, 0, len(s.records))
	for url, rec := range s.records {
		if rec.state != StateVisited {
			continue
		}
		out = append(out, Visited{URL: url, VisitedAt: rec.visitedAt})
	}
	return out
}

// ListErrored returns every errored URL with its last status. Order is unspecified.
func (s *Store) ListErrored() []Errored {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Errored, 0)
	for url, rec := range s.records {
		if rec.state != StateErrored {
			continue
		}
		out = append(out, Errored{URL: url, Status: rec.status})
	}
	return out
}

// Counts summarizes the store for status reporting.
type Counts struct {
	Visited  int `json:"visited"`
	Errored  int `json:"errored"`
	InFlight int `json:"in_flight"`
}

// Counts returns the number of URLs in each state.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Counts{InFlight: len(s.inFlight)}
	for _, rec := range s.records {
		switch rec.state {
		case StateVisited:
			c.Visited++
		case StateErrored:
			c.Errored++
		}
	}
	return c
}
