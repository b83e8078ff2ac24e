package crawler

import (
	"fmt"
	"time"
)

// DefaultUserAgent identifies the crawler to the sites it visits.
const DefaultUserAgent = "sitecrawler/1.0 (+https://github.com/JakeFAU/sitecrawler)"

// Zero-valued limits take their defaults; these values switch a limit off.
const (
	// Unthrottled as MaxRequestsPerSecond removes the request-rate ceiling.
	Unthrottled = -1
	// SeedOnly as MaxDepth fetches the seed and follows no links.
	SeedOnly = -1
)

// Config holds the settings for a single crawl run. It is copied into the
// Crawler at construction and never mutated afterwards.
type Config struct {
	// MaxConcurrentRequests caps the number of fetches in flight.
	MaxConcurrentRequests int
	// MaxRequestsPerSecond caps how often a fetch may start (default 2).
	// Unthrottled disables the ceiling.
	MaxRequestsPerSecond float64
	// MaxDepth is the number of link hops followed from the seed (default 3).
	// SeedOnly crawls only the seed.
	MaxDepth int
	// Timeout bounds the whole run, measured from Crawl. Zero disables it.
	Timeout time.Duration
	// MaxRetries is the number of attempts a URL gets before it is
	// dead-lettered.
	MaxRetries int
	// UserAgent is sent with every request.
	UserAgent string
	// OnVisited is called once per classified URL with its discovered links.
	OnVisited func(url string, links []string)
	// OnError is called for fetch failures and exhausted retries.
	OnError func(url string, err error)
}

// DefaultConfig returns the configuration used when the caller sets nothing.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 1,
		MaxRequestsPerSecond:  2,
		MaxDepth:              3,
		Timeout:               0,
		MaxRetries:            5,
		UserAgent:             DefaultUserAgent,
	}
}

// Validate checks for obviously bad configuration values.
func (c Config) Validate() error {
	if c.MaxConcurrentRequests < 0 {
		return fmt.Errorf("max concurrent requests must be >= 0")
	}
	if c.MaxRequestsPerSecond < 0 && c.MaxRequestsPerSecond != Unthrottled {
		return fmt.Errorf("max requests per second must be >= 0 or Unthrottled")
	}
	if c.MaxDepth < 0 && c.MaxDepth != SeedOnly {
		return fmt.Errorf("max depth must be >= 0 or SeedOnly")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = def.MaxConcurrentRequests
	}
	switch {
	case c.MaxRequestsPerSecond == 0:
		c.MaxRequestsPerSecond = def.MaxRequestsPerSecond
	case c.MaxRequestsPerSecond < 0:
		c.MaxRequestsPerSecond = 0
	}
	switch {
	case c.MaxDepth == 0:
		c.MaxDepth = def.MaxDepth
	case c.MaxDepth < 0:
		c.MaxDepth = 0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	return c
}
