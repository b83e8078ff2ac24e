// Package progress provides the crawl lifecycle events and the synchronous hub
// that fans them out to sinks such as structured logs, Prometheus counters, or
// caller-supplied callbacks. Emit returns only after every sink has consumed
// the event, so a slow sink throttles the crawl instead of losing events.
package progress
