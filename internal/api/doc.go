// Package api hosts the optional status HTTP server for a running crawl.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the run snapshot.
//   - GET /status/visited, /status/errored and /status/dead-letters for the
//     per-URL lists, paginated with ?limit=&offset=.
package api
