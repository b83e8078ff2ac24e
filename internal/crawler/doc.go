// Package crawler implements the crawl orchestrator: URL normalization, depth
// and same-host scoping, response classification, and the wiring that turns
// each discovered link into a new scheduler job.
package crawler
