package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// PrometheusSink exports crawl lifecycle counters via Prometheus.
type PrometheusSink struct {
	pagesVisited *prometheus.CounterVec
	linksFound   *prometheus.CounterVec
	crawlErrors  *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		pagesVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_visited_total",
			Help: "Pages fetched and classified, partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		linksFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_links_discovered_total",
			Help: "Same-host links discovered on visited pages, partitioned by site.",
		}, []string{"site"}),
		crawlErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Crawl error events, partitioned by site.",
		}, []string{"site"}),
	}
	for _, collector := range []prometheus.Collector{
		s.pagesVisited,
		s.linksFound,
		s.crawlErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors for evt.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	site := metrics.SanitizeSite(evt.URL)
	switch evt.Kind {
	case progress.KindVisited:
		s.pagesVisited.WithLabelValues(site, string(progress.ClassifyStatus(evt.Status))).Inc()
		if n := len(evt.Links); n > 0 {
			s.linksFound.WithLabelValues(site).Add(float64(n))
		}
	case progress.KindError:
		s.crawlErrors.WithLabelValues(site).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
