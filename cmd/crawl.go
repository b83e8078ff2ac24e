package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/api"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/sitecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/sitecrawler/internal/linkextract"
	"github.com/JakeFAU/sitecrawler/internal/progress/sinks"
	"github.com/JakeFAU/sitecrawler/internal/scheduler"
)

const closeTimeout = 10 * time.Second

// runCrawl wires the crawler for one seed, prints results as they arrive, and
// blocks until the crawl drains, times out, or ctx is cancelled.
func runCrawl(ctx context.Context, d deps, cfg config.Config, seed string, logger *zap.Logger) error {
	promSink, err := sinks.NewPrometheusSink(d.registerer)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}

	crawlCfg := cfg.CrawlerConfig()
	crawlCfg.OnVisited = func(url string, links []string) {
		fmt.Fprintf(d.stdout, "- %s\n", url)
		for _, link := range links {
			fmt.Fprintf(d.stdout, " = %s\n", link)
		}
	}
	crawlCfg.OnError = func(url string, err error) {
		fmt.Fprintf(d.stderr, "error: %s: %v\n", url, err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTP.RequestTimeout,
	})
	c := crawler.New(
		crawlCfg,
		fetcher,
		linkextract.New(),
		logger,
		sinks.NewLogSink(logger),
		promSink,
	)

	serverCtx, stopServer := context.WithCancel(ctx)
	var serverWG sync.WaitGroup
	if cfg.Metrics.Addr != "" {
		srv := api.NewServer(c, logger)
		serverWG.Add(1)
		go func() {
			defer serverWG.Done()
			if err := srv.ListenAndServe(serverCtx, cfg.Metrics.Addr); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
	}
	defer func() {
		stopServer()
		serverWG.Wait()
	}()

	start := time.Now()
	if err := c.Crawl(ctx, seed); err != nil {
		return fmt.Errorf("start crawl: %w", err)
	}
	waitErr := c.Wait(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	closeErr := c.Close(closeCtx)

	logSummary(logger, c, time.Since(start))

	switch {
	case ctx.Err() != nil:
		logger.Warn("crawl interrupted", zap.Error(ctx.Err()))
	case waitErr != nil:
		return fmt.Errorf("wait for crawl: %w", waitErr)
	}
	if closeErr != nil && !errors.Is(closeErr, scheduler.ErrDeadLetters) {
		return fmt.Errorf("close crawler: %w", closeErr)
	}
	return nil
}

func logSummary(logger *zap.Logger, c *crawler.Crawler, elapsed time.Duration) {
	snap := c.Snapshot()
	logger.Info("crawl finished",
		zap.Int("visited", snap.URLs.Visited),
		zap.Int("errored", snap.URLs.Errored),
		zap.Int("dead_letters", snap.DeadLetters),
		zap.Bool("timed_out", snap.TimedOut),
		zap.Duration("elapsed", elapsed),
	)
}
