package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	idgen "github.com/JakeFAU/sitecrawler/internal/id/uuid"
	"github.com/JakeFAU/sitecrawler/internal/progress"
	"github.com/JakeFAU/sitecrawler/internal/scheduler"
	"github.com/JakeFAU/sitecrawler/internal/urlstate"
)

var (
	// ErrAlreadyStarted is returned when Crawl is called twice on one Crawler.
	ErrAlreadyStarted = errors.New("crawl already started")
	// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed url")
	// ErrTransientStatus marks a response whose status is worth retrying.
	ErrTransientStatus = errors.New("transient http status")
	// ErrRetriesExhausted is reported for URLs moved to the dead-letter list.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

const drainPollInterval = 20 * time.Millisecond

// Crawler drives one crawl run. It owns the URL state store and the scheduler
// for that run; neither is shared with other runs.
type Crawler struct {
	cfg       Config
	fetcher   Fetcher
	extractor LinkExtractor
	store     *urlstate.Store
	sched     *scheduler.Scheduler
	hub       *progress.Hub
	clock     urlstate.Clock
	logger    *zap.Logger
	runID     uuid.UUID

	mu       sync.Mutex
	started  bool
	seed     *url.URL
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	timedOut atomic.Bool
}

// New wires a Crawler. Callbacks in cfg are registered after the given sinks.
func New(
	cfg Config,
	fetcher Fetcher,
	extractor LinkExtractor,
	logger *zap.Logger,
	sinks ...progress.Sink,
) *Crawler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := idgen.New().NewRunID()
	logger = logger.With(zap.String("run_id", runID.String()))

	if cfg.OnVisited != nil || cfg.OnError != nil {
		sinks = append(sinks, progress.Callbacks{OnVisited: cfg.OnVisited, OnError: cfg.OnError})
	}

	clk := system.New()
	c := &Crawler{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		store:     urlstate.New(urlstate.WithClock(clk)),
		hub:       progress.NewHub(progress.Config{Logger: logger}, sinks...),
		clock:     clk,
		logger:    logger,
		runID:     runID,
		ctx:       context.Background(),
	}
	c.sched = scheduler.New(scheduler.Config{
		MaxConcurrentJobs:    cfg.MaxConcurrentRequests,
		MaxRequestsPerSecond: cfg.MaxRequestsPerSecond,
		MaxRetries:           cfg.MaxRetries,
		OnDeadLetter:         c.onDeadLetter,
		OnDiscard:            c.onDiscard,
		Logger:               logger,
	})
	return c
}

// RunID identifies this run in logs and events.
func (c *Crawler) RunID() uuid.UUID {
	return c.runID
}

// Store exposes the URL state for inspection.
func (c *Crawler) Store() *urlstate.Store {
	return c.store
}

// DeadLetters returns the URLs whose fetch jobs exhausted their retries.
func (c *Crawler) DeadLetters() []scheduler.Job {
	return c.sched.DeadLetters()
}

// Crawl starts the scheduler, arms the timeout, and admits seed at depth 0.
// It returns immediately; use Wait to block until the crawl drains.
func (c *Crawler) Crawl(ctx context.Context, seed string) error {
	seedURL, err := normalize(seed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.seed = seedURL
	c.ctx, c.cancel = context.WithCancel(ctx)
	if c.cfg.Timeout > 0 {
		c.timer = time.AfterFunc(c.cfg.Timeout, c.onTimeout)
	}
	runCtx := c.ctx
	c.mu.Unlock()

	c.logger.Info("crawl started",
		zap.String("seed", seedURL.String()),
		zap.Int("max_depth", c.cfg.MaxDepth),
		zap.Int("concurrency", c.cfg.MaxConcurrentRequests),
		zap.Float64("max_rps", c.cfg.MaxRequestsPerSecond),
		zap.Duration("timeout", c.cfg.Timeout),
	)
	c.sched.Start(runCtx)
	c.admit(seedURL.String(), 0)
	return nil
}

// Stop cancels every outstanding fetch and halts the scheduler. URLs already
// recorded keep their state. The error wraps scheduler.ErrDeadLetters when some
// URLs exhausted their retries.
func (c *Crawler) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	timer := c.timer
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if err := c.sched.Stop(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// Close stops the run, waits for in-flight jobs to return, and closes sinks.
// Claims held by jobs that will never run are released by then.
func (c *Crawler) Close(ctx context.Context) error {
	stopErr := c.Stop()
	c.sched.Wait()
	if err := c.hub.Close(ctx); err != nil {
		return errors.Join(stopErr, err)
	}
	return stopErr
}

// IsCrawling reports whether the scheduler is running and still has queued,
// executing or backoff-delayed work.
func (c *Crawler) IsCrawling() bool {
	return c.sched.IsRunning() && !c.sched.Idle()
}

// DidTimeout reports whether the run was halted by its timeout.
func (c *Crawler) DidTimeout() bool {
	return c.timedOut.Load()
}

// Wait blocks until the crawl is no longer making progress or ctx ends.
func (c *Crawler) Wait(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for c.IsCrawling() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for crawl: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Snapshot summarizes the run for status reporting.
type Snapshot struct {
	RunID       string          `json:"run_id"`
	Seed        string          `json:"seed,omitempty"`
	Crawling    bool            `json:"crawling"`
	TimedOut    bool            `json:"timed_out"`
	Pending     int             `json:"pending"`
	Active      int             `json:"active"`
	DeadLetters int             `json:"dead_letters"`
	URLs        urlstate.Counts `json:"urls"`
}

// Snapshot returns the current run counters.
func (c *Crawler) Snapshot() Snapshot {
	c.mu.Lock()
	seed := ""
	if c.seed != nil {
		seed = c.seed.String()
	}
	c.mu.Unlock()
	return Snapshot{
		RunID:       c.runID.String(),
		Seed:        seed,
		Crawling:    c.IsCrawling(),
		TimedOut:    c.DidTimeout(),
		Pending:     c.sched.PendingCount(),
		Active:      c.sched.ActiveCount(),
		DeadLetters: len(c.sched.DeadLetters()),
		URLs:        c.store.Counts(),
	}
}

func (c *Crawler) onTimeout() {
	c.logger.Info("timeout limit reached, cancelling in-flight requests")
	c.timedOut.Store(true)
	if err := c.Stop(); err != nil {
		c.logger.Warn("crawl stopped with dead letters", zap.Error(err))
	}
}

func (c *Crawler) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// admit applies traversal policy to rawURL and queues a fetch job for it.
// Anything outside the policy is dropped silently.
func (c *Crawler) admit(rawURL string, depth int) {
	if c.runContext().Err() != nil {
		return
	}
	if depth > c.cfg.MaxDepth {
		return
	}
	u, err := normalize(rawURL)
	if err != nil {
		c.logger.Debug("dropping malformed url", zap.String("url", rawURL), zap.Error(err))
		return
	}
	if !sameHost(u, c.seed) {
		return
	}
	pageURL := u.String()
	if !c.store.TryClaim(pageURL) {
		return
	}
	c.sched.Submit(pageURL, func(ctx context.Context) error {
		return c.visit(ctx, pageURL, depth)
	})
}

// visit is the fetch job body. A returned error asks the scheduler for another
// attempt; in that case the in-flight claim is kept so no duplicate job can be
// admitted while the retry is pending. Fetch failures are reported once, when
// the URL is dead-lettered.
func (c *Crawler) visit(ctx context.Context, pageURL string, depth int) (err error) {
	defer func() {
		if err == nil {
			c.store.Release(pageURL)
		}
	}()

	if c.timedOut.Load() || ctx.Err() != nil {
		return nil
	}
	// Another path may have visited the URL while this job was queued.
	if c.store.IsVisited(pageURL) {
		return nil
	}

	reqURL, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	resp, err := c.fetcher.Fetch(ctx, FetchRequest{
		URL:     pageURL,
		Headers: http.Header{"User-Agent": []string{c.cfg.UserAgent}},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Debug("fetch failed",
			zap.String("url", pageURL),
			zap.Int("depth", depth),
			zap.Error(err),
		)
		return fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.store.MarkErrored(pageURL, resp.StatusCode)
		if IsTransientStatus(resp.StatusCode) {
			return fmt.Errorf("%w: %d", ErrTransientStatus, resp.StatusCode)
		}
		c.logger.Debug("permanent client error",
			zap.String("url", pageURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}

	c.store.MarkVisited(pageURL)

	finalURL := reqURL
	if resp.FinalURL != "" {
		if parsed, perr := url.Parse(resp.FinalURL); perr == nil {
			finalURL = parsed
		}
	}
	if !sameHost(finalURL, reqURL) {
		c.emitVisited(ctx, pageURL, depth, resp.StatusCode, nil)
		return nil
	}
	if !IsHTML(resp.Headers.Get("Content-Type")) {
		c.emitVisited(ctx, pageURL, depth, resp.StatusCode, nil)
		return nil
	}

	links, err := c.extractor.ExtractLinks(resp.Body, finalURL)
	if err != nil {
		c.emitError(ctx, pageURL, depth, resp.StatusCode, fmt.Errorf("extract links: %w", err))
		return nil
	}
	c.emitVisited(ctx, pageURL, depth, resp.StatusCode, links)
	for _, link := range links {
		c.admit(link, depth+1)
	}
	return nil
}

func (c *Crawler) onDeadLetter(job scheduler.Job) {
	c.store.Release(job.Name)
	err := fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, job.RetryCount)
	if job.LastErr != nil {
		err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, job.RetryCount, job.LastErr)
	}
	c.emitError(c.runContext(), job.Name, 0, 0, err)
}

func (c *Crawler) onDiscard(job scheduler.Job) {
	c.store.Release(job.Name)
}

func (c *Crawler) emitVisited(ctx context.Context, pageURL string, depth, status int, links []string) {
	if links == nil {
		links = []string{}
	}
	c.hub.Emit(ctx, progress.Event{
		RunID:  c.runID,
		TS:     c.clock.Now(),
		Kind:   progress.KindVisited,
		URL:    pageURL,
		Depth:  depth,
		Status: status,
		Links:  links,
	})
}

func (c *Crawler) emitError(ctx context.Context, pageURL string, depth, status int, err error) {
	c.hub.Emit(ctx, progress.Event{
		RunID:  c.runID,
		TS:     c.clock.Now(),
		Kind:   progress.KindError,
		URL:    pageURL,
		Depth:  depth,
		Status: status,
		Err:    err,
	})
}
