// Package scheduler runs asynchronous jobs under a concurrency ceiling and a
// request-rate ceiling, retrying failed jobs with backoff and parking jobs that
// exhaust their retries on a dead-letter list.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/sitecrawler/internal/metrics"
)

const (
	defaultMaxConcurrentJobs = 5
	defaultMaxRetries        = 5
)

// Config controls Scheduler behavior.
//   - MaxConcurrentJobs: jobs executing at once (default 5).
//   - MaxRequestsPerSecond: job starts per second; the minimum interval between
//     two starts is 1s / MaxRequestsPerSecond. Zero or less disables throttling.
//   - MaxRetries: a job whose RetryCount reaches this value is dead-lettered
//     instead of executed (default 5).
//   - Delay: backoff before a failed job is re-queued (default DefaultDelay).
//   - OnDeadLetter: optional hook invoked on the dispatch goroutine when a job
//     is dead-lettered.
//   - OnDiscard: optional hook invoked for every job that will never run again
//     because the scheduler stopped: jobs still queued when dispatch ends, retries
//     whose backoff expires afterwards, and failures under a cancelled context.
type Config struct {
	MaxConcurrentJobs    int
	MaxRequestsPerSecond float64
	MaxRetries           int
	Delay                DelayFunc
	OnDeadLetter         func(Job)
	OnDiscard            func(Job)
	Logger               *zap.Logger
}

// Scheduler is a FIFO job executor. It is safe for concurrent use.
type Scheduler struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter

	mu         sync.Mutex
	pending    []Job
	dead       []Job
	active     int
	delayed    int
	started    bool
	stopped    bool
	running    bool
	drained    bool
	cancelLoop context.CancelFunc

	wake  chan struct{}
	done  chan struct{}
	tasks sync.WaitGroup
}

// New constructs a Scheduler. Call Start to begin dispatching.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Delay == nil {
		cfg.Delay = DefaultDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.MaxRequestsPerSecond > 0 {
		interval := time.Duration(float64(time.Second) / cfg.MaxRequestsPerSecond)
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Scheduler{
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the dispatch loop. Tasks receive ctx; cancelling it also ends
// the loop. Calling Start more than once, or after Stop, does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.started = true
	s.running = true
	s.cancelLoop = cancel
	s.mu.Unlock()

	go s.loop(ctx, loopCtx)
}

// Stop halts dispatching. Jobs already executing are allowed to finish; queued
// jobs are never started and are handed to OnDiscard. When the dead-letter list
// is non-empty the returned error wraps ErrDeadLetters so callers can report it.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.running = false
	cancel := s.cancelLoop
	dead := len(s.dead)
	var left []Job
	if !s.started && !s.drained {
		s.drained = true
		left = s.pending
		s.pending = nil
	}
	s.mu.Unlock()

	s.discard(left...)
	if cancel != nil {
		cancel()
	}
	if dead > 0 {
		return fmt.Errorf("%w: %d job(s)", ErrDeadLetters, dead)
	}
	return nil
}

// Wait blocks until the dispatch loop has exited and every started job has
// returned. It returns immediately when the scheduler was never started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	<-s.done
	s.tasks.Wait()
}

// Submit appends a new job to the tail of the queue. The queue is unbounded.
func (s *Scheduler) Submit(name string, task Task) {
	s.enqueue(Job{Name: name, Task: task})
}

// PendingCount returns the number of queued jobs.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ActiveCount returns the number of jobs currently executing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Idle reports whether there is no queued, executing or backoff-delayed work.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && s.active == 0 && s.delayed == 0
}

// IsRunning reports whether the dispatch loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// DeadLetters returns the jobs that exhausted their retries.
func (s *Scheduler) DeadLetters() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Job(nil), s.dead...)
}

func (s *Scheduler) loop(taskCtx, loopCtx context.Context) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.drained = true
		left := s.pending
		s.pending = nil
		s.mu.Unlock()
		metrics.SetPendingJobs(0)
		s.discard(left...)
	}()

	for {
		job, ok := s.next(loopCtx)
		if !ok {
			return
		}
		if job.RetryCount >= s.cfg.MaxRetries {
			s.deadLetter(job)
			continue
		}
		if err := s.throttle(loopCtx); err != nil {
			s.mu.Lock()
			s.pending = append([]Job{job}, s.pending...)
			s.active--
			s.mu.Unlock()
			return
		}
		s.run(taskCtx, job)
	}
}

// next blocks until a job can be taken and reserves an execution slot for it.
func (s *Scheduler) next(ctx context.Context) (Job, bool) {
	for {
		if ctx.Err() != nil {
			return Job{}, false
		}
		s.mu.Lock()
		if s.active < s.cfg.MaxConcurrentJobs && len(s.pending) > 0 {
			job := s.pending[0]
			s.pending[0] = Job{}
			s.pending = s.pending[1:]
			s.active++
			pending := len(s.pending)
			s.mu.Unlock()
			metrics.SetPendingJobs(pending)
			return job, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, false
		case <-s.wake:
		}
	}
}

func (s *Scheduler) throttle(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	reservation := s.limiter.Reserve()
	delay := reservation.Delay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		reservation.Cancel()
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	case <-timer.C:
		metrics.ObserveRateLimitDelay(delay)
		return nil
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	metrics.IncActiveJobs()
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		err := execute(ctx, job)
		if err != nil {
			metrics.ObserveJob("failure")
			s.retry(ctx, job, err)
		} else {
			metrics.ObserveJob("success")
		}
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		metrics.DecActiveJobs()
		s.signal()
	}()
}

func execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return job.Task(ctx)
}

func (s *Scheduler) retry(ctx context.Context, job Job, cause error) {
	if ctx.Err() != nil {
		s.logger.Debug("dropping failed job after cancellation",
			zap.String("job", job.Name),
			zap.Error(cause),
		)
		s.discard(job)
		return
	}
	delay := s.cfg.Delay(job.RetryCount)
	next := Job{Name: job.Name, Task: job.Task, RetryCount: job.RetryCount + 1, LastErr: cause}

	s.mu.Lock()
	s.delayed++
	s.mu.Unlock()
	metrics.ObserveRetry()

	s.logger.Debug("job failed; re-queueing",
		zap.String("job", job.Name),
		zap.Int("retry_count", next.RetryCount),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
	time.AfterFunc(delay, func() {
		s.enqueueDelayed(next)
	})
}

func (s *Scheduler) deadLetter(job Job) {
	s.mu.Lock()
	s.dead = append(s.dead, job)
	s.mu.Unlock()
	metrics.ObserveDeadLetter()

	s.logger.Warn("job exhausted retries",
		zap.String("job", job.Name),
		zap.Int("retry_count", job.RetryCount),
	)
	if s.cfg.OnDeadLetter != nil {
		s.cfg.OnDeadLetter(job)
	}

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) enqueue(job Job) {
	s.mu.Lock()
	if s.drained {
		s.mu.Unlock()
		s.discard(job)
		return
	}
	s.pending = append(s.pending, job)
	pending := len(s.pending)
	s.mu.Unlock()
	metrics.SetPendingJobs(pending)
	s.signal()
}

func (s *Scheduler) enqueueDelayed(job Job) {
	s.mu.Lock()
	s.delayed--
	if s.drained {
		s.mu.Unlock()
		s.discard(job)
		return
	}
	s.pending = append(s.pending, job)
	pending := len(s.pending)
	s.mu.Unlock()
	metrics.SetPendingJobs(pending)
	s.signal()
}

func (s *Scheduler) discard(jobs ...Job) {
	if s.cfg.OnDiscard == nil {
		return
	}
	for _, job := range jobs {
		s.cfg.OnDiscard(job)
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
