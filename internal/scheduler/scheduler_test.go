package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func noDelay(int) time.Duration { return 0 }

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.Delay == nil {
		cfg.Delay = noDelay
	}
	cfg.Logger = zap.NewNop()
	s := New(cfg)
	t.Cleanup(func() {
		_ = s.Stop()
		s.Wait()
	})
	return s
}

func TestSchedulerRunsJobsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 1})

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c", "d"} {
		name := name
		s.Submit(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}
	s.Start(context.Background())

	require.Eventually(t, s.Idle, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestSchedulerRespectsConcurrencyCeiling(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 2})

	var current, peak atomic.Int32
	for i := 0; i < 8; i++ {
		s.Submit("job", func(context.Context) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return nil
		})
	}
	s.Start(context.Background())

	require.Eventually(t, s.Idle, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(2), peak.Load())
}

func TestSchedulerRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 1, MaxRetries: 5})

	var attempts atomic.Int32
	s.Submit("flaky", func(context.Context) error {
		if attempts.Add(1) <= 2 {
			return errors.New("transient")
		}
		return nil
	})
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return attempts.Load() == 3 && s.Idle()
	}, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, s.DeadLetters())
	require.NoError(t, s.Stop())
}

func TestSchedulerDeadLettersAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var delays []int
	var delayMu sync.Mutex
	var hooked atomic.Int32
	s := newTestScheduler(t, Config{
		MaxConcurrentJobs: 1,
		MaxRetries:        3,
		Delay: func(retryCount int) time.Duration {
			delayMu.Lock()
			defer delayMu.Unlock()
			delays = append(delays, retryCount)
			return time.Millisecond
		},
		OnDeadLetter: func(job Job) {
			if job.Name == "doomed" {
				hooked.Add(1)
			}
		},
	})

	var attempts atomic.Int32
	s.Submit("doomed", func(context.Context) error {
		attempts.Add(1)
		return errors.New("always fails")
	})
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(s.DeadLetters()) == 1 && s.Idle()
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, int32(3), attempts.Load())
	require.Equal(t, int32(1), hooked.Load())
	dead := s.DeadLetters()
	require.Equal(t, "doomed", dead[0].Name)
	require.Equal(t, 3, dead[0].RetryCount)

	delayMu.Lock()
	require.Equal(t, []int{0, 1, 2}, delays)
	delayMu.Unlock()

	err := s.Stop()
	require.ErrorIs(t, err, ErrDeadLetters)
}

func TestSchedulerTreatsPanicAsFailure(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 1, MaxRetries: 2})

	var attempts atomic.Int32
	s.Submit("panics", func(context.Context) error {
		attempts.Add(1)
		panic("boom")
	})
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(s.DeadLetters()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(2), attempts.Load())
}

func TestSchedulerEnforcesRateLimit(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 4, MaxRequestsPerSecond: 20})

	var mu sync.Mutex
	var starts []time.Time
	for i := 0; i < 3; i++ {
		s.Submit("tick", func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			starts = append(starts, time.Now())
			return nil
		})
	}
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		require.GreaterOrEqual(t, gap, 40*time.Millisecond, "gap %d too small: %v", i, gap)
	}
}

func TestSchedulerStopLeavesQueuedJobsUnstarted(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var discarded []string
	s := newTestScheduler(t, Config{
		MaxConcurrentJobs: 1,
		OnDiscard: func(job Job) {
			mu.Lock()
			defer mu.Unlock()
			discarded = append(discarded, job.Name)
		},
	})

	release := make(chan struct{})
	started := make(chan struct{})
	var secondRan atomic.Bool
	s.Submit("first", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	s.Submit("second", func(context.Context) error {
		secondRan.Store(true)
		return nil
	})
	s.Start(context.Background())

	<-started
	require.True(t, s.IsRunning())
	require.NoError(t, s.Stop())
	require.False(t, s.IsRunning())
	close(release)
	s.Wait()

	require.False(t, secondRan.Load())
	require.Equal(t, 0, s.PendingCount())
	require.Equal(t, 0, s.ActiveCount())
	mu.Lock()
	require.Equal(t, []string{"second"}, discarded)
	mu.Unlock()

	// Work submitted after dispatch ended is handed straight back.
	s.Submit("late", func(context.Context) error { return nil })
	require.Equal(t, 0, s.PendingCount())
	mu.Lock()
	require.Equal(t, []string{"second", "late"}, discarded)
	mu.Unlock()
}

func TestSchedulerDiscardsFailuresAfterCancellation(t *testing.T) {
	t.Parallel()

	var discarded atomic.Int32
	s := newTestScheduler(t, Config{
		MaxConcurrentJobs: 1,
		OnDiscard:         func(Job) { discarded.Add(1) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	s.Submit("cancelled", func(taskCtx context.Context) error {
		close(started)
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	s.Start(ctx)

	<-started
	cancel()
	s.Wait()

	require.Equal(t, int32(1), discarded.Load())
	require.Empty(t, s.DeadLetters())
	require.True(t, s.Idle())
}

func TestSchedulerDiscardsWhenStoppedBeforeStart(t *testing.T) {
	t.Parallel()

	var discarded atomic.Int32
	s := newTestScheduler(t, Config{OnDiscard: func(Job) { discarded.Add(1) }})
	s.Submit("never", func(context.Context) error { return nil })
	require.NoError(t, s.Stop())
	require.Equal(t, int32(1), discarded.Load())
	require.Equal(t, 0, s.PendingCount())
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 1})
	require.False(t, s.IsRunning())

	s.Start(context.Background())
	s.Start(context.Background())
	require.True(t, s.IsRunning())

	var runs atomic.Int32
	s.Submit("once", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.Eventually(t, s.Idle, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), runs.Load())
}

func TestSchedulerContextCancelStopsLoop(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 1})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestDefaultDelayIsNonDecreasing(t *testing.T) {
	t.Parallel()

	for retry := 0; retry < 10; retry++ {
		for i := 0; i < 20; i++ {
			d := DefaultDelay(retry)
			floor := time.Duration(retry) * backoffStep
			require.GreaterOrEqual(t, d, floor)
			require.Less(t, d, floor+backoffJitter)
		}
	}
}
