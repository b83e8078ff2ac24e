package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Task is one unit of asynchronous work. A non-nil error marks the attempt as
// failed and makes the job eligible for another attempt.
type Task func(ctx context.Context) error

// Job is a queued task together with the number of attempts already failed.
type Job struct {
	// Name identifies the job in logs and dead letters (the crawler uses the URL).
	Name string
	// Task is executed by the scheduler.
	Task Task
	// RetryCount is zero on submission and grows by one per failed attempt.
	RetryCount int
	// LastErr is the error returned by the most recent failed attempt.
	LastErr error
}

// DelayFunc computes the backoff before a failed job is queued again.
type DelayFunc func(retryCount int) time.Duration

var (
	// ErrDeadLetters is returned by Stop when some jobs exhausted their retries.
	ErrDeadLetters = errors.New("jobs exhausted their retries")
	// ErrTaskPanic wraps a panic recovered from a task.
	ErrTaskPanic = errors.New("task panicked")
)

const (
	backoffStep   = 100 * time.Millisecond
	backoffJitter = 50 * time.Millisecond
)

// DefaultDelay grows linearly with retryCount and adds up to 50ms of jitter.
// Consecutive delays never decrease because the step is larger than the jitter.
func DefaultDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(retryCount)*backoffStep + time.Duration(rand.Int63n(int64(backoffJitter)))
}
