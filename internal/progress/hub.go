package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls Hub behavior.
//   - Logger: optional structured logger used for sink failures.
type Config struct {
	Logger *zap.Logger
}

// Hub fans events out to registered sinks in registration order. Emit blocks
// until every sink has consumed the event; sink calls are serialized so sinks
// need no locking of their own.
type Hub struct {
	mu     sync.Mutex
	sinks  []Sink
	logger *zap.Logger
	closed atomic.Bool
}

// NewHub initializes a Hub with the supplied sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
	}
}

// Emit validates evt and delivers it to every sink. Invalid events and events
// emitted after Close are discarded. Sink errors are logged, never returned.
func (h *Hub) Emit(ctx context.Context, evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sink := range h.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			h.logger.Warn("progress sink consume failed",
				zap.String("kind", string(evt.Kind)),
				zap.String("url", evt.URL),
				zap.Error(err),
			)
		}
	}
}

// Close closes every sink. It is safe to call multiple times; only the first
// call closes sinks.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil || !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close progress sinks: %w", errors.Join(errs...))
	}
	return nil
}
