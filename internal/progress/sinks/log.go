package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// LogSink emits structured logs for every lifecycle event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs evt using structured fields. Visits log at debug, errors at warn.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID.String()),
		zap.String("kind", string(evt.Kind)),
		zap.String("url", evt.URL),
		zap.Int("depth", evt.Depth),
	}
	if evt.Status != 0 {
		fields = append(fields, zap.Int("status", evt.Status))
	}
	switch evt.Kind {
	case progress.KindError:
		fields = append(fields, zap.Error(evt.Err))
		s.logger.Warn("crawl error", fields...)
	default:
		fields = append(fields, zap.Int("links", len(evt.Links)))
		s.logger.Debug("page visited", fields...)
	}
	return nil
}

// Close implements the Sink interface; it flushes the logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	return nil
}
