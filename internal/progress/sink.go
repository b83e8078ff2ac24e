package progress

import "context"

// Sink consumes progress events. Consume is called synchronously on the
// emitting goroutine and never concurrently with itself on the same Hub.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// crawler stays agnostic about where events go.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// Callbacks adapts plain functions into a Sink. Nil callbacks are skipped.
type Callbacks struct {
	OnVisited func(url string, links []string)
	OnError   func(url string, err error)
}

// Consume dispatches evt to the matching callback.
func (c Callbacks) Consume(_ context.Context, evt Event) error {
	switch evt.Kind {
	case KindVisited:
		if c.OnVisited != nil {
			c.OnVisited(evt.URL, evt.Links)
		}
	case KindError:
		if c.OnError != nil {
			c.OnError(evt.URL, evt.Err)
		}
	}
	return nil
}

// Close implements Sink.
func (Callbacks) Close(context.Context) error {
	return nil
}
