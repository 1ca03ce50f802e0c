package emit

import "context"

// Chain fans one event stream out to several emitters, in order. The
// first emitter is typically the one whose return value matters to the
// caller (e.g. a workflow manager's own snapshot-driving emitter);
// the rest (tracing, logging, history) are best-effort observers.
type chainEmitter struct {
	emitters []Emitter
}

// Chain combines emitters into a single Emitter that forwards every
// call to each of them in order. Useful when an engine needs to drive
// both its manager's required bookkeeping emitter and one or more
// optional observability backends (OTelEmitter, LogEmitter,
// BufferedEmitter) off the same event stream.
func Chain(emitters ...Emitter) Emitter {
	return &chainEmitter{emitters: emitters}
}

func (c *chainEmitter) Emit(event Event) {
	for _, e := range c.emitters {
		e.Emit(event)
	}
}

func (c *chainEmitter) EmitBatch(ctx context.Context, events []Event) error {
	var firstErr error
	for _, e := range c.emitters {
		if err := e.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *chainEmitter) Flush(ctx context.Context) error {
	var firstErr error
	for _, e := range c.emitters {
		if err := e.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
