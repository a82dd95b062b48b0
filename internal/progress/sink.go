package progress

import "context"

// Sink consumes batches of events. Consume is called from the hub goroutine
// only; Close is called once after the final batch.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. Hub implements it.
type Emitter interface {
	Emit(evt Event)
}
