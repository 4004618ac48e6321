package audit

import "context"

// EventLogger is the interface pipeline stages use to emit audit events.
type EventLogger interface {
	// Log records a single event. Implementations must be safe for
	// concurrent use and set HashPrev to maintain the chain.
	Log(ctx context.Context, event Event) error

	// Flush forces buffered events to the underlying store.
	Flush(ctx context.Context) error

	// Close flushes remaining events and releases resources.
	Close() error
}
