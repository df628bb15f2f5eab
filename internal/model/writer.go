package model

import "context"

// Sink defines a generic interface for forwarding an analyzed batch to an
// external system (database, message bus, notifier).
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write takes a completed batch and persists or forwards it.
	Write(ctx context.Context, batch *Batch) error

	// Close releases any connection held by the sink.
	Close() error
}
