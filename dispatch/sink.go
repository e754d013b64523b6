package dispatch

import "context"

// Sink delivers one record to a destination
type Sink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Send delivers the record. Errors are reported to the caller for
	// logging and metrics but never retried across records.
	Send(ctx context.Context, record Record) error
}
