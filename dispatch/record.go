// Package dispatch forwards collected telemetry to configured sinks.
// Producers hand records off fire-and-forget; a bounded queue absorbs
// bursts and drops the oldest records under sustained backpressure.
package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Record is the delivery envelope around one collected payload
type Record struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// newRecord wraps a payload for delivery
func newRecord(payload any, typeTag string) Record {
	return Record{
		ID:        uuid.NewString(),
		Type:      typeTag,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
}
