package dispatch

import (
	"context"
	"encoding/json"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/natsclient"
)

// subjectPrefix namespaces all published telemetry subjects
const subjectPrefix = "telemetry."

// NATSSink publishes records to NATS, one subject per record type
// (telemetry.stats, telemetry.event)
type NATSSink struct {
	client *natsclient.Client
}

// NewNATSSink creates a sink publishing through the given client
func NewNATSSink(client *natsclient.Client) *NATSSink {
	return &NATSSink{client: client}
}

// Name identifies the sink
func (s *NATSSink) Name() string { return "nats" }

// Send publishes the record as JSON to telemetry.<type>
func (s *NATSSink) Send(_ context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WrapConfig(err, "NATSSink", "Send", "record marshal")
	}
	if err := s.client.Publish(subjectPrefix+record.Type, data); err != nil {
		return errors.WrapNetwork(err, "NATSSink", "Send", "publish")
	}
	return nil
}
