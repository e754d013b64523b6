// Package devstream implements a telemetry collector for network devices.
//
// The collector has two inbound paths and one outbound pipeline:
//
//   - collect polls a device's management API on a fixed interval. Each
//     cycle authenticates, resolves a declared set of stat properties
//     against the device (including version-conditional properties and
//     templated endpoint keys), normalizes the responses, and hands the
//     assembled document to the dispatcher.
//
//   - ingest runs TCP listeners that receive pushed log events. Raw
//     chunks are split into records, classified into categories, tagged,
//     and handed to the same dispatcher.
//
//   - dispatch queues records in a bounded ring buffer and forwards them
//     to the configured sinks (NATS subjects, HTTP endpoints). Delivery
//     is fire and forget; a slow or failed sink never blocks ingestion.
//
// Configuration is loaded from a YAML or JSON file, validated against a
// JSON schema, and optionally kept live through a NATS key-value bucket
// so that listeners and poll settings can change without a restart.
// Prometheus metrics and a health endpoint are served when enabled.
//
// The cmd/devstream binary wires these packages together.
package devstream
