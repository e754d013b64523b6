package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "devstream"

// CoreMetrics contains collector-level metrics shared across components
type CoreMetrics struct {
	CyclesTotal        *prometheus.CounterVec   // label: status (ok|error)
	CycleDuration      prometheus.Histogram     // seconds per collection cycle
	PropertiesResolved *prometheus.CounterVec   // label: status (ok|error|disabled)
	EndpointFetches    *prometheus.CounterVec   // label: status (ok|error|cached)
	RecordsDispatched  *prometheus.CounterVec   // label: sink, type
	RecordsDropped     *prometheus.CounterVec   // label: sink
}

// newCoreMetrics creates the core metric set
func newCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "collect",
				Name:      "cycles_total",
				Help:      "Collection cycles run, by outcome",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "collect",
				Name:      "cycle_duration_seconds",
				Help:      "Time to complete one collection cycle",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		PropertiesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "properties_resolved_total",
				Help:      "Declared properties resolved, by outcome",
			},
			[]string{"status"},
		),
		EndpointFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "endpoint_fetches_total",
				Help:      "Endpoint fetch outcomes including cache hits",
			},
			[]string{"status"},
		),
		RecordsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "records_dispatched_total",
				Help:      "Records handed to output sinks",
			},
			[]string{"sink", "type"},
		),
		RecordsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "records_dropped_total",
				Help:      "Records dropped because a sink queue was full",
			},
			[]string{"sink"},
		),
	}
}
