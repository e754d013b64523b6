// Package ingest receives pushed telemetry events over TCP. Each configured
// listener binds a port, frames incoming bytes into event records, normalizes
// them, and hands them to the dispatch pipeline. A reconciler keeps the
// running listener set converged on the configured one.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/devstream/component"
	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/metric"
	"github.com/c360/devstream/normalize"
	"github.com/c360/devstream/pkg/retry"
	"github.com/c360/devstream/tracer"
)

// readBufferSize bounds a single read from a client connection. Records are
// framed within a chunk; a record split across reads produces two records.
const readBufferSize = 64 * 1024

// Processor consumes normalized event records. Satisfied by
// dispatch.Dispatcher.
type Processor interface {
	Process(payload any, typeTag string)
}

// Metrics holds Prometheus metrics for one event listener. Collectors are
// registered per port, so a stopped listener must release them before a
// replacement on the same port can register its own.
type Metrics struct {
	registry *metric.Registry
	service  string

	eventsReceived    prometheus.Counter
	bytesReceived     prometheus.Counter
	framingFallbacks  prometheus.Counter
	activeConnections prometheus.Gauge
	lastActivity      prometheus.Gauge
}

// metricNames are the registration keys owned by one listener
var metricNames = []string{
	"events_received",
	"bytes_received",
	"framing_fallbacks",
	"active_connections",
	"last_activity",
}

func newMetrics(registry *metric.Registry, port int) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		registry: registry,
		service:  fmt.Sprintf("listener_%d", port),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "devstream",
			Subsystem: "listener",
			Name:      "events_received_total",
			Help:      "Event records framed from incoming data",
			ConstLabels: prometheus.Labels{
				"port": fmt.Sprintf("%d", port),
			},
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "devstream",
			Subsystem: "listener",
			Name:      "bytes_received_total",
			Help:      "Bytes read from event sources",
			ConstLabels: prometheus.Labels{
				"port": fmt.Sprintf("%d", port),
			},
		}),
		framingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "devstream",
			Subsystem: "listener",
			Name:      "framing_fallbacks_total",
			Help:      "Chunks forwarded whole because no record boundary was found",
			ConstLabels: prometheus.Labels{
				"port": fmt.Sprintf("%d", port),
			},
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devstream",
			Subsystem: "listener",
			Name:      "active_connections",
			Help:      "Open client connections",
			ConstLabels: prometheus.Labels{
				"port": fmt.Sprintf("%d", port),
			},
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devstream",
			Subsystem: "listener",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last received chunk",
			ConstLabels: prometheus.Labels{
				"port": fmt.Sprintf("%d", port),
			},
		}),
	}

	registrations := []struct {
		name string
		do   func() error
	}{
		{"events_received", func() error { return registry.RegisterCounter(m.service, "events_received", m.eventsReceived) }},
		{"bytes_received", func() error { return registry.RegisterCounter(m.service, "bytes_received", m.bytesReceived) }},
		{"framing_fallbacks", func() error { return registry.RegisterCounter(m.service, "framing_fallbacks", m.framingFallbacks) }},
		{"active_connections", func() error { return registry.RegisterGauge(m.service, "active_connections", m.activeConnections) }},
		{"last_activity", func() error { return registry.RegisterGauge(m.service, "last_activity", m.lastActivity) }},
	}
	for _, reg := range registrations {
		if err := reg.do(); err != nil {
			m.release()
			return nil, errors.WrapConfig(err, "listener", "newMetrics",
				fmt.Sprintf("register %s", reg.name))
		}
	}

	return m, nil
}

// release unregisters this listener's collectors so a later listener on the
// same port can register fresh ones. Safe to call more than once.
func (m *Metrics) release() {
	if m == nil {
		return
	}
	for _, name := range metricNames {
		m.registry.Unregister(m.service, name)
	}
}

// Listener accepts TCP connections on one port and turns the byte stream
// into normalized event records
type Listener struct {
	spec      ListenerSpec
	processor Processor
	logger    *slog.Logger
	trace     *tracer.Tracer
	eventOpts normalize.EventOptions

	retryConfig retry.Config

	shutdown  chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.Mutex
	wg        sync.WaitGroup
	ln        net.Listener

	eventsReceived atomic.Int64
	bytesReceived  atomic.Int64
	readErrors     atomic.Int64
	lastActivity   atomic.Value // time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Listener)(nil)
var _ component.LifecycleComponent = (*Listener)(nil)

// ListenerDeps holds runtime dependencies for an event listener
type ListenerDeps struct {
	Spec            ListenerSpec
	Processor       Processor
	MetricsRegistry *metric.Registry
	Logger          *slog.Logger
}

// NewListener creates a TCP event listener for the given spec
func NewListener(deps ListenerDeps) *Listener {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "listener", "name", deps.Spec.Name, "port", deps.Spec.Port)

	metrics, err := newMetrics(deps.MetricsRegistry, deps.Spec.Port)
	if err != nil {
		logger.Warn("Listener metrics disabled", "error", err)
	}

	l := &Listener{
		spec:        deps.Spec,
		processor:   deps.Processor,
		logger:      logger,
		trace:       tracer.FromConfig(deps.Spec.Trace, logger),
		retryConfig: retry.DefaultConfig(),
		startTime:   time.Now(),
		metrics:     metrics,
	}
	l.eventOpts = normalize.EventOptions{
		AddKeysByTag: &normalize.AddKeysByTagOptions{
			Tags:           deps.Spec.Tags,
			Definitions:    deps.Spec.DefaultCategories,
			ClassifyByKeys: true,
		},
	}
	l.lastActivity.Store(time.Time{})
	return l
}

// Meta returns the component metadata
func (l *Listener) Meta() component.Metadata {
	name := l.spec.Name
	if name == "" {
		name = fmt.Sprintf("listener-%d", l.spec.Port)
	}
	return component.Metadata{
		Name:        name,
		Type:        "input",
		Description: fmt.Sprintf("TCP event listener on port %d", l.spec.Port),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (l *Listener) Health() component.HealthStatus {
	l.mu.Lock()
	bound := l.ln != nil
	l.mu.Unlock()

	return component.HealthStatus{
		Healthy:    l.running.Load() && bound,
		LastCheck:  time.Now(),
		ErrorCount: int(l.readErrors.Load()),
		Uptime:     time.Since(l.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (l *Listener) DataFlow() component.FlowMetrics {
	events := l.eventsReceived.Load()
	bytes := l.bytesReceived.Load()
	readErrors := l.readErrors.Load()
	lastActivity, _ := l.lastActivity.Load().(time.Time)

	var eventsPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(l.startTime).Seconds(); uptime > 0 {
		eventsPerSecond = float64(events) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if events > 0 {
		errorRate = float64(readErrors) / float64(events)
	}

	return component.FlowMetrics{
		MessagesPerSecond: eventsPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the listener configuration
func (l *Listener) Initialize() error {
	if l.spec.Port < 1 || l.spec.Port > 65535 {
		return errors.WrapConfig(fmt.Errorf("invalid port %d", l.spec.Port),
			"listener", "Initialize", "port validation")
	}
	if l.processor == nil {
		return errors.WrapConfig(fmt.Errorf("nil processor"),
			"listener", "Initialize", "processor validation")
	}
	return nil
}

// Start binds the port and begins accepting connections. Binding is retried
// with backoff so a lingering socket from a restarted listener does not fail
// the reconcile.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return nil
	}

	bind := func() error {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.spec.Port))
		if err != nil {
			return err
		}
		l.ln = ln
		return nil
	}
	if err := retry.Do(ctx, l.retryConfig, bind); err != nil {
		return errors.WrapListener(err, "listener", "Start", "port binding")
	}

	if l.trace != nil {
		if err := l.trace.Start(ctx); err != nil {
			l.logger.Warn("Trace unavailable", "error", err)
			l.trace = nil
		}
	}

	l.shutdown = make(chan struct{})
	l.running.Store(true)
	l.startTime = time.Now()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.acceptLoop(ctx)
	}()

	l.logger.Info("Listener started")
	return nil
}

// Stop closes the listener socket, waits for in-flight connections, and
// releases the per-port metric collectors
func (l *Listener) Stop(timeout time.Duration) error {
	l.metrics.release()
	if !l.running.Load() {
		return nil
	}
	l.running.Store(false)

	l.mu.Lock()
	close(l.shutdown)
	if l.ln != nil {
		_ = l.ln.Close()
		l.ln = nil
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"listener", "Stop", "graceful shutdown")
	}

	if l.trace != nil {
		_ = l.trace.Stop(timeout)
	}
	l.logger.Info("Listener stopped")
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for l.running.Load() {
		l.mu.Lock()
		ln := l.ln
		l.mu.Unlock()
		if ln == nil {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-l.shutdown:
				return
			default:
				l.readErrors.Add(1)
				continue
			}
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(ctx, conn)
		}()
	}
}

// handleConn reads chunks from one client and forwards framed records
func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if l.metrics != nil {
		l.metrics.activeConnections.Inc()
		defer l.metrics.activeConnections.Dec()
	}

	chunk := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := conn.Read(chunk)
		if n > 0 {
			l.ingestChunk(string(chunk[:n]))
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}
	}
}

// ingestChunk frames one received chunk into records and forwards each
func (l *Listener) ingestChunk(data string) {
	now := time.Now()
	l.bytesReceived.Add(int64(len(data)))
	l.lastActivity.Store(now)
	if l.metrics != nil {
		l.metrics.bytesReceived.Add(float64(len(data)))
		l.metrics.lastActivity.Set(float64(now.Unix()))
	}

	records, fellBack := frameRecords(data)
	if fellBack && l.metrics != nil {
		l.metrics.framingFallbacks.Inc()
	}

	for _, record := range records {
		l.eventsReceived.Add(1)
		if l.metrics != nil {
			l.metrics.eventsReceived.Inc()
		}

		event, err := normalize.Event(record, l.eventOpts)
		if err != nil {
			l.readErrors.Add(1)
			l.logger.Warn("Event normalization failed", "error", err)
			continue
		}

		l.trace.Write(event)
		l.processor.Process(event, "event")
	}
}

// frameRecords splits a chunk into event records at newlines that directly
// follow a closing double quote. Syslog-style events end their last quoted
// field at the line break, while newlines inside a quoted value do not
// terminate the record. A chunk with no such boundary is forwarded whole,
// reported via the fellBack result.
func frameRecords(data string) (records []string, fellBack bool) {
	start := 0
	for i := 1; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		prev := data[i-1]
		if prev == '\r' && i >= 2 {
			prev = data[i-2]
		}
		if prev != '"' {
			continue
		}
		if record := trimRecord(data[start:i]); record != "" {
			records = append(records, record)
		}
		start = i + 1
	}

	if rest := trimRecord(data[start:]); rest != "" {
		records = append(records, rest)
		if start == 0 {
			fellBack = true
		}
	}
	return records, fellBack
}

func trimRecord(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
