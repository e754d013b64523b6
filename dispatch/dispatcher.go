package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/metric"
	"github.com/c360/devstream/pkg/buffer"
)

const (
	defaultQueueSize = 1024
	drainInterval    = 50 * time.Millisecond
	drainBatchSize   = 100
)

// Config tunes the dispatch queue
type Config struct {
	QueueSize int `json:"queueSize" yaml:"queueSize"`
}

// Deps holds runtime dependencies for the dispatcher
type Deps struct {
	Sinks  []Sink
	Logger *slog.Logger
	Core   *metric.CoreMetrics // optional
}

// Dispatcher fans records out to all configured sinks. Process never
// blocks: records queue into a ring that drops the oldest under
// backpressure, and a single worker drains batches to the sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	core   *metric.CoreMetrics
	queue  *buffer.Ring[Record]

	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool
}

// New creates a dispatcher for the given sinks
func New(cfg Config, deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatch")
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	d := &Dispatcher{
		sinks:  deps.Sinks,
		logger: logger,
		core:   deps.Core,
	}
	d.queue = buffer.NewRing(queueSize,
		buffer.WithOverflowPolicy[Record](buffer.DropOldest),
		buffer.WithDropCallback(func(Record) {
			if d.core != nil {
				d.core.RecordsDropped.WithLabelValues("queue").Inc()
			}
		}))
	return d
}

// Process queues a payload for delivery. Fire-and-forget: delivery
// failures are logged by the worker, never surfaced to the producer.
func (d *Dispatcher) Process(payload any, typeTag string) {
	if !d.running.Load() {
		if d.core != nil {
			d.core.RecordsDropped.WithLabelValues("queue").Inc()
		}
		return
	}
	_ = d.queue.Write(newRecord(payload, typeTag))
}

// Start launches the delivery worker
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.running.Swap(true) {
		return nil
	}

	d.shutdown = make(chan struct{})
	d.done = make(chan struct{})

	go d.drainLoop(ctx)

	d.logger.Info("Dispatcher started", "sinks", len(d.sinks))
	return nil
}

// Stop drains remaining records and shuts the worker down
func (d *Dispatcher) Stop(timeout time.Duration) error {
	if !d.running.Swap(false) {
		return nil
	}
	close(d.shutdown)

	select {
	case <-d.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"dispatch", "Stop", "drain")
	}
}

func (d *Dispatcher) drainLoop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drain(ctx)
			return
		case <-d.shutdown:
			d.drain(ctx)
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain empties the queue, delivering each record to every sink
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		batch := d.queue.ReadBatch(drainBatchSize)
		if len(batch) == 0 {
			return
		}
		for _, record := range batch {
			d.deliver(ctx, record)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, record Record) {
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, record); err != nil {
			d.logger.Warn("Sink delivery failed",
				"sink", sink.Name(),
				"type", record.Type,
				"record_id", record.ID,
				"error", err)
			if d.core != nil {
				d.core.RecordsDropped.WithLabelValues(sink.Name()).Inc()
			}
			continue
		}
		if d.core != nil {
			d.core.RecordsDispatched.WithLabelValues(sink.Name(), record.Type).Inc()
		}
	}
}
