// Package collect drives the periodic polling cycle: authenticate against
// the device, resolve the declared property schema through a fresh endpoint
// loader, and hand the collected stats to dispatch.
package collect

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/devstream/device"
	"github.com/c360/devstream/health"
	"github.com/c360/devstream/metric"
	"github.com/c360/devstream/resolver"
)

// Processor consumes collected stat payloads. Satisfied by
// dispatch.Dispatcher.
type Processor interface {
	Process(payload any, typeTag string)
}

// cycleConfig is the per-cycle snapshot of the polling declaration
type cycleConfig struct {
	target    device.Target
	endpoints []device.Endpoint
	schema    resolver.Schema
	interval  time.Duration
}

// Deps holds runtime dependencies for the runner
type Deps struct {
	Processor  Processor
	Logger     *slog.Logger
	Core       *metric.CoreMetrics // optional
	Health     *health.Monitor     // optional
	HTTPClient *http.Client        // optional, for tests
}

// Runner executes collection cycles on a fixed interval. Updating the
// configuration takes effect on the next cycle; a cycle in flight always
// runs against a consistent snapshot.
type Runner struct {
	processor  Processor
	logger     *slog.Logger
	core       *metric.CoreMetrics
	health     *health.Monitor
	httpClient *http.Client

	mu  sync.Mutex
	cfg cycleConfig

	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
	reload   chan struct{}
}

// NewRunner creates a collection runner
func NewRunner(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "collect")
	}
	return &Runner{
		processor:  deps.Processor,
		logger:     logger,
		core:       deps.Core,
		health:     deps.Health,
		httpClient: deps.HTTPClient,
		reload:     make(chan struct{}, 1),
	}
}

// Update replaces the polling declaration. The interval change restarts
// the ticker immediately; everything else applies from the next cycle.
func (r *Runner) Update(target device.Target, endpoints []device.Endpoint, schema resolver.Schema, interval time.Duration) {
	r.mu.Lock()
	r.cfg = cycleConfig{
		target:    target,
		endpoints: endpoints,
		schema:    schema,
		interval:  interval,
	}
	r.mu.Unlock()

	select {
	case r.reload <- struct{}{}:
	default:
	}
}

func (r *Runner) snapshot() cycleConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Start launches the polling loop. The first cycle runs immediately.
func (r *Runner) Start(ctx context.Context) error {
	if r.running.Swap(true) {
		return nil
	}
	r.shutdown = make(chan struct{})
	r.done = make(chan struct{})

	go r.loop(ctx)
	return nil
}

// Stop halts the polling loop, letting an in-flight cycle finish
func (r *Runner) Stop(timeout time.Duration) error {
	if !r.running.Swap(false) {
		return nil
	}
	close(r.shutdown)

	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
		return nil
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.RunOnce(ctx)

	for {
		interval := r.snapshot().interval
		if interval <= 0 {
			interval = time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case <-r.reload:
			// Re-arm the ticker with the new interval
		case <-time.After(interval):
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single collection cycle. A fresh loader per cycle
// means per-endpoint caching lives exactly as long as the cycle. Any
// cycle-scoped failure produces no partial output.
func (r *Runner) RunOnce(ctx context.Context) {
	cfg := r.snapshot()
	if len(cfg.schema.Properties) == 0 && len(cfg.schema.Context) == 0 {
		return
	}

	cycleID := uuid.NewString()
	logger := r.logger.With("cycle_id", cycleID)
	started := time.Now()

	err := r.runCycle(ctx, cfg, logger)

	elapsed := time.Since(started)
	if r.core != nil {
		r.core.CycleDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		if r.core != nil {
			r.core.CyclesTotal.WithLabelValues("error").Inc()
		}
		r.health.UpdateUnhealthy("collect", err.Error())
		logger.Error("Collection cycle failed", "error", err, "elapsed", elapsed)
		return
	}
	if r.core != nil {
		r.core.CyclesTotal.WithLabelValues("ok").Inc()
	}
	r.health.UpdateHealthy("collect", "Last cycle completed")
	logger.Info("Collection cycle complete", "elapsed", elapsed)
}

func (r *Runner) runCycle(ctx context.Context, cfg cycleConfig, logger *slog.Logger) error {
	loader := device.NewLoader(device.Deps{
		Target:     cfg.target,
		HTTPClient: r.httpClient,
		Logger:     logger,
		Core:       r.core,
	})
	loader.SetEndpoints(cfg.endpoints)

	if err := loader.Auth(ctx); err != nil {
		return err
	}

	res := resolver.New(resolver.Deps{
		Loader: loader,
		Logger: logger,
		Core:   r.core,
	})
	collected, err := res.Run(ctx, cfg.schema)
	if err != nil {
		return err
	}

	r.processor.Process(collected, "stats")
	return nil
}
