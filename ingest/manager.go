package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/devstream/health"
	"github.com/c360/devstream/metric"
)

// stopTimeout bounds how long Apply waits for one listener to drain
const stopTimeout = 5 * time.Second

// runner is the lifecycle surface the manager drives. Satisfied by
// *Listener; tests substitute a fake.
type runner interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagerDeps holds runtime dependencies shared by all managed listeners
type ManagerDeps struct {
	Processor       Processor
	MetricsRegistry *metric.Registry
	Health          *health.Monitor // optional
	Logger          *slog.Logger
}

// Manager converges the running listener set onto the desired one. Apply
// calls are serialized, so overlapping configuration updates cannot
// interleave their plans.
type Manager struct {
	deps    ManagerDeps
	logger  *slog.Logger
	applyCh chan applyRequest

	current map[string]ListenerSpec
	running map[string]runner

	newRunner func(spec ListenerSpec) runner
}

type applyRequest struct {
	desired map[string]ListenerSpec
	done    chan struct{}
}

// NewManager creates a listener manager
func NewManager(deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "listener-manager")
	}
	m := &Manager{
		deps:    deps,
		logger:  logger,
		applyCh: make(chan applyRequest),
		current: make(map[string]ListenerSpec),
		running: make(map[string]runner),
	}
	m.newRunner = func(spec ListenerSpec) runner {
		return NewListener(ListenerDeps{
			Spec:            spec,
			Processor:       deps.Processor,
			MetricsRegistry: deps.MetricsRegistry,
			Logger:          deps.Logger,
		})
	}
	return m
}

// Run processes apply requests until the context is canceled, then stops
// all running listeners
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return
		case req := <-m.applyCh:
			m.apply(ctx, req.desired)
			close(req.done)
		}
	}
}

// Apply converges listeners onto the desired state. It blocks until the
// plan has been executed or the context is canceled. Per-listener failures
// are logged and skipped; they never abort the rest of the plan.
func (m *Manager) Apply(ctx context.Context, desired map[string]ListenerSpec) {
	req := applyRequest{desired: desired, done: make(chan struct{})}
	select {
	case m.applyCh <- req:
		<-req.done
	case <-ctx.Done():
	}
}

func (m *Manager) apply(ctx context.Context, desired map[string]ListenerSpec) {
	plan := Reconcile(desired, m.current)
	if plan.Empty() {
		return
	}

	m.logger.Info("Reconciling listeners",
		"start", len(plan.ToStart),
		"stop", len(plan.ToStop),
		"restart", len(plan.ToRestart))

	for _, name := range plan.ToStop {
		m.stopListener(name)
	}

	for _, spec := range plan.ToRestart {
		m.stopListener(spec.Name)
		m.startListener(ctx, spec)
	}

	for _, spec := range plan.ToStart {
		m.startListener(ctx, spec)
	}
}

func (m *Manager) startListener(ctx context.Context, spec ListenerSpec) {
	l := m.newRunner(spec)
	if err := l.Initialize(); err != nil {
		m.logger.Error("Listener rejected", "name", spec.Name, "error", err)
		m.deps.Health.UpdateUnhealthy("listener-"+spec.Name, err.Error())
		_ = l.Stop(stopTimeout)
		return
	}
	if err := l.Start(ctx); err != nil {
		m.logger.Error("Listener failed to start", "name", spec.Name, "port", spec.Port, "error", err)
		m.deps.Health.UpdateUnhealthy("listener-"+spec.Name, err.Error())
		_ = l.Stop(stopTimeout)
		return
	}
	m.running[spec.Name] = l
	m.current[spec.Name] = spec
	m.deps.Health.UpdateHealthy("listener-"+spec.Name, "Listening")
}

func (m *Manager) stopListener(name string) {
	l, ok := m.running[name]
	if !ok {
		return
	}
	if err := l.Stop(stopTimeout); err != nil {
		m.logger.Warn("Listener stop failed", "name", name, "error", err)
	}
	delete(m.running, name)
	delete(m.current, name)
	m.deps.Health.Remove("listener-" + name)
}

func (m *Manager) stopAll() {
	for name := range m.running {
		m.stopListener(name)
	}
}
