package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/natsclient"
)

const (
	kvBucket    = "devstream_config"
	kvConfigKey = "config"
)

// Update carries a configuration change to a subscriber
type Update struct {
	Config *Config
}

// Manager holds the live configuration and distributes runtime updates.
// The declared configuration is seeded into a NATS KV bucket; writes to the
// bucket (from tooling or another collector instance) become validated
// updates fanned out to subscribers.
type Manager struct {
	current atomic.Pointer[Config]
	client  *natsclient.Client
	kv      jetstream.KeyValue
	logger  *slog.Logger

	mu          sync.Mutex
	subscribers []chan Update

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// NewManager creates a configuration manager seeded with the given config.
// The NATS client is optional; without it the configuration is static.
func NewManager(cfg *Config, client *natsclient.Client, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "config", "NewManager", "initial config")
	}
	if logger == nil {
		logger = slog.Default().With("component", "config-manager")
	}

	m := &Manager{
		client: client,
		logger: logger,
	}
	m.current.Store(cfg)
	return m, nil
}

// Current returns the latest validated configuration
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnChange subscribes to configuration updates. The current configuration
// is delivered immediately; later deliveries are non-blocking, so a slow
// subscriber only misses intermediate versions, never the latest poll of
// the channel.
func (m *Manager) OnChange() <-chan Update {
	ch := make(chan Update, 1)
	ch <- Update{Config: m.Current()}

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// Start seeds the KV bucket and begins watching it for updates. Without a
// NATS client, Start is a no-op and the configuration stays static.
func (m *Manager) Start(ctx context.Context) error {
	if m.client == nil {
		m.logger.Info("No NATS client, runtime configuration updates disabled")
		return nil
	}

	kv, err := m.client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      kvBucket,
		Description: "devstream runtime configuration",
		History:     5,
	})
	if err != nil {
		return errors.WrapNetwork(err, "config", "Start", "KV bucket")
	}
	m.kv = kv

	if err := m.seed(ctx); err != nil {
		m.logger.Warn("Failed to seed configuration to KV", "error", err)
	}

	watcher, err := kv.Watch(ctx, kvConfigKey, jetstream.UpdatesOnly())
	if err != nil {
		return errors.WrapNetwork(err, "config", "Start", "KV watch")
	}

	m.shutdownCh = make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watchLoop(ctx, watcher)
	}()

	return nil
}

// Stop ends the KV watch and closes subscriber channels
func (m *Manager) Stop(timeout time.Duration) error {
	if m.stopped.Swap(true) {
		return nil
	}
	if m.shutdownCh != nil {
		close(m.shutdownCh)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"config", "Stop", "watcher shutdown")
	}

	m.mu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.mu.Unlock()
	return nil
}

// seed writes the declared configuration into the bucket when absent
func (m *Manager) seed(ctx context.Context) error {
	if _, err := m.kv.Get(ctx, kvConfigKey); err == nil {
		return nil
	}
	data, err := json.Marshal(m.Current())
	if err != nil {
		return err
	}
	_, err = m.kv.Put(ctx, kvConfigKey, data)
	return err
}

func (m *Manager) watchLoop(ctx context.Context, watcher jetstream.KeyWatcher) {
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdownCh:
			return
		case kve, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if kve == nil || kve.Operation() != jetstream.KeyValuePut {
				continue
			}
			m.handleUpdate(kve.Value())
		}
	}
}

// handleUpdate validates an incoming configuration and fans it out. An
// invalid document is rejected and the running configuration kept.
func (m *Manager) handleUpdate(data []byte) {
	if m.stopped.Load() {
		return
	}

	cfg, err := Parse(data)
	if err != nil {
		m.logger.Error("Rejected invalid configuration update", "error", err)
		return
	}

	m.current.Store(cfg)
	m.logger.Info("Configuration updated", "listeners", len(cfg.Listeners))

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		if m.stopped.Load() {
			return
		}
		// Drop the stale pending update so the channel always holds the
		// newest configuration
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- Update{Config: cfg}:
		default:
		}
	}
}
