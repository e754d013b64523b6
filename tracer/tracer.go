// Package tracer provides debug tracing of payloads to local files.
// A nil *Tracer is a valid disabled tracer: Write on it is a no-op, so
// callers never need to guard trace calls.
package tracer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/pkg/buffer"
)

const (
	defaultQueueSize       = 256
	defaultWritesPerSecond = 10
	flushInterval          = 250 * time.Millisecond
)

// Config controls tracing for one traced source
type Config struct {
	Enable          bool   `json:"enable" yaml:"enable"`
	Path            string `json:"path" yaml:"path"`
	QueueSize       int    `json:"queueSize" yaml:"queueSize"`
	WritesPerSecond int    `json:"writesPerSecond" yaml:"writesPerSecond"`
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Tracer appends rate-limited JSON lines to a trace file. Writes are
// non-blocking: a full queue drops the oldest entry.
type Tracer struct {
	path    string
	logger  *slog.Logger
	queue   *buffer.Ring[entry]
	limiter *rate.Limiter

	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool
	mu       sync.Mutex
}

// FromConfig builds a tracer, or nil when tracing is disabled
func FromConfig(cfg Config, logger *slog.Logger) *Tracer {
	if !cfg.Enable || cfg.Path == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default().With("component", "tracer")
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	wps := cfg.WritesPerSecond
	if wps <= 0 {
		wps = defaultWritesPerSecond
	}
	return &Tracer{
		path:    cfg.Path,
		logger:  logger.With("trace_path", cfg.Path),
		queue:   buffer.NewRing[entry](queueSize),
		limiter: rate.NewLimiter(rate.Limit(wps), wps),
	}
}

// Write queues a payload for tracing. Safe on a nil tracer and never
// blocks the caller.
func (t *Tracer) Write(data any) {
	if t == nil || !t.running.Load() {
		return
	}
	_ = t.queue.Write(entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	})
}

// Start opens the trace file and begins draining the queue
func (t *Tracer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o750); err != nil {
		return errors.WrapConfig(err, "tracer", "Start", "trace directory")
	}
	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return errors.WrapConfig(err, "tracer", "Start", "trace file open")
	}

	t.shutdown = make(chan struct{})
	t.done = make(chan struct{})
	t.running.Store(true)

	go t.drainLoop(ctx, file)
	return nil
}

// Stop flushes remaining entries and closes the trace file
func (t *Tracer) Stop(timeout time.Duration) error {
	if t == nil || !t.running.Load() {
		return nil
	}
	t.running.Store(false)

	t.mu.Lock()
	close(t.shutdown)
	done := t.done
	t.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"tracer", "Stop", "drain")
	}
}

func (t *Tracer) drainLoop(ctx context.Context, file *os.File) {
	defer close(t.done)
	defer func() { _ = file.Close() }()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.flush(file)
			return
		case <-t.shutdown:
			t.flush(file)
			return
		case <-ticker.C:
			t.flush(file)
		}
	}
}

// flush writes queued entries up to the rate limit. Entries beyond the
// limit stay queued for the next tick.
func (t *Tracer) flush(file *os.File) {
	enc := json.NewEncoder(file)
	for t.limiter.Allow() {
		e, ok := t.queue.Read()
		if !ok {
			return
		}
		if err := enc.Encode(e); err != nil {
			t.logger.Warn("Trace write failed", "error", err)
			return
		}
	}
}
