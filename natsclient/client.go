// Package natsclient provides a thin client for managing the NATS connection
// used by the dispatcher and the configuration manager.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/devstream/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Error variables
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
)

// Client manages a NATS connection with reconnect handling
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string

	reconnects atomic.Int32

	mu     sync.RWMutex
	closed atomic.Bool
}

// Option is a functional option for configuring the Client
type Option func(*Client)

// WithMaxReconnects sets the maximum reconnection attempts (-1 for infinite)
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// WithTimeout sets the connect timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClientName sets the client name reported to the server
func WithClientName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// WithLogger sets a structured logger for connection events
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new NATS client; Connect must be called before use
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapConfig(
			fmt.Errorf("empty NATS url"), "natsclient", "NewClient", "url validation")
	}

	c := &Client{
		url:           url,
		logger:        slog.Default().With("component", "natsclient"),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
		clientName:    "devstream",
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// URL returns the configured server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	if s, ok := c.status.Load().(ConnectionStatus); ok {
		return s
	}
	return StatusDisconnected
}

// IsHealthy reports whether the connection is usable
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// GetConnection returns the underlying NATS connection (nil before Connect)
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Connect establishes the NATS connection
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(errors.ErrShuttingDown, "natsclient", "Connect", "state check")
	}

	c.status.Store(StatusConnecting)

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(StatusConnected)
			c.reconnects.Add(1)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.status.Store(StatusDisconnected)
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "natsclient", "Connect", "server connection")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "natsclient", "Connect", "jetstream context")
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	c.status.Store(StatusConnected)
	c.logger.Info("Connected to NATS", "url", conn.ConnectedUrl())

	_ = ctx // connection handshake is governed by nats.Timeout

	return nil
}

// Publish sends data to a subject
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "natsclient", "Publish", "connection check")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish")
	}
	return nil
}

// Subscribe registers a handler for a subject; subscriptions are tracked
// and drained on Close
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.WrapTransient(ErrNotConnected, "natsclient", "Subscribe", "connection check")
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Subscribe", fmt.Sprintf("subscribe %s", subject))
	}

	c.subs = append(c.subs, sub)
	return nil
}

// CreateKeyValueBucket creates or opens a JetStream KV bucket
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "natsclient", "CreateKeyValueBucket", "jetstream check")
	}

	kv, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		// Bucket may already exist with compatible settings
		if existing, getErr := js.KeyValue(ctx, cfg.Bucket); getErr == nil {
			return existing, nil
		}
		return nil, errors.WrapTransient(err, "natsclient", "CreateKeyValueBucket",
			fmt.Sprintf("bucket %s", cfg.Bucket))
	}
	return kv, nil
}

// Close drains subscriptions and closes the connection; safe to call twice
func (c *Client) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
		c.conn = nil
		c.js = nil
	}

	c.status.Store(StatusDisconnected)
	return nil
}
