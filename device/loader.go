package device

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/metric"
)

// Fixed client identifier sent with every remote request
const clientIdentifier = "devstream-collector"

// Target identifies the device the loader talks to
type Target struct {
	Host       string
	Port       int
	Protocol   string // "http" or "https", defaults to "https"
	Username   string
	Passphrase string

	// AllowSelfSigned skips TLS certificate verification; device
	// management interfaces commonly present self-signed certificates
	AllowSelfSigned bool
}

// local reports whether the target is the loopback/local device
func (t Target) local() bool {
	switch t.Host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	if ip := net.ParseIP(t.Host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// baseURL returns the scheme://host:port prefix for requests
func (t Target) baseURL() string {
	proto := t.Protocol
	if proto == "" {
		proto = "https"
	}
	host := t.Host
	if host == "" {
		host = "localhost"
	}
	port := t.Port
	if port == 0 {
		port = 443
		if proto == "http" {
			port = 80
		}
	}
	return fmt.Sprintf("%s://%s:%d", proto, host, port)
}

// Deps holds runtime dependencies for the endpoint loader
type Deps struct {
	Target     Target
	HTTPClient *http.Client // optional; a default client is built when nil
	Logger     *slog.Logger
	Core       *metric.CoreMetrics // optional
}

// entry is the per-endpoint-name cache state machine: pending fetch with an
// ordered waiter list, then a terminal (data, err) result
type entry struct {
	mu      sync.Mutex
	pending bool
	done    bool
	waiters []func(any, error)
	data    any
	err     error
}

// Loader fetches and caches endpoint responses for one collection cycle.
// Loaders are not reused across cycles, so cached results never go stale
// relative to the cycle that observes them.
type Loader struct {
	target Target
	client *http.Client
	logger *slog.Logger
	core   *metric.CoreMetrics

	mu        sync.Mutex
	endpoints map[string]Endpoint
	entries   map[string]*entry

	authMu sync.Mutex
	token  string
	authed bool
}

// NewLoader creates a loader for a single collection cycle
func NewLoader(deps Deps) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "endpoint-loader")
	}

	client := deps.HTTPClient
	if client == nil {
		transport := &http.Transport{}
		if deps.Target.AllowSelfSigned {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		}
		client = &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		}
	}

	return &Loader{
		target:    deps.Target,
		client:    client,
		logger:    logger,
		core:      deps.Core,
		endpoints: make(map[string]Endpoint),
		entries:   make(map[string]*entry),
	}
}

// SetEndpoints replaces the endpoint catalog. Must be called before Load.
func (l *Loader) SetEndpoints(endpoints []Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.endpoints = make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		l.endpoints[ep.Key()] = ep
	}
}

// Auth establishes a credential token for the device. Loopback targets skip
// network auth entirely; remote targets require username and passphrase.
func (l *Loader) Auth(ctx context.Context) error {
	l.authMu.Lock()
	defer l.authMu.Unlock()

	if l.authed {
		return nil
	}

	if l.target.local() {
		// Local management sockets trust the calling process
		l.authed = true
		return nil
	}

	if l.target.Username == "" || l.target.Passphrase == "" {
		return errors.WrapAuth(errors.ErrMissingCredentials, "loader", "Auth", "credential check")
	}

	body, err := json.Marshal(map[string]string{
		"username": l.target.Username,
		"password": l.target.Passphrase,
	})
	if err != nil {
		return errors.WrapAuth(err, "loader", "Auth", "login body encoding")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.target.baseURL()+"/mgmt/shared/authn/login", bytes.NewReader(body))
	if err != nil {
		return errors.WrapAuth(err, "loader", "Auth", "login request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", clientIdentifier)

	resp, err := l.client.Do(req)
	if err != nil {
		return errors.WrapAuth(fmt.Errorf("%w: %v", errors.ErrLoginFailed, err),
			"loader", "Auth", "login call")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.WrapAuth(fmt.Errorf("%w: HTTP %d", errors.ErrLoginFailed, resp.StatusCode),
			"loader", "Auth", "login call")
	}

	var login struct {
		Token struct {
			Token string `json:"token"`
		} `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return errors.WrapAuth(fmt.Errorf("%w: %v", errors.ErrLoginFailed, err),
			"loader", "Auth", "login response decoding")
	}
	if login.Token.Token == "" {
		return errors.WrapAuth(fmt.Errorf("%w: empty token", errors.ErrLoginFailed),
			"loader", "Auth", "login response decoding")
	}

	l.token = login.Token.Token
	l.authed = true
	return nil
}

type loadResult struct {
	data any
	err  error
}

// Load fetches the named endpoint, deduplicating concurrent requests.
// The first caller triggers the fetch; callers arriving before resolution
// share its outcome; callers arriving after get the cached result.
func (l *Loader) Load(ctx context.Context, name string) (any, error) {
	ch := make(chan loadResult, 1)
	l.LoadAsync(ctx, name, func(data any, err error) {
		ch <- loadResult{data: data, err: err}
	})

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "loader", "Load", "context wait")
	}
}

// LoadAsync is the callback form of Load. The callback fires exactly once
// with the same (data, err) pair every waiter for this endpoint observes,
// in the order waiters queued.
func (l *Loader) LoadAsync(ctx context.Context, name string, callback func(any, error)) {
	l.mu.Lock()
	ep, declared := l.endpoints[name]
	if !declared {
		l.mu.Unlock()
		callback(nil, errors.WrapConfig(
			fmt.Errorf("%w: %q", errors.ErrEndpointNotFound, name),
			"loader", "LoadAsync", "endpoint lookup"))
		return
	}

	e, exists := l.entries[name]
	if !exists {
		e = &entry{}
		l.entries[name] = e
	}
	l.mu.Unlock()

	e.mu.Lock()
	if e.done {
		data, err := e.data, e.err
		e.mu.Unlock()
		if l.core != nil {
			l.core.EndpointFetches.WithLabelValues("cached").Inc()
		}
		callback(data, err)
		return
	}

	e.waiters = append(e.waiters, callback)
	first := !e.pending
	e.pending = true
	e.mu.Unlock()

	if first {
		go l.resolve(ctx, name, ep, e)
	}
}

// resolve performs the fetch and fans the outcome out to every waiter
func (l *Loader) resolve(ctx context.Context, name string, ep Endpoint, e *entry) {
	data, err := l.fetchEndpoint(ctx, ep)
	if err != nil {
		err = errors.WrapNetwork(err, "loader", "Load", fmt.Sprintf("endpoint %q", name))
	}

	if l.core != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		l.core.EndpointFetches.WithLabelValues(status).Inc()
	}

	e.mu.Lock()
	e.done = true
	e.data = data
	e.err = err
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, cb := range waiters {
		cb(data, err)
	}
}

// fetchEndpoint performs the primary fetch plus any configured expansion
func (l *Loader) fetchEndpoint(ctx context.Context, ep Endpoint) (any, error) {
	data, err := l.fetch(ctx, ep.Path+ep.Suffix, ep.Body)
	if err != nil {
		return nil, err
	}

	if len(ep.ExpandReferences) > 0 {
		l.expandReferences(ctx, ep, data)
	}

	return data, nil
}

// fetch issues one request against the device and decodes the JSON response
func (l *Loader) fetch(ctx context.Context, path string, body map[string]any) (any, error) {
	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		method = http.MethodPost
		reader = bytes.NewReader(encoded)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, method, l.target.baseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Remote targets carry the bearer token and client identifier;
	// loopback requests carry neither
	if !l.target.local() {
		req.Header.Set("Authorization", "Bearer "+l.token)
		req.Header.Set("X-Client-Id", clientIdentifier)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", path, err)
	}
	return data, nil
}

// expandReferences follows links inside collection items and merges the
// secondary responses back in by index. Failures are per-item best-effort:
// a failed secondary fetch leaves that item's reference unexpanded and
// never fails the primary response or sibling items.
func (l *Loader) expandReferences(ctx context.Context, ep Endpoint, data any) {
	root, ok := data.(map[string]any)
	if !ok {
		return
	}

	for field, opts := range ep.ExpandReferences {
		itemsField := opts.ItemsField
		if itemsField == "" {
			itemsField = "items"
		}

		items, ok := root[itemsField].([]any)
		if !ok {
			continue
		}

		var wg sync.WaitGroup
		for i, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ref, ok := item[field].(map[string]any)
			if !ok {
				continue
			}
			link, ok := ref["link"].(string)
			if !ok || link == "" {
				continue
			}

			path := referencePath(link, opts)

			wg.Add(1)
			go func(index int, item map[string]any, path string) {
				defer wg.Done()
				expanded, err := l.fetch(ctx, path, nil)
				if err != nil {
					// Best-effort merge: leave this item unexpanded
					l.logger.Debug("Reference expansion failed",
						"endpoint", ep.Key(),
						"field", field,
						"index", index,
						"path", path,
						"error", err)
					return
				}
				item[field] = expanded
			}(i, item, path)
		}
		wg.Wait()
	}
}

// referencePath converts an absolute device hyperlink into a relative path.
// Devices return links with scheme and host set to a loopback placeholder,
// which must be stripped before reuse.
func referencePath(link string, opts ExpandOptions) string {
	path := link
	if idx := strings.Index(path, "://"); idx >= 0 {
		rest := path[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			path = rest[slash:]
		} else {
			path = "/"
		}
	}
	if opts.TruncateQuery {
		if q := strings.Index(path, "?"); q >= 0 {
			path = path[:q]
		}
	}
	return path + opts.Suffix
}
