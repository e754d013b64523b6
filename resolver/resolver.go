package resolver

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/metric"
	"github.com/c360/devstream/normalize"
)

// EndpointLoader loads a named device endpoint. Satisfied by device.Loader.
type EndpointLoader interface {
	Load(ctx context.Context, name string) (any, error)
}

// Deps holds runtime dependencies for the resolver
type Deps struct {
	Loader EndpointLoader
	Logger *slog.Logger
	Core   *metric.CoreMetrics // optional
}

// Resolver evaluates a Schema against an endpoint loader
type Resolver struct {
	loader EndpointLoader
	logger *slog.Logger
	core   *metric.CoreMetrics
}

// New creates a resolver for one collection cycle
func New(deps Deps) *Resolver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "resolver")
	}
	return &Resolver{
		loader: deps.Loader,
		logger: logger,
		core:   deps.Core,
	}
}

// Run evaluates the schema: context groups strictly in declared order, each
// group's results merged into the shared context before the next; then all
// declared properties concurrently, reassembled in declaration order.
//
// Property-scoped failures (bad predicate, failed endpoint fetch) drop that
// property and are logged. Cycle-scoped failures (auth) abort the run with
// no partial result.
func (r *Resolver) Run(ctx context.Context, schema Schema) (*Collected, error) {
	ec := make(Context)

	for _, group := range schema.Context {
		if err := r.runContextGroup(ctx, group, ec); err != nil {
			return nil, err
		}
	}

	return r.runStatsPhase(ctx, schema.Properties, ec)
}

// runContextGroup resolves one context group and merges its entries into
// the shared context. Any failure in the context phase aborts the cycle:
// later conditionals cannot be trusted without their dependencies.
func (r *Resolver) runContextGroup(ctx context.Context, group ContextGroup, ec Context) error {
	type resolved struct {
		name  string
		value any
	}

	results := make(chan resolved, len(group.Entries))
	g, gctx := errgroup.WithContext(ctx)

	for name, prop := range group.Entries {
		name, prop := name, prop
		g.Go(func() error {
			value, ok, err := r.resolveProperty(gctx, ec, prop)
			if err != nil {
				return errors.Wrap(err, "resolver", "runContextGroup", "context entry "+name)
			}
			if ok {
				results <- resolved{name: name, value: value}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	close(results)

	for res := range results {
		ec[res.name] = res.value
	}
	return nil
}

// runStatsPhase resolves all declared properties concurrently against the
// completed context and restores declaration order in the output
func (r *Resolver) runStatsPhase(ctx context.Context, declared []Declared, ec Context) (*Collected, error) {
	type outcome struct {
		value any
		ok    bool
		err   error
	}

	results := make([]outcome, len(declared))
	g, gctx := errgroup.WithContext(ctx)

	for i, decl := range declared {
		i, decl := i, decl
		g.Go(func() error {
			value, ok, err := r.resolveProperty(gctx, ec, decl.Property)
			results[i] = outcome{value: value, ok: ok, err: err}
			if err != nil && errors.IsFatal(err) {
				// Auth and other fatal errors abort the whole cycle
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := newCollected()
	for i, decl := range declared {
		res := results[i]
		switch {
		case res.err != nil:
			r.logger.Warn("Property resolution failed",
				"property", decl.Name,
				"error", res.err)
			r.countProperty("error")
		case !res.ok:
			r.countProperty("disabled")
		default:
			out.set(decl.Name, res.value)
			r.countProperty("ok")
		}
	}
	return out, nil
}

func (r *Resolver) countProperty(status string) {
	if r.core != nil {
		r.core.PropertiesResolved.WithLabelValues(status).Inc()
	}
}

// resolveProperty runs the full per-property pipeline: conditional walk,
// key templating, endpoint load, normalization. The ok result is false when
// the property resolved to a disabled state (no collected value).
// Resolution is pure given the context: identical context yields an
// identical resolved property.
func (r *Resolver) resolveProperty(ctx context.Context, ec Context, prop *Property) (any, bool, error) {
	terminal, err := resolveConditional(prop, ec)
	if err != nil {
		return nil, false, err
	}
	if terminal == nil || terminal.Disabled {
		return nil, false, nil
	}

	key, err := renderKey(terminal.Key, ec)
	if err != nil {
		return nil, false, err
	}

	endpointName, path := splitKey(key)

	data, err := r.loader.Load(ctx, endpointName)
	if err != nil {
		return nil, false, err
	}

	if !terminal.normalizeEnabled() {
		return data, true, nil
	}

	value, err := normalize.Data(data, normalize.DataOptions{
		Key:                 path,
		FilterByKeys:        terminal.FilterKeys,
		RenameKeysByPattern: terminal.RenameKeys,
		ConvertArrayToMap:   terminal.ConvertArrayToMap,
		RunCustomFunction:   terminal.RunFunction,
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "resolver", "resolveProperty", "normalization")
	}
	return value, true, nil
}

// resolveConditional walks the if/then/else chain depth-first until a
// property with no conditional remains, returning a fresh copy of that
// terminal node. A selected undefined branch resolves to nil (disabled).
func resolveConditional(prop *Property, ec Context) (*Property, error) {
	current := prop
	for current != nil && current.If != nil {
		satisfied, err := evaluateBlock(current.If, ec)
		if err != nil {
			return nil, err
		}
		if satisfied {
			current = current.Then
		} else {
			current = current.Else
		}
	}
	if current == nil {
		return nil, nil
	}
	return current.deepCopy(), nil
}

// splitKey separates the endpoint lookup name from the in-document path
func splitKey(key string) (endpoint, path string) {
	if idx := strings.Index(key, "/"); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return key, ""
}
