package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/devstream/errors"
)

// fakeLoader serves canned endpoint responses with optional per-endpoint
// delays to exercise completion-order independence
type fakeLoader struct {
	mu        sync.Mutex
	responses map[string]any
	failures  map[string]error
	delays    map[string]time.Duration
	loads     atomic.Int32
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		responses: make(map[string]any),
		failures:  make(map[string]error),
		delays:    make(map[string]time.Duration),
	}
}

func (f *fakeLoader) Load(ctx context.Context, name string) (any, error) {
	f.loads.Add(1)

	f.mu.Lock()
	delay := f.delays[name]
	err := f.failures[name]
	data, ok := f.responses[name]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("endpoint %q not stubbed", name)
	}
	return data, nil
}

func boolPtr(b bool) *bool { return &b }

func TestConditionalResolution(t *testing.T) {
	prop := &Property{
		If:   PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
		Then: &Property{Key: "a"},
		Else: &Property{Key: "b"},
	}

	terminal, err := resolveConditional(prop, Context{"deviceVersion": "14.1.0"})
	require.NoError(t, err)
	assert.Equal(t, "a", terminal.Key)

	terminal, err = resolveConditional(prop, Context{"deviceVersion": "13.9.0"})
	require.NoError(t, err)
	assert.Equal(t, "b", terminal.Key)
}

func TestConditionalNested(t *testing.T) {
	prop := &Property{
		If: PredicateBlock{"deviceVersionGreaterOrEqual": "13.0"},
		Then: &Property{
			If:   PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
			Then: &Property{Key: "newest"},
			Else: &Property{Key: "middle"},
		},
		Else: &Property{Key: "oldest"},
	}

	for _, tt := range []struct {
		version string
		want    string
	}{
		{"14.1", "newest"},
		{"13.5", "middle"},
		{"12.0", "oldest"},
	} {
		terminal, err := resolveConditional(prop, Context{"deviceVersion": tt.version})
		require.NoError(t, err)
		assert.Equal(t, tt.want, terminal.Key, "version %s", tt.version)
	}
}

func TestConditionalUndefinedBranchDisables(t *testing.T) {
	prop := &Property{
		If:   PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
		Then: &Property{Key: "a"},
		// No Else: selecting it disables the property
	}

	terminal, err := resolveConditional(prop, Context{"deviceVersion": "13.0"})
	require.NoError(t, err)
	assert.Nil(t, terminal)
}

func TestConditionalUnknownPredicate(t *testing.T) {
	prop := &Property{
		If:   PredicateBlock{"noSuchPredicate": true},
		Then: &Property{Key: "a"},
	}

	_, err := resolveConditional(prop, Context{})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.ErrorIs(t, err, errors.ErrUnknownPredicate)
}

func TestConditionalMissingDeviceVersion(t *testing.T) {
	prop := &Property{
		If:   PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
		Then: &Property{Key: "a"},
	}

	_, err := resolveConditional(prop, Context{})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestConditionalReturnsFreshCopy(t *testing.T) {
	then := &Property{Key: "a", FilterKeys: []string{"x"}}
	prop := &Property{
		If:   PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
		Then: then,
	}

	terminal, err := resolveConditional(prop, Context{"deviceVersion": "14.0"})
	require.NoError(t, err)

	terminal.FilterKeys[0] = "mutated"
	assert.Equal(t, "x", then.FilterKeys[0], "schema node must not be aliased")
}

func TestRenderKey(t *testing.T) {
	ec := Context{"deviceVersion": "14.1.0"}

	key, err := renderKey("sys/version/{{.deviceVersion}}/stats", ec)
	require.NoError(t, err)
	assert.Equal(t, "sys/version/14.1.0/stats", key)

	// Untemplated keys pass through
	key, err = renderKey("sys/clock", ec)
	require.NoError(t, err)
	assert.Equal(t, "sys/clock", key)

	// Undefined variables fail with a config error
	_, err = renderKey("sys/{{.unknownVar}}", ec)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestSplitKey(t *testing.T) {
	endpoint, path := splitKey("sysStats/entries/clientside")
	assert.Equal(t, "sysStats", endpoint)
	assert.Equal(t, "entries/clientside", path)

	endpoint, path = splitKey("sysStats")
	assert.Equal(t, "sysStats", endpoint)
	assert.Equal(t, "", path)
}

func TestRunOutputOrdering(t *testing.T) {
	loader := newFakeLoader()
	loader.responses["epA"] = map[string]any{"v": "first"}
	loader.responses["epB"] = map[string]any{"v": "second"}
	loader.responses["epC"] = map[string]any{"v": "third"}
	// a resolves last, c first
	loader.delays["epA"] = 60 * time.Millisecond
	loader.delays["epB"] = 30 * time.Millisecond

	r := New(Deps{Loader: loader})
	out, err := r.Run(context.Background(), Schema{
		Properties: []Declared{
			{Name: "a", Property: &Property{Key: "epA/v"}},
			{Name: "b", Property: &Property{Key: "epB/v"}},
			{Name: "c", Property: &Property{Key: "epC/v"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, out.Keys(),
		"output restores declaration order regardless of completion order")
}

func TestRunContextPhaseGatesStats(t *testing.T) {
	loader := newFakeLoader()
	loader.responses["versionEp"] = map[string]any{"version": "14.1.0"}
	loader.responses["newEp"] = map[string]any{"stat": float64(1)}
	loader.responses["oldEp"] = map[string]any{"stat": float64(2)}

	r := New(Deps{Loader: loader})
	out, err := r.Run(context.Background(), Schema{
		Context: []ContextGroup{
			{
				Name: "versions",
				Entries: map[string]*Property{
					"deviceVersion": {Key: "versionEp/version"},
				},
			},
		},
		Properties: []Declared{
			{Name: "stat", Property: &Property{
				If:   PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
				Then: &Property{Key: "newEp/stat"},
				Else: &Property{Key: "oldEp/stat"},
			}},
		},
	})
	require.NoError(t, err)

	v, ok := out.Get("stat")
	require.True(t, ok)
	assert.Equal(t, float64(1), v, "context-resolved version selects the then-branch")
}

func TestRunSequentialContextGroups(t *testing.T) {
	loader := newFakeLoader()
	loader.responses["versionEp"] = map[string]any{"version": "14.1.0"}
	loader.responses["provisionEp"] = map[string]any{"modules": "ltm"}
	loader.responses["statEp"] = map[string]any{"v": float64(9)}

	r := New(Deps{Loader: loader})
	out, err := r.Run(context.Background(), Schema{
		Context: []ContextGroup{
			{Entries: map[string]*Property{
				"deviceVersion": {Key: "versionEp/version"},
			}},
			// Second group depends on the first group's result
			{Entries: map[string]*Property{
				"provisioning": {
					If:   PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
					Then: &Property{Key: "provisionEp/modules"},
				},
			}},
		},
		Properties: []Declared{
			{Name: "v", Property: &Property{Key: "statEp/v"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestRunContextFailureAbortsCycle(t *testing.T) {
	loader := newFakeLoader()
	loader.failures["versionEp"] = fmt.Errorf("unreachable")

	r := New(Deps{Loader: loader})
	_, err := r.Run(context.Background(), Schema{
		Context: []ContextGroup{
			{Entries: map[string]*Property{
				"deviceVersion": {Key: "versionEp/version"},
			}},
		},
		Properties: []Declared{
			{Name: "v", Property: &Property{Key: "statEp/v"}},
		},
	})
	assert.Error(t, err, "context phase failure yields no data for the cycle")
}

func TestRunPropertyFailureIsIsolated(t *testing.T) {
	loader := newFakeLoader()
	loader.responses["okEp"] = map[string]any{"v": "fine"}
	loader.failures["brokenEp"] = fmt.Errorf("fetch failed")

	r := New(Deps{Loader: loader})
	out, err := r.Run(context.Background(), Schema{
		Properties: []Declared{
			{Name: "good", Property: &Property{Key: "okEp/v"}},
			{Name: "bad", Property: &Property{Key: "brokenEp/v"}},
		},
	})
	require.NoError(t, err, "endpoint-scoped failures do not fail the cycle")

	_, ok := out.Get("good")
	assert.True(t, ok)
	_, ok = out.Get("bad")
	assert.False(t, ok)
	assert.Equal(t, []string{"good"}, out.Keys())
}

func TestRunAuthFailureFailsCycle(t *testing.T) {
	loader := newFakeLoader()
	loader.responses["okEp"] = map[string]any{"v": "fine"}
	loader.failures["authEp"] = errors.WrapAuth(errors.ErrLoginFailed, "loader", "Auth", "login")

	r := New(Deps{Loader: loader})
	_, err := r.Run(context.Background(), Schema{
		Properties: []Declared{
			{Name: "good", Property: &Property{Key: "okEp/v"}},
			{Name: "locked", Property: &Property{Key: "authEp/v"}},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
}

func TestRunDisabledProperty(t *testing.T) {
	loader := newFakeLoader()
	loader.responses["okEp"] = map[string]any{"v": "fine"}

	r := New(Deps{Loader: loader})
	out, err := r.Run(context.Background(), Schema{
		Properties: []Declared{
			{Name: "on", Property: &Property{Key: "okEp/v"}},
			{Name: "off", Property: &Property{Key: "okEp/v", Disabled: true}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"on"}, out.Keys())
}

func TestRunNormalizationDisabled(t *testing.T) {
	loader := newFakeLoader()
	raw := map[string]any{"deep": map[string]any{"value": float64(5)}}
	loader.responses["ep"] = raw

	r := New(Deps{Loader: loader})
	out, err := r.Run(context.Background(), Schema{
		Properties: []Declared{
			{Name: "raw", Property: &Property{Key: "ep/deep/value", Normalize: boolPtr(false)}},
		},
	})
	require.NoError(t, err)

	v, ok := out.Get("raw")
	require.True(t, ok)
	assert.Equal(t, raw, v, "disabled normalization returns the loaded document as-is")
}

func TestCollectedMarshalJSONOrder(t *testing.T) {
	c := newCollected()
	c.set("zeta", 1)
	c.set("alpha", 2)
	c.set("mid", 3)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":2,"mid":3}`, string(data))
}
