package collect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/devstream/device"
	"github.com/c360/devstream/resolver"
)

type captureProcessor struct {
	mu       sync.Mutex
	payloads []any
	tags     []string
}

func (c *captureProcessor) Process(payload any, typeTag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	c.tags = append(c.tags, typeTag)
}

func (c *captureProcessor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

// deviceServer fakes the management API on loopback, so no auth is needed
func deviceServer(t *testing.T, handlers map[string]any) (device.Target, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := handlers[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return device.Target{Host: "127.0.0.1", Port: port, Protocol: "http"}, server
}

func TestRunOnceCollectsAndDispatches(t *testing.T) {
	target, _ := deviceServer(t, map[string]any{
		"/mgmt/tmos/version": map[string]any{"version": "14.1.0"},
		"/mgmt/tmos/stats":   map[string]any{"cpu": float64(37)},
	})

	proc := &captureProcessor{}
	r := NewRunner(Deps{Processor: proc})
	r.Update(target,
		[]device.Endpoint{
			{Name: "versionEp", Path: "/mgmt/tmos/version"},
			{Name: "sysStats", Path: "/mgmt/tmos/stats"},
		},
		resolver.Schema{
			Context: []resolver.ContextGroup{
				{Entries: map[string]*resolver.Property{
					"deviceVersion": {Key: "versionEp/version"},
				}},
			},
			Properties: []resolver.Declared{
				{Name: "cpu", Property: &resolver.Property{
					If:   resolver.PredicateBlock{"deviceVersionGreaterOrEqual": "14.0"},
					Then: &resolver.Property{Key: "sysStats/cpu"},
				}},
			},
		},
		time.Minute)

	r.RunOnce(context.Background())

	require.Equal(t, 1, proc.count())
	assert.Equal(t, []string{"stats"}, proc.tags)

	collected, ok := proc.payloads[0].(*resolver.Collected)
	require.True(t, ok)
	v, ok := collected.Get("cpu")
	require.True(t, ok)
	assert.Equal(t, float64(37), v)
}

func TestRunOnceFailedCycleDispatchesNothing(t *testing.T) {
	target, _ := deviceServer(t, map[string]any{})

	proc := &captureProcessor{}
	r := NewRunner(Deps{Processor: proc})
	r.Update(target,
		[]device.Endpoint{{Name: "versionEp", Path: "/mgmt/tmos/version"}},
		resolver.Schema{
			Context: []resolver.ContextGroup{
				{Entries: map[string]*resolver.Property{
					"deviceVersion": {Key: "versionEp/version"},
				}},
			},
			Properties: []resolver.Declared{
				{Name: "cpu", Property: &resolver.Property{Key: "versionEp/cpu"}},
			},
		},
		time.Minute)

	r.RunOnce(context.Background())

	assert.Equal(t, 0, proc.count(), "a failed context phase yields no data for the cycle")
}

func TestRunOnceEmptySchemaIsNoop(t *testing.T) {
	proc := &captureProcessor{}
	r := NewRunner(Deps{Processor: proc})
	r.RunOnce(context.Background())
	assert.Equal(t, 0, proc.count())
}

func TestStartRunsImmediately(t *testing.T) {
	target, _ := deviceServer(t, map[string]any{
		"/mgmt/tmos/stats": map[string]any{"cpu": float64(1)},
	})

	proc := &captureProcessor{}
	r := NewRunner(Deps{Processor: proc})
	r.Update(target,
		[]device.Endpoint{{Name: "sysStats", Path: "/mgmt/tmos/stats"}},
		resolver.Schema{Properties: []resolver.Declared{
			{Name: "cpu", Property: &resolver.Property{Key: "sysStats/cpu"}},
		}},
		time.Hour)

	require.NoError(t, r.Start(context.Background()))
	defer func() { _ = r.Stop(2 * time.Second) }()

	require.Eventually(t, func() bool {
		return proc.count() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartStopIdempotent(t *testing.T) {
	r := NewRunner(Deps{Processor: &captureProcessor{}})
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(time.Second))
	require.NoError(t, r.Stop(time.Second))
}
