package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner tracks lifecycle calls without binding sockets
type fakeRunner struct {
	mu       sync.Mutex
	spec     ListenerSpec
	starts   int
	stops    int
	startErr error
}

func (f *fakeRunner) Initialize() error { return nil }

func (f *fakeRunner) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeRunner) Stop(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type managerHarness struct {
	manager *Manager
	runners map[string][]*fakeRunner
	cancel  context.CancelFunc
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	h := &managerHarness{
		manager: NewManager(ManagerDeps{Processor: &captureProcessor{}}),
		runners: make(map[string][]*fakeRunner),
	}
	var mu sync.Mutex
	h.manager.newRunner = func(spec ListenerSpec) runner {
		mu.Lock()
		defer mu.Unlock()
		r := &fakeRunner{spec: spec}
		h.runners[spec.Name] = append(h.runners[spec.Name], r)
		return r
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.manager.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func TestManagerApplyStartsListeners(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.Apply(context.Background(), specMap(
		ListenerSpec{Name: "a", Port: 6514},
		ListenerSpec{Name: "b", Port: 6515},
	))

	require.Len(t, h.runners["a"], 1)
	require.Len(t, h.runners["b"], 1)
	assert.Equal(t, 1, h.runners["a"][0].starts)
}

func TestManagerApplyIdempotent(t *testing.T) {
	h := newManagerHarness(t)
	desired := specMap(ListenerSpec{Name: "a", Port: 6514})

	h.manager.Apply(context.Background(), desired)
	h.manager.Apply(context.Background(), desired)

	require.Len(t, h.runners["a"], 1, "unchanged spec must not recreate the listener")
	assert.Equal(t, 1, h.runners["a"][0].starts)
	assert.Equal(t, 0, h.runners["a"][0].stops)
}

func TestManagerPortChangeRestartsOnce(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.Apply(context.Background(), specMap(ListenerSpec{Name: "a", Port: 6514}))
	h.manager.Apply(context.Background(), specMap(ListenerSpec{Name: "a", Port: 7000}))

	require.Len(t, h.runners["a"], 2)
	assert.Equal(t, 1, h.runners["a"][0].stops, "old listener stopped exactly once")
	assert.Equal(t, 1, h.runners["a"][1].starts, "new listener started exactly once")
	assert.Equal(t, 7000, h.runners["a"][1].spec.Port)
}

func TestManagerRemovalStops(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.Apply(context.Background(), specMap(ListenerSpec{Name: "a", Port: 6514}))
	h.manager.Apply(context.Background(), map[string]ListenerSpec{})

	assert.Equal(t, 1, h.runners["a"][0].stops)
}

func TestManagerStartFailureIsRetriedNextApply(t *testing.T) {
	h := newManagerHarness(t)
	failFirst := true
	var mu sync.Mutex
	base := h.manager.newRunner
	h.manager.newRunner = func(spec ListenerSpec) runner {
		r := base(spec).(*fakeRunner)
		mu.Lock()
		if failFirst {
			r.startErr = assert.AnError
			failFirst = false
		}
		mu.Unlock()
		return r
	}

	desired := specMap(ListenerSpec{Name: "a", Port: 6514})
	h.manager.Apply(context.Background(), desired)
	h.manager.Apply(context.Background(), desired)

	require.Len(t, h.runners["a"], 2, "failed listener is retried on the next apply")
	assert.Equal(t, 1, h.runners["a"][1].starts)
}

func TestManagerShutdownStopsAll(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.Apply(context.Background(), specMap(ListenerSpec{Name: "a", Port: 6514}))
	h.cancel()

	require.Eventually(t, func() bool {
		h.runners["a"][0].mu.Lock()
		defer h.runners["a"][0].mu.Unlock()
		return h.runners["a"][0].stops == 1
	}, 2*time.Second, 10*time.Millisecond)
}
