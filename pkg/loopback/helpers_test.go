// ABOUTME: Test doubles for the loopback engine
// ABOUTME: A recording host and a manually advanced host clock
package loopback

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
)

type fakeClock struct {
	now atomic.Uint64
}

func (c *fakeClock) Now() uint64 {
	return c.now.Load()
}

func (c *fakeClock) Advance(ticks uint64) {
	c.now.Add(ticks)
}

type fakeHost struct {
	mu       sync.Mutex
	changes  []PropertyChange
	requests []Action
	values   map[string]any
	readErr  error
	writeErr error

	// onWrite runs before a value is stored, without the host lock held
	onWrite func(key string)
}

func newFakeHost() *fakeHost {
	return &fakeHost{values: make(map[string]any)}
}

func (h *fakeHost) PropertiesChanged(object ObjectID, changed []Property) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, PropertyChange{Object: object, Properties: changed})
}

func (h *fakeHost) RequestConfigurationChange(_ Endpoint, action Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, action)
}

func (h *fakeHost) ReadPersistedValue(key string) (any, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readErr != nil {
		return nil, false, h.readErr
	}
	v, ok := h.values[key]
	return v, ok, nil
}

func (h *fakeHost) WritePersistedValue(key string, value any) error {
	if h.onWrite != nil {
		h.onWrite(key)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return h.writeErr
	}
	h.values[key] = value
	return nil
}

func (h *fakeHost) Requests() []Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Action(nil), h.requests...)
}

func (h *fakeHost) Changes() []PropertyChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PropertyChange(nil), h.changes...)
}

func (h *fakeHost) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = nil
	h.requests = nil
}

// changedOn returns the properties reported for object, in order
func (h *fakeHost) changedOn(object ObjectID) []Property {
	var props []Property
	for _, c := range h.Changes() {
		if c.Object == object {
			props = append(props, c.Properties...)
		}
	}
	return props
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeHost, *fakeClock) {
	t.Helper()

	clock := &fakeClock{}
	clock.now.Store(1_000_000)
	host := newFakeHost()
	if cfg.HostClock == nil {
		cfg.HostClock = clock.Now
	}
	cfg.Logger = log.New(io.Discard)

	e, err := New(cfg, host)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e, host, clock
}

func pattern(frames, channels int) []float32 {
	buf := make([]float32, frames*channels)
	for i := range buf {
		buf[i] = float32(i%997+1) / 1000
	}
	return buf
}
