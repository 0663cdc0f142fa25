// ABOUTME: Tests for box state persistence and device identity
// ABOUTME: Acquired flag and name load, persist and notify through the host
package loopback

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestBoxDefaults(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})

	box := e.Box()
	if !box.Acquired || box.Name != DefaultBoxName {
		t.Errorf("expected acquired %q, got %+v", DefaultBoxName, box)
	}
}

func TestBoxLoadsPersistedValues(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		acquired bool
	}{
		{"bool false", false, false},
		{"bool true", true, true},
		{"number zero", int64(0), false},
		{"number one", float64(1), true},
		{"garbage", "yes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			host.values[KeyBoxAcquired] = tt.value
			host.values[KeyBoxName] = "Studio"

			e, err := New(Config{Logger: log.New(io.Discard)}, host)
			if err != nil {
				t.Fatal(err)
			}
			if got := e.Box(); got.Acquired != tt.acquired || got.Name != "Studio" {
				t.Errorf("expected acquired %v name Studio, got %+v", tt.acquired, got)
			}
		})
	}
}

func TestBoxReadErrorKeepsDefaults(t *testing.T) {
	host := newFakeHost()
	host.readErr = errors.New("disk gone")

	e, err := New(Config{Logger: log.New(io.Discard)}, host)
	if err != nil {
		t.Fatalf("expected read failure to be tolerated, got %v", err)
	}
	if box := e.Box(); !box.Acquired || box.Name != DefaultBoxName {
		t.Errorf("expected defaults, got %+v", box)
	}
}

func TestSetBoxAcquired(t *testing.T) {
	e, host, _ := newTestEngine(t, Config{})

	if err := e.SetBoxAcquired(true); err != nil || len(host.Changes()) != 0 {
		t.Errorf("expected unchanged flag to be a no-op, got %v %v", err, host.Changes())
	}

	if err := e.SetBoxAcquired(false); err != nil {
		t.Fatal(err)
	}
	if host.values[KeyBoxAcquired] != false {
		t.Errorf("expected persisted false, got %v", host.values[KeyBoxAcquired])
	}
	if got := host.changedOn(ObjectBox); !slices.Equal(got, []Property{PropertyAcquired, PropertyDeviceList}) {
		t.Errorf("expected acquired and device list on box, got %v", got)
	}
	if got := host.changedOn(ObjectPlugIn); !slices.Equal(got, []Property{PropertyDeviceList}) {
		t.Errorf("expected device list on plugin, got %v", got)
	}
	if len(e.Devices()) != 0 {
		t.Error("expected no devices while the box is not acquired")
	}

	// Survives a restart with the same storage
	e2, err := New(Config{Logger: log.New(io.Discard)}, host)
	if err != nil {
		t.Fatal(err)
	}
	if e2.Box().Acquired {
		t.Error("expected acquired flag to persist")
	}
}

func TestSetBoxAcquiredWriteFailure(t *testing.T) {
	e, host, _ := newTestEngine(t, Config{})
	host.writeErr = errors.New("read-only")

	if err := e.SetBoxAcquired(false); err == nil {
		t.Fatal("expected write failure")
	}
	if !e.Box().Acquired {
		t.Error("expected flag unchanged after failed write")
	}
	if len(host.Changes()) != 0 {
		t.Error("expected no notification after failed write")
	}
}

func TestSetBoxName(t *testing.T) {
	e, host, _ := newTestEngine(t, Config{})

	if err := e.SetBoxName("  Desk  "); err != nil {
		t.Fatal(err)
	}
	if e.Box().Name != "Desk" || host.values[KeyBoxName] != "Desk" {
		t.Errorf("expected name Desk persisted, got %q / %v", e.Box().Name, host.values[KeyBoxName])
	}
	if got := host.changedOn(ObjectBox); !slices.Equal(got, []Property{PropertyName}) {
		t.Errorf("expected one name notification, got %v", got)
	}
	if err := e.SetBoxName(" "); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestBoxWritesAllowHostReentry(t *testing.T) {
	e, host, _ := newTestEngine(t, Config{})
	var seen []Box
	host.onWrite = func(string) {
		seen = append(seen, e.Box())
		e.SetMute(true)
	}

	done := make(chan error, 1)
	go func() {
		if err := e.SetBoxAcquired(false); err != nil {
			done <- err
			return
		}
		done <- e.SetBoxName("Desk")
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("box write blocked a host calling back into the engine")
	}

	// The host sees the old value while persisting the new one
	if len(seen) != 2 || !seen[0].Acquired || seen[1].Name != DefaultBoxName {
		t.Errorf("unexpected box during writes: %+v", seen)
	}
	if box := e.Box(); box.Acquired || box.Name != "Desk" {
		t.Errorf("expected committed box, got %+v", box)
	}
}

func TestBoxNameConcurrentRenames(t *testing.T) {
	e, host, _ := newTestEngine(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := e.SetBoxName(fmt.Sprintf("Box %d", i)); err != nil {
				t.Errorf("rename %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	host.mu.Lock()
	persisted := host.values[KeyBoxName]
	host.mu.Unlock()
	if persisted != e.Box().Name {
		t.Errorf("expected persisted name %v to match box name %q", persisted, e.Box().Name)
	}
}

func TestDeviceInfo(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})

	primary, err := e.DeviceInfo(Primary)
	if err != nil {
		t.Fatal(err)
	}
	if primary.Name != "Loopback 2ch" || primary.UID != "Loopback2ch_UID" || primary.Hidden {
		t.Errorf("unexpected primary identity %+v", primary)
	}

	mirror, _ := e.DeviceInfo(Mirror)
	if mirror.Name != "Loopback 2ch Mirror" || mirror.UID != "Loopback2ch_2_UID" || !mirror.Hidden {
		t.Errorf("unexpected mirror identity %+v", mirror)
	}

	if devices := e.Devices(); len(devices) != 1 || devices[0].Endpoint != Primary {
		t.Errorf("expected only primary visible, got %+v", devices)
	}

	e2, _, _ := newTestEngine(t, Config{ShowMirror: true, Channels: 16, DeviceName: "Bus"})
	if devices := e2.Devices(); len(devices) != 2 || devices[1].UID != "Bus16ch_2_UID" {
		t.Errorf("expected both devices visible, got %+v", devices)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want Endpoint
		ok   bool
	}{
		{"primary", Primary, true},
		{"", Primary, true},
		{"1", Primary, true},
		{"mirror", Mirror, true},
		{"2", Mirror, true},
		{"3", 0, false},
	}

	for _, tt := range tests {
		got, err := ParseEndpoint(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseEndpoint(%q): expected %s, got %s %v", tt.in, tt.want, got, err)
		}
		if !tt.ok && !errors.Is(err, ErrBadObject) {
			t.Errorf("ParseEndpoint(%q): expected ErrBadObject, got %v", tt.in, err)
		}
	}
}
