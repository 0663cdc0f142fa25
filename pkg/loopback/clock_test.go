// ABOUTME: Tests for the virtual clock generator
// ABOUTME: Host-time gated advancement, one period per query and drift
package loopback

import (
	"testing"
)

func TestClockAdvancesOncePeriodElapsed(t *testing.T) {
	fc := &fakeClock{}
	fc.now.Store(5_000)
	c := NewClock(16384, HostTicksPerFrame(48000), fc.Now)
	c.Reset()

	ts := c.Query()
	if ts.SampleTime != 0 || ts.HostTime != 5_000 || ts.Seed != 1 {
		t.Fatalf("expected (0, 5000, 1), got %+v", ts)
	}

	// 16384 frames at 48 kHz is 341333333.33 ns
	fc.Advance(341_333_332)
	if ts := c.Query(); ts.SampleTime != 0 {
		t.Errorf("expected no advance before the boundary, got %v", ts.SampleTime)
	}

	fc.Advance(2)
	ts = c.Query()
	if ts.SampleTime != 16384 {
		t.Errorf("expected sample time 16384, got %v", ts.SampleTime)
	}
	if ts.HostTime != 5_000+341_333_333 {
		t.Errorf("expected host time %d, got %d", 5_000+341_333_333, ts.HostTime)
	}
}

func TestClockAdvancesOnePeriodPerQuery(t *testing.T) {
	fc := &fakeClock{}
	c := NewClock(100, 10, fc.Now)
	c.Reset()

	fc.Advance(5_000)
	want := []float64{100, 200, 300, 400, 500, 500}
	for i, w := range want {
		if ts := c.Query(); ts.SampleTime != w {
			t.Errorf("query %d: expected %v, got %v", i, w, ts.SampleTime)
		}
	}

	a := c.Anchor()
	if a.PeriodCount != 5 || a.PreviousTicks != 5_000 {
		t.Errorf("expected anchor (5, 5000), got (%d, %v)", a.PeriodCount, a.PreviousTicks)
	}
}

func TestClockMonotonic(t *testing.T) {
	fc := &fakeClock{}
	c := NewClock(512, HostTicksPerFrame(44100), fc.Now)
	c.Reset()

	var last Timestamp
	for i := 0; i < 2_000; i++ {
		fc.Advance(uint64(i%7) * 1_000_000)
		ts := c.Query()
		if ts.SampleTime < last.SampleTime || ts.HostTime < last.HostTime {
			t.Fatalf("query %d went backwards: %+v after %+v", i, ts, last)
		}
		if ts.HostTime > fc.Now() {
			t.Fatalf("query %d ran ahead of host time: %d > %d", i, ts.HostTime, fc.Now())
		}
		last = ts
	}
}

func TestClockReset(t *testing.T) {
	fc := &fakeClock{}
	c := NewClock(10, 1, fc.Now)
	c.Reset()
	fc.Advance(100)
	c.Query()
	c.Query()

	fc.Advance(7)
	c.Reset()
	a := c.Anchor()
	if a.HostTime != 107 || a.PeriodCount != 0 || a.PreviousTicks != 0 {
		t.Errorf("expected anchor reset to (107, 0, 0), got %+v", a)
	}
}

func TestClockDriftRunsFaster(t *testing.T) {
	host := HostTicksPerFrame(48000)

	fixed := &fakeClock{}
	cf := NewClock(16384, host, fixed.Now)
	cf.Reset()

	fast := &fakeClock{}
	ca := NewClock(16384, DriftAdjustedTicksPerFrame(host, 1), fast.Now)
	ca.Reset()

	// 0.995 of a nominal period: only the 1% faster clock has reached its boundary
	step := uint64(16384 * host * 0.995)
	fixed.Advance(step)
	fast.Advance(step)

	if ts := cf.Query(); ts.SampleTime != 0 {
		t.Errorf("expected fixed clock at 0, got %v", ts.SampleTime)
	}
	if ts := ca.Query(); ts.SampleTime != 16384 {
		t.Errorf("expected adjusted clock at 16384, got %v", ts.SampleTime)
	}
}
