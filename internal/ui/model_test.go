// ABOUTME: Tests for the control panel model
// ABOUTME: Tests status updates, key handling and the controls they emit
package ui

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, s string) Model {
	next, _ := m.Update(keyPress(s))
	return next.(Model)
}

func nextControl(t *testing.T, c *Controls) protocol.DeviceControl {
	t.Helper()
	select {
	case ctl := <-c.Changes:
		return ctl
	default:
		t.Fatal("expected a control to be queued")
		return protocol.DeviceControl{}
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil)

	if model.connected {
		t.Error("expected connected to be false initially")
	}
	if model.slider != 1 {
		t.Errorf("expected slider at full, got %v", model.slider)
	}
	if model.hasState {
		t.Error("expected no device state initially")
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected, ServerName: "studio"})
	if !model.connected || model.serverName != "studio" {
		t.Errorf("expected connected to studio, got %v %q", model.connected, model.serverName)
	}

	disconnected := false
	model.applyStatus(StatusMsg{Connected: &disconnected})
	if model.connected {
		t.Error("expected connected to be false after disconnect")
	}
	if model.serverName != "studio" {
		t.Error("expected server name retained")
	}
}

func TestStatusMsgStateMovesSlider(t *testing.T) {
	model := NewModel(nil)
	model.applyStatus(StatusMsg{Error: &protocol.ServerError{Error: "bad_request", Message: "x"}})

	model.applyStatus(StatusMsg{State: &protocol.DeviceState{SampleRate: 48000, Channels: 2, VolumeDB: -16}})

	if !model.hasState || model.state.SampleRate != 48000 {
		t.Errorf("expected state applied, got %+v", model.state)
	}
	if want := loopback.DecibelToSlider(-16); math.Abs(model.slider-want) > 1e-9 {
		t.Errorf("expected slider %v, got %v", want, model.slider)
	}
	if model.lastError != "" {
		t.Errorf("expected fresh state to clear the error, got %q", model.lastError)
	}
}

func TestStatusMsgEventsKeepRecent(t *testing.T) {
	model := NewModel(nil)
	for i := 0; i < maxEvents+3; i++ {
		model.applyStatus(StatusMsg{Event: &protocol.DeviceEvent{Endpoint: "primary", Event: "started"}})
	}
	if len(model.events) != maxEvents {
		t.Errorf("expected %d events, got %d", maxEvents, len(model.events))
	}
	if model.events[0] != "primary device started" {
		t.Errorf("unexpected event text %q", model.events[0])
	}
}

func TestVolumeKeysSendDecibels(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)
	model.applyStatus(StatusMsg{State: &protocol.DeviceState{VolumeDB: 0}})

	model = press(model, "down")
	ctl := nextControl(t, controls)
	if ctl.Command != protocol.CommandVolumeDB {
		t.Fatalf("expected volume_db, got %s", ctl.Command)
	}
	if want := loopback.SliderToDecibel(1 - sliderStep); math.Abs(ctl.Value-want) > 1e-9 {
		t.Errorf("expected %v dB, got %v", want, ctl.Value)
	}

	// Up from the top stays at 0 dB
	model = press(model, "up")
	model = press(model, "up")
	nextControl(t, controls)
	if ctl := nextControl(t, controls); ctl.Value != loopback.MaxDecibel {
		t.Errorf("expected %v dB at the top, got %v", loopback.MaxDecibel, ctl.Value)
	}
	if model.slider != 1 {
		t.Errorf("expected slider clamped at 1, got %v", model.slider)
	}
}

func TestMuteAndClockKeys(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)
	model.applyStatus(StatusMsg{State: &protocol.DeviceState{Mute: false, ClockSource: int(loopback.ClockFixed)}})

	press(model, "m")
	ctl := nextControl(t, controls)
	if ctl.Command != protocol.CommandMute || ctl.Enabled == nil || !*ctl.Enabled {
		t.Errorf("expected mute on, got %+v", ctl)
	}

	press(model, "c")
	ctl = nextControl(t, controls)
	if ctl.Command != protocol.CommandClockSource || ctl.Value != float64(loopback.ClockAdjustable) {
		t.Errorf("expected adjustable clock, got %+v", ctl)
	}

	// Drift keys do nothing on the fixed clock
	press(model, "]")
	select {
	case ctl := <-controls.Changes:
		t.Errorf("expected no drift control on the fixed clock, got %+v", ctl)
	default:
	}
}

func TestDriftKeys(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)
	model.applyStatus(StatusMsg{State: &protocol.DeviceState{ClockSource: int(loopback.ClockAdjustable), Drift: 0.98}})

	press(model, "]")
	if ctl := nextControl(t, controls); ctl.Command != protocol.CommandDrift || ctl.Value != 1 {
		t.Errorf("expected drift clamped to 1, got %+v", ctl)
	}
	press(model, "[")
	if ctl := nextControl(t, controls); math.Abs(ctl.Value-0.93) > 1e-9 {
		t.Errorf("expected drift 0.93, got %v", ctl.Value)
	}
}

func TestNextRate(t *testing.T) {
	rates := loopback.SupportedSampleRates
	tests := []struct {
		rate int
		want int
	}{
		{44100, 48000},
		{48000, 88200},
		{rates[len(rates)-1], rates[0]},
		{12345, rates[0]},
	}

	for _, tt := range tests {
		if got := nextRate(tt.rate); got != tt.want {
			t.Errorf("nextRate(%d) = %d, expected %d", tt.rate, got, tt.want)
		}
	}
}

func TestQuitSignalsControls(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)

	_, cmd := model.Update(keyPress("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("expected quit to be signalled")
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil)
	if model.View() != "Loading..." {
		t.Error("expected loading view before the first resize")
	}

	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = next.(Model)
	connected := true
	model.applyStatus(StatusMsg{
		Connected:  &connected,
		ServerName: "studio",
		State: &protocol.DeviceState{
			SampleRate:      48000,
			Channels:        2,
			VolumeDB:        loopback.MinDecibel,
			Mute:            true,
			ClockSourceName: "Internal Fixed",
			Box:             protocol.BoxState{Name: "Desk"},
			Devices:         []protocol.DeviceInfo{{Endpoint: "primary", Name: "Loopback 2ch", Running: true}},
		},
	})

	view := model.View()
	for _, want := range []string{"studio", "Desk", "48,000 Hz", "-inf dB", "muted", "Loopback 2ch (primary, running)"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "░░░░"},
		{0.5, "██░░"},
		{1, "████"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.value, 4); got != tt.want {
			t.Errorf("renderBar(%v) = %q, expected %q", tt.value, got, tt.want)
		}
	}
}

func TestHelpToggle(t *testing.T) {
	model := NewModel(nil)
	if model.help.ShowAll {
		t.Fatal("expected short help initially")
	}
	model = press(model, "?")
	if !model.help.ShowAll {
		t.Error("expected full help after ?")
	}
	if !strings.Contains(model.renderHelp(), "drift up") {
		t.Error("expected full help to list the drift keys")
	}
}

func TestVimKeysMoveSlider(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)
	model.slider = 0.5

	model = press(model, "j")
	if math.Abs(model.slider-0.45) > 1e-9 {
		t.Errorf("expected slider 0.45, got %v", model.slider)
	}
	if ctl := nextControl(t, controls); ctl.Command != protocol.CommandVolumeDB {
		t.Errorf("expected volume_db control, got %q", ctl.Command)
	}
}

func TestLongErrorTruncated(t *testing.T) {
	model := NewModel(nil)
	next, _ := model.Update(tea.WindowSizeMsg{Width: 30, Height: 24})
	model = next.(Model)
	model.applyStatus(StatusMsg{Error: &protocol.ServerError{Error: "unsupported_value", Message: strings.Repeat("x", 100)}})

	activity := model.renderActivity()
	if !strings.Contains(activity, "...") || strings.Contains(activity, strings.Repeat("x", 40)) {
		t.Errorf("expected the error line truncated, got %q", activity)
	}
}
