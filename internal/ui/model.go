// ABOUTME: Bubbletea model for the device control panel
// ABOUTME: Defines panel state, key handling and rendering of the device state
package ui

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

const (
	sliderStep = 0.05
	driftStep  = 0.05
	maxEvents  = 5
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Width(10)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model represents the control panel state
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Device
	state    protocol.DeviceState
	hasState bool
	slider   float64

	// Recent activity
	events    []string
	lastError string

	showCounters bool

	keys     keyMap
	help     help.Model
	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the panel
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	if m.hasState {
		b.WriteString(m.renderControls())
		b.WriteString(m.renderDevices())
		if m.showCounters {
			b.WriteString(m.renderCounters())
		}
	} else {
		b.WriteString(valueStyle.Render("Waiting for device state...") + "\n")
	}
	b.WriteString(m.renderActivity())
	b.WriteString(m.renderHelp())

	return boxStyle.Render(b.String())
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

// renderHeader renders connection status
func (m Model) renderHeader() string {
	status := "Disconnected"
	if m.connected {
		status = "Connected to " + m.serverName
	}
	s := titleStyle.Render("Loopback Control") + "\n"
	s += row("Status", status)
	if m.hasState {
		s += row("Box", m.state.Box.Name)
	}
	return s + "\n"
}

// renderControls renders format, volume and clock settings
func (m Model) renderControls() string {
	st := m.state

	format := fmt.Sprintf("%s Hz, %d ch", humanize.Comma(int64(st.SampleRate)), st.Channels)
	if st.RequestedSampleRate != 0 && st.RequestedSampleRate != st.SampleRate {
		format += fmt.Sprintf(" (requested %s Hz)", humanize.Comma(int64(st.RequestedSampleRate)))
	}
	if st.Pending != "" {
		format += " [" + st.Pending + " pending]"
	}

	volume := fmt.Sprintf("[%s] %s", renderBar(m.slider, 20), formatDecibel(st.VolumeDB))
	if st.Mute {
		volume += " muted"
	}

	clock := st.ClockSourceName
	if st.ClockSource == int(loopback.ClockAdjustable) {
		clock += fmt.Sprintf("  drift %+.1f%%", (st.Drift-loopback.DefaultDrift)*2)
	}

	return row("Format", format) + row("Volume", volume) + row("Clock", clock) + "\n"
}

// renderDevices renders the published devices
func (m Model) renderDevices() string {
	if len(m.state.Devices) == 0 {
		return row("Devices", "none (box not acquired)") + "\n"
	}
	s := ""
	for i, d := range m.state.Devices {
		label := ""
		if i == 0 {
			label = "Devices"
		}
		running := "idle"
		if d.Running {
			running = "running"
		}
		s += row(label, fmt.Sprintf("%s (%s, %s)", d.Name, d.Endpoint, running))
	}
	return s + "\n"
}

// renderCounters renders transfer counters
func (m Model) renderCounters() string {
	c := m.state.Counters
	return row("Writes", humanize.Comma(int64(c.Writes))) +
		row("Reads", humanize.Comma(int64(c.Reads))) +
		row("Squelched", humanize.Comma(int64(c.Squelched))) +
		row("Overloads", humanize.Comma(int64(c.Overloads))) + "\n"
}

// renderActivity renders recent device events and the last error
func (m Model) renderActivity() string {
	s := ""
	for _, e := range m.events {
		s += valueStyle.Render("  "+e) + "\n"
	}
	if m.lastError != "" {
		line := "Error: " + m.lastError
		if m.width > 4 {
			line = truncate.StringWithTail(line, uint(m.width-4), "...") //nolint:gosec
		}
		s += errorStyle.Render(line) + "\n"
	}
	if s != "" {
		s += "\n"
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return m.help.View(m.keys)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.VolumeUp):
		m.slider = math.Min(1, m.slider+sliderStep)
		m.send(protocol.DeviceControl{Command: protocol.CommandVolumeDB, Value: loopback.SliderToDecibel(m.slider)})
	case key.Matches(msg, m.keys.VolumeDown):
		m.slider = math.Max(0, m.slider-sliderStep)
		m.send(protocol.DeviceControl{Command: protocol.CommandVolumeDB, Value: loopback.SliderToDecibel(m.slider)})
	case key.Matches(msg, m.keys.Mute):
		muted := !m.state.Mute
		m.send(protocol.DeviceControl{Command: protocol.CommandMute, Enabled: &muted})
	case key.Matches(msg, m.keys.Clock):
		next := int(loopback.ClockFixed)
		if m.state.ClockSource == int(loopback.ClockFixed) {
			next = int(loopback.ClockAdjustable)
		}
		m.send(protocol.DeviceControl{Command: protocol.CommandClockSource, Value: float64(next)})
	case key.Matches(msg, m.keys.DriftDown, m.keys.DriftUp):
		if m.state.ClockSource == int(loopback.ClockAdjustable) {
			step := driftStep
			if key.Matches(msg, m.keys.DriftDown) {
				step = -step
			}
			m.send(protocol.DeviceControl{Command: protocol.CommandDrift, Value: clamp01(m.state.Drift + step)})
		}
	case key.Matches(msg, m.keys.Rate):
		m.send(protocol.DeviceControl{Command: protocol.CommandSampleRate, Value: float64(nextRate(m.state.SampleRate))})
	case key.Matches(msg, m.keys.Counters):
		m.showCounters = !m.showCounters
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}

	return m, nil
}

// send queues a control for the connection, dropping it when the queue is full
func (m *Model) send(ctl protocol.DeviceControl) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Changes <- ctl:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.State != nil {
		m.state = *msg.State
		m.hasState = true
		m.slider = loopback.DecibelToSlider(msg.State.VolumeDB)
		m.lastError = ""
	}
	if msg.Event != nil {
		m.events = append(m.events, fmt.Sprintf("%s device %s", msg.Event.Endpoint, msg.Event.Event))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
	}
	if msg.Error != nil {
		m.lastError = fmt.Sprintf("%s: %s", msg.Error.Error, msg.Error.Message)
	}
}

// StatusMsg updates panel state
type StatusMsg struct {
	Connected  *bool
	ServerName string
	State      *protocol.DeviceState
	Event      *protocol.DeviceEvent
	Error      *protocol.ServerError
}

// Utility functions
func renderBar(value float64, width int) string {
	filled := int(math.Round(value * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatDecibel(db float64) string {
	if db <= loopback.MinDecibel {
		return "-inf dB"
	}
	return fmt.Sprintf("%.1f dB", db)
}

// nextRate cycles through the supported rates
func nextRate(rate int) int {
	rates := loopback.SupportedSampleRates
	i := slices.Index(rates, rate)
	return rates[(i+1)%len(rates)]
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
