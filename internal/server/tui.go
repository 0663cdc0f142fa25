// ABOUTME: Server TUI for displaying device state, connected clients and counters
// ABOUTME: Real-time daemon status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
)

const maxClientName = 32

// ServerTUI manages the server TUI
type ServerTUI struct {
	mu       sync.Mutex
	program  *tea.Program
	updates  chan ServerStatus
	done     chan struct{}
	stopOnce sync.Once
	quitChan chan struct{} // Signal to stop the server
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name    string
	Port    int
	Device  protocol.DeviceState
	Clients []ClientInfo
	Cycles  uint64
}

// ClientInfo holds client information for display
type ClientInfo struct {
	Name        string
	ID          string
	Role        string
	Endpoint    string
	Codec       string
	Frames      uint64
	Dropped     uint64
	ConnectedAt time.Time
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg ServerStatus

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	clientHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("220"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(name + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	d := m.status.Device
	var b strings.Builder

	b.WriteString(titleStyle.Render("Loopback Device"))
	b.WriteString("\n\n")

	field(&b, "Box", fmt.Sprintf("%s (port %d)", d.Box.Name, m.status.Port))
	field(&b, "Uptime", time.Since(m.startTime).Round(time.Second).String())

	format := fmt.Sprintf("%s Hz, %d ch", humanize.Comma(int64(d.SampleRate)), d.Channels)
	if d.Pending != "" {
		format += " (pending " + d.Pending + ")"
	}
	field(&b, "Format", format)

	volume := fmt.Sprintf("%.1f dB", d.VolumeDB)
	if d.Mute {
		volume += " (muted)"
	}
	field(&b, "Volume", volume)

	clock := d.ClockSourceName
	if d.ClockSource == 1 {
		clock += fmt.Sprintf(", drift %.2f", d.Drift)
	}
	field(&b, "Clock", clock)
	field(&b, "Running", fmt.Sprintf("primary %d, mirror %d", d.PrimaryClients, d.MirrorClients))
	field(&b, "Transfers", fmt.Sprintf("%s cycles, %s writes, %s reads, %s squelched",
		humanize.Comma(int64(m.status.Cycles)),
		humanize.Comma(int64(d.Counters.Writes)),
		humanize.Comma(int64(d.Counters.Reads)),
		humanize.Comma(int64(d.Counters.Squelched))))
	if d.Counters.Overloads > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("Overloads: %s", humanize.Comma(int64(d.Counters.Overloads)))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, c := range m.status.Clients {
			// Names come from clients and may be arbitrarily long
			b.WriteString(fmt.Sprintf("  • %s", truncate.StringWithTail(c.Name, maxClientName, "…")))
			detail := fmt.Sprintf(" (%s", c.Role)
			if c.Role != protocol.RoleController {
				detail += fmt.Sprintf(" on %s, %s, %s frames", c.Endpoint, c.Codec, humanize.Comma(int64(c.Frames)))
			}
			if c.Dropped > 0 {
				detail += fmt.Sprintf(", %d dropped", c.Dropped)
			}
			detail += ", connected " + humanize.Time(c.ConnectedAt) + ")"
			b.WriteString(valueStyle.Render(detail))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		done:     make(chan struct{}),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start(initial ServerStatus) error {
	m := tuiModel{
		status:    initial,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())
	t.mu.Lock()
	t.program = program
	t.mu.Unlock()

	go func() {
		for {
			select {
			case status := <-t.updates:
				program.Send(statusMsg(status))
			case <-t.done:
				return
			}
		}
	}()

	_, err := program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case <-t.done:
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI. Later updates are discarded.
func (t *ServerTUI) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		if t.program != nil {
			t.program.Quit()
		}
		t.mu.Unlock()
		close(t.done)
	})
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
