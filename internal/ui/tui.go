// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the control panel
package ui

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
)

// QuitMsg signals that the user closed the panel
type QuitMsg struct{}

// Controls holds channels carrying panel actions to the connection
type Controls struct {
	Changes chan protocol.DeviceControl
	Quit    chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan protocol.DeviceControl, 10),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new panel model
func NewModel(controls *Controls) Model {
	return Model{
		slider:   1,
		keys:     defaultKeyMap(),
		help:     help.New(),
		controls: controls,
	}
}

// Run creates the panel program
func Run(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
