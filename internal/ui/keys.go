// ABOUTME: Key bindings of the control panel
// ABOUTME: Bindings double as the short and full help shown at the bottom
package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Mute       key.Binding
	Clock      key.Binding
	DriftDown  key.Binding
	DriftUp    key.Binding
	Rate       key.Binding
	Counters   key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		VolumeUp:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "volume up")),
		VolumeDown: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "volume down")),
		Mute:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		Clock:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clock source")),
		DriftDown:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "drift down")),
		DriftUp:    key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "drift up")),
		Rate:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "next rate")),
		Counters:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "counters")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.VolumeUp, k.VolumeDown, k.Mute, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.VolumeUp, k.VolumeDown, k.Mute},
		{k.Clock, k.DriftDown, k.DriftUp},
		{k.Rate, k.Counters, k.Help, k.Quit},
	}
}
