// ABOUTME: TUI update helpers for server
// ABOUTME: Builds status snapshots and sends them to the TUI at a bounded rate
package server

import (
	"sort"
)

// status builds the current server state for display
func (s *Server) status() ServerStatus {
	s.clientsMu.RLock()
	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		frames := c.framesIn.Load() + c.framesOut.Load()
		clients = append(clients, ClientInfo{
			Name:        c.Name,
			ID:          c.ID,
			Role:        c.Role,
			Endpoint:    c.Endpoint.String(),
			Codec:       c.Format.Codec,
			Frames:      frames,
			Dropped:     c.dropped.Load(),
			ConnectedAt: c.connectedAt,
		})
	}
	s.clientsMu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ConnectedAt.Before(clients[j].ConnectedAt)
	})

	return ServerStatus{
		Name:    s.config.Name,
		Port:    s.config.Port,
		Device:  s.deviceState(),
		Clients: clients,
		Cycles:  s.host.Stats().Cycles,
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil || !s.tuiLimit.Allow() {
		return
	}
	s.tui.Update(s.status())
}
