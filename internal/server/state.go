// ABOUTME: Device state snapshots and change broadcasting
// ABOUTME: Forwards host property changes and device events to every client
package server

import (
	"time"

	"github.com/Resonate-Protocol/loopback-go/internal/hal"
	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

// deviceState snapshots the engine for clients
func (s *Server) deviceState() protocol.DeviceState {
	st := s.engine.State()

	state := protocol.DeviceState{
		SampleRate:          st.SampleRate,
		RequestedSampleRate: st.RequestedSampleRate,
		Channels:            st.Channels,
		RingFrames:          st.RingFrames,
		Volume:              st.Volume,
		VolumeScalar:        st.VolumeScalar,
		VolumeDB:            st.VolumeDecibel,
		Mute:                st.Mute,
		Drift:               st.Drift,
		ClockSource:         int(st.ClockSource),
		ClockSourceName:     st.ClockSource.String(),
		PrimaryClients:      st.PrimaryClients,
		MirrorClients:       st.MirrorClients,
		Box:                 protocol.BoxState{Name: st.Box.Name, Acquired: st.Box.Acquired},
		Devices:             []protocol.DeviceInfo{},
		Counters: protocol.Counters{
			Writes:    st.Counters.Writes,
			Reads:     st.Counters.Reads,
			Squelched: st.Counters.Squelched,
			Overloads: st.Counters.Overloads,
		},
	}
	if st.Pending.InFlight() {
		state.Pending = st.Pending.Action.String()
	}
	if st.Written {
		state.LastWriteSampleTime = &st.LastWriteSampleTime
	}

	clients := map[loopback.Endpoint]uint64{loopback.Primary: st.PrimaryClients, loopback.Mirror: st.MirrorClients}
	for _, d := range s.engine.Devices() {
		state.Devices = append(state.Devices, protocol.DeviceInfo{
			Endpoint: d.Endpoint.String(),
			Name:     d.Name,
			UID:      d.UID,
			Channels: d.Channels,
			Running:  clients[d.Endpoint] > 0,
		})
	}
	return state
}

// broadcastLoop forwards property changes and sends coalesced state updates
func (s *Server) broadcastLoop(changes <-chan hal.Notification) {
	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()
	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	for {
		select {
		case n, ok := <-changes:
			if !ok {
				return
			}
			props := make([]string, len(n.Properties))
			for i, p := range n.Properties {
				props[i] = p.String()
			}
			s.broadcast(protocol.TypePropertyChanged, protocol.PropertyChanged{
				Object:     n.Object.String(),
				Properties: props,
			})
			s.stateDirty.Store(true)

		case <-ticker.C:
			if s.stateDirty.Swap(false) {
				s.broadcast(protocol.TypeDeviceState, s.deviceState())
				s.updateTUI()
			}

		case <-refresh.C:
			// Counters move without property changes
			s.updateTUI()

		case <-s.stopChan:
			return
		}
	}
}

// DeviceEvent tells every client that endpoint started or stopped
func (s *Server) DeviceEvent(endpoint loopback.Endpoint, running bool) {
	event := "stopped"
	if running {
		event = "started"
	}
	s.broadcast(protocol.TypeDeviceEvent, protocol.DeviceEvent{
		Endpoint: endpoint.String(),
		DeviceID: int(endpoint.DeviceID()),
		Event:    event,
	})
	s.stateDirty.Store(true)
}
