// ABOUTME: Tests for WebSocket client implementation
// ABOUTME: Tests connection, handshake, and message routing against a fake server
package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
)

// fakeServer answers the handshake and then runs script
func fakeServer(t *testing.T, reject bool, script func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loopback" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil || msg.Type != protocol.TypeClientHello {
			return
		}
		if reject {
			conn.WriteJSON(protocol.Message{Type: protocol.TypeServerError,
				Payload: protocol.ServerError{Error: protocol.ErrorDuplicateClient, Message: "taken"}})
			return
		}
		conn.WriteJSON(protocol.Message{Type: protocol.TypeServerHello,
			Payload: protocol.ServerHello{ServerID: "srv", Name: "Test", Version: protocol.Version}})
		script(conn)
	}))
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://")
}

func newTestClient(addr string) *Client {
	return NewClient(Config{
		ServerAddr: addr,
		ClientID:   "test-client",
		Name:       "Test",
		Logger:     log.New(io.Discard),
	})
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{ServerAddr: "localhost:8928", ClientID: "test-client", Name: "Test"})
	if client == nil {
		t.Fatal("expected client to be created")
	}
	if client.config.Role != protocol.RoleController {
		t.Errorf("expected default role controller, got %s", client.config.Role)
	}
	if client.IsConnected() {
		t.Error("expected new client to be disconnected")
	}
	if err := client.SendControl(protocol.DeviceControl{Command: protocol.CommandVolume}); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectRoutesMessages(t *testing.T) {
	addr := fakeServer(t, false, func(conn *websocket.Conn) {
		conn.WriteJSON(protocol.Message{Type: protocol.TypeDeviceState,
			Payload: protocol.DeviceState{SampleRate: 48000, Channels: 2}})
		conn.WriteJSON(protocol.Message{Type: protocol.TypePropertyChanged,
			Payload: protocol.PropertyChanged{Object: "volume", Properties: []string{"scalar_value"}}})
		conn.WriteJSON(protocol.Message{Type: protocol.TypeDeviceEvent,
			Payload: protocol.DeviceEvent{Endpoint: "primary", DeviceID: 1, Event: "started"}})
		conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeFrame(protocol.FrameInt16, 960, []byte{1, 2, 3, 4}))

		// Echo the control back as an error so the test can observe it
		var msg protocol.Message
		if conn.ReadJSON(&msg) != nil {
			return
		}
		var ctl protocol.DeviceControl
		protocol.DecodePayload(msg.Payload, &ctl)
		conn.WriteJSON(protocol.Message{Type: protocol.TypeServerError,
			Payload: protocol.ServerError{Error: protocol.ErrorBadRequest, Message: ctl.Command}})

		conn.ReadMessage()
	})

	client := newTestClient(addr)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer client.Close()

	if hello := client.ServerHello(); hello.ServerID != "srv" {
		t.Errorf("expected server id srv, got %q", hello.ServerID)
	}

	select {
	case state := <-client.States:
		if state.SampleRate != 48000 {
			t.Errorf("expected 48000, got %d", state.SampleRate)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state received")
	}

	select {
	case changed := <-client.Changes:
		if changed.Object != "volume" {
			t.Errorf("expected volume, got %s", changed.Object)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no property change received")
	}

	select {
	case ev := <-client.Events:
		if ev.DeviceID != 1 || ev.Event != "started" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case frame := <-client.Frames:
		if frame.Type != protocol.FrameInt16 || frame.SampleTime != 960 || len(frame.Payload) != 4 {
			t.Errorf("unexpected frame %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	if err := client.SendControl(protocol.DeviceControl{Command: "mute"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case e := <-client.Errors:
		if e.Message != "mute" {
			t.Errorf("expected echoed command, got %q", e.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error received")
	}
}

func TestConnectRejected(t *testing.T) {
	addr := fakeServer(t, true, nil)

	client := newTestClient(addr)
	err := client.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), protocol.ErrorDuplicateClient) {
		t.Fatalf("expected duplicate client error, got %v", err)
	}
	if client.IsConnected() {
		t.Error("expected client disconnected after rejection")
	}
}

func TestChannelsCloseWhenServerLeaves(t *testing.T) {
	addr := fakeServer(t, false, func(conn *websocket.Conn) {})

	client := newTestClient(addr)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected client to notice the closed connection")
	}
	if _, ok := <-client.Frames; ok {
		t.Error("expected frames channel closed")
	}
	if client.IsConnected() {
		t.Error("expected client disconnected")
	}
}

func TestRequestStateMessage(t *testing.T) {
	got := make(chan string, 1)
	addr := fakeServer(t, false, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		json.Unmarshal(data, &msg)
		got <- msg.Type
	})

	client := newTestClient(addr)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer client.Close()

	if err := client.RequestState(); err != nil {
		t.Fatal(err)
	}
	select {
	case msgType := <-got:
		if msgType != protocol.TypeDeviceState {
			t.Errorf("expected %s, got %s", protocol.TypeDeviceState, msgType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server saw no request")
	}
}
