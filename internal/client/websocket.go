// ABOUTME: WebSocket client for the loopback control protocol
// ABOUTME: Handles connection, handshake, and routing of state, events and audio frames
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/loopback-go/internal/discovery"
	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
)

const handshakeTimeout = 5 * time.Second

// ErrNotConnected is returned when sending on a closed client
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	Role       string
	Endpoint   string
	Format     *protocol.AudioFormat
	Logger     *log.Logger
}

// Client represents a WebSocket client
type Client struct {
	config  Config
	logger  *log.Logger
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
	hello   protocol.ServerHello

	// Message channels, closed when the connection ends. Frames block the
	// reader until consumed; the others drop when their buffer is full.
	Frames  chan protocol.Frame
	States  chan protocol.DeviceState
	Changes chan protocol.PropertyChanged
	Events  chan protocol.DeviceEvent
	Errors  chan protocol.ServerError

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Role == "" {
		config.Role = protocol.RoleController
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		logger:  config.Logger.With("component", "client"),
		Frames:  make(chan protocol.Frame, 100),
		States:  make(chan protocol.DeviceState, 10),
		Changes: make(chan protocol.PropertyChanged, 32),
		Events:  make(chan protocol.DeviceEvent, 32),
		Errors:  make(chan protocol.ServerError, 10),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: discovery.DefaultPath}
	c.logger.Debug("connecting", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		close(c.done)
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

// handshake sends client/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Version:  protocol.Version,
		Role:     c.config.Role,
		Endpoint: c.config.Endpoint,
		Format:   c.config.Format,
	}
	if err := c.sendJSON(protocol.TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	switch msg.Type {
	case protocol.TypeServerHello:
	case protocol.TypeServerError:
		var e protocol.ServerError
		if err := protocol.DecodePayload(msg.Payload, &e); err != nil {
			return err
		}
		return fmt.Errorf("server rejected hello: %s: %s", e.Error, e.Message)
	default:
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}

	if err := protocol.DecodePayload(msg.Payload, &c.hello); err != nil {
		return err
	}
	c.logger.Info("handshake complete", "server", c.hello.Name, "id", c.hello.ServerID, "role", c.config.Role)
	return nil
}

// ServerHello returns what the server announced during the handshake
func (c *Client) ServerHello() protocol.ServerHello {
	return c.hello
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msgType string, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.done)
	defer func() {
		close(c.Frames)
		close(c.States)
		close(c.Changes)
		close(c.Events)
		close(c.Errors)
	}()
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Debug("read error", "error", err)
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			if !c.handleBinaryMessage(data) {
				return
			}
		} else if messageType == websocket.TextMessage {
			c.handleJSONMessage(data)
		}
	}
}

// handleBinaryMessage delivers one audio frame and reports whether to keep reading
func (c *Client) handleBinaryMessage(data []byte) bool {
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		c.logger.Warn("invalid binary frame", "error", err)
		return true
	}

	select {
	case c.Frames <- frame:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("failed to parse JSON message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeDeviceState:
		var state protocol.DeviceState
		if err := protocol.DecodePayload(msg.Payload, &state); err == nil {
			offer(c.States, state)
		}

	case protocol.TypePropertyChanged:
		var changed protocol.PropertyChanged
		if err := protocol.DecodePayload(msg.Payload, &changed); err == nil {
			offer(c.Changes, changed)
		}

	case protocol.TypeDeviceEvent:
		var ev protocol.DeviceEvent
		if err := protocol.DecodePayload(msg.Payload, &ev); err == nil {
			offer(c.Events, ev)
		}

	case protocol.TypeServerError:
		var e protocol.ServerError
		if err := protocol.DecodePayload(msg.Payload, &e); err == nil {
			c.logger.Debug("server error", "code", e.Error, "message", e.Message)
			offer(c.Errors, e)
		}

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// offer sends without blocking the reader
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// SendFrame sends one binary audio frame
func (c *Client) SendFrame(frameType byte, sampleTime int64, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeFrame(frameType, sampleTime, payload))
}

// SendControl sends a device/control message
func (c *Client) SendControl(ctl protocol.DeviceControl) error {
	return c.sendJSON(protocol.TypeDeviceControl, ctl)
}

// RequestState asks the server for a fresh device/state
func (c *Client) RequestState() error {
	return c.sendJSON(protocol.TypeDeviceState, nil)
}

// Done is closed once the connection has ended and all channels are closed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
		c.logger.Debug("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
