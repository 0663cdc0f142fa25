// ABOUTME: Control and tap server for the loopback device
// ABOUTME: Manages WebSocket connections, client roles and state broadcasts
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Resonate-Protocol/loopback-go/internal/discovery"
	"github.com/Resonate-Protocol/loopback-go/internal/hal"
	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
	"github.com/Resonate-Protocol/loopback-go/internal/version"
	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

const (
	DefaultPort = 8928
	DefaultName = "Loopback"

	// DefaultProducerBufferFrames bounds audio queued per producer
	DefaultProducerBufferFrames = 8192

	sendBuffer    = 256
	tapDepth      = 64
	stateInterval = 100 * time.Millisecond
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	helloTimeout  = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	Port                 int
	Name                 string
	EnableMDNS           bool
	UseTUI               bool
	ProducerBufferFrames int
	Logger               *log.Logger
}

// Server exposes a loopback host over websockets
type Server struct {
	config   Config
	serverID string
	host     *hal.Host
	engine   *loopback.Engine
	logger   *log.Logger

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	clients   map[string]*Client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	tuiLimit  *rate.Limiter
	startTime time.Time

	stateDirty atomic.Bool

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected client
type Client struct {
	ID       string
	Name     string
	Role     string
	Endpoint loopback.Endpoint
	Format   protocol.AudioFormat
	Conn     *websocket.Conn

	connectedAt time.Time
	framesIn    atomic.Uint64
	framesOut   atomic.Uint64
	dropped     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	// streams tracks goroutines that send on sendChan besides broadcasts
	streams sync.WaitGroup

	// Output channel for messages
	sendChan chan interface{}
}

// New creates a new server for host
func New(config Config, host *hal.Host) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Name == "" {
		config.Name = DefaultName
	}
	if config.ProducerBufferFrames == 0 {
		config.ProducerBufferFrames = DefaultProducerBufferFrames
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		host:     host,
		engine:   host.Engine(),
		logger:   config.Logger.With("component", "server"),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients send no Origin header
				origin := r.Header.Get("Origin")
				return origin == "" || origin == "http://localhost" || origin == "http://127.0.0.1"
			},
		},
		clients:   make(map[string]*Client),
		tuiLimit:  rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
	s.mux.HandleFunc(discovery.DefaultPath, s.handleWebSocket)
	return s
}

// ID returns the server id sent in server/hello
func (s *Server) ID() string {
	return s.serverID
}

// Start listens on the configured port and serves until Stop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop or a TUI quit
func (s *Server) Serve(ln net.Listener) error {
	if s.config.UseTUI {
		s.tui = NewServerTUI()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.status()); err != nil {
				s.logger.Error("TUI failed", "error", err)
			}
		}()
	}

	s.logger.Info("server starting", "name", s.config.Name, "id", s.serverID, "addr", ln.Addr().String())

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Info: map[string]string{
				"channels":    fmt.Sprint(s.engine.Channels()),
				"sample_rate": fmt.Sprint(s.engine.SampleRate()),
			},
			Logger: s.config.Logger,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn("failed to start mDNS advertisement", "error", err)
		}
	}

	changes, cancelChanges := s.host.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop(changes)
	}()

	s.httpServer = &http.Server{Handler: s.mux}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	var serverErr error
	select {
	case <-s.stopChan:
		s.logger.Info("server shutting down")
	case <-tuiQuitChan:
		s.logger.Info("TUI quit requested, shutting down")
		s.Stop()
	case err := <-errChan:
		s.logger.Error("HTTP server error", "error", err)
		serverErr = err
		s.Stop()
	}

	// Reject new connections
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}
	cancelChanges()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", "error", err)
	}

	// Hijacked websocket connections outlive Shutdown
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.cancel()
		c.Conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	s.logger.Info("server stopped")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.logger.Debug("new websocket connection", "remote", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	hello, err := s.readHello(conn)
	if err != nil {
		s.logger.Warn("handshake failed", "error", err)
		writeError(conn, protocol.ErrorBadRequest, err.Error())
		return
	}

	endpoint, err := loopback.ParseEndpoint(hello.Endpoint)
	if err != nil {
		writeError(conn, protocol.ErrorBadObject, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &Client{
		ID:          hello.ClientID,
		Name:        hello.Name,
		Role:        hello.Role,
		Endpoint:    endpoint,
		Conn:        conn,
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		sendChan:    make(chan interface{}, sendBuffer),
	}

	var format *protocol.AudioFormat
	switch client.Role {
	case protocol.RoleProducer:
		f, err := s.producerFormat(hello.Format)
		if err != nil {
			writeError(conn, protocol.ErrorUnsupportedValue, err.Error())
			return
		}
		format = &f
	case protocol.RoleConsumer:
		f := s.consumerFormat(hello.Format)
		format = &f
	}
	if format != nil {
		client.Format = *format
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	select {
	case <-s.stopChan:
		s.clientsMu.Unlock()
		return
	default:
	}
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		s.logger.Warn("duplicate client id rejected", "id", client.ID, "name", existing.Name)
		writeError(conn, protocol.ErrorDuplicateClient, "client ID already connected")
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()
	s.logger.Info("client connected", "name", client.Name, "id", client.ID, "role", client.Role,
		"endpoint", client.Endpoint)
	s.updateTUI()

	// Start writer goroutine
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.clientWriter(client)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		cancel()
		client.streams.Wait()
		close(client.sendChan)
		<-writerDone
		s.logger.Info("client disconnected", "name", client.Name, "id", client.ID)
		s.updateTUI()
	}()

	s.send(client, protocol.TypeServerHello, protocol.ServerHello{
		ServerID:       s.serverID,
		Name:           s.config.Name,
		Version:        protocol.Version,
		ProductVersion: version.Version,
		Format:         format,
	})
	s.send(client, protocol.TypeDeviceState, s.deviceState())

	switch client.Role {
	case protocol.RoleProducer:
		s.runProducer(client)
	case protocol.RoleConsumer:
		s.runConsumer(client)
	default:
		s.readLoop(client, nil)
	}
}

// readHello waits for client/hello and validates it
func (s *Server) readHello(conn *websocket.Conn) (protocol.ClientHello, error) {
	var hello protocol.ClientHello

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("failed to read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return hello, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type != protocol.TypeClientHello {
		return hello, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msg.Type)
	}
	if err := protocol.DecodePayload(msg.Payload, &hello); err != nil {
		return hello, err
	}

	if hello.ClientID == "" {
		return hello, fmt.Errorf("client hello missing client_id")
	}
	if hello.Name == "" {
		return hello, fmt.Errorf("client hello missing name")
	}
	if hello.Role == "" {
		hello.Role = protocol.RoleController
	}
	if !slices.Contains([]string{protocol.RoleController, protocol.RoleProducer, protocol.RoleConsumer}, hello.Role) {
		return hello, fmt.Errorf("unknown role %q", hello.Role)
	}
	return hello, nil
}

// readLoop dispatches client messages until the connection closes
func (s *Server) readLoop(client *Client, onBinary func([]byte) error) {
	for {
		messageType, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				client.ctx.Err() == nil {
				s.logger.Debug("websocket read error", "client", client.Name, "error", err)
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			if onBinary == nil {
				s.sendError(client, protocol.ErrorBadRequest, "binary frames are only accepted from producers")
				continue
			}
			if err := onBinary(data); err != nil {
				if client.ctx.Err() != nil {
					return
				}
				s.sendError(client, protocol.ErrorBadRequest, err.Error())
			}
			continue
		}

		s.handleClientMessage(client, data)
	}
}

// handleClientMessage processes JSON messages from clients
func (s *Server) handleClientMessage(client *Client, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(client, protocol.ErrorBadRequest, "invalid JSON message")
		return
	}

	switch msg.Type {
	case protocol.TypeDeviceControl:
		var ctl protocol.DeviceControl
		if err := protocol.DecodePayload(msg.Payload, &ctl); err != nil {
			s.sendError(client, protocol.ErrorBadRequest, err.Error())
			return
		}
		if err := s.applyControl(ctl); err != nil {
			s.logger.Debug("control rejected", "client", client.Name, "command", ctl.Command, "error", err)
			s.sendError(client, errorCode(err), err.Error())
		}
	case protocol.TypeDeviceState:
		s.send(client, protocol.TypeDeviceState, s.deviceState())
	default:
		s.sendError(client, protocol.ErrorBadRequest, "unknown message type: "+msg.Type)
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var err error
			switch v := msg.(type) {
			case []byte:
				err = client.Conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				err = client.Conn.WriteJSON(v)
			}
			if err != nil {
				s.logger.Debug("write failed", "client", client.Name, "error", err)
				client.cancel()
				client.Conn.Close()
				// Keep draining so senders never block
				for range client.sendChan {
				}
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				client.cancel()
				client.Conn.Close()
				for range client.sendChan {
				}
				return
			}
		}
	}
}

// send queues a JSON message, dropping it when the client lags
func (s *Server) send(client *Client, msgType string, payload interface{}) bool {
	select {
	case client.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return true
	default:
		client.dropped.Add(1)
		return false
	}
}

// sendBinary queues a binary frame, dropping it when the client lags
func (s *Server) sendBinary(client *Client, data []byte) bool {
	select {
	case client.sendChan <- data:
		return true
	default:
		client.dropped.Add(1)
		return false
	}
}

func (s *Server) sendError(client *Client, code, message string) {
	s.send(client, protocol.TypeServerError, protocol.ServerError{Error: code, Message: message})
}

// broadcast queues a JSON message to every client
func (s *Server) broadcast(msgType string, payload interface{}) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.send(c, msgType, payload)
	}
}

// writeError writes directly to a connection that never registered
func writeError(conn *websocket.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeServerError,
		Payload: protocol.ServerError{Error: code, Message: message},
	})
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
