// ABOUTME: Device start/stop event broadcaster over a local TCP socket
// ABOUTME: Each event is one byte: device id in the top two bits, event code below
package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Event codes carried in the low six bits
type Event uint8

const (
	EventPing    Event = 0
	EventStarted Event = 1
	EventStopped Event = 62
)

const (
	// DefaultAddr is the loopback address clients connect to
	DefaultAddr = "127.0.0.1:25192"

	// DefaultPingInterval detects clients that went away
	DefaultPingInterval = 5 * time.Second

	writeTimeout = time.Second
)

func (e Event) String() string {
	switch e {
	case EventPing:
		return "ping"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// Message is a decoded event byte
type Message struct {
	DeviceID uint8
	Event    Event
}

// Encode packs a device id (1..3) and event into one byte
func Encode(deviceID uint8, event Event) byte {
	return deviceID<<6 | uint8(event)&0x3f
}

// Decode unpacks an event byte
func Decode(b byte) Message {
	return Message{DeviceID: b >> 6, Event: Event(b & 0x3f)}
}

// Config holds broadcaster configuration
type Config struct {
	Addr         string
	PingInterval time.Duration
	Logger       *log.Logger
}

// Broadcaster accepts TCP clients and sends them device events
type Broadcaster struct {
	config   Config
	logger   *log.Logger
	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// New creates a broadcaster
func New(config Config) *Broadcaster {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Broadcaster{
		config:   config,
		logger:   config.Logger.With("component", "events"),
		clients:  make(map[net.Conn]struct{}),
		stopChan: make(chan struct{}),
	}
}

// Start listens and serves clients in the background
func (b *Broadcaster) Start() error {
	ln, err := net.Listen("tcp", b.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.config.Addr, err)
	}
	b.listener = ln
	b.logger.Info("event socket listening", "addr", ln.Addr().String())

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.acceptLoop()
	}()
	go func() {
		defer b.wg.Done()
		b.pingLoop()
	}()
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (b *Broadcaster) Addr() string {
	if b.listener == nil {
		return b.config.Addr
	}
	return b.listener.Addr().String()
}

func (b *Broadcaster) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			b.logger.Warn("accept failed", "error", err)
			continue
		}

		b.mu.Lock()
		b.clients[conn] = struct{}{}
		count := len(b.clients)
		b.mu.Unlock()
		b.logger.Debug("event client connected", "remote", conn.RemoteAddr().String(), "clients", count)
	}
}

func (b *Broadcaster) pingLoop() {
	ticker := time.NewTicker(b.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Device id 0 marks a ping with no device
			b.broadcast(Encode(0, EventPing))
		case <-b.stopChan:
			return
		}
	}
}

// Publish sends event for deviceID to every client
func (b *Broadcaster) Publish(deviceID uint8, event Event) {
	b.logger.Debug("device event", "device", deviceID, "event", event)
	b.broadcast(Encode(deviceID, event))
}

func (b *Broadcaster) broadcast(msg byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write([]byte{msg}); err != nil {
			b.logger.Debug("dropping event client", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// Clients returns the number of connected clients
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Stop closes the listener and every client
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		if b.listener != nil {
			b.listener.Close()
		}
		b.wg.Wait()

		b.mu.Lock()
		for conn := range b.clients {
			conn.Close()
		}
		b.clients = make(map[net.Conn]struct{})
		b.mu.Unlock()
	})
}

// Watch connects to a broadcaster and delivers non-ping events until ctx ends
func Watch(ctx context.Context, addr string) (<-chan Message, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event socket: %w", err)
	}

	out := make(chan Message, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			for _, b := range buf[:n] {
				msg := Decode(b)
				if msg.Event == EventPing {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}
