// ABOUTME: mDNS service discovery for the loopback daemon
// ABOUTME: Advertises the control server and browses for running daemons
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"

	"github.com/Resonate-Protocol/loopback-go/internal/version"
)

const (
	// DefaultPath is the websocket path advertised in the TXT record
	DefaultPath = "/loopback"

	queryTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	// Info is added to the TXT record as key=value pairs
	Info   map[string]string
	Logger *log.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered daemon
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
	Info map[string]string
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		logger:  config.Logger.With("component", "mdns"),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// TXTRecord builds the TXT entries advertised for this daemon
func (m *Manager) TXTRecord() []string {
	txt := []string{"path=" + m.config.Path, "version=" + version.Version}
	for k, v := range m.config.Info {
		txt = append(txt, k+"="+v)
	}
	return txt
}

// Advertise advertises the daemon via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		version.ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.TXTRecord(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("advertising mDNS service", "name", m.config.ServiceName, "port", m.config.Port,
		"type", version.ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse continuously searches for daemons until Stop
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		found, err := Lookup(m.ctx, queryTimeout)
		if err != nil {
			m.logger.Debug("mDNS query failed", "error", err)
		}
		for _, server := range found {
			select {
			case m.servers <- server:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// Servers returns the channel of discovered daemons
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Lookup runs one mDNS query and returns the daemons that answered
func Lookup(ctx context.Context, timeout time.Duration) ([]*ServerInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 10)
	var found []*ServerInfo
	done := make(chan struct{})

	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for entry := range entries {
			server := fromEntry(entry)
			if server == nil || seen[server.Addr()] {
				continue
			}
			seen[server.Addr()] = true
			found = append(found, server)
		}
	}()

	params := mdns.DefaultParams(version.ServiceType)
	params.Timeout = timeout
	params.Entries = entries

	errChan := make(chan error, 1)
	go func() { errChan <- mdns.Query(params) }()

	var err error
	select {
	case err = <-errChan:
	case <-ctx.Done():
		err = ctx.Err()
		// Query returns once its timeout elapses
		<-errChan
	}
	close(entries)
	<-done
	return found, err
}

func fromEntry(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	info := parseTXT(entry.InfoFields)
	path := info["path"]
	if path == "" {
		path = DefaultPath
	}
	return &ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+version.ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: path,
		Info: info,
	}
}

func parseTXT(fields []string) map[string]string {
	info := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		info[k] = v
	}
	return info
}

// getLocalIPs returns local IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
