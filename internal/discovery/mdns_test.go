// ABOUTME: Tests for mDNS discovery
// ABOUTME: Manager defaults, TXT records and entry parsing
package discovery

import (
	"io"
	"net"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Studio", Port: 8928, Logger: log.New(io.Discard)})
	defer mgr.Stop()

	if mgr.config.Path != DefaultPath {
		t.Errorf("expected default path %s, got %s", DefaultPath, mgr.config.Path)
	}
	if mgr.Servers() == nil {
		t.Error("expected servers channel")
	}
}

func TestTXTRecord(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Studio",
		Port:        8928,
		Info:        map[string]string{"channels": "2"},
		Logger:      log.New(io.Discard),
	})
	defer mgr.Stop()

	txt := mgr.TXTRecord()
	for _, want := range []string{"path=/loopback", "channels=2"} {
		if !slices.Contains(txt, want) {
			t.Errorf("expected %q in %v", want, txt)
		}
	}
}

func TestFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Studio._loopback._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8928,
		InfoFields: []string{"path=/loopback", "channels=16"},
	}

	server := fromEntry(entry)
	if server == nil {
		t.Fatal("expected server info")
	}
	if server.Name != "Studio" {
		t.Errorf("expected name Studio, got %s", server.Name)
	}
	if server.Addr() != "192.168.1.20:8928" {
		t.Errorf("expected addr 192.168.1.20:8928, got %s", server.Addr())
	}
	if server.Info["channels"] != "16" {
		t.Errorf("expected channels 16, got %s", server.Info["channels"])
	}

	if fromEntry(&mdns.ServiceEntry{Name: "v6only"}) != nil {
		t.Error("expected nil for an entry without IPv4")
	}
}
