// ABOUTME: Tests for command line helpers
// ABOUTME: Control parsing and switch values
package main

import (
	"testing"

	"github.com/Resonate-Protocol/loopback-go/internal/protocol"
)

func TestParseControl(t *testing.T) {
	tests := []struct {
		command string
		value   string
		check   func(protocol.DeviceControl) bool
		wantErr bool
	}{
		{protocol.CommandVolume, "0.5", func(c protocol.DeviceControl) bool { return c.Value == 0.5 }, false},
		{protocol.CommandVolumeDB, "-12", func(c protocol.DeviceControl) bool { return c.Value == -12 }, false},
		{protocol.CommandSampleRate, "96000", func(c protocol.DeviceControl) bool { return c.Value == 96000 }, false},
		{protocol.CommandMute, "on", func(c protocol.DeviceControl) bool { return c.Enabled != nil && *c.Enabled }, false},
		{protocol.CommandBoxAcquired, "false", func(c protocol.DeviceControl) bool { return c.Enabled != nil && !*c.Enabled }, false},
		{protocol.CommandBoxName, "Studio Box", func(c protocol.DeviceControl) bool { return c.Name == "Studio Box" }, false},
		{protocol.CommandVolume, "loud", nil, true},
		{protocol.CommandMute, "maybe", nil, true},
		{"balance", "0", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.command+"="+tt.value, func(t *testing.T) {
			ctl, err := parseControl(tt.command, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", ctl)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ctl.Command != tt.command {
				t.Errorf("expected command %q, got %q", tt.command, ctl.Command)
			}
			if !tt.check(ctl) {
				t.Errorf("unexpected control %+v", ctl)
			}
		})
	}
}

func TestParseSwitch(t *testing.T) {
	for _, v := range []string{"on", "ON", "yes", "true", "1"} {
		if on, err := parseSwitch(v); err != nil || !on {
			t.Errorf("parseSwitch(%q): expected true, got %v %v", v, on, err)
		}
	}
	for _, v := range []string{"off", "no", "false", "0"} {
		if on, err := parseSwitch(v); err != nil || on {
			t.Errorf("parseSwitch(%q): expected false, got %v %v", v, on, err)
		}
	}
}
