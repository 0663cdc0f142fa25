// ABOUTME: Box state and device identity of the loopback plug-in
// ABOUTME: The acquired flag and box name persist through the host
package loopback

import (
	"fmt"
	"strings"
)

// DefaultBoxName is used until a name has been persisted
const DefaultBoxName = "Loopback Box"

// Box is the container object owning both devices
type Box struct {
	Name     string
	Acquired bool
}

// DeviceInfo describes how an endpoint presents itself to clients
type DeviceInfo struct {
	Endpoint Endpoint
	Name     string
	UID      string
	ModelUID string
	Channels int
	Hidden   bool
}

// loadBox reads persisted box values. Missing or unreadable values keep defaults.
func (e *Engine) loadBox() {
	e.box = Box{Name: DefaultBoxName, Acquired: true}

	if v, ok, err := e.host.ReadPersistedValue(KeyBoxAcquired); err != nil {
		e.logger.Warn("failed to read persisted value", "key", KeyBoxAcquired, "error", err)
	} else if ok {
		if acquired, valid := persistedBool(v); valid {
			e.box.Acquired = acquired
		} else {
			e.logger.Warn("ignoring persisted value", "key", KeyBoxAcquired, "value", v)
		}
	}

	if v, ok, err := e.host.ReadPersistedValue(KeyBoxName); err != nil {
		e.logger.Warn("failed to read persisted value", "key", KeyBoxName, "error", err)
	} else if ok {
		if name, valid := v.(string); valid && name != "" {
			e.box.Name = name
		}
	}
}

// persistedBool accepts a bool or any number, nonzero meaning true
func persistedBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int:
		return x != 0, true
	case int32:
		return x != 0, true
	case int64:
		return x != 0, true
	case uint32:
		return x != 0, true
	case uint64:
		return x != 0, true
	case float32:
		return x != 0, true
	case float64:
		return x != 0, true
	default:
		return false, false
	}
}

// Box returns the box state
func (e *Engine) Box() Box {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.box
}

// SetBoxAcquired sets and persists the acquired flag
func (e *Engine) SetBoxAcquired(acquired bool) error {
	e.boxMu.Lock()
	if e.Box().Acquired == acquired {
		e.boxMu.Unlock()
		return nil
	}
	if err := e.host.WritePersistedValue(KeyBoxAcquired, acquired); err != nil {
		e.boxMu.Unlock()
		return fmt.Errorf("failed to persist %q: %w", KeyBoxAcquired, err)
	}
	e.mu.Lock()
	e.box.Acquired = acquired
	e.mu.Unlock()
	e.boxMu.Unlock()

	e.notify([]PropertyChange{
		{Object: ObjectBox, Properties: []Property{PropertyAcquired, PropertyDeviceList}},
		{Object: ObjectPlugIn, Properties: []Property{PropertyDeviceList}},
	})
	return nil
}

// SetBoxName renames and persists the box
func (e *Engine) SetBoxName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty box name", ErrUnsupportedValue)
	}

	e.boxMu.Lock()
	if e.Box().Name == name {
		e.boxMu.Unlock()
		return nil
	}
	if err := e.host.WritePersistedValue(KeyBoxName, name); err != nil {
		e.boxMu.Unlock()
		return fmt.Errorf("failed to persist %q: %w", KeyBoxName, err)
	}
	e.mu.Lock()
	e.box.Name = name
	e.mu.Unlock()
	e.boxMu.Unlock()

	e.host.PropertiesChanged(ObjectBox, []Property{PropertyName})
	return nil
}

// Devices lists the endpoints visible to clients. None are visible while the box is not acquired.
func (e *Engine) Devices() []DeviceInfo {
	if !e.Box().Acquired {
		return nil
	}
	var devices []DeviceInfo
	for _, ep := range Endpoints {
		info, _ := e.DeviceInfo(ep)
		if !info.Hidden {
			devices = append(devices, info)
		}
	}
	return devices
}

// DeviceInfo returns the identity of endpoint
func (e *Engine) DeviceInfo(endpoint Endpoint) (DeviceInfo, error) {
	if !endpoint.Valid() {
		return DeviceInfo{}, opError("device info", endpoint, ErrBadObject)
	}

	base := fmt.Sprintf("%s %dch", e.cfg.DeviceName, e.cfg.Channels)
	uidBase := strings.ReplaceAll(base, " ", "")
	info := DeviceInfo{
		Endpoint: endpoint,
		Name:     base,
		UID:      uidBase + "_UID",
		ModelUID: uidBase + "_ModelUID",
		Channels: e.cfg.Channels,
	}
	if endpoint == Mirror {
		info.Name = base + " Mirror"
		info.UID = uidBase + "_2_UID"
		info.Hidden = !e.cfg.ShowMirror
	}
	return info, nil
}
