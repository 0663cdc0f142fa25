// ABOUTME: Interface the engine requires from the software host that drives it
// ABOUTME: Property notifications, deferred reconfiguration and persisted values
package loopback

// Persisted value keys
const (
	KeyBoxAcquired = "box acquired"
	KeyBoxName     = "box name"
)

// Host is implemented by whatever drives the engine's I/O cycles.
//
// Calls are made without the engine state lock held, so a host may call back
// into the engine from any of them. RequestConfigurationChange must eventually be
// answered with PerformConfigurationChange or AbortConfigurationChange, issued
// while no transfer is in progress.
type Host interface {
	PropertiesChanged(object ObjectID, changed []Property)
	RequestConfigurationChange(endpoint Endpoint, action Action)
	ReadPersistedValue(key string) (value any, ok bool, err error)
	WritePersistedValue(key string, value any) error
}

// PropertyChange groups the properties that changed on one object
type PropertyChange struct {
	Object     ObjectID
	Properties []Property
}

// NopHost ignores notifications, never persists and drops reconfiguration requests.
// Embedders that answer requests themselves can embed it; New with a nil host
// applies requests immediately instead.
type NopHost struct{}

func (NopHost) PropertiesChanged(ObjectID, []Property) {}
func (NopHost) RequestConfigurationChange(Endpoint, Action) {}
func (NopHost) ReadPersistedValue(string) (any, bool, error) { return nil, false, nil }
func (NopHost) WritePersistedValue(string, any) error { return nil }

// inlineHost stands in for a missing host. It applies each reconfiguration as
// soon as it is requested, so the caller must not run Transfer concurrently
// with control changes.
type inlineHost struct {
	NopHost
	engine *Engine
}

func (h inlineHost) RequestConfigurationChange(_ Endpoint, action Action) {
	if err := h.engine.PerformConfigurationChange(action); err != nil {
		h.engine.logger.Warn("failed to apply configuration", "action", action, "error", err)
	}
}
