// ABOUTME: Software host package driving the loopback engine
// ABOUTME: Runs I/O cycles for attached producers and consumers and applies reconfiguration
// Package hal is a software host for pkg/loopback.
//
// It plays the role the operating system's audio server plays for a driver:
// it owns the engine, calls StartIO/StopIO as clients attach and detach, runs
// one I/O cycle per buffer period, pauses cycles while a requested
// configuration change is performed, and persists box values.
//
// Example:
//
//	h, err := hal.New(loopback.Config{}, hal.Config{Storage: st})
//	h.Start()
//	id, err := h.AttachConsumer(loopback.Primary, hal.ConsumerFunc(func(s []float32) { ... }))
//	defer h.Detach(id)
package hal
