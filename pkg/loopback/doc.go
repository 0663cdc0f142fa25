// ABOUTME: Software loopback audio device engine
// ABOUTME: Ring buffer transfer, virtual clock, lifecycle and controls behind one Engine
// Package loopback emulates an audio interface entirely in software.
//
// Audio written to the device by one client is made available to be read by another.
// Because there is no transducer there is no natural clock, so the engine carries a
// virtual hardware clock that the host polls for zero timestamps.
//
// The package is organised around a single Engine:
//   - Ring: the interleaved float32 circular store and its wrap-safe transfer path
//   - Clock: the (sample time, host time) anchor generator with drift adjustment
//   - Lifecycle: reference-counted StartIO/StopIO across the Primary and Mirror endpoints
//   - Reconfiguration: two-phase sample-rate and clock-source changes
//   - Controls: volume, mute, drift and clock source
//
// The engine never schedules work itself. A Host drives it: it starts and stops I/O,
// polls ZeroTimestamp, issues one Transfer per direction per cycle, and calls back
// PerformConfigurationChange or AbortConfigurationChange for requested changes.
//
// Example:
//
//	engine, err := loopback.New(loopback.Config{SampleRate: 48000}, host)
//	if err != nil {
//	    return err
//	}
//	if err := engine.StartIO(loopback.Primary); err != nil {
//	    return err
//	}
//	defer engine.StopIO(loopback.Primary)
//
//	cycle := loopback.CycleInfo{CurrentTime: 0, OutputTime: 0}
//	err = engine.Transfer(loopback.Primary, loopback.StreamOutput, loopback.WriteMix, cycle, 512, frames)
package loopback
