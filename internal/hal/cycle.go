// ABOUTME: I/O cycle loop of the software host
// ABOUTME: Derives sample times from the virtual clock and transfers one buffer per cycle
package hal

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

// maxCatchUp bounds the cycles run in one tick before resyncing to the clock
const maxCatchUp = 8

// Stats are cumulative host counters
type Stats struct {
	Cycles           uint64
	FramesWritten    uint64
	FramesRead       uint64
	Overloads        uint64
	Squelched        uint64
	Resyncs          uint64
	Reconfigurations uint64
}

type stats struct {
	cycles           atomic.Uint64
	framesWritten    atomic.Uint64
	framesRead       atomic.Uint64
	overloads        atomic.Uint64
	resyncs          atomic.Uint64
	reconfigurations atomic.Uint64
}

// Stats returns a snapshot of the host counters
func (h *Host) Stats() Stats {
	return Stats{
		Cycles:           h.stats.cycles.Load(),
		FramesWritten:    h.stats.framesWritten.Load(),
		FramesRead:       h.stats.framesRead.Load(),
		Overloads:        h.stats.overloads.Load(),
		Squelched:        h.engine.Counters().Squelched,
		Resyncs:          h.stats.resyncs.Load(),
		Reconfigurations: h.stats.reconfigurations.Load(),
	}
}

// CyclePeriod is the wall-clock duration of one buffer at sampleRate
func CyclePeriod(bufferFrames, sampleRate int) time.Duration {
	return time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate)
}

func (h *Host) run() {
	sampleRate := h.engine.SampleRate()
	// Tick twice per buffer so cycles start close to their deadline
	ticker := time.NewTicker(CyclePeriod(h.config.BufferFrames, sampleRate) / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.tick()
			if r := h.engine.SampleRate(); r != sampleRate {
				sampleRate = r
				ticker.Reset(CyclePeriod(h.config.BufferFrames, sampleRate) / 2)
				h.logger.Debug("cycle period changed", "sample_rate", sampleRate)
			}
		case <-h.stopChan:
			return
		}
	}
}

func (h *Host) tick() {
	h.cycleMu.Lock()
	defer h.cycleMu.Unlock()

	ts, err := h.engine.ZeroTimestamp(loopback.Primary)
	if err != nil {
		// Nothing attached
		h.synced = false
		return
	}
	h.process(h.currentSampleTime(ts))
}

// currentSampleTime extrapolates the sample time at the current host time from an anchor
func (h *Host) currentSampleTime(ts loopback.Timestamp) int64 {
	ticks := h.engine.Clock().TicksPerFrame()
	now := h.now()
	var elapsed float64
	if now > ts.HostTime {
		elapsed = float64(now-ts.HostTime) / ticks
	}
	return int64(ts.SampleTime) + int64(elapsed)
}

// process runs every cycle whose buffer has fully elapsed by now. Callers hold cycleMu.
func (h *Host) process(now int64) {
	frames := int64(h.config.BufferFrames)
	behind := now - h.cycleTime
	if !h.synced || behind < -frames || behind > frames*maxCatchUp {
		if h.synced {
			h.stats.resyncs.Add(1)
			h.logger.Debug("cycle resync", "cycle_time", h.cycleTime, "now", now)
		}
		h.cycleTime = now - frames
		h.synced = true
	}

	for h.cycleTime+frames <= now {
		h.cycle(loopback.CycleInfo{
			CurrentTime: now,
			InputTime:   h.cycleTime - frames,
			OutputTime:  h.cycleTime + int64(h.config.SafetyOffset),
		})
		h.cycleTime += frames
	}
}

// cycle moves one buffer for every attached client
func (h *Host) cycle(info loopback.CycleInfo) {
	frames := h.config.BufferFrames
	channels := h.engine.Channels()
	producers, consumers := h.snapshot()

	for _, ep := range loopback.Endpoints {
		if len(producers[ep]) == 0 {
			continue
		}
		h.mix(producers[ep], frames, channels)
		err := h.engine.Transfer(ep, loopback.StreamOutput, loopback.WriteMix, info, frames, h.mixBuf)
		switch {
		case err == nil:
			h.stats.framesWritten.Add(uint64(frames))
		case errors.Is(err, loopback.ErrOverload):
			total := h.stats.overloads.Add(1)
			if h.overloadLimit.Allow() {
				h.logger.Warn("write overload", "endpoint", ep, "output_time", info.OutputTime,
					"current_time", info.CurrentTime, "total", total)
			}
		default:
			h.logger.Debug("write failed", "endpoint", ep, "error", err)
		}
	}

	for _, ep := range loopback.Endpoints {
		if len(consumers[ep]) == 0 {
			continue
		}
		err := h.engine.Transfer(ep, loopback.StreamInput, loopback.ReadInput, info, frames, h.readBuf)
		if err != nil {
			h.logger.Debug("read failed", "endpoint", ep, "error", err)
			continue
		}
		h.stats.framesRead.Add(uint64(frames))
		for _, a := range consumers[ep] {
			a.consumer.Consume(h.readBuf)
		}
	}

	h.stats.cycles.Add(1)
}

// mix sums every producer's output into mixBuf
func (h *Host) mix(producers []*attachment, frames, channels int) {
	clear(h.mixBuf)
	scratch := h.readBuf
	for i, a := range producers {
		dst := h.mixBuf
		if i > 0 {
			dst = scratch
			clear(dst)
		}
		n := a.producer.Produce(dst)
		if n < frames {
			clear(dst[max(n, 0)*channels:])
		}
		if i > 0 {
			for j := range h.mixBuf {
				h.mixBuf[j] += scratch[j]
			}
		}
	}
}
