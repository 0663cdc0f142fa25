// ABOUTME: Sample rate set and host tick arithmetic
// ABOUTME: Converts sample rate and drift amount into host ticks per frame
package loopback

import "slices"

// HostClockFrequency is the host clock rate in ticks per second. Host time is nanoseconds.
const HostClockFrequency = 1e9

// DefaultDrift is the centre of the drift range (no adjustment)
const DefaultDrift = 0.5

// SupportedSampleRates is the discrete set of nominal rates the device accepts
var SupportedSampleRates = []int{
	8000, 16000, 24000, 44100, 48000, 88200, 96000,
	176400, 192000, 352800, 384000, 705600, 768000,
}

// IsSupportedSampleRate reports whether rate is in SupportedSampleRates
func IsSupportedSampleRate(rate int) bool {
	return slices.Contains(SupportedSampleRates, rate)
}

// HostTicksPerFrame returns the host ticks spanned by one frame at rate
func HostTicksPerFrame(rate int) float64 {
	return HostClockFrequency / float64(rate)
}

// DriftAdjustedTicksPerFrame scales hostTicks by the drift amount.
// Drift 0.5 is neutral; 0 and 1 are -1% and +1% clock speed.
func DriftAdjustedTicksPerFrame(hostTicks, drift float64) float64 {
	return hostTicks * (1 - 0.02*(drift-DefaultDrift))
}
