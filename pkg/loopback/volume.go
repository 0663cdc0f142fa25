// ABOUTME: Volume conversions between linear, decibel, scalar and slider forms
// ABOUTME: Pure functions with a -64 dB floor
package loopback

import "math"

const (
	// MinDecibel is the volume floor; anything at or below it is silence
	MinDecibel = -64.0
	// MaxDecibel is unity gain
	MaxDecibel = 0.0
)

// minLinear is the linear equivalent of MinDecibel
var minLinear = math.Pow(10, MinDecibel/20)

// VolumeToDecibel converts a linear gain to decibels, floored at MinDecibel
func VolumeToDecibel(volume float64) float64 {
	if volume <= minLinear {
		return MinDecibel
	}
	return 20 * math.Log10(volume)
}

// VolumeFromDecibel converts decibels to a linear gain; MinDecibel and below map to 0
func VolumeFromDecibel(decibel float64) float64 {
	if decibel <= MinDecibel {
		return 0
	}
	return math.Pow(10, decibel/20)
}

// VolumeToScalar maps a linear gain onto the control's dB-linear [0,1] scale
func VolumeToScalar(volume float64) float64 {
	return (VolumeToDecibel(volume) - MinDecibel) / (MaxDecibel - MinDecibel)
}

// VolumeFromScalar is the inverse of VolumeToScalar
func VolumeFromScalar(scalar float64) float64 {
	return VolumeFromDecibel(scalar*(MaxDecibel-MinDecibel) + MinDecibel)
}

// SliderToDecibel applies the perceptual slider curve. UI shaping only.
func SliderToDecibel(slider float64) float64 {
	return MinDecibel + slider*slider*-MinDecibel
}

// DecibelToSlider is the inverse of SliderToDecibel
func DecibelToSlider(decibel float64) float64 {
	v := (decibel - MinDecibel) / -MinDecibel
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
