// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Converts interleaved float32 audio between rates, carrying state across chunks
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64   // read position relative to the first frame of the next chunk
	lastFrame  []float32 // final frame of the previous chunk, frame index -1
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]float32, channels),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Resample converts input samples to the output rate and returns the number of
// output samples written. Chunks may be any size; interpolation spans chunk boundaries.
// output should hold OutputSamplesNeeded(len(input)) samples.
func (r *Resampler) Resample(input []float32, output []float32) int {
	c := r.channels
	inputFrames := len(input) / c
	outputFrames := len(output) / c
	if inputFrames == 0 {
		return 0
	}

	if r.Passthrough() {
		n := min(inputFrames, outputFrames) * c
		copy(output, input[:n])
		return n
	}

	if !r.primed {
		// Start on the first frame rather than interpolating from silence
		copy(r.lastFrame, input[:c])
		r.position = 0
		r.primed = true
	}

	// frame returns input frame i, where -1 is the previous chunk's last frame
	frame := func(i, ch int) float32 {
		if i < 0 {
			return r.lastFrame[ch]
		}
		return input[i*c+ch]
	}

	outIdx := 0
	for outIdx < outputFrames {
		base := int(r.position + 1) - 1 // floor for positions >= -1
		if base+1 >= inputFrames {
			break
		}
		frac := float32(r.position - float64(base))
		for ch := 0; ch < c; ch++ {
			a := frame(base, ch)
			b := frame(base+1, ch)
			output[outIdx*c+ch] = a + (b-a)*frac
		}
		outIdx++
		r.position += r.ratio
	}

	copy(r.lastFrame, input[(inputFrames-1)*c:inputFrames*c])
	r.position -= float64(inputFrames)
	if r.position < -1 {
		// output was too small for the chunk; the unread input is dropped
		r.position = -1
	}

	return outIdx * c
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	clear(r.lastFrame)
}

// OutputSamplesNeeded estimates how many output samples input samples will produce
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.ratio) + 1
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
