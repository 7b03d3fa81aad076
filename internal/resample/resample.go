// Package resample implements the streaming sample-rate converter bridging
// world rate to device rate (spec.md §4.1, §4.8). It plays the role the
// teacher's Opus codec plays in audio.go — a fixed-frame-size transcoding
// step sitting between capture/mix and the wire/device — except here both
// ends are raw interleaved f32 PCM and the "codec" is linear interpolation
// driven at an explicit ratio rather than a native library call.
//
// Two ratio conventions exist in this domain (spec.md §9 design notes): a
// DSP library's internal ratio is conventionally target/source (output over
// input), while ad-hoc diagnostics often report source/target. This package
// uses target/source everywhere internally and exposes ResampleRatio() as
// the source/target diagnostic accessor spec.md §4.1 calls out — the two
// conventions never mix at a call site.
package resample

import (
	"errors"
	"fmt"
)

// ErrFormat reports an invalid configuration or a fixed-input size mismatch
// (spec.md §4.1 "Failure modes" — surfaced by the caller as AudioFormat).
var ErrFormat = errors.New("resample: invalid format")

// ErrProcessing wraps an underlying conversion failure (surfaced by the
// caller as AudioLoading).
var ErrProcessing = errors.New("resample: processing failed")

// mode selects which of the two deployable shapes (spec.md §4.1) a
// Converter was built for.
type mode int

const (
	modeFixedInput mode = iota
	modeFixedOutput
)

// Converter is a streaming sample-rate converter with bounded internal
// state. The zero value is not usable; construct with NewFixedInput or
// NewFixedOutput.
type Converter struct {
	mode              mode
	sourceRate        int
	targetRate        int
	channels          int
	ratio             float64 // target/source, the internal convention
	fixedInputFrames  int     // modeFixedInput: frames the caller must always supply
	fixedOutputFrames int     // modeFixedOutput: frames the caller always requests
	bypass            bool    // sourceRate == targetRate: pass-through

	// Fixed-output mode accumulates un-consumed input here, per channel
	// interleaved, until enough is buffered to produce the requested output.
	pending []float32

	// fracPos tracks the fractional source-sample position for the linear
	// interpolator so consecutive Process calls chain seamlessly across
	// block boundaries (no audible seams at block edges).
	fracPos float64
	// prevTail holds the last channels-worth of samples from the previous
	// call so interpolation has a "previous sample" to reference at the
	// start of the next block.
	prevTail []float32
	havePrev bool
}

// NewFixedInput returns a Converter where the caller always supplies exactly
// inputFrames source frames per call; output size varies per call with the
// ratio.
func NewFixedInput(sourceRate, targetRate, channels, inputFrames int) (*Converter, error) {
	c, err := newBase(sourceRate, targetRate, channels)
	if err != nil {
		return nil, err
	}
	if inputFrames <= 0 {
		return nil, fmt.Errorf("%w: inputFrames must be positive, got %d", ErrFormat, inputFrames)
	}
	c.mode = modeFixedInput
	c.fixedInputFrames = inputFrames
	return c, nil
}

// NewFixedOutput returns a Converter where the caller always requests
// exactly outputFrames frames per call; the converter accumulates a
// per-channel input buffer and pulls InputFramesNext() frames from it
// internally.
func NewFixedOutput(sourceRate, targetRate, channels, outputFrames int) (*Converter, error) {
	c, err := newBase(sourceRate, targetRate, channels)
	if err != nil {
		return nil, err
	}
	if outputFrames <= 0 {
		return nil, fmt.Errorf("%w: outputFrames must be positive, got %d", ErrFormat, outputFrames)
	}
	c.mode = modeFixedOutput
	c.fixedOutputFrames = outputFrames
	return c, nil
}

func newBase(sourceRate, targetRate, channels int) (*Converter, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("%w: sample rates must be positive (source=%d target=%d)", ErrFormat, sourceRate, targetRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channels must be positive, got %d", ErrFormat, channels)
	}
	return &Converter{
		sourceRate: sourceRate,
		targetRate: targetRate,
		channels:   channels,
		ratio:      float64(targetRate) / float64(sourceRate),
		bypass:     sourceRate == targetRate,
		prevTail:   make([]float32, channels),
	}, nil
}

// ResampleRatio returns the diagnostic source/target ratio (the inverse of
// the internal target/source convention). This accessor exists only for
// observability; nothing inside the package computes with it.
func (c *Converter) ResampleRatio() float64 {
	return float64(c.sourceRate) / float64(c.targetRate)
}

// InputFramesNext reports, in fixed-output mode, how many additional input
// frames the converter needs pulled from the caller's source before it can
// produce a full outputFrames block. Always 0 in fixed-input mode.
func (c *Converter) InputFramesNext() int {
	if c.mode != modeFixedOutput {
		return 0
	}
	haveFrames := len(c.pending) / c.channels
	needFrames := int(float64(c.fixedOutputFrames)/c.ratio) + 2 // +2 guards interpolation slack
	if needFrames <= haveFrames {
		return 0
	}
	return needFrames - haveFrames
}

// Process converts src into dst and reports (framesWritten, framesConsumed).
// dst's capacity bounds framesWritten: if the destination fills before all
// available source is consumed, framesWritten is truncated but
// framesConsumed still accurately reflects how much of src was read
// (spec.md §4.1 "Guarantees"). Any of dst beyond framesWritten is
// zero-filled in fixed-output mode so callers never read stale samples.
func (c *Converter) Process(src, dst []float32) (framesWritten, framesConsumed int, err error) {
	switch c.mode {
	case modeFixedInput:
		return c.processFixedInput(src, dst)
	case modeFixedOutput:
		return c.processFixedOutput(src, dst)
	default:
		return 0, 0, fmt.Errorf("%w: converter not initialised", ErrFormat)
	}
}

func (c *Converter) processFixedInput(src, dst []float32) (int, int, error) {
	if len(src) != c.fixedInputFrames*c.channels {
		return 0, 0, fmt.Errorf("%w: fixed-input converter expects %d frames, got %d",
			ErrFormat, c.fixedInputFrames, len(src)/c.channels)
	}

	if c.bypass {
		n := copy(dst, src)
		framesWritten := n / c.channels
		return framesWritten, framesWritten, nil
	}

	return c.interpolate(src, dst)
}

func (c *Converter) processFixedOutput(src, dst []float32) (int, int, error) {
	if len(dst) < c.fixedOutputFrames*c.channels {
		return 0, 0, fmt.Errorf("%w: destination too small for %d output frames", ErrFormat, c.fixedOutputFrames)
	}

	c.pending = append(c.pending, src...)
	consumedFrames := len(src) / c.channels

	if c.bypass {
		want := c.fixedOutputFrames * c.channels
		n := copy(dst, c.pending)
		if n < want {
			for i := n; i < want; i++ {
				dst[i] = 0
			}
		}
		framesWritten := n / c.channels
		c.pending = c.pending[min(n, len(c.pending)):]
		return framesWritten, consumedFrames, nil
	}

	wantDst := dst[:c.fixedOutputFrames*c.channels]
	written, usedFrames, err := c.interpolate(c.pending, wantDst)
	if err != nil {
		return 0, 0, err
	}
	c.pending = c.pending[usedFrames*c.channels:]

	if writtenSamples := written * c.channels; writtenSamples < len(wantDst) {
		for i := writtenSamples; i < len(wantDst); i++ {
			wantDst[i] = 0
		}
	}
	return written, consumedFrames, nil
}

// interpolate runs linear interpolation from src (interleaved, srcFrames
// frames) into dst, advancing c.fracPos across calls so resampling is
// continuous across block boundaries. Output is always bounded to
// len(dst)/channels frames. Returns (framesWritten, framesConsumed).
func (c *Converter) interpolate(src []float32, dst []float32) (int, int, error) {
	ch := c.channels
	srcFrames := len(src) / ch
	maxOutFrames := len(dst) / ch

	outFrame := 0
	pos := c.fracPos // fractional source-frame position, 0 at start of src

	for {
		if outFrame >= maxOutFrames {
			break
		}

		srcPos := pos // position in source-sample space
		idx0 := int(srcPos)
		frac := srcPos - float64(idx0)

		if idx0+1 >= srcFrames {
			// Not enough source to interpolate the next output sample yet.
			break
		}

		for ch0 := 0; ch0 < ch; ch0++ {
			var s0, s1 float32
			if idx0 < 0 {
				s0 = c.sampleBefore(ch0)
			} else {
				s0 = src[idx0*ch+ch0]
			}
			s1 = src[(idx0+1)*ch+ch0]
			dst[outFrame*ch+ch0] = s0 + float32(frac)*(s1-s0)
		}
		outFrame++
		pos += 1 / c.ratio // one output frame spans source/target input frames
	}

	// framesConsumed: how many whole source frames are now fully behind us.
	framesConsumed := int(pos)
	if framesConsumed > srcFrames {
		framesConsumed = srcFrames
	}

	// Carry the fractional remainder forward, rebased to the unconsumed tail.
	c.fracPos = pos - float64(framesConsumed)
	if framesConsumed > 0 {
		for ch0 := 0; ch0 < ch; ch0++ {
			c.prevTail[ch0] = src[(framesConsumed-1)*ch+ch0]
		}
		c.havePrev = true
	}

	return outFrame, framesConsumed, nil
}

// sampleBefore returns the last sample seen on channel ch before the
// current src buffer, used when interpolation needs one sample of
// look-behind at the very start of a block.
func (c *Converter) sampleBefore(ch int) float32 {
	if !c.havePrev {
		return 0
	}
	return c.prevTail[ch]
}

// ConvertOffline performs a one-shot, whole-buffer conversion of src
// (interleaved, channels channels) from sourceRate to targetRate. It is used
// by the world's offline registration path (spec.md §4.9 register_audio)
// rather than the streaming pipeline, so it does not need to preserve
// fractional state across calls — it just drives a throwaway fixed-input
// Converter across the whole buffer in one pass.
func ConvertOffline(src []float32, sourceRate, targetRate, channels int) ([]float32, error) {
	if sourceRate == targetRate {
		out := make([]float32, len(src))
		copy(out, src)
		return out, nil
	}

	srcFrames := len(src) / channels
	if srcFrames == 0 {
		return nil, nil
	}

	conv, err := NewFixedInput(sourceRate, targetRate, channels, srcFrames)
	if err != nil {
		return nil, err
	}

	outFrames := int(float64(srcFrames)*float64(targetRate)/float64(sourceRate)) + 2
	dst := make([]float32, outFrames*channels)
	written, _, err := conv.Process(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	return dst[:written*channels], nil
}
