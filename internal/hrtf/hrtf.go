// Package hrtf implements the per-source direct effect (distance
// attenuation + air absorption), order-2 ambisonic encode, and the shared
// ambisonic-to-binaural decode the spatial processor drives each block
// (spec.md §4.3). The decode step is a head-related transfer function
// convolution, grounded the way mirgo_engine's HRTFAudioSource computes an
// interaural time/level difference per block, except here the per-channel
// filter is a fixed impulse response applied by FFT-domain convolution
// (overlap-add) rather than a delay line, since the decoder is shared across
// all ambisonic channels rather than recomputed per source.
package hrtf

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// AmbisonicChannels is the channel count for order-2 (ACN/SN3D) ambisonics:
// (order+1)^2 = 9.
const AmbisonicChannels = 9

// DirectEffect applies distance attenuation and air absorption to a mono
// buffer in place. Both gains are supplied by the caller's simulation step
// (spec.md §4.3 step 4b); this type owns no simulation state of its own.
type DirectEffect struct{}

// NewDirectEffect returns a ready-to-use direct effect. It holds no
// per-source state, so a single instance could in principle be shared, but
// the spatial processor keeps one handle per source to match the
// create-lazily/destroy-on-removal lifecycle spec.md §4.3 describes.
func NewDirectEffect() *DirectEffect {
	return &DirectEffect{}
}

// Process scales src by distanceAttenuation*airAbsorption into dst. dst and
// src may alias.
func (d *DirectEffect) Process(dst, src []float32, distanceAttenuation, airAbsorption float32) {
	gain := distanceAttenuation * airAbsorption
	for i, s := range src {
		dst[i] = s * gain
	}
}

// EncodeEffect projects a mono signal into order-2 ambisonics (ACN/SN3D)
// given a local (right, up, forward) direction unit vector, accumulating
// into the caller's 9-channel interleaved-by-time buffer.
type EncodeEffect struct {
	coeffs [AmbisonicChannels]float64
}

// NewEncodeEffect returns an encoder handle.
func NewEncodeEffect() *EncodeEffect {
	return &EncodeEffect{}
}

// SetDirection recomputes the encoder's per-channel gains for the given
// local direction (right, up, forward), expected to already be unit length.
// ACN channel order: W, Y, Z, X, V, T, R, S, U (order 0, then order 1 in
// Y/Z/X, then order 2).
func (e *EncodeEffect) SetDirection(right, up, forward float64) {
	const sqrt3 = 1.7320508075688772
	x, y, z := forward, right, up // ACN/SN3D convention: X=forward, Y=left(-right), Z=up
	y = -y

	e.coeffs[0] = 1 // W
	e.coeffs[1] = y // Y
	e.coeffs[2] = z // Z
	e.coeffs[3] = x // X
	// Order 2 (SN3D-normalised):
	e.coeffs[4] = sqrt3 * x * y             // V
	e.coeffs[5] = sqrt3 * y * z             // T
	e.coeffs[6] = 0.5 * (3*z*z - 1)         // R
	e.coeffs[7] = sqrt3 * x * z             // S
	e.coeffs[8] = 0.5 * sqrt3 * (x*x - y*y) // U
}

// Accumulate multiplies src (mono, frameCount samples) by each ambisonic
// channel's current gain and adds the result into acc, which holds
// AmbisonicChannels separate channel buffers each frameCount long.
func (e *EncodeEffect) Accumulate(acc [AmbisonicChannels][]float32, src []float32) {
	for ch := 0; ch < AmbisonicChannels; ch++ {
		gain := float32(e.coeffs[ch])
		dst := acc[ch]
		for i, s := range src {
			dst[i] += s * gain
		}
	}
}

// Decoder converts an accumulated order-2 ambisonic block into interleaved
// binaural stereo via per-channel HRIR convolution, summed across all 9
// ambisonic channels and both ears. It is shared across all sources in one
// spatial processor (spec.md §4.3 "one shared decoder").
type Decoder struct {
	frameSize  int
	fftSize    int
	irLen      int
	leftFreq   [AmbisonicChannels][]complex128
	rightFreq  [AmbisonicChannels][]complex128
	overlapL   []float64
	overlapR   []float64
	timeBuf    []complex128
}

// NewDecoder builds a decoder for the given block size using a built-in
// order-2 ambisonic-to-binaural impulse response set (one short FIR pair per
// channel, approximating head shadowing and pinna-less ITD/ILD cues). A
// production deployment would load a measured HRIR set; this ships a
// synthesized one so the engine has no external data-file dependency.
func NewDecoder(frameSize int) *Decoder {
	irLen := 32
	fftSize := nextPowerOfTwo(frameSize + irLen - 1)

	d := &Decoder{
		frameSize: frameSize,
		fftSize:   fftSize,
		irLen:     irLen,
		overlapL:  make([]float64, fftSize),
		overlapR:  make([]float64, fftSize),
		timeBuf:   make([]complex128, fftSize),
	}

	irsL, irsR := synthesizeHRIRs(irLen)
	for ch := 0; ch < AmbisonicChannels; ch++ {
		d.leftFreq[ch] = fftOf(irsL[ch], fftSize)
		d.rightFreq[ch] = fftOf(irsR[ch], fftSize)
	}
	return d
}

// Decode convolves acc (9 channel buffers, frameSize samples each) with the
// decoder's HRIRs and writes frameSize frames of interleaved stereo into
// out (len(out) == 2*frameSize). Uses overlap-add so successive blocks tail
// correctly into each other.
func (d *Decoder) Decode(acc [AmbisonicChannels][]float32, out []float32) {
	outL := make([]float64, d.fftSize)
	outR := make([]float64, d.fftSize)

	for ch := 0; ch < AmbisonicChannels; ch++ {
		for i := 0; i < d.fftSize; i++ {
			if i < d.frameSize {
				d.timeBuf[i] = complex(float64(acc[ch][i]), 0)
			} else {
				d.timeBuf[i] = 0
			}
		}
		spec := fft.FFT(d.timeBuf)

		convL := convolveFreq(spec, d.leftFreq[ch], d.fftSize)
		convR := convolveFreq(spec, d.rightFreq[ch], d.fftSize)
		for i := 0; i < d.fftSize; i++ {
			outL[i] += real(convL[i])
			outR[i] += real(convR[i])
		}
	}

	for i := 0; i < d.frameSize; i++ {
		l := outL[i] + d.overlapL[i]
		r := outR[i] + d.overlapR[i]
		out[2*i] = float32(l)
		out[2*i+1] = float32(r)
	}

	copy(d.overlapL, d.overlapL[d.frameSize:])
	copy(d.overlapR, d.overlapR[d.frameSize:])
	for i := d.fftSize - d.frameSize; i < d.fftSize; i++ {
		d.overlapL[i] = 0
		d.overlapR[i] = 0
	}
	for i := 0; i < d.fftSize; i++ {
		tailIdx := i + d.frameSize
		if tailIdx < d.fftSize {
			d.overlapL[i] += outL[tailIdx]
			d.overlapR[i] += outR[tailIdx]
		}
	}
}

func convolveFreq(a, b []complex128, n int) []complex128 {
	prod := make([]complex128, n)
	for i := range prod {
		prod[i] = a[i] * b[i]
	}
	return fft.IFFT(prod)
}

func fftOf(ir []float64, fftSize int) []complex128 {
	padded := make([]complex128, fftSize)
	for i, v := range ir {
		padded[i] = complex(v, 0)
	}
	return fft.FFT(padded)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// synthesizeHRIRs builds a simple per-ambisonic-channel stereo impulse
// response pair: a short decaying sinc-like pulse whose peak delay and
// amplitude differ between the left and right ear proportional to the
// channel's directional bias (W is symmetric, Y carries the strongest
// left/right asymmetry, etc). This is a placeholder spatial cue set, not a
// measured HRTF database.
func synthesizeHRIRs(irLen int) (left, right [AmbisonicChannels][]float64) {
	// Directional bias per ACN channel at ear height, roughly how much each
	// channel's energy favours the right ear (positive) or left ear
	// (negative) when panned.
	bias := [AmbisonicChannels]float64{0, -0.6, 0, 0, -0.3, 0, 0, 0, 0}

	for ch := 0; ch < AmbisonicChannels; ch++ {
		l := make([]float64, irLen)
		r := make([]float64, irLen)
		b := bias[ch]

		leftDelay := 0.0
		rightDelay := 0.0
		if b > 0 {
			leftDelay = b * 4
		} else {
			rightDelay = -b * 4
		}

		for i := 0; i < irLen; i++ {
			t := float64(i)
			envelope := math.Exp(-t / 6)
			l[i] = envelope * sincPulse(t-leftDelay) * (1 - math.Max(0, b)*0.4)
			r[i] = envelope * sincPulse(t-rightDelay) * (1 + math.Min(0, b)*0.4)
		}
		left[ch] = l
		right[ch] = r
	}
	return left, right
}

func sincPulse(t float64) float64 {
	if math.Abs(t) < 1e-9 {
		return 1
	}
	x := math.Pi * t / 3
	return math.Sin(x) / x
}
