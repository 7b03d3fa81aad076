package petalsonic

import (
	"fmt"
	"time"
)

// AudioBuffer is immutable interleaved f32 PCM: channel index varies
// fastest inside a frame. Once constructed it is never mutated; it is
// shared by reference between the source registry and any live playback
// instance referencing it, so its lifetime is tied to the last holder
// rather than to any single owner.
type AudioBuffer struct {
	samples     []float32
	sampleRate  int
	channels    int
	totalFrames int
}

// NewAudioBuffer validates and wraps interleaved f32 PCM. samples must be an
// exact multiple of channels.
func NewAudioBuffer(samples []float32, sampleRate, channels int) (*AudioBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrAudioFormat, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channels must be positive, got %d", ErrAudioFormat, channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%w: sample count %d not a multiple of %d channels", ErrAudioFormat, len(samples), channels)
	}

	return &AudioBuffer{
		samples:     samples,
		sampleRate:  sampleRate,
		channels:    channels,
		totalFrames: len(samples) / channels,
	}, nil
}

// SampleRate returns the buffer's native sample rate in Hz.
func (b *AudioBuffer) SampleRate() int { return b.sampleRate }

// Channels returns the buffer's channel count.
func (b *AudioBuffer) Channels() int { return b.channels }

// TotalFrames returns the buffer's frame count.
func (b *AudioBuffer) TotalFrames() int { return b.totalFrames }

// Duration returns the buffer's playback duration.
func (b *AudioBuffer) Duration() time.Duration {
	return time.Duration(float64(b.totalFrames) / float64(b.sampleRate) * float64(time.Second))
}

// FrameAt returns the mono sample at the given frame index, averaging
// across channels if the buffer is multi-channel. Playback instances are
// always driven as mono sources (spec.md §4.2 fill_buffer mixes one mono
// sample per output frame); a multi-channel buffer is stored as registered
// and downmixed here on every read.
func (b *AudioBuffer) FrameAt(frame int) float32 {
	if frame < 0 || frame >= b.totalFrames {
		return 0
	}
	if b.channels == 1 {
		return b.samples[frame]
	}
	var sum float32
	base := frame * b.channels
	for ch := 0; ch < b.channels; ch++ {
		sum += b.samples[base+ch]
	}
	return sum / float32(b.channels)
}
