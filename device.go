package petalsonic

// SampleFormat enumerates the device sample formats a DeviceStream can be
// negotiated for (spec.md §9 open question: a device reporting a format
// other than these three variants returns a typed error rather than
// guessing a conversion).
type SampleFormat int

const (
	SampleFormatF32 SampleFormat = iota
	SampleFormatI16
	SampleFormatU16
)

// DeviceStream is an opened, running output stream. Write blocks until
// exactly one framesPerBuffer-sized block has been delivered to the
// driver, matching the teacher's blocking-stream idiom (captureStream.Read
// / playbackStream.Write) rather than a push-style callback — the device
// goroutine in engine.go owns the loop that calls Write repeatedly.
type DeviceStream interface {
	// Write blocks until buf (interleaved, framesPerBuffer*channels
	// samples) has been consumed by the driver.
	Write(buf []float32) error

	// Stop halts the stream; any in-flight Write call is unblocked and
	// returns. Spec.md's start/stop sequencing discipline requires Stop to
	// be called, and any goroutine calling Write to have returned, before
	// Close.
	Stop() error

	// Close releases the stream's native resources.
	Close() error
}

// DeviceBackend abstracts the audio output device (spec.md §6 collaborator
// interface "Device backend"): it reports the default output device's
// native rate/format before Open, then negotiates and opens a stream at
// the engine's requested rate/channels/format.
type DeviceBackend interface {
	// DefaultOutputFormat reports the default output device's native
	// sample rate, channel count, and sample format, without opening it.
	DefaultOutputFormat() (sampleRate, channels int, format SampleFormat, err error)

	// Open negotiates and starts an output stream at the given
	// rate/channels/format with framesPerBuffer frames per Write call.
	Open(sampleRate, channels int, format SampleFormat, framesPerBuffer int) (DeviceStream, error)
}

func clampF32(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
