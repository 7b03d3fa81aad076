package petalsonic

import "errors"

// Error taxonomy for the engine's public surface. Each sentinel marks a
// category from the spec's failure-mode table; wrap with fmt.Errorf("...:
// %w", ErrX) to attach detail while keeping errors.Is matching intact.
var (
	// ErrAudioFormat reports a malformed or unsupported buffer/stream shape:
	// a non-positive sample rate or channel count, a sample count that is
	// not a multiple of the channel count, or a resampler that cannot be
	// built for the negotiated rates.
	ErrAudioFormat = errors.New("petalsonic: audio format error")

	// ErrAudioLoading reports a failure while registering or converting
	// audio (offline resample failure, nil buffer).
	ErrAudioLoading = errors.New("petalsonic: audio loading error")

	// ErrAudioDevice reports a failure opening, starting, or writing to the
	// output device.
	ErrAudioDevice = errors.New("petalsonic: audio device error")

	// ErrEngine reports engine misuse, such as playing or updating the
	// config of an unknown source id. Starting a running engine or stopping
	// a stopped one is a no-op, not an error.
	ErrEngine = errors.New("petalsonic: engine error")

	// ErrSpatialAudio is the category for failures specific to the spatial
	// processor. No current code path returns it: spatial.New has no
	// failure path.
	ErrSpatialAudio = errors.New("petalsonic: spatial audio error")
)
