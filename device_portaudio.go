package petalsonic

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend is the default DeviceBackend, built on the same
// gordonklaus/portaudio binding the engine's predecessor used for its
// capture/playback streams.
type PortAudioBackend struct{}

// NewPortAudioBackend returns a backend bound to the PortAudio host API.
// Callers must have called portaudio.Initialize (and arrange
// portaudio.Terminate at process exit); the engine does not manage the
// library's global lifecycle, matching the collaborator boundary spec.md
// §6 draws around the device backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// DefaultOutputFormat reports PortAudio's default output device rate and
// channel count. PortAudio's Go binding always moves f32 samples at the API
// boundary used here, so this always reports SampleFormatF32.
func (b *PortAudioBackend) DefaultOutputFormat() (int, int, SampleFormat, error) {
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return 0, 0, SampleFormatF32, fmt.Errorf("%w: default output device: %v", ErrAudioDevice, err)
	}
	channels := dev.MaxOutputChannels
	if channels > 2 {
		channels = 2
	}
	return int(dev.DefaultSampleRate), channels, SampleFormatF32, nil
}

// Open negotiates a PortAudio output stream and starts it.
func (b *PortAudioBackend) Open(sampleRate, channels int, format SampleFormat, framesPerBuffer int) (DeviceStream, error) {
	outputDev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: default output device: %v", ErrAudioDevice, err)
	}

	buf := make([]float32, framesPerBuffer*channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: channels,
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open stream: %v", ErrAudioDevice, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start stream: %v", ErrAudioDevice, err)
	}

	return &portaudioStream{stream: stream, buf: buf}, nil
}

// portaudioStream adapts *portaudio.Stream to the DeviceStream interface.
type portaudioStream struct {
	stream *portaudio.Stream
	buf    []float32
}

// Write copies src into the stream's pre-registered buffer and blocks on
// one PortAudio Write call, mirroring the teacher's Start/Stop sequencing:
// Pa_WriteStream blocks until the driver has consumed the buffer.
func (s *portaudioStream) Write(src []float32) error {
	copy(s.buf, src)
	if err := s.stream.Write(); err != nil {
		return fmt.Errorf("%w: write: %v", ErrAudioDevice, err)
	}
	return nil
}

// Stop halts the stream. Sequence matters (per the teacher's audio.go
// comment this is adapted from): Pa_StopStream causes any blocking
// Pa_WriteStream call to return, unblocking the device goroutine before
// Close frees the native stream.
func (s *portaudioStream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("%w: stop: %v", ErrAudioDevice, err)
	}
	return nil
}

// Close releases the PortAudio stream. Callers must call Stop first.
func (s *portaudioStream) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrAudioDevice, err)
	}
	return nil
}
