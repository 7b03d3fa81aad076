package petalsonic

import "time"

// NullDeviceBackend discards everything written to it. It exists so the
// engine can run (and be tested) without a real audio device, the same
// silent-fallback role goshadertoy's NullDevice plays when no audio input
// is configured.
type NullDeviceBackend struct {
	SampleRate int
	Channels   int
}

// NewNullDeviceBackend returns a backend reporting the given rate/channels
// as its "default" format and producing a stream that discards all writes.
func NewNullDeviceBackend(sampleRate, channels int) *NullDeviceBackend {
	return &NullDeviceBackend{SampleRate: sampleRate, Channels: channels}
}

// DefaultOutputFormat reports the configured rate/channels as f32.
func (b *NullDeviceBackend) DefaultOutputFormat() (int, int, SampleFormat, error) {
	return b.SampleRate, b.Channels, SampleFormatF32, nil
}

// Open returns a stream that discards every Write call, pacing it to
// roughly real time so the device goroutine behaves like a real callback
// instead of busy-spinning against an empty ring buffer.
func (b *NullDeviceBackend) Open(sampleRate, channels int, format SampleFormat, framesPerBuffer int) (DeviceStream, error) {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	period := time.Duration(framesPerBuffer) * time.Second / time.Duration(sampleRate)
	return &nullStream{period: period}, nil
}

type nullStream struct {
	period time.Duration
}

func (s *nullStream) Write(buf []float32) error {
	time.Sleep(s.period)
	return nil
}
func (*nullStream) Stop() error  { return nil }
func (*nullStream) Close() error { return nil }
