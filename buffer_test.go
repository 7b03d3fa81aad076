package petalsonic

import "testing"

func TestNewAudioBufferRejectsBadSampleRate(t *testing.T) {
	if _, err := NewAudioBuffer([]float32{0, 0}, 0, 1); err == nil {
		t.Fatal("expected error for non-positive sample rate")
	}
}

func TestNewAudioBufferRejectsBadChannels(t *testing.T) {
	if _, err := NewAudioBuffer([]float32{0, 0}, 48000, 0); err == nil {
		t.Fatal("expected error for non-positive channel count")
	}
}

func TestNewAudioBufferRejectsMisalignedSamples(t *testing.T) {
	if _, err := NewAudioBuffer([]float32{0, 0, 0}, 48000, 2); err == nil {
		t.Fatal("expected error for sample count not a multiple of channels")
	}
}

func TestAudioBufferTotalFramesAndDuration(t *testing.T) {
	buf, err := NewAudioBuffer(make([]float32, 96000), 48000, 2)
	if err != nil {
		t.Fatalf("NewAudioBuffer: %v", err)
	}
	if buf.TotalFrames() != 48000 {
		t.Fatalf("TotalFrames = %d, want 48000", buf.TotalFrames())
	}
	if buf.Duration().Seconds() != 1.0 {
		t.Fatalf("Duration = %v, want 1s", buf.Duration())
	}
}

func TestAudioBufferFrameAtDownmixesStereo(t *testing.T) {
	buf, err := NewAudioBuffer([]float32{1.0, -1.0, 0.5, 0.5}, 48000, 2)
	if err != nil {
		t.Fatalf("NewAudioBuffer: %v", err)
	}
	if got := buf.FrameAt(0); got != 0 {
		t.Errorf("FrameAt(0) = %v, want 0 (average of 1.0, -1.0)", got)
	}
	if got := buf.FrameAt(1); got != 0.5 {
		t.Errorf("FrameAt(1) = %v, want 0.5", got)
	}
}

func TestAudioBufferFrameAtOutOfRangeReturnsZero(t *testing.T) {
	buf, _ := NewAudioBuffer([]float32{1, 2, 3}, 48000, 1)
	if got := buf.FrameAt(-1); got != 0 {
		t.Errorf("FrameAt(-1) = %v, want 0", got)
	}
	if got := buf.FrameAt(99); got != 0 {
		t.Errorf("FrameAt(99) = %v, want 0", got)
	}
}
