package petalsonic

import (
	"testing"

	"github.com/tr-nc/petalsonic/internal/vecmath"
)

func newPlaybackTestBuffer(t *testing.T, frames int, value float32) *AudioBuffer {
	t.Helper()
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = value
	}
	buf, err := NewAudioBuffer(samples, 48000, 1)
	if err != nil {
		t.Fatalf("NewAudioBuffer: %v", err)
	}
	return buf
}

func TestPlaybackInstanceStartsStopped(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 10, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopOnce)
	if inst.State() != StateStopped {
		t.Fatalf("State() = %v, want Stopped", inst.State())
	}
	if inst.Cursor() != 0 {
		t.Fatalf("Cursor() = %d, want 0", inst.Cursor())
	}
}

func TestPlaybackInstancePlayFromBeginningResetsCursor(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 10, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopOnce)
	inst.PlayFromBeginning()
	dest := make([]float32, 5)
	inst.FillBuffer(dest, 1)
	if inst.Cursor() != 5 {
		t.Fatalf("Cursor() = %d, want 5 after filling 5 frames", inst.Cursor())
	}
	inst.PlayFromBeginning()
	if inst.Cursor() != 0 {
		t.Fatalf("Cursor() = %d, want 0 after PlayFromBeginning", inst.Cursor())
	}
	if inst.State() != StatePlaying {
		t.Fatalf("State() = %v, want Playing", inst.State())
	}
}

func TestPlaybackInstanceStopPreservesCursor(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 10, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopOnce)
	inst.PlayFromBeginning()
	inst.FillBuffer(make([]float32, 3), 1)
	inst.Stop()
	if inst.State() != StateStopped {
		t.Fatalf("State() = %v, want Stopped", inst.State())
	}
	if inst.Cursor() != 3 {
		t.Fatalf("Cursor() = %d, want 3 preserved across Stop", inst.Cursor())
	}
}

func TestPlaybackInstancePauseThenResume(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 10, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopOnce)
	inst.PlayFromBeginning()
	inst.FillBuffer(make([]float32, 3), 1)
	inst.Pause()

	dest := make([]float32, 3)
	contributed := inst.FillBuffer(dest, 1)
	if contributed != 0 {
		t.Fatalf("FillBuffer while Paused contributed %d, want 0", contributed)
	}

	inst.Resume()
	if inst.State() != StatePlaying {
		t.Fatalf("State() = %v, want Playing after Resume", inst.State())
	}
	if inst.Cursor() != 3 {
		t.Fatalf("Cursor() = %d, want 3 (Resume must not touch cursor)", inst.Cursor())
	}
}

func TestPlaybackInstanceFillBufferReachesEndOfData(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 5, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopOnce)
	inst.PlayFromBeginning()

	dest := make([]float32, 10) // longer than the buffer
	contributed := inst.FillBuffer(dest, 1)
	if contributed != 5 {
		t.Fatalf("FillBuffer contributed %d frames, want 5", contributed)
	}
	if !inst.ReachedEndThisBlock() {
		t.Fatal("expected ReachedEndThisBlock after exhausting the buffer")
	}
	if inst.State() != StateStopped {
		t.Fatalf("State() = %v, want Stopped after reaching end of data", inst.State())
	}
}

func TestPlaybackInstanceFillBufferAppliesVolume(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 5, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(0.5), LoopOnce)
	inst.PlayFromBeginning()

	dest := make([]float32, 5)
	inst.FillBuffer(dest, 1)
	for i, v := range dest {
		if v != 0.5 {
			t.Errorf("dest[%d] = %v, want 0.5 (1.0 source * 0.5 volume)", i, v)
		}
	}
}

func TestPlaybackInstanceFillBufferMixesAdditively(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 5, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopOnce)
	inst.PlayFromBeginning()

	dest := []float32{0.25, 0.25, 0.25, 0.25, 0.25}
	inst.FillBuffer(dest, 1)
	for i, v := range dest {
		if v != 1.25 {
			t.Errorf("dest[%d] = %v, want 1.25 (pre-filled 0.25 + source 1.0)", i, v)
		}
	}
}

func TestPlaybackInstanceFillMonoCopiesWithoutMixing(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 5, 0.4)
	inst := NewPlaybackInstance(1, buf, SpatialConfig(vecmath.Vector3{}, 1.0), LoopOnce)
	inst.PlayFromBeginning()

	dest := []float32{9, 9, 9, 9, 9}
	contributed := inst.FillMono(dest)
	if contributed != 5 {
		t.Fatalf("FillMono contributed %d, want 5", contributed)
	}
	for i, v := range dest {
		if v != 0.4 {
			t.Errorf("dest[%d] = %v, want 0.4 (overwritten, not mixed)", i, v)
		}
	}
}

func TestPlaybackInstanceInfiniteLoopReachesEndRepeatedly(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 5, 1.0)
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopInfinite)
	inst.PlayFromBeginning()

	inst.FillBuffer(make([]float32, 5), 1)
	if !inst.ReachedEndThisBlock() {
		t.Fatal("expected ReachedEndThisBlock at end of buffer regardless of loop mode")
	}
	inst.ClearReachedEndThisBlock()
	inst.PlayFromBeginning() // mixer's restart-on-loop responsibility
	if inst.Cursor() != 0 {
		t.Fatalf("Cursor() = %d, want 0 after loop restart", inst.Cursor())
	}
}

func TestPlaybackInstanceCurrentTime(t *testing.T) {
	buf := newPlaybackTestBuffer(t, 48000, 1.0) // 1 second @ 48kHz
	inst := NewPlaybackInstance(1, buf, NonSpatialConfig(1.0), LoopOnce)
	inst.PlayFromBeginning()
	inst.FillBuffer(make([]float32, 24000), 1)
	if got := inst.CurrentTime(); got != 0.5 {
		t.Fatalf("CurrentTime() = %v, want 0.5", got)
	}
}
