package resample

import (
	"math"
	"testing"
)

func TestBypassIdentity(t *testing.T) {
	// R2: source_rate == target_rate is the identity on every block.
	conv, err := NewFixedInput(48000, 48000, 1, 4)
	if err != nil {
		t.Fatalf("NewFixedInput: %v", err)
	}
	src := []float32{0.1, -0.2, 0.3, -0.4}
	dst := make([]float32, 4)
	written, consumed, err := conv.Process(src, dst)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if written != 4 || consumed != 4 {
		t.Fatalf("written=%d consumed=%d, want 4/4", written, consumed)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("dst[%d] = %v, want %v (bit-identical bypass)", i, dst[i], src[i])
		}
	}
}

func TestFixedInputSizeMismatch(t *testing.T) {
	conv, err := NewFixedInput(48000, 44100, 1, 10)
	if err != nil {
		t.Fatalf("NewFixedInput: %v", err)
	}
	_, _, err = conv.Process(make([]float32, 5), make([]float32, 100))
	if err == nil {
		t.Fatal("expected AudioFormat-equivalent error on input size mismatch")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := NewFixedInput(0, 48000, 1, 10); err == nil {
		t.Error("expected error for zero source rate")
	}
	if _, err := NewFixedInput(48000, 48000, 0, 10); err == nil {
		t.Error("expected error for zero channels")
	}
	if _, err := NewFixedInput(48000, 48000, 1, 0); err == nil {
		t.Error("expected error for zero inputFrames")
	}
}

func TestResampleRatioIsInverseConvention(t *testing.T) {
	conv, err := NewFixedInput(48000, 44100, 1, 1024)
	if err != nil {
		t.Fatalf("NewFixedInput: %v", err)
	}
	got := conv.ResampleRatio()
	want := 48000.0 / 44100.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ResampleRatio() = %v, want source/target = %v", got, want)
	}
}

func TestDownsampleApproxOutputCount(t *testing.T) {
	// world_rate=48000 -> device_rate=44100, matching scenario S2's ratio.
	const srcRate, dstRate, ch, frames = 48000, 44100, 1, 1024
	conv, err := NewFixedInput(srcRate, dstRate, ch, frames)
	if err != nil {
		t.Fatalf("NewFixedInput: %v", err)
	}

	src := make([]float32, frames*ch)
	for i := range src {
		src[i] = float32(math.Sin(float64(i) * 0.01))
	}
	dst := make([]float32, frames*ch) // destination sized generously

	totalWritten, totalConsumed := 0, 0
	const blocks = 94 // ~96000 frames total input, matches S2 scaled down
	for b := 0; b < blocks; b++ {
		w, c, err := conv.Process(src, dst)
		if err != nil {
			t.Fatalf("Process block %d: %v", b, err)
		}
		totalWritten += w
		totalConsumed += c
	}

	wantWritten := int(math.Round(float64(totalConsumed) * float64(dstRate) / float64(srcRate)))
	// P3: sum of frames produced equals round(consumed * target/source) within
	// +-1 per block.
	if diff := abs(totalWritten - wantWritten); diff > blocks {
		t.Errorf("totalWritten=%d, want approx %d (diff %d over %d blocks)", totalWritten, wantWritten, diff, blocks)
	}
}

func TestFixedOutputZeroFillsOnUnderrun(t *testing.T) {
	conv, err := NewFixedOutput(48000, 48000, 1, 8)
	if err != nil {
		t.Fatalf("NewFixedOutput: %v", err)
	}
	dst := make([]float32, 8)
	// No input fed yet: should zero-fill and report 0 consumed.
	written, consumed, err := conv.Process(nil, dst)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if consumed != 0 {
		t.Errorf("consumed = %d, want 0", consumed)
	}
	_ = written
	for i, v := range dst {
		if v != 0 {
			t.Errorf("dst[%d] = %v, want 0 (zero-filled underrun)", i, v)
		}
	}
}

func TestFixedOutputDestinationTooSmall(t *testing.T) {
	conv, err := NewFixedOutput(48000, 48000, 1, 16)
	if err != nil {
		t.Fatalf("NewFixedOutput: %v", err)
	}
	_, _, err = conv.Process(make([]float32, 16), make([]float32, 4))
	if err == nil {
		t.Fatal("expected error when destination smaller than fixedOutputFrames")
	}
}

func TestConvertOfflineIdentityOnEqualRates(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	out, err := ConvertOffline(src, 48000, 48000, 1)
	if err != nil {
		t.Fatalf("ConvertOffline: %v", err)
	}
	if len(out) != len(src) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(src))
	}
	for i := range src {
		if out[i] != src[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], src[i])
		}
	}
}

func TestConvertOfflineResamples(t *testing.T) {
	srcFrames := 96000
	src := make([]float32, srcFrames)
	for i := range src {
		src[i] = float32(math.Sin(float64(i) * 0.01))
	}
	out, err := ConvertOffline(src, 48000, 44100, 1)
	if err != nil {
		t.Fatalf("ConvertOffline: %v", err)
	}
	want := int(float64(srcFrames) * 44100.0 / 48000.0)
	if diff := abs(len(out) - want); diff > 8 {
		t.Errorf("len(out) = %d, want approx %d", len(out), want)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
