// Package ring implements the single-producer/single-consumer lock-free
// frame queue that decouples the render loop from the device callback
// (spec.md §4.5, §3 "Ring-buffer item"). It plays the same shock-absorber
// role the teacher's buffered channels (CaptureOut, PlaybackIn,
// captureChannelBuf/playbackChannelBuf) play in the voice pipeline, but as a
// fixed-capacity array with atomic cursors instead of a channel, so
// TryPush/TryPop are truly non-blocking and allocation-free in the hot path.
package ring

import "sync/atomic"

// Frame is one stereo sample pair, the ring's fixed element type (spec.md §3:
// "prefer a fixed-struct element type over a flat f32 queue" — §9 design
// notes — so left/right stay atomic per frame).
type Frame struct {
	Left, Right float32
}

// Ring is a fixed-capacity SPSC queue of Frame. The zero value is not usable;
// construct with New. Safe for exactly one producer goroutine and one
// consumer goroutine operating concurrently; no other concurrency pattern is
// supported.
type Ring struct {
	buf      []Frame
	capacity uint64
	mask     uint64

	// head is the next write index (producer-owned), tail is the next read
	// index (consumer-owned). Both are monotonically increasing counters,
	// not indices modulo capacity, so OccupiedLen/VacantLen are simple
	// subtractions with no wraparound arithmetic.
	head atomic.Uint64
	tail atomic.Uint64
}

// New returns a Ring with the given capacity. Capacity is rounded up to the
// next power of two so index masking can replace the modulo in the hot path.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	cap64 := nextPowerOfTwo(uint64(capacity))
	return &Ring{
		buf:      make([]Frame, cap64),
		capacity: cap64,
		mask:     cap64 - 1,
	}
}

func nextPowerOfTwo(n uint64) uint64 {
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the ring's fixed capacity (spec.md P4: occupied + vacant
// == capacity at all times).
func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// TryPush enqueues f without blocking. Returns false if the ring is full; the
// producer must not wait on the consumer (spec.md §4.5) — it should pause
// and retry on its next loop iteration instead.
func (r *Ring) TryPush(f Frame) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= r.capacity {
		return false
	}
	r.buf[head&r.mask] = f
	r.head.Store(head + 1)
	return true
}

// TryPop dequeues one frame without blocking. Returns the zero Frame and
// false if the ring is empty.
func (r *Ring) TryPop() (Frame, bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail >= head {
		return Frame{}, false
	}
	f := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return f, true
}

// OccupiedLen returns the number of frames currently queued.
func (r *Ring) OccupiedLen() int {
	return int(r.head.Load() - r.tail.Load())
}

// VacantLen returns the remaining free capacity.
func (r *Ring) VacantLen() int {
	return int(r.capacity) - r.OccupiedLen()
}

// CapacityFor returns the ring-buffer capacity floor spec.md §3 specifies:
// max(100000, 8*blockSize) frames. Exported as a function (rather than a
// method on an as-yet-unconstructed Ring) so callers size the ring before
// allocating it.
func CapacityFor(blockSize int) int {
	const floor = 100_000
	c := 8 * blockSize
	if c < floor {
		c = floor
	}
	return c
}
