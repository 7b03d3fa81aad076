package petalsonic

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tr-nc/petalsonic/internal/resample"
	"github.com/tr-nc/petalsonic/internal/ring"
	"github.com/tr-nc/petalsonic/internal/spatial"
	"github.com/tr-nc/petalsonic/internal/vecmath"
)

// backpressureSleep is the render thread's fixed short sleep when the ring
// buffer is above its high-water mark (spec.md §4.6 step 3).
const backpressureSleep = 500 * time.Microsecond

// renderLoop is the render thread, component C7: pulls commands (via the
// mixer's own dispatch), drives the mixer at world rate, feeds the
// resampler, and pushes the result onto the ring buffer. It owns
// thread-local scratch buffers for the world-rate and resampled blocks, which
// are reused once warmed up (spec.md §5 "Thread-local storage"). Other
// per-iteration values are still allocated: the completed/looped id slices,
// the timing snapshot, and whatever the mixer and spatial processor allocate.
type renderLoop struct {
	mixer      *Mixer
	spatial    *spatial.Processor // may be nil: optional capability
	resampler  *resample.Converter
	ringBuf    *ring.Ring
	blockSize  int
	channels   int
	deviceRate int
	worldRate  int

	listener     *listenerState
	events       *unboundedQueue[Event]
	timingEvents *unboundedQueue[TimingEvent]
	lastTiming   *atomic.Pointer[TimingEvent]
	logger       *slog.Logger

	shutdown atomic.Bool
	wg       *sync.WaitGroup

	worldScratch    []float32
	resampleScratch []float32
}

// listenerState is the mutex-protected small struct T2 reads via try_lock
// once per block and T1 writes via set_listener_pose (spec.md §5).
type listenerState struct {
	mu   sync.Mutex
	pose vecmath.Pose
}

func newListenerState() *listenerState {
	return &listenerState{pose: vecmath.IdentityPose}
}

func (l *listenerState) Set(pose vecmath.Pose) {
	l.mu.Lock()
	l.pose = pose
	l.mu.Unlock()
}

// Read returns the last published pose. On lock contention it returns the
// most recently cached value without blocking (spec.md §5: T2 reads with
// try_lock once per block).
func (l *listenerState) Read(cached vecmath.Pose) vecmath.Pose {
	if !l.mu.TryLock() {
		return cached
	}
	defer l.mu.Unlock()
	return l.pose
}

// run is the render thread's loop body (spec.md §4.6). It returns when the
// shutdown flag is observed.
func (r *renderLoop) run() {
	defer r.wg.Done()

	cachedPose := vecmath.IdentityPose

	for {
		if r.shutdown.Load() {
			return
		}

		cachedPose = r.listener.Read(cachedPose)

		if r.ringBuf.OccupiedLen() >= 4*r.blockSize {
			time.Sleep(backpressureSleep)
			continue
		}

		samplesToGenerate := r.ringBuf.VacantLen()
		if cap := 2 * r.blockSize; samplesToGenerate > cap {
			samplesToGenerate = cap
		}

		var completed, looped []SourceID
		generated := 0
		for generated < samplesToGenerate {
			if len(r.worldScratch) != r.blockSize*r.channels {
				r.worldScratch = make([]float32, r.blockSize*r.channels)
			}
			world := r.worldScratch
			clearFloat32(world)

			result, ok := r.mixer.ProcessBlock(world, r.blockSize, r.spatial, cachedPose)
			if !ok {
				// Lost try_lock contention this tick: spec.md §5 silent-skip
				// policy. Stop generating for this iteration; the next loop
				// pass retries.
				break
			}
			completed = append(completed, result.CompletedSources...)
			looped = append(looped, result.LoopedSources...)

			needed := int(float64(r.blockSize)*float64(r.deviceRate)/float64(r.worldRate)) + 4
			if len(r.resampleScratch) < needed*r.channels {
				r.resampleScratch = make([]float32, needed*r.channels)
			}
			dst := r.resampleScratch
			written, _, err := r.resampler.Process(world, dst)
			if err != nil {
				r.logger.Error("resample failed, dropping block", "error", err)
				generated += r.blockSize
				continue
			}

			for i := 0; i < written; i++ {
				left := dst[i*r.channels]
				right := left
				if r.channels >= 2 {
					right = dst[i*r.channels+1]
				}
				if !r.ringBuf.TryPush(ring.Frame{Left: left, Right: right}) {
					// Ring full: stop pushing this iteration (spec.md §4.6
					// step 5d). Remaining generated samples are implicitly
					// discarded; cursors already advanced so the next tick
					// regenerates fresh content rather than replaying stale.
					break
				}
			}

			generated += r.blockSize
		}

		for _, id := range completed {
			sendEvent(r.events, Event{Kind: EventSourceCompleted, Source: id})
		}
		for _, id := range looped {
			sendEvent(r.events, Event{Kind: EventSourceLooped, Source: id})
		}
		timing := TimingEvent{
			FramesFilled:     generated,
			CompletedSources: len(completed),
			LoopedSources:    len(looped),
			RingOccupancy:    r.ringBuf.OccupiedLen(),
			RingCapacity:     r.ringBuf.Capacity(),
		}
		sendTiming(r.timingEvents, timing)
		if r.lastTiming != nil {
			r.lastTiming.Store(&timing)
		}
	}
}

func clearFloat32(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// sendEvent and sendTiming enqueue onto the unbounded queues shared with
// World without ever blocking the render thread, even if the host has gone
// a long time without calling poll_events.
func sendEvent(q *unboundedQueue[Event], ev Event) {
	q.Push(ev)
}

func sendTiming(q *unboundedQueue[TimingEvent], ev TimingEvent) {
	q.Push(ev)
}
