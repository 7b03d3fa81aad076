package petalsonic

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tr-nc/petalsonic/internal/resample"
	"github.com/tr-nc/petalsonic/internal/ring"
	"github.com/tr-nc/petalsonic/internal/spatial"
)

// Engine owns the lifetime of everything downstream of World: the mixer,
// the optional spatial processor, the render thread (T2), the ring buffer,
// and the device stream driven by a dedicated device goroutine (component
// C8, standing in for the teacher's native callback since the portaudio-go
// binding is a blocking Read/Write API rather than a push callback).
//
// Start/Stop follow the same sequencing discipline as the teacher's
// AudioEngine.Start/Stop in audio.go: stop the stream before waiting on the
// goroutines, and only close the stream after they have returned, so a
// blocking Write call never touches a freed native stream.
type Engine struct {
	mu sync.Mutex

	world   *World
	backend DeviceBackend
	logger  *slog.Logger

	mixer      *Mixer
	spatial    *spatial.Processor
	ringBuf    *ring.Ring
	loop       *renderLoop
	stream     DeviceStream
	running    atomic.Bool
	renderWG   sync.WaitGroup
	deviceWG   sync.WaitGroup
	lastTiming atomic.Pointer[TimingEvent]
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine)

// WithDeviceBackend overrides the default PortAudio backend, primarily for
// tests (NullDeviceBackend) or alternate transports.
func WithDeviceBackend(backend DeviceBackend) EngineOption {
	return func(e *Engine) { e.backend = backend }
}

// WithLogger overrides the engine's default slog logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds an Engine bound to world. The spatial processor is
// constructed eagerly; spatial.New has no failure path, so it is always
// present here. The render path still accepts a nil processor, in which case
// spatial sources advance but contribute silence.
func NewEngine(world *World, opts ...EngineOption) *Engine {
	e := &Engine{
		world:   world,
		backend: NewPortAudioBackend(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	desc := world.desc
	sim := spatial.NewDefaultSimulator()
	e.spatial = spatial.New(desc.BlockSize, desc.DistanceScaler, sim, e.logger)

	e.mixer = NewMixer(world.commands, world, desc.Channels, desc.MaxSources, e.logger)
	return e
}

// Start negotiates the default output device's native format, builds a
// resampler from world rate to device rate, opens the stream, and spawns
// the render thread and the device-write goroutine. Calling Start while
// already running is a no-op, matching the teacher's idempotent Start.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}

	desc := e.world.desc

	deviceRate, deviceChannels, _, err := e.backend.DefaultOutputFormat()
	if err != nil {
		return fmt.Errorf("%w: query default output format: %v", ErrAudioDevice, err)
	}
	if deviceChannels < 1 {
		deviceChannels = desc.Channels
	}

	framesPerBuffer := int(float64(desc.BlockSize) * float64(deviceRate) / float64(desc.SampleRate))
	if framesPerBuffer < 1 {
		framesPerBuffer = desc.BlockSize
	}

	stream, err := e.backend.Open(deviceRate, deviceChannels, SampleFormatF32, framesPerBuffer)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %v", ErrAudioDevice, err)
	}

	resampler, err := resample.NewFixedInput(desc.SampleRate, deviceRate, desc.Channels, desc.BlockSize)
	if err != nil {
		stream.Close()
		return fmt.Errorf("%w: build resampler: %v", ErrAudioFormat, err)
	}

	e.ringBuf = ring.New(ring.CapacityFor(desc.BlockSize))

	e.loop = &renderLoop{
		mixer:        e.mixer,
		spatial:      e.spatial,
		resampler:    resampler,
		ringBuf:      e.ringBuf,
		blockSize:    desc.BlockSize,
		channels:     desc.Channels,
		deviceRate:   deviceRate,
		worldRate:    desc.SampleRate,
		listener:     e.world.listener,
		events:       e.world.events,
		timingEvents: e.world.timingEvents,
		lastTiming:   &e.lastTiming,
		logger:       e.logger,
		wg:           &e.renderWG,
	}

	e.stream = stream
	e.running.Store(true)

	e.renderWG.Add(1)
	go e.loop.run()

	e.deviceWG.Add(1)
	go e.deviceLoop(stream, deviceChannels, framesPerBuffer)

	e.world.events.Push(Event{Kind: EventEngineStarted})
	e.logger.Info("engine started", "device_rate", deviceRate, "device_channels", deviceChannels, "frames_per_buffer", framesPerBuffer)
	return nil
}

// deviceLoop is the device-side goroutine (component C8): it repeatedly
// pulls frames off the ring buffer and blocks in stream.Write, the same
// role the teacher's playbackLoop plays driving playbackStream.Write in
// audio.go. Before each buffer it drains pending commands into the mixer
// via try_lock, so host actions apply even if the render thread is behind.
// Underrun (ring empty) is filled with silence rather than stalling the
// device clock.
func (e *Engine) deviceLoop(stream DeviceStream, deviceChannels, framesPerBuffer int) {
	defer e.deviceWG.Done()

	buf := make([]float32, framesPerBuffer*deviceChannels)
	for e.running.Load() {
		e.mixer.DispatchCommands()
		underrun := false
		for i := 0; i < framesPerBuffer; i++ {
			f, ok := e.ringBuf.TryPop()
			if !ok {
				underrun = true
				f.Left, f.Right = 0, 0
			}
			base := i * deviceChannels
			buf[base] = clampF32(f.Left)
			if deviceChannels >= 2 {
				buf[base+1] = clampF32(f.Right)
			}
			for ch := 2; ch < deviceChannels; ch++ {
				buf[base+ch] = 0
			}
		}

		if err := stream.Write(buf); err != nil {
			if e.running.Load() {
				e.logger.Error("device write failed", "error", err)
			}
			return
		}
		if underrun {
			e.world.events.Push(Event{Kind: EventUnderrun})
		}
	}
}

// Stop halts the device stream and render thread. Sequencing mirrors
// audio.go's Stop: the stream's Stop() call unblocks any in-flight Write
// before we wait on the device goroutine, and only then do we Close it.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running.CompareAndSwap(true, false) {
		e.mu.Unlock()
		return
	}
	stream := e.stream
	e.mu.Unlock()

	if e.loop != nil {
		e.loop.shutdown.Store(true)
	}

	if stream != nil {
		if err := stream.Stop(); err != nil {
			e.logger.Warn("stream stop failed", "error", err)
		}
	}

	e.deviceWG.Wait()
	e.renderWG.Wait()

	if stream != nil {
		if err := stream.Close(); err != nil {
			e.logger.Warn("stream close failed", "error", err)
		}
	}

	e.mu.Lock()
	e.stream = nil
	e.mu.Unlock()

	e.world.events.Push(Event{Kind: EventEngineStopped})
	e.logger.Info("engine stopped")
}

// IsRunning reports whether the engine's device and render threads are
// active.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// LastBlockTiming returns a snapshot of the most recently completed render
// block's timing summary, mirroring the teacher's InputLevel()/
// DroppedFrames() diagnostics accessors. Returns the zero TimingEvent
// before the first block has run.
func (e *Engine) LastBlockTiming() TimingEvent {
	if t := e.lastTiming.Load(); t != nil {
		return *t
	}
	return TimingEvent{}
}

// RingOccupancy reports how many frames currently sit in the ring buffer
// between the render thread and the device, for diagnostics (spec.md §4.6
// step 7's occupancy figure, exposed directly rather than only via
// TimingEvent).
func (e *Engine) RingOccupancy() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ringBuf == nil {
		return 0
	}
	return e.ringBuf.OccupiedLen()
}
