package petalsonic

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tr-nc/petalsonic/internal/resample"
	"github.com/tr-nc/petalsonic/internal/vecmath"
)

// World is the main-thread façade (component C9): source registry,
// listener pose, and the command/event queues that connect T1 to the
// render thread. Every exported method is safe to call concurrently.
type World struct {
	desc WorldDescriptor

	registryMu    sync.Mutex
	buffers       map[SourceID]*AudioBuffer
	sourceConfigs map[SourceID]SourceConfig
	nextID        atomic.Uint64

	listener *listenerState

	commands     *unboundedQueue[Command]
	events       *unboundedQueue[Event]
	timingEvents *unboundedQueue[TimingEvent]
}

// NewWorld constructs a façade for the given descriptor, applying defaults
// for any zero fields.
func NewWorld(desc WorldDescriptor) *World {
	if desc.SampleRate <= 0 {
		desc.SampleRate = DefaultWorldDescriptor().SampleRate
	}
	if desc.BlockSize <= 0 {
		desc.BlockSize = DefaultWorldDescriptor().BlockSize
	}
	if desc.Channels <= 0 {
		desc.Channels = DefaultWorldDescriptor().Channels
	}
	if desc.DistanceScaler == 0 {
		desc.DistanceScaler = DefaultWorldDescriptor().DistanceScaler
	}

	return &World{
		desc:          desc,
		buffers:       make(map[SourceID]*AudioBuffer),
		sourceConfigs: make(map[SourceID]SourceConfig),
		listener:      newListenerState(),
		commands:      newUnboundedQueue[Command](),
		events:        newUnboundedQueue[Event](),
		timingEvents:  newUnboundedQueue[TimingEvent](),
	}
}

// RegisterAudio stores buffer under a freshly minted id, resampling offline
// to the world's sample rate first if the buffer's native rate differs
// (spec.md §4.9 register_audio). cfg is retained and used as the default
// config for a later Play call on this id, and can be overwritten without
// replaying via UpdateSourceConfig.
func (w *World) RegisterAudio(buffer *AudioBuffer, cfg SourceConfig) (SourceID, error) {
	if buffer == nil {
		return 0, fmt.Errorf("%w: nil audio buffer", ErrAudioLoading)
	}

	stored := buffer
	if buffer.SampleRate() != w.desc.SampleRate {
		converted, err := resample.ConvertOffline(buffer.samples, buffer.SampleRate(), w.desc.SampleRate, buffer.Channels())
		if err != nil {
			return 0, fmt.Errorf("%w: offline resample: %v", ErrAudioLoading, err)
		}
		resampled, err := NewAudioBuffer(converted, w.desc.SampleRate, buffer.Channels())
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrAudioLoading, err)
		}
		stored = resampled
	}

	id := SourceID(w.nextID.Add(1))
	w.registryMu.Lock()
	w.buffers[id] = stored
	w.sourceConfigs[id] = cfg
	w.registryMu.Unlock()
	return id, nil
}

// RemoveAudio drops a source from the registry. Playback instances already
// referencing its buffer keep it alive via their own reference.
func (w *World) RemoveAudio(id SourceID) {
	w.registryMu.Lock()
	delete(w.buffers, id)
	delete(w.sourceConfigs, id)
	w.registryMu.Unlock()
}

// Contains reports whether id is currently registered.
func (w *World) Contains(id SourceID) bool {
	w.registryMu.Lock()
	defer w.registryMu.Unlock()
	_, ok := w.buffers[id]
	return ok
}

// Get returns the registered buffer for id, if any.
func (w *World) Get(id SourceID) (*AudioBuffer, bool) {
	w.registryMu.Lock()
	defer w.registryMu.Unlock()
	b, ok := w.buffers[id]
	return b, ok
}

// ListIDs returns every currently registered source id, in no particular
// order.
func (w *World) ListIDs() []SourceID {
	w.registryMu.Lock()
	defer w.registryMu.Unlock()
	ids := make([]SourceID, 0, len(w.buffers))
	for id := range w.buffers {
		ids = append(ids, id)
	}
	return ids
}

// LookupBuffer implements BufferLookup for the mixer's Play command
// handling.
func (w *World) LookupBuffer(id SourceID) (*AudioBuffer, bool) {
	return w.Get(id)
}

// SetListenerPose publishes a new listener pose, visible to the render
// thread on its next block read.
func (w *World) SetListenerPose(pose vecmath.Pose) {
	w.listener.Set(pose)
}

// Listener returns the last published listener pose.
func (w *World) Listener() vecmath.Pose {
	w.listener.mu.Lock()
	defer w.listener.mu.Unlock()
	return w.listener.pose
}

// UpdateSourceConfig validates presence, overwrites the stored registry
// config, and enqueues an UpdateConfig command applied by the render thread
// on the next block.
func (w *World) UpdateSourceConfig(id SourceID, cfg SourceConfig) error {
	w.registryMu.Lock()
	if _, ok := w.buffers[id]; !ok {
		w.registryMu.Unlock()
		return fmt.Errorf("%w: unknown source id %d", ErrEngine, id)
	}
	w.sourceConfigs[id] = cfg
	w.registryMu.Unlock()

	w.commands.Push(Command{Kind: CommandUpdateConfig, Source: id, Config: cfg})
	return nil
}

// Play validates id then enqueues a Play command using the config stored at
// RegisterAudio (or last overwritten by UpdateSourceConfig) — the caller
// does not re-supply it (spec.md §4.9 play(id, loop_mode)). Returns a
// domain error before touching the command channel if id is unknown
// (spec.md §4.9 "Failure mode for play on an unknown id").
func (w *World) Play(id SourceID, loopMode LoopMode) error {
	w.registryMu.Lock()
	if _, ok := w.buffers[id]; !ok {
		w.registryMu.Unlock()
		return fmt.Errorf("%w: unknown source id %d", ErrEngine, id)
	}
	cfg := w.sourceConfigs[id]
	w.registryMu.Unlock()

	w.commands.Push(Command{Kind: CommandPlay, Source: id, Config: cfg, Loop: loopMode})
	return nil
}

// Pause enqueues a Pause command.
func (w *World) Pause(id SourceID) {
	w.commands.Push(Command{Kind: CommandPause, Source: id})
}

// Stop enqueues a Stop command.
func (w *World) Stop(id SourceID) {
	w.commands.Push(Command{Kind: CommandStop, Source: id})
}

// StopAll enqueues a StopAll command.
func (w *World) StopAll() {
	w.commands.Push(Command{Kind: CommandStopAll})
}

// PollEvents drains every currently queued event without blocking.
func (w *World) PollEvents() []Event {
	return w.events.DrainAll()
}

// PollTimingEvents drains every currently queued timing event without
// blocking.
func (w *World) PollTimingEvents() []TimingEvent {
	return w.timingEvents.DrainAll()
}
