package petalsonic

import (
	"log/slog"
	"sync"

	"github.com/tr-nc/petalsonic/internal/spatial"
	"github.com/tr-nc/petalsonic/internal/vecmath"
)

// BufferLookup resolves a source id to its registered audio buffer. World
// implements this; Mixer only depends on the interface so it stays testable
// without a full World.
type BufferLookup interface {
	LookupBuffer(id SourceID) (*AudioBuffer, bool)
}

// MixResult is what one ProcessBlock call reports back to the render loop
// (spec.md §4.4 step 6).
type MixResult struct {
	FramesFilled     int
	CompletedSources []SourceID
	LoopedSources    []SourceID
}

// Mixer consumes pending commands, partitions active playback instances
// into spatial and non-spatial lists, drives non-spatial additive mixing
// and the spatial processor into one shared world-rate block, and reports
// which sources ended or looped this block (spec.md §4.4, component C5).
//
// The active-playback map is guarded by mu. ProcessBlock and
// DispatchCommands acquire it via TryLock (spec.md §5: "a mutex that T2
// acquires with try_lock; on contention it skips a tick" — T3 also
// dispatches commands via try_lock on the same path); only the ActiveCount
// diagnostic takes a blocking Lock.
type Mixer struct {
	mu        sync.Mutex
	instances map[SourceID]*PlaybackInstance

	lookup     BufferLookup
	commands   *unboundedQueue[Command]
	channels   int
	maxSources int
	logger     *slog.Logger

	spatialScratch [][]float32
}

// NewMixer builds a mixer reading commands from commands and resolving
// buffers through lookup. maxSources caps the number of distinct active
// playback instances (spec.md §6 world descriptor MaxSources); zero means
// unbounded.
func NewMixer(commands *unboundedQueue[Command], lookup BufferLookup, channels int, maxSources int, logger *slog.Logger) *Mixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mixer{
		instances:  make(map[SourceID]*PlaybackInstance),
		lookup:     lookup,
		commands:   commands,
		channels:   channels,
		maxSources: maxSources,
		logger:     logger,
	}
}

// DispatchCommands drains the command channel non-blockingly and applies
// each command to the active-playback map (spec.md §4.4 "Command
// dispatch"). Returns false without doing any work if the map's mutex is
// currently held by another caller (TryLock contention — spec.md §5 lost-
// lock-contention policy: silent skip for that tick).
func (m *Mixer) DispatchCommands() bool {
	if !m.mu.TryLock() {
		return false
	}
	defer m.mu.Unlock()
	m.dispatchLocked()
	return true
}

func (m *Mixer) dispatchLocked() {
	for {
		cmd, ok := m.commands.TryPop()
		if !ok {
			return
		}
		m.applyCommand(cmd)
	}
}

func (m *Mixer) applyCommand(cmd Command) {
	switch cmd.Kind {
	case CommandPlay:
		buf, ok := m.lookup.LookupBuffer(cmd.Source)
		if !ok {
			m.logger.Warn("play command for unregistered source, dropping", "source_id", cmd.Source)
			return
		}
		inst, exists := m.instances[cmd.Source]
		if !exists {
			if m.maxSources > 0 && len(m.instances) >= m.maxSources {
				m.logger.Warn("play command dropped: active source count at MaxSources", "source_id", cmd.Source, "max_sources", m.maxSources)
				return
			}
			inst = NewPlaybackInstance(cmd.Source, buf, cmd.Config, cmd.Loop)
			m.instances[cmd.Source] = inst
		} else {
			inst.SetConfig(cmd.Config)
			inst.loopMode = cmd.Loop
		}
		inst.PlayFromBeginning()

	case CommandPause:
		if inst, ok := m.instances[cmd.Source]; ok {
			inst.Pause()
		}

	case CommandStop:
		if inst, ok := m.instances[cmd.Source]; ok {
			inst.Stop()
		}

	case CommandStopAll:
		for _, inst := range m.instances {
			inst.Stop()
		}

	case CommandUpdateConfig:
		if inst, ok := m.instances[cmd.Source]; ok {
			inst.SetConfig(cmd.Config)
		}
	}
}

// ProcessBlock runs the block procedure of spec.md §4.4 against worldBlock
// (interleaved, len(worldBlock) == blockSize*channels, assumed pre-zeroed
// by the caller). spatialProc may be nil, in which case spatial sources
// produce silence (spec.md §7: optional spatial processor). Returns
// (result, true) on success, or (MixResult{}, false) if the active-
// playback map's mutex could not be acquired this tick.
func (m *Mixer) ProcessBlock(worldBlock []float32, blockSize int, spatialProc *spatial.Processor, listener vecmath.Pose) (MixResult, bool) {
	if !m.mu.TryLock() {
		return MixResult{}, false
	}
	defer m.mu.Unlock()

	m.dispatchLocked()

	var nonSpatial, spatialInstances []*PlaybackInstance
	for _, inst := range m.instances {
		if inst.State() != StatePlaying {
			continue
		}
		if inst.Config().IsSpatial() {
			spatialInstances = append(spatialInstances, inst)
		} else {
			nonSpatial = append(nonSpatial, inst)
		}
	}

	for _, inst := range nonSpatial {
		inst.FillBuffer(worldBlock, m.channels)
	}

	if len(spatialInstances) > 0 && spatialProc != nil {
		m.mixSpatial(worldBlock, blockSize, spatialInstances, spatialProc, listener)
	} else if len(spatialInstances) > 0 {
		// No spatial processor available: still advance cursors so these
		// sources make progress and eventually complete, producing
		// silence instead of a spatialized signal (spec.md §7).
		scratch := make([]float32, blockSize)
		for _, inst := range spatialInstances {
			inst.FillMono(scratch)
		}
	}

	var completed, looped []SourceID
	for id, inst := range m.instances {
		if !inst.ReachedEndThisBlock() {
			continue
		}
		inst.ClearReachedEndThisBlock()
		switch inst.LoopMode() {
		case LoopOnce:
			completed = append(completed, id)
		case LoopInfinite:
			inst.PlayFromBeginning()
			looped = append(looped, id)
		}
	}

	// An Infinite-mode instance that just reached its end was restarted
	// above and is Playing again by this point, so any instance observed
	// Stopped here is genuinely done — by an explicit Stop() command or by
	// a Once-mode source exhausting its buffer — and is dropped regardless
	// of loop mode (spec.md §4.4 step 5, §4.3 "destroyed when removed").
	for id, inst := range m.instances {
		if inst.State() == StateStopped {
			delete(m.instances, id)
			if spatialProc != nil {
				spatialProc.RemoveSource(spatial.SourceID(id))
			}
		}
	}

	return MixResult{
		FramesFilled:     blockSize,
		CompletedSources: completed,
		LoopedSources:    looped,
	}, true
}

// mixSpatial fills a per-source mono scratch buffer for each active spatial
// instance (spec.md §4.3 step 4a via FillMono, which already applies
// volume), hands them to the spatial processor, and additively sums its
// stereo output on top of worldBlock.
func (m *Mixer) mixSpatial(worldBlock []float32, blockSize int, instances []*PlaybackInstance, proc *spatial.Processor, listener vecmath.Pose) {
	for len(m.spatialScratch) < len(instances) {
		m.spatialScratch = append(m.spatialScratch, make([]float32, blockSize))
	}

	sources := make([]spatial.Source, 0, len(instances))
	for i, inst := range instances {
		scratch := m.spatialScratch[i]
		if len(scratch) != blockSize {
			scratch = make([]float32, blockSize)
			m.spatialScratch[i] = scratch
		}
		for j := range scratch {
			scratch[j] = 0
		}
		inst.FillMono(scratch)
		sources = append(sources, spatial.Source{
			ID:       spatial.SourceID(inst.sourceID),
			Position: inst.Config().Position,
			Input:    scratch,
		})
	}

	stereo := make([]float32, blockSize*2)
	proc.Process(listener, sources, stereo)

	if m.channels == 2 {
		for i := 0; i < blockSize; i++ {
			worldBlock[i*2] += stereo[i*2]
			worldBlock[i*2+1] += stereo[i*2+1]
		}
		return
	}

	// Non-stereo world format: downmix the binaural pair into every channel.
	for i := 0; i < blockSize; i++ {
		mono := (stereo[i*2] + stereo[i*2+1]) * 0.5
		base := i * m.channels
		for ch := 0; ch < m.channels; ch++ {
			worldBlock[base+ch] += mono
		}
	}
}

// ActiveCount returns the number of tracked playback instances (including
// paused ones, and stopped ones not yet dropped by the next ProcessBlock),
// for diagnostics.
func (m *Mixer) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}
