// Package spatial implements the per-block spatial processor (spec.md §4.3,
// component C4): it renders N spatial sources against a single listener
// pose into one binaural stereo block by combining per-source direct effect
// (distance attenuation + air absorption), order-2 ambisonic encoding, and a
// shared HRTF-based ambisonic decode, all driven by the internal/hrtf
// package. The processor itself owns no threading discipline — spec.md §5
// holds it behind a mutex only the render thread acquires, so Processor is
// safe to use from exactly one goroutine at a time and performs no locking
// of its own.
package spatial

import (
	"log/slog"

	"github.com/tr-nc/petalsonic/internal/hrtf"
	"github.com/tr-nc/petalsonic/internal/vecmath"
)

// SourceID identifies a spatial source across the lifetime of its effect
// handles.
type SourceID uint64

// SimInputs is what the processor publishes to the simulation step each
// block for one source: a distance-scaled world position. The simulation
// step (a stand-in for a full room/occlusion solver — spec.md marks that as
// out of scope here) returns distance attenuation and air absorption per
// source from SimOutputs.
type SimInputs struct {
	ID       SourceID
	Position vecmath.Vector3
}

// SimOutputs is the per-source result of one simulation step.
type SimOutputs struct {
	DistanceAttenuation float32
	AirAbsorption       float32
}

// Simulator computes distance attenuation and air absorption for a batch of
// sources relative to the listener. The default implementation
// (NewDefaultSimulator) uses an inverse-distance rolloff and a linear
// air-absorption model; callers needing acoustic occlusion or reverb supply
// their own.
type Simulator interface {
	Step(listener vecmath.Pose, inputs []SimInputs) map[SourceID]SimOutputs
}

// sourceHandle bundles a spatial source's lazily-created effect handles, one
// per source_id, per spec.md §4.3 ownership rules.
type sourceHandle struct {
	direct *hrtf.DirectEffect
	encode *hrtf.EncodeEffect
}

// Source is one spatial source's per-block render input: the caller fills
// Input with exactly frameSize mono samples (already volume-scaled) before
// calling Process.
type Source struct {
	ID       SourceID
	Position vecmath.Vector3
	Input    []float32 // mono, frameSize samples, caller-owned and pre-filled
}

// Processor renders the spatial mix for one render block.
type Processor struct {
	frameSize      int
	distanceScaler float64
	sim            Simulator
	decoder        *hrtf.Decoder
	handles        map[SourceID]*sourceHandle

	acc         [hrtf.AmbisonicChannels][]float32
	directOut   []float32
	interleaved []float32
	logger      *slog.Logger
}

// New builds a spatial processor with its ambisonic accumulator, direct-
// effect output and interleaved output buffers pre-allocated for frameSize
// frames. Process still allocates per call: the simulation input slice, the
// simulator's result map, and the decoder's FFT and convolution buffers.
// distanceScaler converts world units to meters for the simulator.
func New(frameSize int, distanceScaler float64, sim Simulator, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if sim == nil {
		sim = NewDefaultSimulator()
	}

	p := &Processor{
		frameSize:      frameSize,
		distanceScaler: distanceScaler,
		sim:            sim,
		decoder:        hrtf.NewDecoder(frameSize),
		handles:        make(map[SourceID]*sourceHandle),
		directOut:      make([]float32, frameSize),
		interleaved:    make([]float32, frameSize*2),
		logger:         logger,
	}
	for ch := 0; ch < hrtf.AmbisonicChannels; ch++ {
		p.acc[ch] = make([]float32, frameSize)
	}
	return p
}

// RemoveSource destroys the effect handles for a spatial source that left
// the active set, per spec.md §4.3's explicit remove_effects_for_source
// call from the mixer.
func (p *Processor) RemoveSource(id SourceID) {
	delete(p.handles, id)
}

// HandleCount reports how many sources currently have live effect handles,
// for diagnostics and tests asserting RemoveSource's lifecycle contract.
func (p *Processor) HandleCount() int {
	return len(p.handles)
}

func (p *Processor) handleFor(id SourceID) *sourceHandle {
	h, ok := p.handles[id]
	if !ok {
		h = &sourceHandle{
			direct: hrtf.NewDirectEffect(),
			encode: hrtf.NewEncodeEffect(),
		}
		p.handles[id] = h
	}
	return h
}

// Process runs the six-step pipeline of spec.md §4.3 for one block,
// producing interleaved stereo into out (len(out) == 2*frameSize). Sources
// whose DSP step fails are logged and skipped; the block still returns
// successfully with the remaining sources summed (spec.md §4.3 "Failure").
func (p *Processor) Process(listener vecmath.Pose, sources []Source, out []float32) {
	for ch := 0; ch < hrtf.AmbisonicChannels; ch++ {
		clear(p.acc[ch])
	}
	clear(p.interleaved)

	inputs := make([]SimInputs, 0, len(sources))
	for _, s := range sources {
		inputs = append(inputs, SimInputs{
			ID:       s.ID,
			Position: vecmath.Scale(s.Position, p.distanceScaler),
		})
	}
	results := p.sim.Step(listener, inputs)

	for _, s := range sources {
		if len(s.Input) != p.frameSize {
			p.logger.Warn("spatial source input size mismatch, skipping", "source_id", s.ID, "got", len(s.Input), "want", p.frameSize)
			continue
		}
		out, ok := results[s.ID]
		if !ok {
			p.logger.Warn("spatial simulation produced no result for source, skipping", "source_id", s.ID)
			continue
		}

		h := p.handleFor(s.ID)
		h.direct.Process(p.directOut, s.Input, out.DistanceAttenuation, out.AirAbsorption)

		dir := vecmath.LocalDirection(listener, s.Position)
		h.encode.SetDirection(dir.X, dir.Y, dir.Z)
		h.encode.Accumulate(p.acc, p.directOut)
	}

	p.decoder.Decode(p.acc, p.interleaved)
	copy(out, p.interleaved)
}

// defaultSimulator is the built-in inverse-distance-rolloff and
// linear-air-absorption model used when the engine is not configured
// with a richer acoustic simulator.
type defaultSimulator struct {
	referenceDistance float64
	maxDistance       float64
	absorptionPerM    float64
}

// NewDefaultSimulator returns the engine's default acoustic model: inverse
// distance attenuation clamped at referenceDistance=1m and set to zero at
// and beyond maxDistance=100m, with air absorption falling linearly by a
// mild per-meter, frequency-agnostic coefficient. A real HRTF/acoustics DSP library would expose
// this as part of its simulation context; this package ships a standalone
// substitute so the spatial pipeline has no mandatory external dependency
// beyond the HRTF decode itself.
func NewDefaultSimulator() Simulator {
	return &defaultSimulator{
		referenceDistance: 1.0,
		maxDistance:       100.0,
		absorptionPerM:    0.002,
	}
}

func (s *defaultSimulator) Step(listener vecmath.Pose, inputs []SimInputs) map[SourceID]SimOutputs {
	out := make(map[SourceID]SimOutputs, len(inputs))
	for _, in := range inputs {
		d := vecmath.Distance(listener.Position, in.Position)

		atten := 1.0
		if d > s.referenceDistance {
			atten = s.referenceDistance / d
		}
		if d >= s.maxDistance {
			atten = 0
		}

		absorption := 1.0 - s.absorptionPerM*d
		if absorption < 0 {
			absorption = 0
		}

		out[in.ID] = SimOutputs{
			DistanceAttenuation: float32(atten),
			AirAbsorption:       float32(absorption),
		}
	}
	return out
}
