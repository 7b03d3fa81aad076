package petalsonic

// PlaybackInstance is created the first time a source is told to play. It
// owns the source's cursor, play state, config, and loop mode, and is the
// single source of truth for cursor advancement across both the
// non-spatial and spatial render paths (spec.md §4.2).
type PlaybackInstance struct {
	sourceID SourceID
	buffer   *AudioBuffer
	cursor   int
	state    PlayState
	config   SourceConfig
	loopMode LoopMode

	loopCount uint64

	// reachedEndThisBlock is transient: set by advanceAndCheckCompletion
	// when the cursor reaches totalFrames, and cleared by the mixer within
	// the same render block (spec.md §3 invariant (b)).
	reachedEndThisBlock bool
}

// NewPlaybackInstance constructs an instance bound to buffer, not yet
// playing (Stopped, cursor 0).
func NewPlaybackInstance(sourceID SourceID, buffer *AudioBuffer, config SourceConfig, loopMode LoopMode) *PlaybackInstance {
	return &PlaybackInstance{
		sourceID: sourceID,
		buffer:   buffer,
		config:   config,
		loopMode: loopMode,
		state:    StateStopped,
	}
}

// State returns the instance's current play state.
func (p *PlaybackInstance) State() PlayState { return p.state }

// Cursor returns the instance's current frame position.
func (p *PlaybackInstance) Cursor() int { return p.cursor }

// CurrentTime returns cursor / sample_rate, the instance's playback
// position in seconds.
func (p *PlaybackInstance) CurrentTime() float64 {
	if p.buffer == nil || p.buffer.SampleRate() == 0 {
		return 0
	}
	return float64(p.cursor) / float64(p.buffer.SampleRate())
}

// Config returns the instance's current source config.
func (p *PlaybackInstance) Config() SourceConfig { return p.config }

// SetConfig overwrites the instance's config (UpdateConfig command).
func (p *PlaybackInstance) SetConfig(cfg SourceConfig) { p.config = cfg }

// LoopMode returns the instance's loop mode.
func (p *PlaybackInstance) LoopMode() LoopMode { return p.loopMode }

// ReachedEndThisBlock reports the transient end-of-data flag.
func (p *PlaybackInstance) ReachedEndThisBlock() bool { return p.reachedEndThisBlock }

// ClearReachedEndThisBlock clears the transient flag; the mixer calls this
// once it has consumed it within the same block it was set.
func (p *PlaybackInstance) ClearReachedEndThisBlock() { p.reachedEndThisBlock = false }

// PlayFromBeginning resets the cursor to 0 and enters Playing. Used both
// for a fresh Play command and for an Infinite-mode restart.
func (p *PlaybackInstance) PlayFromBeginning() {
	p.cursor = 0
	p.reachedEndThisBlock = false
	p.state = StatePlaying
}

// Resume transitions Paused (or Stopped) into Playing without touching the
// cursor.
func (p *PlaybackInstance) Resume() {
	p.state = StatePlaying
}

// Pause transitions into Paused without touching the cursor.
func (p *PlaybackInstance) Pause() {
	p.state = StatePaused
}

// Stop transitions into Stopped from any state without resetting the
// cursor (spec.md §4.2: "Stop (explicit) transitions any state to Stopped
// without resetting the cursor").
func (p *PlaybackInstance) Stop() {
	p.state = StateStopped
}

// advanceAndCheckCompletion is the single source of truth for cursor
// movement (spec.md §4.2): adds k frames, and if the cursor reaches the end
// of the buffer, marks reachedEndThisBlock and transitions to Stopped
// uniformly for both loop modes — restarting an Infinite source is the
// mixer's job, not this operation's.
func (p *PlaybackInstance) advanceAndCheckCompletion(k int) {
	p.cursor += k
	if p.cursor >= p.buffer.TotalFrames() {
		p.cursor = p.buffer.TotalFrames()
		p.reachedEndThisBlock = true
		p.state = StateStopped
	}
}

// FillBuffer is the non-spatial render path (spec.md §4.2): for each output
// frame, the instance's mono sample is mixed additively into every channel
// of dest, which is assumed pre-zeroed or pre-populated by prior mixes.
// Returns the number of frames actually contributed; returns 0 immediately
// if the instance is not Playing.
func (p *PlaybackInstance) FillBuffer(dest []float32, channels int) int {
	if p.state != StatePlaying {
		return 0
	}

	frameCount := len(dest) / channels
	volume := p.config.Volume

	contributed := 0
	for i := 0; i < frameCount; i++ {
		if p.cursor+i >= p.buffer.TotalFrames() {
			break
		}
		sample := p.buffer.FrameAt(p.cursor+i) * volume
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			dest[base+ch] += sample
		}
		contributed++
	}

	p.advanceAndCheckCompletion(contributed)
	return contributed
}

// FillMono is the spatial render path's frame-consumption primitive
// (spec.md §4.2 "The spatial path"): it copies up to len(dest) mono
// samples (already volume-scaled) into dest and advances the cursor via
// the same advanceAndCheckCompletion operation. Returns the number of
// frames actually written; remaining frames in dest are left untouched, so
// callers that need zero-fill on short reads must do so themselves.
func (p *PlaybackInstance) FillMono(dest []float32) int {
	if p.state != StatePlaying {
		return 0
	}

	volume := p.config.Volume
	contributed := 0
	for i := range dest {
		if p.cursor+i >= p.buffer.TotalFrames() {
			break
		}
		dest[i] = p.buffer.FrameAt(p.cursor+i) * volume
		contributed++
	}

	p.advanceAndCheckCompletion(contributed)
	return contributed
}
