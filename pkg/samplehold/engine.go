// ABOUTME: Zero-order-hold sine engine
// ABOUTME: Holds each virtual-rate sample for realRate/virtualRate output frames
package samplehold

import (
	"errors"
	"math"
)

const (
	// Initial engine parameters
	DefaultVirtualRate = 8000.0
	DefaultFrequency   = 440.0
	DefaultGain        = 0.2

	// DefaultQueueSize is the number of updates that may wait for the next block
	DefaultQueueSize = 64

	twoPi = 2 * math.Pi
)

// ErrQueueFull is returned by Post when the rendering side has fallen behind
var ErrQueueFull = errors.New("parameter update queue full")

// Params are the oscillator parameters
type Params struct {
	VirtualRate float64 `json:"virtualFs"`
	Frequency   float64 `json:"freq"`
	Gain        float64 `json:"gain"`
}

// DefaultParams returns the parameters a new engine starts with
func DefaultParams() Params {
	return Params{
		VirtualRate: DefaultVirtualRate,
		Frequency:   DefaultFrequency,
		Gain:        DefaultGain,
	}
}

// Config configures a new Engine
type Config struct {
	// RealRate is the output device rate in Hz
	RealRate float64

	// Initial overrides the default parameters. Invalid fields keep the default.
	Initial Update

	// QueueSize bounds pending updates (rounded up to a power of two)
	QueueSize int
}

// State is the engine's internal state. See Engine.State.
type State struct {
	Params          Params
	StepFrames      float64
	Phase           float64
	HeldValue       float64
	FramesRemaining float64
	Frames          uint64
	Holds           uint64
}

// Engine renders the held sine. All rendering methods must be called from a
// single goroutine; Post, Stats and Params are safe from any goroutine.
type Engine struct {
	realRate   float64
	params     Params
	stepFrames float64

	phase           float64
	held            float64
	framesRemaining float64

	frames uint64
	holds  uint64

	queue *updateQueue
	stats stats
}

// New creates an engine rendering at cfg.RealRate
func New(cfg Config) *Engine {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	e := &Engine{
		realRate: cfg.RealRate,
		params:   DefaultParams(),
		queue:    newUpdateQueue(size),
	}

	p, _ := cfg.Initial.compile()
	e.apply(p)
	e.recalcStep()
	e.stats.publishParams(e.params)
	e.stats.stepFrames.Store(math.Float64bits(e.stepFrames))

	return e
}

// RealRate returns the output rate the engine renders at
func (e *Engine) RealRate() float64 {
	return e.realRate
}

// Post queues a partial update for the rendering goroutine. Invalid fields
// are dropped silently and counted; an update with no valid field is not
// queued. ErrQueueFull is returned when the queue has no room.
func (e *Engine) Post(u Update) error {
	p, rejected := u.compile()
	if rejected > 0 {
		e.stats.fieldsRejected.Add(uint64(rejected))
	}
	if p.mask == 0 {
		return nil
	}

	if !e.queue.push(p) {
		e.stats.updatesDropped.Add(1)
		return ErrQueueFull
	}
	e.stats.updatesPosted.Add(1)
	return nil
}

// Pending returns the number of updates waiting for the next block
func (e *Engine) Pending() int {
	return e.queue.len()
}

// Next renders one output frame. It does not apply queued updates.
func (e *Engine) Next() float64 {
	if e.framesRemaining <= 0 {
		e.held = math.Sin(e.phase) * e.params.Gain

		e.phase += twoPi * e.params.Frequency / e.params.VirtualRate
		e.phase = math.Mod(e.phase, twoPi)
		if e.phase < 0 {
			e.phase += twoPi
		}
		if e.phase >= twoPi {
			e.phase = 0
		}

		e.framesRemaining += e.stepFrames
		e.holds++
	}

	e.framesRemaining--
	e.frames++
	return e.held
}

// Process fills planar output, one slice per channel, with the same held
// value on every channel. Frames rendered is the shortest channel length.
func (e *Engine) Process(out [][]float32) {
	e.drain()

	if len(out) == 0 {
		e.publish()
		return
	}

	frames := len(out[0])
	for _, ch := range out[1:] {
		if len(ch) < frames {
			frames = len(ch)
		}
	}

	for i := 0; i < frames; i++ {
		v := float32(e.Next())
		for _, ch := range out {
			ch[i] = v
		}
	}

	e.publish()
}

// ProcessInterleaved fills interleaved output of the given channel count.
// A trailing partial frame is zeroed.
func (e *Engine) ProcessInterleaved(out []float32, channels int) {
	if channels < 1 {
		channels = 1
	}

	e.drain()

	frames := len(out) / channels
	for i := 0; i < frames; i++ {
		v := float32(e.Next())
		frame := out[i*channels : (i+1)*channels]
		for ch := range frame {
			frame[ch] = v
		}
	}
	for i := frames * channels; i < len(out); i++ {
		out[i] = 0
	}

	e.publish()
}

// State returns a copy of the internal state. Like the rendering methods it
// must only be called from the rendering goroutine, or while nothing renders.
func (e *Engine) State() State {
	return State{
		Params:          e.params,
		StepFrames:      e.stepFrames,
		Phase:           e.phase,
		HeldValue:       e.held,
		FramesRemaining: e.framesRemaining,
		Frames:          e.frames,
		Holds:           e.holds,
	}
}

// drain applies every queued update. Called at block boundaries only.
func (e *Engine) drain() {
	for {
		p, ok := e.queue.pop()
		if !ok {
			return
		}
		e.apply(p)
		e.stats.updatesApplied.Add(1)
	}
}

// apply overwrites the fields present in p. Any change restarts the hold so
// the next frame is computed under the new parameters.
func (e *Engine) apply(p pending) {
	if p.mask == 0 {
		return
	}

	if p.mask&maskVirtualRate != 0 {
		e.params.VirtualRate = p.virtualRate
		e.recalcStep()
	}
	if p.mask&maskFrequency != 0 {
		e.params.Frequency = p.frequency
	}
	if p.mask&maskGain != 0 {
		e.params.Gain = p.gain
	}

	e.framesRemaining = 0
	e.stats.publishParams(e.params)
}

// recalcStep derives the hold length, never shorter than one frame
func (e *Engine) recalcStep() {
	e.stepFrames = e.realRate / e.params.VirtualRate
	if !isFinite(e.stepFrames) || e.stepFrames < 1 {
		e.stepFrames = 1
	}
}

func (e *Engine) publish() {
	e.stats.blocks.Add(1)
	e.stats.frames.Store(e.frames)
	e.stats.holds.Store(e.holds)
	e.stats.stepFrames.Store(math.Float64bits(e.stepFrames))
}
