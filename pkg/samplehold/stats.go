// ABOUTME: Engine counters published for other goroutines
// ABOUTME: Atomic snapshots of render progress and update traffic
package samplehold

import (
	"math"
	"sync/atomic"
)

// Stats is a snapshot of engine activity
type Stats struct {
	Params         Params  `json:"params"`
	StepFrames     float64 `json:"stepFrames"`
	Frames         uint64  `json:"frames"`
	Holds          uint64  `json:"holds"`
	Blocks         uint64  `json:"blocks"`
	UpdatesPosted  uint64  `json:"updatesPosted"`
	UpdatesApplied uint64  `json:"updatesApplied"`
	UpdatesDropped uint64  `json:"updatesDropped"`
	FieldsRejected uint64  `json:"fieldsRejected"`
}

type stats struct {
	virtualRate atomic.Uint64
	frequency   atomic.Uint64
	gain        atomic.Uint64
	stepFrames  atomic.Uint64

	frames atomic.Uint64
	holds  atomic.Uint64
	blocks atomic.Uint64

	updatesPosted  atomic.Uint64
	updatesApplied atomic.Uint64
	updatesDropped atomic.Uint64
	fieldsRejected atomic.Uint64
}

func (s *stats) publishParams(p Params) {
	s.virtualRate.Store(math.Float64bits(p.VirtualRate))
	s.frequency.Store(math.Float64bits(p.Frequency))
	s.gain.Store(math.Float64bits(p.Gain))
}

// Params returns the parameters most recently applied by the renderer
func (e *Engine) Params() Params {
	return Params{
		VirtualRate: math.Float64frombits(e.stats.virtualRate.Load()),
		Frequency:   math.Float64frombits(e.stats.frequency.Load()),
		Gain:        math.Float64frombits(e.stats.gain.Load()),
	}
}

// Stats returns counters as of the last rendered block
func (e *Engine) Stats() Stats {
	return Stats{
		Params:         e.Params(),
		StepFrames:     math.Float64frombits(e.stats.stepFrames.Load()),
		Frames:         e.stats.frames.Load(),
		Holds:          e.stats.holds.Load(),
		Blocks:         e.stats.blocks.Load(),
		UpdatesPosted:  e.stats.updatesPosted.Load(),
		UpdatesApplied: e.stats.updatesApplied.Load(),
		UpdatesDropped: e.stats.updatesDropped.Load(),
		FieldsRejected: e.stats.fieldsRejected.Load(),
	}
}
