// ABOUTME: Sample-and-hold audio engine package
// ABOUTME: Renders a virtual-rate sine through zero-order hold at the device rate
// Package samplehold renders a sine wave generated at a "virtual" sample rate
// through a zero-order hold, so that each virtual sample is repeated for
// realRate/virtualRate output frames. Lowering the virtual rate makes the
// aliasing of the discrete signal audible.
//
// The Engine is owned by a single rendering goroutine (an audio callback or
// a player pulling from an io.Reader). Other goroutines change parameters
// only through Post, which queues a partial Update; queued updates are
// applied at the start of the next block.
//
// Example:
//
//	engine := samplehold.New(samplehold.Config{RealRate: 44100})
//
//	// UI goroutine
//	engine.Post(samplehold.Update{VirtualRate: samplehold.Float(4000)})
//
//	// audio callback
//	engine.ProcessInterleaved(buf, 2)
package samplehold
