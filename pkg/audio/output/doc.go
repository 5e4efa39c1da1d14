// ABOUTME: Audio output package for rendering to a playback device
// ABOUTME: Provides pull-based Output backends for oto, malgo and PortAudio
// Package output opens a playback device and lets it pull audio from a
// Source. The device's own goroutine or callback thread is the only caller of
// Source.ProcessInterleaved, which makes it the rendering context.
//
// Backends:
//   - oto (default): player pulls PCM through an io.Reader
//   - malgo: miniaudio data callback, 16/24/32-bit
//   - portaudio: callback stream, requires -tags portaudio
//
// Example:
//
//	out, err := output.New("oto")
//	err = out.Open(format, engine)
//	defer out.Close()
package output
