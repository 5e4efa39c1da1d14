// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and float to fixed-point sample conversion
// Package audio provides the stream format and sample conversions shared by
// the encoders and output backends.
//
// Rendering happens in float32 in the range [-1, 1]. Conversions clamp to the
// target range:
//   - float32 -> 24-bit (int32 container)
//   - 24-bit -> 16-bit and 24-bit packed bytes
//
// Example:
//
//	format := audio.Format{
//	    Codec:      "pcm",
//	    SampleRate: 44100,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//
//	sample24 := audio.FloatToSample(0.2)
//	sample16 := audio.SampleToInt16(sample24)
package audio
