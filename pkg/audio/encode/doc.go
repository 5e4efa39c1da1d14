// ABOUTME: Audio encoder package for encoding rendered frames to PCM bytes
// ABOUTME: Provides Encoder interface and the PCM implementation
// Package encode converts rendered float32 samples to wire-format PCM.
//
// Supports: PCM (16-bit, 24-bit and 32-bit little-endian)
//
// Encoders write into a caller-owned buffer so they can run inside an
// audio callback without allocating.
//
// Example:
//
//	encoder, err := encode.NewPCM(format)
//	n, err := encoder.Encode(dst, samples)
package encode
