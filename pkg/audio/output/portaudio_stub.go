//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"

	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
)

// PortAudio output implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Output {
	return &PortAudio{}
}

// Name identifies the backend
func (p *PortAudio) Name() string { return "portaudio" }

// Open reports that PortAudio was not compiled in
func (p *PortAudio) Open(format audio.Format, src Source) error {
	return fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrUnavailable)
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
