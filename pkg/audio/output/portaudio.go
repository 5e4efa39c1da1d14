//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform callback stream pulling float32 frames from the source
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// PortAudio output implementation
type PortAudio struct {
	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Output {
	return &PortAudio{}
}

// Name identifies the backend
func (p *PortAudio) Name() string { return "portaudio" }

// Open initializes PortAudio and starts the callback stream
func (p *PortAudio) Open(format audio.Format, src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return fmt.Errorf("portaudio output already open")
	}
	if err := format.Validate(); err != nil {
		return err
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: failed to initialize portaudio: %w", ErrUnavailable, err)
	}

	channels := format.Channels
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(format.SampleRate), 0, func(out []float32) {
		src.ProcessInterleaved(out, channels)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to open stream: %w", ErrUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to start stream: %w", ErrUnavailable, err)
	}

	p.stream = stream
	log.Printf("Audio output initialized: %s (portaudio/float32)", format)
	return nil
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	defer func() { p.stream = nil }()

	if err := p.stream.Stop(); err != nil {
		return err
	}
	if err := p.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
