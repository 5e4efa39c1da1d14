// ABOUTME: Audio output interface definition
// ABOUTME: Common interface and backend selection for playback devices
package output

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
)

// ErrUnavailable wraps failures to bring up the host audio system. Callers
// treat it as recoverable: audio does not start, everything else keeps going.
var ErrUnavailable = errors.New("audio output unavailable")

// Source renders interleaved float32 frames on demand
type Source interface {
	ProcessInterleaved(out []float32, channels int)
}

// Output represents an audio output device
type Output interface {
	// Open starts the device; it pulls from src until Close
	Open(format audio.Format, src Source) error

	// Close stops pulling and releases the device
	Close() error

	// Name identifies the backend
	Name() string
}

// DefaultBackend is used when no backend is named
const DefaultBackend = "oto"

var backends = map[string]func() Output{
	"oto":       NewOto,
	"malgo":     NewMalgo,
	"portaudio": NewPortAudio,
}

// New creates the named backend
func New(name string) (Output, error) {
	if name == "" {
		name = DefaultBackend
	}
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown audio backend %q (available: %v)", name, Backends())
	}
	return ctor(), nil
}

// Backends lists the backend names accepted by New
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
