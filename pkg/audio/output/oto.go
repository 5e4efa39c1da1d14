// ABOUTME: Oto-based audio output implementation
// ABOUTME: Oto's player pulls 16-bit PCM rendered on demand from the source
package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/ebitengine/oto/v3"
)

// oto allows only one context per process, so it outlives any single Oto
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// Oto output implementation using oto library
type Oto struct {
	mu     sync.Mutex
	player *oto.Player
	ready  bool
}

// NewOto creates a new Oto output
func NewOto() Output {
	return &Oto{}
}

// Name identifies the backend
func (o *Oto) Name() string { return "oto" }

// Open initializes the output device and starts pulling from src
func (o *Oto) Open(format audio.Format, src Source) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready {
		return fmt.Errorf("oto output already open")
	}

	// oto only supports 16-bit signed output here
	if format.BitDepth != 16 {
		log.Printf("Warning: oto output renders 16-bit, ignoring requested bitDepth=%d", format.BitDepth)
		format.BitDepth = 16
	}
	if err := format.Validate(); err != nil {
		return err
	}

	ctx, err := sharedOtoContext(format)
	if err != nil {
		return err
	}

	reader, err := samplehold.NewReader(src, format)
	if err != nil {
		return err
	}

	o.player = ctx.NewPlayer(reader)
	o.player.Play()
	o.ready = true

	log.Printf("Audio output initialized: %s (oto)", format)
	return nil
}

// Close stops the player. The shared context is suspended, not destroyed.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.ready {
		return nil
	}
	o.ready = false

	var closeErr error
	if o.player != nil {
		o.player.Pause()
		closeErr = o.player.Close()
		o.player = nil
	}

	otoMu.Lock()
	if otoCtx != nil {
		if err := otoCtx.Suspend(); err != nil {
			log.Printf("Warning: oto suspend error: %v", err)
		}
	}
	otoMu.Unlock()

	return closeErr
}

// sharedOtoContext creates the process-wide context or resumes it
func sharedOtoContext(format audio.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat.SampleRate != format.SampleRate || otoFormat.Channels != format.Channels {
			// oto can't be reinitialized within a process
			return nil, fmt.Errorf("format change (%dHz %dch -> %dHz %dch) not supported by oto",
				otoFormat.SampleRate, otoFormat.Channels, format.SampleRate, format.Channels)
		}
		if err := otoCtx.Resume(); err != nil {
			return nil, fmt.Errorf("%w: oto resume: %w", ErrUnavailable, err)
		}
		return otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   20 * time.Millisecond,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %w", ErrUnavailable, err)
	}
	<-readyChan

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}
