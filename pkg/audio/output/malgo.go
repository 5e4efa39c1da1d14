// ABOUTME: Malgo-based audio output implementation with 24-bit support
// ABOUTME: The miniaudio data callback pulls frames straight from the source
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio/encode"
	"github.com/gen2brain/malgo"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	ready    bool

	// owned by the callback thread once the device starts
	src     Source
	encoder encode.Encoder
	scratch []float32
}

// NewMalgo creates a new Malgo output
func NewMalgo() Output {
	return &Malgo{}
}

// Name identifies the backend
func (m *Malgo) Name() string { return "malgo" }

// Open initializes the output device with specified format
func (m *Malgo) Open(format audio.Format, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return fmt.Errorf("malgo output already open")
	}
	if err := format.Validate(); err != nil {
		return err
	}

	// Map bit depth to malgo format
	var sampleFormat malgo.FormatType
	switch format.BitDepth {
	case 16:
		sampleFormat = malgo.FormatS16
	case 24:
		sampleFormat = malgo.FormatS24
	case 32:
		sampleFormat = malgo.FormatS32
	}

	encoder, err := encode.NewPCM(format)
	if err != nil {
		return err
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("%w: failed to initialize malgo context: %w", ErrUnavailable, err)
		}
		m.malgoCtx = ctx
	}

	m.src = src
	m.encoder = encoder
	// 100ms of frames up front so the callback does not normally allocate
	m.scratch = make([]float32, format.SampleRate/10*format.Channels)
	m.format = format

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		m.freeContext()
		return fmt.Errorf("%w: failed to initialize playback device: %w", ErrUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext()
		return fmt.Errorf("%w: failed to start device: %w", ErrUnavailable, err)
	}

	m.device = device
	m.ready = true

	log.Printf("Audio output initialized: %s (malgo/%s)", format, formatName(sampleFormat))
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	samples := int(frameCount) * m.format.Channels
	if cap(m.scratch) < samples {
		m.scratch = make([]float32, samples)
	}
	buf := m.scratch[:samples]

	m.src.ProcessInterleaved(buf, m.format.Channels)
	if _, err := m.encoder.Encode(pOutput, buf); err != nil {
		// Device buffer shorter than advertised; leave silence
		for i := range pOutput {
			pOutput[i] = 0
		}
	}
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("Warning: device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	m.ready = false
	m.freeContext()

	return nil
}

func (m *Malgo) freeContext() {
	if m.malgoCtx == nil {
		return
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		log.Printf("Warning: malgo context uninit error: %v", err)
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return "unknown"
	}
}
