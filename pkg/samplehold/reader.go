// ABOUTME: io.Reader adapter that pulls PCM blocks from the engine
// ABOUTME: Feeds players that read encoded bytes instead of calling back
package samplehold

import (
	"fmt"

	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio/encode"
)

// Renderer fills interleaved float32 blocks. *Engine implements it.
type Renderer interface {
	ProcessInterleaved(out []float32, channels int)
}

// Reader renders on demand as interleaved PCM bytes. Each Read is one block.
// The goroutine calling Read becomes the rendering goroutine.
type Reader struct {
	src      Renderer
	encoder  encode.Encoder
	channels int
	frameLen int // bytes per interleaved frame
	scratch  []float32
}

// NewReader creates a PCM reader over src using format's channel count and
// bit depth
func NewReader(src Renderer, format audio.Format) (*Reader, error) {
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}

	encoder, err := encode.NewPCM(format)
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:      src,
		encoder:  encoder,
		channels: format.Channels,
		frameLen: format.Channels * encoder.BytesPerSample(),
	}, nil
}

// Read fills p with whole frames. It never returns an error other than for
// a buffer too small to hold a single frame.
func (r *Reader) Read(p []byte) (int, error) {
	frames := len(p) / r.frameLen
	if frames == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("read buffer of %d bytes smaller than one %d-byte frame", len(p), r.frameLen)
	}

	samples := frames * r.channels
	if cap(r.scratch) < samples {
		r.scratch = make([]float32, samples)
	}
	buf := r.scratch[:samples]

	r.src.ProcessInterleaved(buf, r.channels)
	return r.encoder.Encode(p, buf)
}

// FrameSize returns the number of bytes in one interleaved frame
func (r *Reader) FrameSize() int {
	return r.frameLen
}
