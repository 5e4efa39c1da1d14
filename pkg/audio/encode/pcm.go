// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float32 samples to 16, 24 or 32-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	switch format.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// BytesPerSample returns the encoded width of one sample
func (e *PCMEncoder) BytesPerSample() int {
	return e.bitDepth / 8
}

// Encode converts float32 samples to PCM bytes in dst
func (e *PCMEncoder) Encode(dst []byte, samples []float32) (int, error) {
	need := len(samples) * e.BytesPerSample()
	if len(dst) < need {
		return 0, fmt.Errorf("destination too small: have %d bytes, need %d", len(dst), need)
	}

	switch e.bitDepth {
	case 16:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(audio.SampleToInt16(audio.FloatToSample(s))))
		}
	case 24:
		for i, s := range samples {
			b := audio.SampleTo24Bit(audio.FloatToSample(s))
			dst[i*3] = b[0]
			dst[i*3+1] = b[1]
			dst[i*3+2] = b[2]
		}
	case 32:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(audio.SampleTo32Bit(audio.FloatToSample(s))))
		}
	}

	return need, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
