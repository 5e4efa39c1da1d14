// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all audio encoders
package encode

// Encoder encodes rendered float32 samples to a wire format
type Encoder interface {
	// Encode writes samples into dst and returns the number of bytes written.
	// dst must hold len(samples)*BytesPerSample() bytes.
	Encode(dst []byte, samples []float32) (int, error)

	// BytesPerSample returns the encoded size of one sample
	BytesPerSample() int

	// Close releases encoder resources
	Close() error
}
