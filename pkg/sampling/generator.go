// ABOUTME: Discrete sine sample generator
// ABOUTME: Computes s[n] = sin(2*pi*f*n/fs) for n in [0, count)
package sampling

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Initial visualization parameters
	DefaultRate      = 8000.0
	DefaultFrequency = 440.0
	DefaultCount     = 100

	// MaxCount bounds a single generated sequence
	MaxCount = 1 << 20
)

var (
	// ErrInvalidRate is returned for a sampling rate that is not finite and positive
	ErrInvalidRate = errors.New("sampling rate must be finite and greater than zero")

	// ErrInvalidFrequency is returned for a NaN or infinite frequency
	ErrInvalidFrequency = errors.New("frequency must be finite")

	// ErrInvalidCount is returned for a negative sample count
	ErrInvalidCount = errors.New("sample count must not be negative")

	// ErrCountTooLarge is returned for a sample count above MaxCount
	ErrCountTooLarge = errors.New("sample count exceeds maximum")
)

// Validate checks generator inputs without computing anything
func Validate(rate, frequency float64, count int) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return fmt.Errorf("rate %v: %w", rate, ErrInvalidRate)
	}
	if math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return fmt.Errorf("frequency %v: %w", frequency, ErrInvalidFrequency)
	}
	if count < 0 {
		return fmt.Errorf("count %d: %w", count, ErrInvalidCount)
	}
	if count > MaxCount {
		return fmt.Errorf("count %d (max %d): %w", count, MaxCount, ErrCountTooLarge)
	}
	return nil
}

// Generate returns count samples of a unit sine at frequency, sampled at rate.
// A zero count yields an empty, non-nil slice.
func Generate(rate, frequency float64, count int) ([]float64, error) {
	if err := Validate(rate, frequency, count); err != nil {
		return nil, err
	}

	samples := make([]float64, count)
	for n := range samples {
		samples[n] = math.Sin(2 * math.Pi * frequency * float64(n) / rate)
	}

	return samples, nil
}

// Nyquist returns the highest frequency representable at rate
func Nyquist(rate float64) float64 {
	return rate / 2
}

// Alias returns the apparent frequency of a sine at frequency once sampled at
// rate, folded into [0, rate/2]. It returns 0 for an invalid rate.
func Alias(rate, frequency float64) float64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0
	}

	f := math.Mod(math.Abs(frequency), rate)
	if f > rate/2 {
		f = rate - f
	}
	return f
}

// IsAliased reports whether frequency lies above the Nyquist limit of rate
func IsAliased(rate, frequency float64) bool {
	return math.Abs(frequency) > Nyquist(rate)
}
