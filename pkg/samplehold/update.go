// ABOUTME: Partial parameter updates for the sample-and-hold engine
// ABOUTME: Per-field validation of virtual rate, frequency and gain
package samplehold

import (
	"errors"
	"math"
	"sort"
)

// JSON names of the update fields
const (
	FieldVirtualRate = "virtualFs"
	FieldFrequency   = "freq"
	FieldGain        = "gain"
)

var (
	// ErrNotFinite is reported for NaN or infinite field values
	ErrNotFinite = errors.New("value must be finite")

	// ErrNonPositiveRate is reported for a virtual rate <= 0
	ErrNonPositiveRate = errors.New("virtual rate must be greater than zero")
)

// Update is a partial parameter change. Nil fields are left untouched.
type Update struct {
	VirtualRate *float64 `json:"virtualFs,omitempty"`
	Frequency   *float64 `json:"freq,omitempty"`
	Gain        *float64 `json:"gain,omitempty"`
}

// Float returns a pointer to v for building updates
func Float(v float64) *float64 {
	return &v
}

// FieldErrors maps a JSON field name to the reason it was rejected
type FieldErrors map[string]error

// Fields returns the rejected field names in sorted order
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the update carries no fields at all
func (u Update) IsEmpty() bool {
	return u.VirtualRate == nil && u.Frequency == nil && u.Gain == nil
}

// Validate checks each present field independently. It returns nil when
// every present field is acceptable.
func (u Update) Validate() FieldErrors {
	var fe FieldErrors
	reject := func(name string, err error) {
		if fe == nil {
			fe = make(FieldErrors)
		}
		fe[name] = err
	}

	if u.VirtualRate != nil {
		if err := validateRate(*u.VirtualRate); err != nil {
			reject(FieldVirtualRate, err)
		}
	}
	if u.Frequency != nil && !isFinite(*u.Frequency) {
		reject(FieldFrequency, ErrNotFinite)
	}
	if u.Gain != nil && !isFinite(*u.Gain) {
		reject(FieldGain, ErrNotFinite)
	}

	return fe
}

// Accepted returns the names of present fields that pass validation
func (u Update) Accepted() []string {
	p, _ := u.compile()
	var names []string
	if p.mask&maskVirtualRate != 0 {
		names = append(names, FieldVirtualRate)
	}
	if p.mask&maskFrequency != 0 {
		names = append(names, FieldFrequency)
	}
	if p.mask&maskGain != 0 {
		names = append(names, FieldGain)
	}
	return names
}

const (
	maskVirtualRate uint8 = 1 << iota
	maskFrequency
	maskGain
)

// pending is the flattened, pre-validated form of an Update carried by the
// queue. It holds no pointers so the render side only copies values.
type pending struct {
	mask        uint8
	virtualRate float64
	frequency   float64
	gain        float64
}

// compile keeps the valid fields of u and counts the rejected ones
func (u Update) compile() (pending, int) {
	var p pending
	rejected := 0

	if u.VirtualRate != nil {
		if validateRate(*u.VirtualRate) == nil {
			p.mask |= maskVirtualRate
			p.virtualRate = *u.VirtualRate
		} else {
			rejected++
		}
	}
	if u.Frequency != nil {
		if isFinite(*u.Frequency) {
			p.mask |= maskFrequency
			p.frequency = *u.Frequency
		} else {
			rejected++
		}
	}
	if u.Gain != nil {
		if isFinite(*u.Gain) {
			p.mask |= maskGain
			p.gain = *u.Gain
		} else {
			rejected++
		}
	}

	return p, rejected
}

func validateRate(v float64) error {
	if !isFinite(v) {
		return ErrNotFinite
	}
	if v <= 0 {
		return ErrNonPositiveRate
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
