// ABOUTME: Lab application state and audio lifecycle
// ABOUTME: Coordinates the generator, the engine and the output device
package app

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Resonate-Protocol/aliasing-lab/internal/metrics"
	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/audio/output"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/sampling"
)

// Config holds lab configuration
type Config struct {
	// Audio output
	Backend    string
	SampleRate int
	Channels   int
	BitDepth   int
	Gain       float64

	// Initial visualization
	Rate      float64
	Frequency float64
	Count     int

	// OpenOutput creates the output backend; defaults to output.New
	OpenOutput func(backend string) (output.Output, error)
}

// DefaultConfig returns the lab defaults
func DefaultConfig() Config {
	return Config{
		Backend:    output.DefaultBackend,
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
		Gain:       samplehold.DefaultGain,
		Rate:       sampling.DefaultRate,
		Frequency:  sampling.DefaultFrequency,
		Count:      sampling.DefaultCount,
	}
}

// Lab owns the visualization parameters and the audio session
type Lab struct {
	config Config

	mu        sync.Mutex
	rate      float64
	frequency float64
	count     int
	gain      float64
	samples   []float64

	engine *samplehold.Engine
	out    output.Output
}

// New creates a lab and generates the initial samples
func New(config Config) (*Lab, error) {
	if config.OpenOutput == nil {
		config.OpenOutput = output.New
	}

	samples, err := sampling.Generate(config.Rate, config.Frequency, config.Count)
	if err != nil {
		return nil, fmt.Errorf("initial visualization: %w", err)
	}

	return &Lab{
		config:    config,
		rate:      config.Rate,
		frequency: config.Frequency,
		count:     config.Count,
		gain:      config.Gain,
		samples:   samples,
	}, nil
}

// Samples returns a copy of the current sample set
func (l *Lab) Samples() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]float64, len(l.samples))
	copy(out, l.samples)
	return out
}

// SetVisualization regenerates the samples and, if audio is running, sends
// the new rate and frequency to the engine
func (l *Lab) SetVisualization(rate, frequency float64, count int) error {
	samples, err := sampling.Generate(rate, frequency, count)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rate = rate
	l.frequency = frequency
	l.count = count
	l.samples = samples

	log.Printf("Visualization updated: fs=%gHz f=%gHz N=%d", rate, frequency, count)

	return l.sendParamsLocked("tui")
}

// Apply handles a remote parameter update. Valid fields update both the
// visualization and the engine; invalid fields are ignored and reported.
func (l *Lab) Apply(u samplehold.Update, source string) (samplehold.FieldErrors, error) {
	rejected := u.Validate()
	if len(rejected) > 0 {
		metrics.ParamUpdatesTotal.WithLabelValues(source, "rejected").Add(float64(len(rejected)))
	}

	accepted := u.Accepted()
	if len(accepted) == 0 {
		return rejected, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rate, frequency, gain := l.rate, l.frequency, l.gain
	for _, field := range accepted {
		switch field {
		case samplehold.FieldVirtualRate:
			rate = *u.VirtualRate
		case samplehold.FieldFrequency:
			frequency = *u.Frequency
		case samplehold.FieldGain:
			gain = *u.Gain
		}
	}

	samples, err := sampling.Generate(rate, frequency, l.count)
	if err != nil {
		return rejected, err
	}
	l.rate, l.frequency, l.gain, l.samples = rate, frequency, gain, samples

	if l.engine == nil {
		metrics.ParamUpdatesTotal.WithLabelValues(source, "applied").Inc()
		return rejected, nil
	}

	if err := l.engine.Post(u); err != nil {
		metrics.ParamUpdatesTotal.WithLabelValues(source, "dropped").Inc()
		return rejected, err
	}
	metrics.ParamUpdatesTotal.WithLabelValues(source, "applied").Inc()
	return rejected, nil
}

// StartAudio opens the output and starts rendering. It is a no-op while
// audio is running. On failure audio stays stopped and the visualization
// remains usable.
func (l *Lab) StartAudio() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		return nil
	}

	out, err := l.config.OpenOutput(l.config.Backend)
	if err != nil {
		metrics.AudioStartsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("audio backend: %w", err)
	}

	engine := samplehold.New(samplehold.Config{
		RealRate: float64(l.config.SampleRate),
		Initial:  l.paramsLocked(),
	})

	format := audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: l.config.SampleRate,
		Channels:   l.config.Channels,
		BitDepth:   l.config.BitDepth,
	}

	if err := out.Open(format, engine); err != nil {
		outcome := "error"
		if errors.Is(err, output.ErrUnavailable) {
			outcome = "unavailable"
		}
		metrics.AudioStartsTotal.WithLabelValues(outcome).Inc()
		return fmt.Errorf("failed to start audio: %w", err)
	}

	l.engine = engine
	l.out = out
	metrics.AudioStartsTotal.WithLabelValues("ok").Inc()

	log.Printf("Audio started: %s", l.infoLocked())
	return nil
}

// StopAudio closes the output. It is a no-op while audio is stopped.
func (l *Lab) StopAudio() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine == nil {
		return nil
	}

	err := l.out.Close()
	l.engine = nil
	l.out = nil

	log.Printf("Audio stopped")
	if err != nil {
		return fmt.Errorf("failed to stop audio: %w", err)
	}
	return nil
}

// AudioRunning reports whether the engine is rendering
func (l *Lab) AudioRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

// EngineStats returns engine counters while audio is running
func (l *Lab) EngineStats() (samplehold.Stats, bool) {
	l.mu.Lock()
	engine := l.engine
	l.mu.Unlock()

	if engine == nil {
		return samplehold.Stats{}, false
	}
	return engine.Stats(), true
}

// Status returns a snapshot of the lab
func (l *Lab) Status() protocol.LabStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := protocol.LabStatus{
		Rate:         l.rate,
		Frequency:    l.frequency,
		Count:        l.count,
		Gain:         l.gain,
		Alias:        sampling.Alias(l.rate, l.frequency),
		Aliased:      sampling.IsAliased(l.rate, l.frequency),
		AudioRunning: l.engine != nil,
		Backend:      l.config.Backend,
		SampleRate:   l.config.SampleRate,
	}

	if l.engine != nil {
		stats := l.engine.Stats()
		status.Engine = &stats
		status.Info = l.infoLocked()
	}

	return status
}

// sendParamsLocked forwards the current parameters to a running engine
func (l *Lab) sendParamsLocked(source string) error {
	if l.engine == nil {
		return nil
	}

	if err := l.engine.Post(l.paramsLocked()); err != nil {
		metrics.ParamUpdatesTotal.WithLabelValues(source, "dropped").Inc()
		return err
	}
	metrics.ParamUpdatesTotal.WithLabelValues(source, "applied").Inc()
	return nil
}

func (l *Lab) paramsLocked() samplehold.Update {
	return samplehold.Update{
		VirtualRate: samplehold.Float(l.rate),
		Frequency:   samplehold.Float(l.frequency),
		Gain:        samplehold.Float(l.gain),
	}
}

func (l *Lab) infoLocked() string {
	return fmt.Sprintf("audio SR=%dHz / virtualFs=%gHz / f=%gHz", l.config.SampleRate, l.rate, l.frequency)
}
