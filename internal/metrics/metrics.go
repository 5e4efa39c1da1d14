// ABOUTME: Prometheus metrics for the lab
// ABOUTME: Control traffic counters and a scrape-time engine collector
package metrics

import (
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ControlClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aliasing_lab_control_clients",
		Help: "Number of connected websocket control clients",
	})
)

// Counters
var (
	ParamUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aliasing_lab_param_updates_total",
		Help: "Parameter updates by source and outcome",
	}, []string{"source", "outcome"})
	SampleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aliasing_lab_sample_requests_total",
		Help: "Generated sample sequences served by outcome",
	}, []string{"outcome"})
	AudioStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aliasing_lab_audio_starts_total",
		Help: "Audio start attempts by outcome",
	}, []string{"outcome"})
)

// EngineCollector exports engine counters at scrape time. The stats func
// reports false while no engine is rendering.
type EngineCollector struct {
	stats func() (samplehold.Stats, bool)

	running        *prometheus.Desc
	frames         *prometheus.Desc
	holds          *prometheus.Desc
	blocks         *prometheus.Desc
	updatesApplied *prometheus.Desc
	updatesDropped *prometheus.Desc
	fieldsRejected *prometheus.Desc
	stepFrames     *prometheus.Desc
	virtualRate    *prometheus.Desc
}

// NewEngineCollector creates a collector reading from stats
func NewEngineCollector(stats func() (samplehold.Stats, bool)) *EngineCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("aliasing_lab_engine_"+name, help, nil, nil)
	}

	return &EngineCollector{
		stats:          stats,
		running:        desc("running", "1 while the sample-and-hold engine is rendering"),
		frames:         desc("frames_total", "Output frames rendered"),
		holds:          desc("holds_total", "Virtual samples computed"),
		blocks:         desc("blocks_total", "Blocks pulled by the audio device"),
		updatesApplied: desc("updates_applied_total", "Parameter updates applied at block boundaries"),
		updatesDropped: desc("updates_dropped_total", "Parameter updates dropped on a full queue"),
		fieldsRejected: desc("fields_rejected_total", "Invalid update fields ignored"),
		stepFrames:     desc("step_frames", "Output frames each virtual sample is held for"),
		virtualRate:    desc("virtual_rate_hz", "Current virtual sample rate"),
	}
}

// Describe implements prometheus.Collector
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.frames
	ch <- c.holds
	ch <- c.blocks
	ch <- c.updatesApplied
	ch <- c.updatesDropped
	ch <- c.fieldsRejected
	ch <- c.stepFrames
	ch <- c.virtualRate
}

// Collect implements prometheus.Collector
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	s, ok := c.stats()
	if !ok {
		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(s.Frames))
	ch <- prometheus.MustNewConstMetric(c.holds, prometheus.CounterValue, float64(s.Holds))
	ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.CounterValue, float64(s.Blocks))
	ch <- prometheus.MustNewConstMetric(c.updatesApplied, prometheus.CounterValue, float64(s.UpdatesApplied))
	ch <- prometheus.MustNewConstMetric(c.updatesDropped, prometheus.CounterValue, float64(s.UpdatesDropped))
	ch <- prometheus.MustNewConstMetric(c.fieldsRejected, prometheus.CounterValue, float64(s.FieldsRejected))
	ch <- prometheus.MustNewConstMetric(c.stepFrames, prometheus.GaugeValue, s.StepFrames)
	ch <- prometheus.MustNewConstMetric(c.virtualRate, prometheus.GaugeValue, s.Params.VirtualRate)
}
