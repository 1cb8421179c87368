package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nia-backend/internal/models"
)

// Metrics holds the pipeline collectors
type Metrics struct {
	registry *prometheus.Registry

	packets      prometheus.Counter     // Packets decoded successfully
	decodeErrors prometheus.Counter     // Packets rejected by the decoder
	timeouts     prometheus.Counter     // Transport reads that timed out
	passes       prometheus.Counter     // Acquisition passes handed to processing
	cycles       *prometheus.CounterVec // Processing cycles by brain state
	cycleSeconds prometheus.Histogram   // Processing cycle duration
	bufferLen    prometheus.Gauge       // Samples held by the ring buffer
	bandAmp      *prometheus.GaugeVec   // Latest band amplitudes ('band' label)
	fingers      *prometheus.GaugeVec   // Latest finger energies ('finger' label)
	framesDrop   prometheus.Counter     // Serial frames dropped while busy
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		packets: f.NewCounter(prometheus.CounterOpts{
			Name: "nia_packets_total",
			Help: "Packets decoded successfully",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "nia_decode_errors_total",
			Help: "Packets rejected by the decoder",
		}),
		timeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "nia_read_timeouts_total",
			Help: "Transport reads that returned no packet within the timeout",
		}),
		passes: f.NewCounter(prometheus.CounterOpts{
			Name: "nia_acquisition_passes_total",
			Help: "Acquisition passes handed to processing",
		}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nia_cycles_total",
			Help: "Processing cycles by dominant brain state",
		}, []string{"state"}),
		cycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nia_cycle_duration_seconds",
			Help:    "Time spent filtering, transforming and classifying one snapshot",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		bufferLen: f.NewGauge(prometheus.GaugeOpts{
			Name: "nia_buffer_samples",
			Help: "Samples currently held by the sample buffer",
		}),
		bandAmp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nia_band_amplitude",
			Help: "Mean absolute amplitude of the latest band-filtered window",
		}, []string{"band"}),
		fingers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nia_finger_energy",
			Help: "Latest finger energies",
		}, []string{"finger"}),
		framesDrop: f.NewCounter(prometheus.CounterOpts{
			Name: "nia_serial_frames_dropped_total",
			Help: "Frames dropped because the serial sink was still sending",
		}),
	}
}

// Handler serves the registry in the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePass records one acquisition pass
func (m *Metrics) ObservePass(p *models.AcquisitionPass, bufferLen int) {
	m.packets.Add(float64(p.Packets))
	m.decodeErrors.Add(float64(p.Dropped))
	m.timeouts.Add(float64(p.Timeouts))
	m.passes.Inc()
	m.bufferLen.Set(float64(bufferLen))
}

// ObserveCycle records one processing cycle and its duration in seconds
func (m *Metrics) ObserveCycle(rec *models.CycleRecord, seconds float64) {
	m.cycles.WithLabelValues(rec.BrainState).Inc()
	m.cycleSeconds.Observe(seconds)

	m.bandAmp.WithLabelValues("delta").Set(rec.Bands.Delta)
	m.bandAmp.WithLabelValues("theta").Set(rec.Bands.Theta)
	m.bandAmp.WithLabelValues("alpha").Set(rec.Bands.Alpha)
	m.bandAmp.WithLabelValues("beta").Set(rec.Bands.Beta)
	m.bandAmp.WithLabelValues("gamma").Set(rec.Bands.Gamma)

	for i, name := range models.FingerNames {
		m.fingers.WithLabelValues(name).Set(rec.Fingers[i])
	}
}

// FrameDropped counts a frame the serial sink could not take
func (m *Metrics) FrameDropped() {
	m.framesDrop.Inc()
}
