// Package metrics exposes session counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesProcessed atomic.Uint64
	FrameErrors     atomic.Uint64
	DetectErrors    atomic.Uint64
	Detections      atomic.Uint64

	// Session state
	SessionsStarted atomic.Uint64
	Capturing       atomic.Uint64 // 0 = idle, 1 = capturing
	DetectLatencyMs atomic.Uint64

	// Stream viewers
	ActiveViewers atomic.Int64

	hits     *prometheus.CounterVec
	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drumcam_drum_hits_total",
				Help: "Drum selections by instrument and outcome (played or muted)",
			},
			[]string{"instrument", "outcome"},
		),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	m.registry.MustRegister(m.hits)

	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"drumcam_frames_processed_total", "Frames run through detection", func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"drumcam_frame_errors_total", "Frames that could not be read from the camera", func() float64 { return float64(m.FrameErrors.Load()) }},
		{"drumcam_detect_errors_total", "Detection calls that failed", func() float64 { return float64(m.DetectErrors.Load()) }},
		{"drumcam_detections_total", "Detections above the score threshold", func() float64 { return float64(m.Detections.Load()) }},
		{"drumcam_sessions_started_total", "Capture sessions started", func() float64 { return float64(m.SessionsStarted.Load()) }},
		{"drumcam_capturing", "Session state (0=idle, 1=capturing)", func() float64 { return float64(m.Capturing.Load()) }},
		{"drumcam_detect_latency_ms", "Latency of the last detection call in milliseconds", func() float64 { return float64(m.DetectLatencyMs.Load()) }},
		{"drumcam_stream_viewers", "Connected MJPEG viewers", func() float64 { return float64(m.ActiveViewers.Load()) }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// FrameProcessed records one detected frame and its qualifying detections.
func (m *Metrics) FrameProcessed(qualifying int, latency time.Duration) {
	m.FramesProcessed.Add(1)
	m.Detections.Add(uint64(qualifying))
	m.DetectLatencyMs.Store(uint64(latency.Milliseconds()))
}

// FrameFailed records a camera read failure.
func (m *Metrics) FrameFailed() {
	m.FrameErrors.Add(1)
}

// DetectFailed records a failed detection call.
func (m *Metrics) DetectFailed() {
	m.DetectErrors.Add(1)
}

// DrumSelected records whether the selected drum played or was muted.
func (m *Metrics) DrumSelected(instrument string, played bool) {
	outcome := "muted"
	if played {
		outcome = "played"
	}
	m.hits.WithLabelValues(instrument, outcome).Inc()
}

// SessionChanged records a capture state change.
func (m *Metrics) SessionChanged(capturing bool) {
	if capturing {
		m.SessionsStarted.Add(1)
		m.Capturing.Store(1)
		return
	}
	m.Capturing.Store(0)
}

// Hits returns the hit counter for tests and status pages.
func (m *Metrics) Hits() *prometheus.CounterVec {
	return m.hits
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
