// Package metrics provides Prometheus metrics for the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Edit results.
const (
	EditApplied     = "applied"
	EditNotModified = "not_modified"
	EditRetried     = "retried"
	EditFailed      = "failed"
)

// Metrics holds all Prometheus metrics for the bot. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	EditsTotal *prometheus.CounterVec

	ModelStreamDuration *prometheus.HistogramVec
	ImagesTotal         *prometheus.CounterVec

	PollErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.RequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamchat_requests_total",
			Help: "Total number of handled updates",
		},
		[]string{"command", "outcome"},
	)

	m.RequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamchat_request_duration_seconds",
			Help:    "Duration of handled updates in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	m.RequestsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamchat_requests_in_flight",
			Help: "Number of updates currently being handled",
		},
	)

	m.EditsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamchat_edits_total",
			Help: "Outward message edits by result",
		},
		[]string{"result"},
	)

	m.ModelStreamDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamchat_model_stream_duration_seconds",
			Help:    "Duration of model streams from request to exhaustion",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 6, 8, 10, 15, 25},
		},
		[]string{"outcome"},
	)

	m.ImagesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamchat_images_total",
			Help: "Image generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.PollErrorsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamchat_poll_errors_total",
			Help: "getUpdates failures by error class",
		},
		[]string{"class"},
	)

	return m
}

// RecordRequest records a handled update.
func (m *Metrics) RecordRequest(command, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(command, outcome).Inc()
	m.RequestDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.RequestsInFlight.Inc()
	return m.RequestsInFlight.Dec
}

// RecordEdit records one edit result.
func (m *Metrics) RecordEdit(result string) {
	if m == nil {
		return
	}
	m.EditsTotal.WithLabelValues(result).Inc()
}

// ObserveModelStream records how long a model stream took.
func (m *Metrics) ObserveModelStream(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ModelStreamDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordImage records an image generation attempt.
func (m *Metrics) RecordImage(outcome string) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(outcome).Inc()
}

// RecordPollError records a getUpdates failure.
func (m *Metrics) RecordPollError(class string) {
	if m == nil {
		return
	}
	m.PollErrorsTotal.WithLabelValues(class).Inc()
}
