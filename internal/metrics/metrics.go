// Package metrics provides Prometheus metrics for sync passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for PassCompleted.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder holds the sync metrics registered on one registry. A nil
// *Recorder records nothing, so callers never need to check.
type Recorder struct {
	registry *prometheus.Registry

	passesTotal      *prometheus.CounterVec
	passDuration     *prometheus.HistogramVec
	lastSuccess      prometheus.Gauge
	filesTransferred *prometheus.CounterVec
	filesSkipped     prometheus.Counter
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashsync_passes_total",
				Help: "Total full sync passes",
			},
			[]string{"direction", "outcome"},
		),

		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flashsync_pass_duration_seconds",
				Help:    "Full sync pass duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"direction"},
		),

		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "flashsync_last_success_timestamp_seconds",
				Help: "Unix time of the last successful full sync pass",
			},
		),

		filesTransferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashsync_media_files_transferred_total",
				Help: "Total media files transferred",
			},
			[]string{"direction"},
		),

		filesSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flashsync_media_files_skipped_total",
				Help: "Total media files skipped after a transfer failure",
			},
		),
	}
}

// Handler returns the HTTP handler exposing the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// PassCompleted records one full sync pass. direction may be empty when the
// pass failed before a direction was chosen.
func (r *Recorder) PassCompleted(direction, outcome string, duration time.Duration, finishedAt time.Time) {
	if r == nil {
		return
	}

	if direction == "" {
		direction = "none"
	}

	r.passesTotal.WithLabelValues(direction, outcome).Inc()
	r.passDuration.WithLabelValues(direction).Observe(duration.Seconds())

	if outcome == OutcomeSuccess {
		r.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// FileTransferred records one media file moved in direction ("upload",
// "download", "delete_local", "delete_remote").
func (r *Recorder) FileTransferred(direction string) {
	if r == nil {
		return
	}

	r.filesTransferred.WithLabelValues(direction).Inc()
}

// FileSkipped records one media file whose transfer failed and was skipped.
func (r *Recorder) FileSkipped() {
	if r == nil {
		return
	}

	r.filesSkipped.Inc()
}
