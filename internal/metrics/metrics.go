// Package metrics adapts the overlay's node/tracker/resend events onto
// the shared pkg/monitoring Prometheus surface (component C8 of
// SPEC_FULL.md's module map). It owns no state of its own beyond the
// registered collectors; node.Engine, tracker.Tracker and resend.Handler
// stay unaware of Prometheus and are driven through their own event
// buses/accessors by a process entrypoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"frameworks/network/pkg/monitoring"
)

// Overlay wraps the Prometheus collectors shared by the tracker and node
// processes, built on pkg/monitoring.MetricsCollector.CreateOverlayMetrics.
type Overlay struct {
	messages    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	connections *prometheus.GaugeVec

	resendOngoing prometheus.Gauge
	resendMeanAge prometheus.Gauge
}

// New builds the overlay metrics on top of collector, registering the
// resend-specific gauges named in SPEC_FULL.md's resend handler
// bookkeeping (numOfOngoingResends, meanAge) alongside the shared
// message/duration/connection metrics.
func New(collector *monitoring.MetricsCollector) *Overlay {
	messages, duration, connections := collector.CreateOverlayMetrics()

	resendOngoing := collector.NewGauge(
		"resend_ongoing_requests",
		"Number of in-flight resend requests",
		nil,
	)
	resendMeanAge := collector.NewGauge(
		"resend_mean_age_seconds",
		"Mean age of in-flight resend requests",
		nil,
	)

	return &Overlay{
		messages:      messages,
		duration:      duration,
		connections:   connections,
		resendOngoing: resendOngoing.WithLabelValues(),
		resendMeanAge: resendMeanAge.WithLabelValues(),
	}
}

// RecordMessage counts one peer-protocol message. direction is "in" or
// "out"; status is "ok" or "error".
func (o *Overlay) RecordMessage(direction, status string) {
	o.messages.WithLabelValues(direction, status).Inc()
}

// ObserveOperation records how long a named overlay operation (e.g.
// "subscribe", "onInstruction") took.
func (o *Overlay) ObserveOperation(operation string, d time.Duration) {
	o.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetPeerConnections reports the current connection count for peerType
// ("node", "storage", "tracker").
func (o *Overlay) SetPeerConnections(peerType string, n int) {
	o.connections.WithLabelValues(peerType).Set(float64(n))
}

// SetResendOngoing reports resend.Handler.NumOngoingResends().
func (o *Overlay) SetResendOngoing(n int) {
	o.resendOngoing.Set(float64(n))
}

// SetResendMeanAge reports resend.Handler.MeanAge().
func (o *Overlay) SetResendMeanAge(d time.Duration) {
	o.resendMeanAge.Set(d.Seconds())
}
