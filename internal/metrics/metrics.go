// Package metrics exposes the Prometheus instruments for the dual-store
// data layer. Everything is optional: a nil *Metrics disables collection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instruments the failover layer and the HTTP API report
// into.
type Metrics struct {
	FallbackReads  prometheus.Counter
	FallbackWrites prometheus.Counter
	RemoteFailures *prometheus.CounterVec
	OutboxDepth    prometheus.Gauge
	OutboxReplayed prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
}

// New registers the instruments with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FallbackReads: factory.NewCounter(prometheus.CounterOpts{
			Name: "shiftboard_fallback_reads_total",
			Help: "Reads served by the local fallback store after a remote failure.",
		}),
		FallbackWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "shiftboard_fallback_writes_total",
			Help: "Writes replayed against the local fallback store after a remote failure.",
		}),
		RemoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftboard_remote_failures_total",
			Help: "Remote gateway failures by classification.",
		}, []string{"kind"}),
		OutboxDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shiftboard_outbox_depth",
			Help: "Offline writes waiting to be replayed against the remote store.",
		}),
		OutboxReplayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "shiftboard_outbox_replayed_total",
			Help: "Offline writes successfully replayed against the remote store.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftboard_http_requests_total",
			Help: "HTTP API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
}

// IncFallbackRead is nil-safe.
func (m *Metrics) IncFallbackRead() {
	if m != nil {
		m.FallbackReads.Inc()
	}
}

// IncFallbackWrite is nil-safe.
func (m *Metrics) IncFallbackWrite() {
	if m != nil {
		m.FallbackWrites.Inc()
	}
}

// IncRemoteFailure is nil-safe.
func (m *Metrics) IncRemoteFailure(kind string) {
	if m != nil {
		m.RemoteFailures.WithLabelValues(kind).Inc()
	}
}

// SetOutboxDepth is nil-safe.
func (m *Metrics) SetOutboxDepth(depth int) {
	if m != nil {
		m.OutboxDepth.Set(float64(depth))
	}
}

// IncOutboxReplayed is nil-safe.
func (m *Metrics) IncOutboxReplayed() {
	if m != nil {
		m.OutboxReplayed.Inc()
	}
}

// IncHTTPRequest is nil-safe.
func (m *Metrics) IncHTTPRequest(method, route, status string) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	}
}
