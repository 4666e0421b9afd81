package transport

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for transport-level operations across
// both the TCP session and HTTP transports.
//
// Methods handle a nil receiver gracefully, so a nil *Metrics acts as a
// no-op: callers that don't want metrics simply never construct one.
type Metrics struct {
	// Requests counts sent requests by transport and verb.
	// Labels: transport=[tcp, http], verb
	Requests *prometheus.CounterVec

	// Failures counts transport-level failures (framing, crypto, validation,
	// I/O) by transport.
	// Labels: transport=[tcp, http]
	Failures *prometheus.CounterVec

	// HandshakeDuration tracks TCP handshake completion time.
	HandshakeDuration prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers the transport Prometheus metrics. If
// registerer is nil, prometheus.DefaultRegisterer is used. Idempotent: uses
// sync.Once so repeated calls return the same registered instance.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			Requests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "anwdlclient_transport_requests_total",
					Help: "Total requests sent, by transport and verb",
				},
				[]string{"transport", "verb"},
			),
			Failures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "anwdlclient_transport_failures_total",
					Help: "Total transport-level failures, by transport",
				},
				[]string{"transport"},
			),
			HandshakeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "anwdlclient_transport_handshake_duration_seconds",
					Help:    "TCP session handshake duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		registerer.MustRegister(m.Requests, m.Failures, m.HandshakeDuration)
		metricsInstance = m
	})

	return metricsInstance
}

func (m *Metrics) observeRequest(transportName, verb string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(transportName, verb).Inc()
}

func (m *Metrics) observeFailure(transportName string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(transportName).Inc()
}

func (m *Metrics) observeHandshake(duration time.Duration) {
	if m == nil {
		return
	}
	m.HandshakeDuration.Observe(duration.Seconds())
}
