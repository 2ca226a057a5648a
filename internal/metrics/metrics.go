// Package metrics exposes Prometheus instrumentation for the router and
// channel layers. All metrics use the "protoipc_" prefix. Methods handle a
// nil receiver gracefully, so a nil *Metrics acts as a no-op (zero overhead
// when metrics are disabled).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the Port/Router/Channel stack.
type Metrics struct {
	// PortsActive is the current number of ports registered with a Router.
	PortsActive prometheus.Gauge

	// MessagesRouted counts messages forwarded by the Router, labeled by
	// outcome (forwarded/dropped).
	MessagesRouted *prometheus.CounterVec

	// BytesTransferred counts payload bytes sent through ports, labeled
	// by direction (send/receive).
	BytesTransferred *prometheus.CounterVec

	// HandlesPassed counts file descriptors handed off via SCM_RIGHTS.
	HandlesPassed prometheus.Counter

	// DispatchErrors counts Channel-level dispatch failures, labeled by
	// error kind.
	DispatchErrors *prometheus.CounterVec

	// RequestDuration tracks round-trip latency of Channel.SendRequest.
	RequestDuration prometheus.Histogram

	// ObjectsBound is the current number of objects bound to a Channel.
	ObjectsBound prometheus.Gauge
}

var (
	once     sync.Once
	instance *Metrics
)

// enabled tracks whether metrics collection is turned on for the process.
// Set via SetEnabled at startup from the loaded Config.
var enabled atomic.Bool

// New creates and registers the protoipc metrics. If registerer is nil,
// prometheus.DefaultRegisterer is used. Idempotent: uses sync.Once so
// repeated calls return the same instance.
func New(registerer prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			PortsActive: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "protoipc_ports_active",
				Help: "Current number of ports registered with the router",
			}),
			MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "protoipc_messages_routed_total",
				Help: "Total messages handled by the router, by outcome",
			}, []string{"outcome"}),
			BytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "protoipc_bytes_transferred_total",
				Help: "Total payload bytes transferred through ports, by direction",
			}, []string{"direction"}),
			HandlesPassed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "protoipc_handles_passed_total",
				Help: "Total file descriptors passed via SCM_RIGHTS",
			}),
			DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "protoipc_dispatch_errors_total",
				Help: "Total channel dispatch failures, by kind",
			}, []string{"kind"}),
			RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "protoipc_request_duration_seconds",
				Help:    "Round-trip latency of synchronous channel requests",
				Buckets: prometheus.DefBuckets,
			}),
			ObjectsBound: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "protoipc_objects_bound",
				Help: "Current number of objects bound to a channel",
			}),
		}

		registerer.MustRegister(
			m.PortsActive,
			m.MessagesRouted,
			m.BytesTransferred,
			m.HandlesPassed,
			m.DispatchErrors,
			m.RequestDuration,
			m.ObjectsBound,
		)

		instance = m
	})

	return instance
}

// SetEnabled toggles whether IsEnabled reports metrics collection is active.
// The flag gates nothing by itself: the router/channel call sites use a
// *Metrics directly, and the CLI creates the collectors either way and
// starts the HTTP exporter based on its loaded config.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// IsEnabled reports whether metrics collection was enabled via configuration.
func IsEnabled() bool {
	return enabled.Load()
}

// PortAdded increments the active ports gauge.
func (m *Metrics) PortAdded() {
	if m == nil {
		return
	}
	m.PortsActive.Inc()
}

// PortRemoved decrements the active ports gauge.
func (m *Metrics) PortRemoved() {
	if m == nil {
		return
	}
	m.PortsActive.Dec()
}

// MessageForwarded records a message the router successfully forwarded.
func (m *Metrics) MessageForwarded() {
	if m == nil {
		return
	}
	m.MessagesRouted.WithLabelValues("forwarded").Inc()
}

// MessageDropped records a message the router silently dropped because its
// destination port was unknown or forwarding it to that port failed.
func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.MessagesRouted.WithLabelValues("dropped").Inc()
}

// BytesSent records payload bytes written to a port.
func (m *Metrics) BytesSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTransferred.WithLabelValues("send").Add(float64(n))
}

// BytesReceived records payload bytes read from a port.
func (m *Metrics) BytesReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTransferred.WithLabelValues("receive").Add(float64(n))
}

// HandlesSent records the number of handles passed in a single send.
func (m *Metrics) HandlesSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HandlesPassed.Add(float64(n))
}

// DispatchError records a channel dispatch failure of the given kind
// (the Channel uses "unknown_object" and "receiver").
func (m *Metrics) DispatchError(kind string) {
	if m == nil {
		return
	}
	m.DispatchErrors.WithLabelValues(kind).Inc()
}

// ObserveRequest records the latency of a completed synchronous request.
func (m *Metrics) ObserveRequest(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// ObjectBound increments the bound-objects gauge.
func (m *Metrics) ObjectBound() {
	if m == nil {
		return
	}
	m.ObjectsBound.Inc()
}

// ObjectUnbound decrements the bound-objects gauge.
func (m *Metrics) ObjectUnbound() {
	if m == nil {
		return
	}
	m.ObjectsBound.Dec()
}
