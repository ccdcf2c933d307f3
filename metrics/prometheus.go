// Package metrics exports the request, transfer and session metrics of
// ftpclient sessions to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	client, err := ftpclient.New(ftpclient.WithMetrics(metrics.NewCollector(reg)))
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/embeddedmz/ftpclient"
)

const namespace = "ftpclient"

// Collector implements ftpclient.MetricsCollector with Prometheus metrics.
// All methods are nil-safe: calls on a nil *Collector are no-ops.
type Collector struct {
	// RequestsTotal counts requests, labeled by operation and outcome code.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes request latencies in seconds, labeled by
	// operation.
	RequestDuration *prometheus.HistogramVec

	// TransferredBytes counts bytes moved by successful requests, labeled
	// by operation.
	TransferredBytes *prometheus.CounterVec

	// SessionEvents counts session lifecycle events, labeled by event:
	// "init", "cleanup", "implicit_cleanup".
	SessionEvents *prometheus.CounterVec

	// ActiveSessions tracks the sessions currently initialized.
	ActiveSessions prometheus.Gauge
}

var _ ftpclient.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg. If reg is
// nil, metrics are created but not registered. Metrics already registered
// by a previous collector are reused, so several clients of one process
// can share a registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of requests performed, by operation and outcome code",
		}, []string{"op", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 16), // 5ms to ~164s
		}, []string{"op"}),
		TransferredBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transferred_bytes_total",
			Help:      "Total number of bytes downloaded or uploaded",
		}, []string{"op"}),
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "events_total",
			Help:      "Total number of session lifecycle events",
		}, []string{"event"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of initialized sessions",
		}),
	}

	if reg != nil {
		c.RequestsTotal = registerOrReuse(reg, c.RequestsTotal).(*prometheus.CounterVec)
		c.RequestDuration = registerOrReuse(reg, c.RequestDuration).(*prometheus.HistogramVec)
		c.TransferredBytes = registerOrReuse(reg, c.TransferredBytes).(*prometheus.CounterVec)
		c.SessionEvents = registerOrReuse(reg, c.SessionEvents).(*prometheus.CounterVec)
		c.ActiveSessions = registerOrReuse(reg, c.ActiveSessions).(prometheus.Gauge)
	}
	return c
}

// registerOrReuse registers a collector, returning the existing one when an
// identical collector is already registered. Other failures panic.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// RecordRequest implements ftpclient.MetricsCollector.
func (c *Collector) RecordRequest(op string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(op, strconv.Itoa(code)).Inc()
	c.RequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordTransfer implements ftpclient.MetricsCollector.
func (c *Collector) RecordTransfer(op string, bytes int64, _ time.Duration) {
	if c == nil {
		return
	}
	c.TransferredBytes.WithLabelValues(op).Add(float64(bytes))
}

// RecordSession implements ftpclient.MetricsCollector.
func (c *Collector) RecordSession(event string) {
	if c == nil {
		return
	}
	c.SessionEvents.WithLabelValues(event).Inc()
	switch event {
	case "init":
		c.ActiveSessions.Inc()
	case "cleanup":
		c.ActiveSessions.Dec()
	}
}
