// Package metrics exposes acquisition and delivery counters in Prometheus
// format on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/temp-logger/internal/sample"
)

const namespace = "temp_logger"

// Delivery results used as the "result" label.
const (
	ResultSent         = "sent"
	ResultFailed       = "failed"
	ResultDeadLettered = "dead_lettered"
	ResultLost         = "lost"
)

// Metrics holds the collectors. All methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	batches     prometheus.Counter
	readings    *prometheus.CounterVec
	temperature *prometheus.GaugeVec
	evictions   prometheus.Counter
	deliveries  *prometheus.CounterVec
	logErrors   prometheus.Counter
	queueDepth  prometheus.Gauge
	backoff     prometheus.Gauge
	paused      prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total valid batches produced by the scheduler.",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Total probe readings by status.",
		}, []string{"status"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last calibrated temperature per probe.",
		}, []string{"sensor", "bus"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "evictions_total",
			Help:      "Total batches evicted from a full upload queue.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Total delivery attempts by result.",
		}, []string{"result"}),
		logErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "errors_total",
			Help:      "Total batches the local log failed to store.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Batches awaiting upload.",
		}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "backoff_seconds",
			Help:      "Current wait between delivery attempts.",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while acquisition is paused by the operator.",
		}),
	}

	m.registry.MustRegister(
		m.batches,
		m.readings,
		m.temperature,
		m.evictions,
		m.deliveries,
		m.logErrors,
		m.queueDepth,
		m.backoff,
		m.paused,
		collectors.NewGoCollector(),
	)

	for _, r := range []string{ResultSent, ResultFailed, ResultDeadLettered, ResultLost} {
		m.deliveries.WithLabelValues(r)
	}
	m.readings.WithLabelValues(string(sample.StatusOK))
	m.readings.WithLabelValues(string(sample.StatusError))

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch counts a dispatched batch and records its temperatures.
func (m *Metrics) ObserveBatch(b *sample.Batch) {
	m.batches.Inc()
	for _, r := range b.Readings {
		m.readings.WithLabelValues(string(r.Status())).Inc()
		if r.OK {
			m.temperature.WithLabelValues(r.Name, string(r.Bus)).Set(r.Calibrated)
		}
	}
}

// ObserveLogError counts a batch lost to local logging.
func (m *Metrics) ObserveLogError() {
	m.logErrors.Inc()
}

// ObserveEviction counts a batch dropped by the queue.
func (m *Metrics) ObserveEviction() {
	m.evictions.Inc()
}

// ObserveDelivery counts one delivery attempt outcome.
func (m *Metrics) ObserveDelivery(result string) {
	m.deliveries.WithLabelValues(result).Inc()
}

// SetQueueDepth records the queue occupancy.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetBackoff records the current retry wait.
func (m *Metrics) SetBackoff(d time.Duration) {
	m.backoff.Set(d.Seconds())
}

// SetPaused records the pause state.
func (m *Metrics) SetPaused(p bool) {
	if p {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}
