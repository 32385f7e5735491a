// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing setup. Nothing here touches global registries or providers;
// the pieces are built in cmd and injected.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/scriptbox/internal/executor"
)

const namespace = "scriptbox"

var _ executor.Metrics = (*MetricsCollector)(nil)

// MetricsCollector holds all Prometheus metrics on a private registry.
type MetricsCollector struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	BusyWorkers       prometheus.Gauge
	LogWriteFailures  prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge
}

func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Script executions by terminal status.",
		}, []string{"status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time from dispatch to terminal state.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status"}),

		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "busy_workers",
			Help:      "Worker slots currently held by a run.",
		}),

		LogWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "log_write_failures_total",
			Help:      "Execution log writes that failed.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "route", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Requests currently being served.",
		}),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.BusyWorkers,
		m.LogWriteFailures,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

func (m *MetricsCollector) ObserveExecution(status executor.Status, elapsed time.Duration) {
	m.ExecutionsTotal.WithLabelValues(string(status)).Inc()
	m.ExecutionDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func (m *MetricsCollector) SetBusyWorkers(n int) {
	m.BusyWorkers.Set(float64(n))
}

func (m *MetricsCollector) LogWriteFailed() {
	m.LogWriteFailures.Inc()
}

// RequestStarted and RequestFinished feed the HTTP middleware.
func (m *MetricsCollector) RequestStarted() {
	m.ActiveRequests.Inc()
}

func (m *MetricsCollector) RequestFinished(method, route string, status int, elapsed time.Duration) {
	m.ActiveRequests.Dec()
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
