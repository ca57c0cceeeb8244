package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skryldev/appointments/db"
	"github.com/Skryldev/appointments/engine"
	"github.com/Skryldev/appointments/models"
)

// Metrics is the Prometheus collector set for the service. It doubles as
// the db toolkit's MetricsCollector and the engine's Recorder.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge

	DBQueryDuration *prometheus.HistogramVec

	StatusChanges       *prometheus.CounterVec
	AppointmentsCreated prometheus.Counter
	AppointmentsDeleted prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics registers every collector with reg. Pass a fresh
// prometheus.NewRegistry() in tests so repeated construction does not
// collide on the default registerer.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database statement latency by leading SQL keyword.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"operation", "success"}),

		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "status_changes_total",
			Help:      "Committed status changes by target status.",
		}, []string{"status"}),

		AppointmentsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "created_total",
			Help:      "Total appointments created.",
		}),

		AppointmentsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "deleted_total",
			Help:      "Total appointments deleted.",
		}),

		gatherer: reg,
	}
}

func (m *Metrics) RecordQuery(operation string, d time.Duration, success bool) {
	m.DBQueryDuration.WithLabelValues(operation, strconv.FormatBool(success)).Observe(d.Seconds())
}

func (m *Metrics) AppointmentCreated() { m.AppointmentsCreated.Inc() }
func (m *Metrics) AppointmentDeleted() { m.AppointmentsDeleted.Inc() }

func (m *Metrics) StatusChanged(status models.Status) {
	m.StatusChanges.WithLabelValues(string(status)).Inc()
}

// ObserveRequest records one finished HTTP request. path should be the
// route template, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

var (
	_ db.MetricsCollector = (*Metrics)(nil)
	_ engine.Recorder     = (*Metrics)(nil)
)
