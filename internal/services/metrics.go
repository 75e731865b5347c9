package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fiapstore/internal/models"
)

// Metrics holds the Prometheus collectors of the point layer. A nil *Metrics
// records nothing.
type Metrics struct {
	// Write metrics
	SamplesWritten   *prometheus.CounterVec
	PointSetsWritten prometheus.Counter
	TrapWrites       *prometheus.CounterVec

	// Query metrics
	Queries      *prometheus.CounterVec
	QueryLatency *prometheus.HistogramVec

	// Backend state, maintained by background jobs
	BackendUp prometheus.Gauge
	Points    prometheus.Gauge

	Errors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Samples written by write path (counter - only goes up)
		SamplesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiap_samples_written_total",
			Help: "Total number of samples written by write path",
		}, []string{"path"}), // path: "chunk" or "list"

		PointSetsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "fiap_point_sets_written_total",
			Help: "Total number of point set documents written",
		}),

		TrapWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiap_trap_writes_total",
			Help: "Total number of successful trap saves and removals",
		}, []string{"action"}),

		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiap_queries_total",
			Help: "Total number of executed queries by aggregate",
		}, []string{"aggregate"}),

		QueryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fiap_query_duration_seconds",
			Help:    "Time to count and open the cursor of a query",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"aggregate"}),

		BackendUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fiap_backend_up",
			Help: "1 when the last backend health check succeeded",
		}),

		Points: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fiap_points",
			Help: "Number of point and point set collections",
		}),

		// Errors by operation and kind
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fiap_errors_total",
			Help: "Total number of failed operations by operation and error kind",
		}, []string{"op", "kind"}),
	}
}

// ErrorKind returns the metric/label name of err's taxonomy kind
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrParse):
		return "parse"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, models.ErrInvalidOperator):
		return "invalid_operator"
	default:
		return "storage"
	}
}

func (m *Metrics) observeWrite(path string, n int, err error) {
	if m == nil {
		return
	}
	if n > 0 {
		m.SamplesWritten.WithLabelValues(path).Add(float64(n))
	}
	if err != nil {
		m.Errors.WithLabelValues("insert_"+path, ErrorKind(err)).Inc()
	}
}

func (m *Metrics) observePointSet(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Errors.WithLabelValues("insert_point_set", ErrorKind(err)).Inc()
		return
	}
	m.PointSetsWritten.Inc()
}

func (m *Metrics) observeTrap(action string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Errors.WithLabelValues(action+"_trap", ErrorKind(err)).Inc()
		return
	}
	m.TrapWrites.WithLabelValues(action).Inc()
}

func (m *Metrics) observeQuery(kind models.AggregateKind, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Errors.WithLabelValues("query", ErrorKind(err)).Inc()
		return
	}
	m.Queries.WithLabelValues(kind.String()).Inc()
	m.QueryLatency.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

// SetBackendState records the outcome of a backend health check
func (m *Metrics) SetBackendState(up bool, points int) {
	if m == nil {
		return
	}
	if !up {
		m.BackendUp.Set(0)
		return
	}
	m.BackendUp.Set(1)
	m.Points.Set(float64(points))
}
