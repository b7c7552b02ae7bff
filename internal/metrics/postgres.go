package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postgresOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergowatch",
		Subsystem: "postgres",
		Name:      "operations_total",
		Help:      "Count of database operations.",
	}, []string{"operation", "status"})
	postgresOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ergowatch",
		Subsystem: "postgres",
		Name:      "operation_duration_seconds",
		Help:      "Duration of database operations.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"operation", "status"})
)

// Postgres tracks metrics for operations issued on the shared connection.
type Postgres struct{}

// NewPostgres creates a Postgres metrics collector.
func NewPostgres() *Postgres {
	return &Postgres{}
}

// Observe records duration and status of a database operation.
func (m Postgres) Observe(operation string, err error, started time.Time) {
	status := statusLabel(err)
	postgresOperationsTotal.WithLabelValues(operation, status).Inc()
	postgresOperationDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
