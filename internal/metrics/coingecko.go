package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	coingeckoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergowatch",
		Subsystem: "coingecko",
		Name:      "requests_total",
		Help:      "Count of CoinGecko API requests.",
	}, []string{"operation", "status"})
	coingeckoRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ergowatch",
		Subsystem: "coingecko",
		Name:      "request_duration_seconds",
		Help:      "Duration of CoinGecko API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// CoinGecko tracks metrics for calls to the CoinGecko API.
type CoinGecko struct{}

// NewCoinGecko constructs a metrics collector for CoinGecko calls.
func NewCoinGecko() *CoinGecko {
	return &CoinGecko{}
}

// Observe records a single API call outcome and duration.
func (m CoinGecko) Observe(operation string, err error, started time.Time) {
	status := statusLabel(err)
	coingeckoRequestsTotal.WithLabelValues(operation, status).Inc()
	coingeckoRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
