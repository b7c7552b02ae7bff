// Package metrics provides Prometheus collectors for the syncer components.
package metrics

import (
	"time"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncerNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "notifications_total",
		Help:      "Count of height notifications received.",
	}, []string{"channel"})

	syncerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "queue_depth",
		Help:      "Number of heights waiting to be processed.",
	}, []string{"channel"})

	syncerSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "skipped_heights_total",
		Help:      "Count of heights dropped because a more recent one was queued.",
	}, []string{"channel"})

	syncerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "runs_total",
		Help:      "Count of pipeline runs by outcome.",
	}, []string{"channel", "status"})

	syncerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "run_duration_seconds",
		Help:      "Duration of a pipeline run including the settle delay.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
	}, []string{"channel", "status"})

	syncerLastHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "last_processed_height",
		Help:      "Height of the most recent pipeline run.",
	}, []string{"channel"})

	syncerStageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "stage_total",
		Help:      "Count of stage executions by outcome.",
	}, []string{"channel", "stage", "status"})

	syncerStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "stage_duration_seconds",
		Help:      "Duration of a single stage execution.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"channel", "stage", "status"})

	syncerRecyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergowatch",
		Subsystem: "syncer",
		Name:      "recycles_total",
		Help:      "Count of connection recycles.",
	}, []string{"channel", "status"})
)

// Syncer tracks metrics for the notification driven orchestrator.
type Syncer struct {
	channel string
}

// NewSyncer constructs a Syncer labelled with the notification channel.
func NewSyncer(channel string) *Syncer {
	if channel == "" {
		channel = "unknown"
	}
	return &Syncer{channel: channel}
}

// ObserveNotification records an arrival and the queue depth after enqueueing it.
func (m Syncer) ObserveNotification(queueDepth int) {
	syncerNotificationsTotal.WithLabelValues(m.channel).Inc()
	syncerQueueDepth.WithLabelValues(m.channel).Set(float64(queueDepth))
}

// ObserveSkipped records a height dropped in favour of a newer one.
func (m Syncer) ObserveSkipped() {
	syncerSkippedTotal.WithLabelValues(m.channel).Inc()
	syncerQueueDepth.WithLabelValues(m.channel).Dec()
}

// ObserveDrained records that the queue was emptied by the scheduler.
func (m Syncer) ObserveDrained() {
	syncerQueueDepth.WithLabelValues(m.channel).Set(0)
}

// ObserveStage records a single stage execution.
func (m Syncer) ObserveStage(stage string, err error, started time.Time) {
	status := statusLabel(err)
	syncerStageTotal.WithLabelValues(m.channel, stage, status).Inc()
	syncerStageDuration.WithLabelValues(m.channel, stage, status).Observe(time.Since(started).Seconds())
}

// ObserveRun records a finished pipeline run. A run with failed stages is "partial".
func (m Syncer) ObserveRun(report model.RunReport) {
	status := "success"
	switch {
	case report.Err != nil:
		status = "error"
	case len(report.FailedStages()) > 0:
		status = "partial"
	}
	syncerRunsTotal.WithLabelValues(m.channel, status).Inc()
	syncerRunDuration.WithLabelValues(m.channel, status).Observe(report.Finished.Sub(report.Started).Seconds())
	syncerLastHeight.WithLabelValues(m.channel).Set(float64(report.Height))
}

// ObserveRecycle records a connection recycle attempt.
func (m Syncer) ObserveRecycle(err error, _ time.Time) {
	syncerRecyclesTotal.WithLabelValues(m.channel, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
