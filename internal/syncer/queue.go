package syncer

import (
	"sync"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"go.uber.org/zap"
)

// Queue is an unbounded FIFO of announced heights where the latest entry wins.
type Queue struct {
	mu      sync.Mutex
	heights []model.Height
	metrics Metrics
	logger  *zap.Logger
}

// NewQueue builds an empty Queue.
func NewQueue(metrics Metrics, logger *zap.Logger) *Queue {
	return &Queue{metrics: metrics, logger: logger}
}

// Enqueue appends h and returns the resulting queue length. It never blocks.
func (q *Queue) Enqueue(h model.Height) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.heights = append(q.heights, h)
	return len(q.heights)
}

// Len returns the number of pending heights.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.heights)
}

// DrainLatest empties the queue and returns the most recently enqueued height.
// Every older entry is logged as skipped. ok is false when the queue is empty.
func (q *Queue) DrainLatest() (h model.Height, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heights) == 0 {
		return 0, false
	}
	for len(q.heights) > 1 {
		skipped := q.heights[0]
		q.heights = q.heights[1:]
		q.logger.Info("skipping height - more recent one available", heightField(skipped))
		q.metrics.ObserveSkipped()
	}

	h = q.heights[0]
	q.heights = nil
	q.metrics.ObserveDrained()
	return h, true
}

func heightField(h model.Height) zap.Field {
	return zap.Int32("height", int32(h))
}
