package syncer

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Listener moves notifications from an idle connection into the queue.
type Listener struct {
	channel string
	queue   *Queue
	metrics Metrics
	logger  *zap.Logger
}

// NewListener builds a Listener for channel feeding queue.
func NewListener(channel string, queue *Queue, metrics Metrics, logger *zap.Logger) *Listener {
	return &Listener{
		channel: channel,
		queue:   queue,
		metrics: metrics,
		logger:  logger,
	}
}

// Listen waits for notifications on conn until ctx is canceled, in which case
// it returns nil. Any other error means the connection is unusable or the
// payload violated the channel contract.
func (l *Listener) Listen(ctx context.Context, conn postgres.Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if n == nil {
			continue
		}
		if err := l.handle(n); err != nil {
			return err
		}
	}
}

func (l *Listener) handle(n *pgconn.Notification) error {
	if n.Channel != l.channel {
		l.logger.Warn("ignoring notification from unexpected channel", zap.String("channel", n.Channel))
		return nil
	}

	l.logger.Info("received notification", zap.String("payload", n.Payload))
	height, err := model.ParseHeight(n.Payload)
	if err != nil {
		return fmt.Errorf("channel %q: %w", n.Channel, err)
	}

	depth := l.queue.Enqueue(height)
	l.metrics.ObserveNotification(depth)
	l.logger.Info("queued height", heightField(height), zap.Int("queue_size", depth))
	return nil
}
