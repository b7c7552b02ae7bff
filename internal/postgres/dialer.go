package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const defaultDialAttempts = 5

// Dialer opens connections that are already subscribed to the configured channel.
type Dialer struct {
	cfg     Config
	metrics Metrics
	logger  *zap.Logger
	connect func(ctx context.Context, cfg *pgx.ConnConfig) (*pgx.Conn, error)
}

// NewDialer validates cfg and builds a Dialer.
func NewDialer(cfg Config, metrics Metrics, logger *zap.Logger) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		return nil, fmt.Errorf("postgres metrics is required")
	}
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = defaultDialAttempts
	}
	return &Dialer{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("postgres"),
		connect: pgx.ConnectConfig,
	}, nil
}

// Dial connects to the database and subscribes to the notification channel.
func (d *Dialer) Dial(ctx context.Context) (Conn, error) {
	connCfg, err := pgx.ParseConfig(d.cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse connection config: %w", err)
	}

	d.logger.Info("connecting to database", zap.String("target", d.cfg.Target()))
	started := time.Now()
	conn, err := backoff.Retry(ctx, func() (*pgx.Conn, error) {
		return d.connect(ctx, connCfg)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(d.cfg.DialAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("connect failed, retrying", zap.Error(err), zap.Duration("next", next))
		}),
	)
	d.metrics.Observe("connect", err, started)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", d.cfg.Target(), err)
	}

	observed := NewObservedConn(conn, d.metrics)
	if err := Listen(ctx, observed, d.cfg.Channel); err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	d.logger.Info("added listener for channel", zap.String("channel", d.cfg.Channel))
	return observed, nil
}

// Listen subscribes conn to channel.
func Listen(ctx context.Context, conn Execer, channel string) error {
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen on %q: %w", channel, err)
	}
	return nil
}
