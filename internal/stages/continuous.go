package stages

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Continuous refreshes the materialized views behind the continuous aggregates.
type Continuous struct {
	views  []pgx.Identifier
	logger *zap.Logger
}

// NewContinuous builds the stage, rejecting malformed view names.
func NewContinuous(cfg ContinuousConfig, logger *zap.Logger) (*Continuous, error) {
	views, err := parseIdentifiers(cfg.Views)
	if err != nil {
		return nil, fmt.Errorf("continuous views: %w", err)
	}
	return &Continuous{views: views, logger: logger.Named("continuous")}, nil
}

func (*Continuous) Name() string { return "continuous" }

func (s *Continuous) Run(ctx context.Context, conn postgres.Conn, height model.Height) error {
	if len(s.views) == 0 {
		return nil
	}
	return conn.InTx(ctx, func(tx postgres.Execer) error {
		for _, view := range s.views {
			if _, err := tx.Exec(ctx, "REFRESH MATERIALIZED VIEW "+view.Sanitize()); err != nil {
				return fmt.Errorf("refresh %s: %w", view.Sanitize(), err)
			}
		}
		s.logger.Debug("views refreshed", zap.Int("count", len(s.views)), zap.Int32("height", int32(height)))
		return nil
	})
}
