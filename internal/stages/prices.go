package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"go.uber.org/zap"
)

const upsertPriceQuery = `INSERT INTO cgo.price_history (coin, currency, observed_at, value, height)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (coin, currency, observed_at) DO UPDATE
SET value = EXCLUDED.value, height = EXCLUDED.height`

// Prices records the current spot price of the configured coin.
type Prices struct {
	source   PriceSource
	coin     string
	currency string
	logger   *zap.Logger
}

// NewPrices builds the price stage.
func NewPrices(source PriceSource, cfg PricesConfig, logger *zap.Logger) (*Prices, error) {
	if source == nil {
		return nil, errors.New("price source is required")
	}
	return &Prices{
		source:   source,
		coin:     cfg.Coin,
		currency: cfg.Currency,
		logger:   logger.Named("prices"),
	}, nil
}

func (s *Prices) Name() string { return "prices" }

func (s *Prices) Run(ctx context.Context, conn postgres.Conn, height model.Height) error {
	price, err := s.source.SimplePrice(ctx, s.coin, s.currency)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}

	err = conn.InTx(ctx, func(tx postgres.Execer) error {
		_, err := tx.Exec(ctx, upsertPriceQuery,
			price.Coin, price.Currency, price.UpdatedAt, price.Value, int32(height))
		return err
	})
	if err != nil {
		return fmt.Errorf("store price: %w", err)
	}

	s.logger.Debug("price stored",
		zap.String("coin", price.Coin),
		zap.String("currency", price.Currency),
		zap.Float64("value", price.Value),
		zap.Time("updated_at", price.UpdatedAt),
	)
	return nil
}
