package stages

import (
	"github.com/goodnatureofminers/ergowatch-syncer/internal/syncer"
	"go.uber.org/zap"
)

// Build returns the pipeline stages in execution order: prices, core,
// continuous, snapshots.
func Build(cfg Config, source PriceSource, logger *zap.Logger) ([]syncer.Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prices, err := NewPrices(source, cfg.Prices, logger)
	if err != nil {
		return nil, err
	}
	continuous, err := NewContinuous(cfg.Continuous, logger)
	if err != nil {
		return nil, err
	}
	snapshots, err := NewSnapshots(cfg.Snapshots)
	if err != nil {
		return nil, err
	}
	return []syncer.Stage{prices, NewCore(), continuous, snapshots}, nil
}
