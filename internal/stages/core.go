package stages

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
)

const coreSyncQuery = "CALL ew.sync($1);"

// Core runs the incremental sync procedure up to the height.
type Core struct{}

func NewCore() *Core {
	return &Core{}
}

func (*Core) Name() string { return "core" }

// Run relies on the procedure committing on its own, so it is not wrapped in a
// transaction.
func (*Core) Run(ctx context.Context, conn postgres.Conn, height model.Height) error {
	if _, err := conn.Exec(ctx, coreSyncQuery, int32(height)); err != nil {
		return fmt.Errorf("core sync at %s: %w", height, err)
	}
	return nil
}
