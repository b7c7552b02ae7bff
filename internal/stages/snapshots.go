package stages

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Snapshots materializes the periodic snapshots that are due at a height.
type Snapshots struct {
	procedures []pgx.Identifier
}

// NewSnapshots builds the stage, rejecting malformed procedure names.
func NewSnapshots(cfg SnapshotsConfig) (*Snapshots, error) {
	procedures, err := parseIdentifiers(cfg.Procedures)
	if err != nil {
		return nil, fmt.Errorf("snapshot procedures: %w", err)
	}
	return &Snapshots{procedures: procedures}, nil
}

func (*Snapshots) Name() string { return "snapshots" }

func (s *Snapshots) Run(ctx context.Context, conn postgres.Conn, height model.Height) error {
	if len(s.procedures) == 0 {
		return nil
	}
	return conn.InTx(ctx, func(tx postgres.Execer) error {
		for _, proc := range s.procedures {
			if _, err := tx.Exec(ctx, "CALL "+proc.Sanitize()+"($1)", int32(height)); err != nil {
				return fmt.Errorf("call %s: %w", proc.Sanitize(), err)
			}
		}
		return nil
	})
}
