package stages

import (
	"context"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE
//go:generate mockgen -destination=conn_mocks_test.go -package=$GOPACKAGE github.com/goodnatureofminers/ergowatch-syncer/internal/postgres Conn,Execer

type (
	// PriceSource returns the current quote for a coin.
	PriceSource interface {
		SimplePrice(ctx context.Context, coin, currency string) (model.Price, error)
	}
)
