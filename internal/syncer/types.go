package syncer

import (
	"context"
	"time"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Dialer opens a connection already subscribed to the notification channel.
	Dialer interface {
		Dial(ctx context.Context) (postgres.Conn, error)
	}

	// Stage is one refresh step of the pipeline. Stages are idempotent and
	// manage their own transactions.
	Stage interface {
		Name() string
		Run(ctx context.Context, conn postgres.Conn, height model.Height) error
	}

	Metrics interface {
		ObserveNotification(queueDepth int)
		ObserveSkipped()
		ObserveDrained()
		ObserveStage(stage string, err error, started time.Time)
		ObserveRun(report model.RunReport)
		ObserveRecycle(err error, started time.Time)
	}
)
