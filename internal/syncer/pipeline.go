package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/clock"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline runs the refresh stages, in order, for one height.
type Pipeline struct {
	stages      []Stage
	settleDelay time.Duration
	sleep       clock.Sleeper
	newID       func() uuid.UUID
	metrics     Metrics
	logger      *zap.Logger
}

// NewPipeline builds a Pipeline over stages.
func NewPipeline(stages []Stage, settleDelay time.Duration, metrics Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		stages:      stages,
		settleDelay: settleDelay,
		sleep:       clock.SleepWithContext,
		newID:       uuid.New,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run waits for the chain-grabber to settle, then executes every stage against
// conn. A failing stage never stops the ones after it. release is called with
// conn on every exit path, including a panicking stage.
func (p *Pipeline) Run(ctx context.Context, conn postgres.Conn, height model.Height, release func(postgres.Conn)) (report model.RunReport) {
	report = model.RunReport{ID: p.newID(), Height: height, Started: time.Now()}
	logger := p.logger.With(heightField(height), zap.String("run_id", report.ID.String()))

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("pipeline panicked: %v", r)
			logger.Warn("pipeline aborted", zap.Error(report.Err))
		}
		report.Finished = time.Now()
		release(conn)
		p.metrics.ObserveRun(report)
	}()

	if err := p.sleep(ctx, p.settleDelay); err != nil {
		report.Err = fmt.Errorf("settle delay: %w", err)
		logger.Warn("pipeline aborted", zap.Error(report.Err))
		return report
	}

	for _, stage := range p.stages {
		report.Outcomes = append(report.Outcomes, p.runStage(ctx, logger, stage, conn, height))
	}

	logger.Info("task completed",
		zap.Strings("failed_stages", report.FailedStages()),
		zap.Duration("elapsed", time.Since(report.Started)),
	)
	return report
}

func (p *Pipeline) runStage(ctx context.Context, logger *zap.Logger, stage Stage, conn postgres.Conn, height model.Height) model.StageOutcome {
	outcome := model.StageOutcome{Stage: stage.Name(), Started: time.Now()}
	outcome.Err = stage.Run(ctx, conn, height)
	outcome.Finished = time.Now()
	p.metrics.ObserveStage(outcome.Stage, outcome.Err, outcome.Started)

	if outcome.Err != nil {
		logger.Error("stage failed", zap.String("stage", outcome.Stage), zap.Error(outcome.Err))
		return outcome
	}
	logger.Debug("stage completed",
		zap.String("stage", outcome.Stage),
		zap.Duration("elapsed", outcome.Finished.Sub(outcome.Started)),
	)
	return outcome
}
