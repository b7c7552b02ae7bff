package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"go.uber.org/zap"
)

// Config tunes the orchestrator. Zero values fall back to the defaults.
type Config struct {
	Channel      string
	TickInterval time.Duration
	SettleDelay  time.Duration
	// RecycleAfter is the number of dispatches after which the connection is reopened.
	RecycleAfter int
}

func (c Config) withDefaults() Config {
	if c.Channel == "" {
		c.Channel = defaultChannel
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.RecycleAfter <= 0 {
		c.RecycleAfter = defaultRecycleAfter
	}
	return c
}

// Orchestrator owns the queue, the connection slot and the usage counter, and
// dispatches at most one pipeline run at a time.
type Orchestrator struct {
	cfg      Config
	logger   *zap.Logger
	metrics  Metrics
	queue    *Queue
	slot     *Slot
	pipeline *Pipeline

	usage    int
	results  chan model.RunReport
	inflight sync.WaitGroup
}

// New builds an Orchestrator. The connection is not opened until Run.
func New(dialer Dialer, stages []Stage, metrics Metrics, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if dialer == nil {
		return nil, errors.New("syncer dialer is required")
	}
	if metrics == nil {
		return nil, errors.New("syncer metrics is required")
	}
	if len(stages) == 0 {
		return nil, errors.New("at least one stage is required")
	}
	cfg = cfg.withDefaults()
	logger = logger.With(zap.String("channel", cfg.Channel))

	queue := NewQueue(metrics, logger.Named("queue"))
	listener := NewListener(cfg.Channel, queue, metrics, logger.Named("listener"))
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		queue:    queue,
		slot:     NewSlot(dialer, listener, logger.Named("slot")),
		pipeline: NewPipeline(stages, cfg.SettleDelay, metrics, logger.Named("pipeline")),
		results:  make(chan model.RunReport, 1),
	}, nil
}

// Run opens the connection and drives the scheduler loop until ctx is canceled
// or the connection lifecycle fails. An in-flight run is always allowed to
// finish before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.slot.Open(ctx); err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer o.shutdown()

	o.logger.Info("syncer started",
		zap.Duration("tick", o.cfg.TickInterval),
		zap.Int("recycle_after", o.cfg.RecycleAfter),
	)
	for {
		if err := o.tick(ctx); err != nil {
			return err
		}
		if err := o.wait(ctx); err != nil {
			return err
		}
	}
}

// tick dispatches a run when a height is pending and the connection is idle.
func (o *Orchestrator) tick(ctx context.Context) error {
	if o.queue.Len() == 0 || !o.slot.Idle() {
		return nil
	}

	// Long lived sessions leak memory server side, reopen every RecycleAfter dispatches.
	o.usage++
	if o.usage >= o.cfg.RecycleAfter {
		started := time.Now()
		err := o.slot.Recycle(ctx)
		o.metrics.ObserveRecycle(err, started)
		if err != nil {
			return fmt.Errorf("recycle connection: %w", err)
		}
		o.usage = 0
	}

	conn, err := o.slot.Acquire()
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	height, ok := o.queue.DrainLatest()
	if !ok {
		o.slot.Release(conn)
		return nil
	}

	o.dispatch(ctx, conn, height)
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, conn postgres.Conn, height model.Height) {
	o.logger.Info("submitting task", heightField(height), zap.Int("usage", o.usage))

	runCtx := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.results <- o.pipeline.Run(runCtx, conn, height, o.slot.Release)
	}()
}

func (o *Orchestrator) wait(ctx context.Context) error {
	timer := time.NewTimer(o.cfg.TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-o.slot.Errors():
			return fmt.Errorf("connection lifecycle: %w", err)
		case report := <-o.results:
			o.observe(report)
		case <-timer.C:
			return nil
		}
	}
}

func (o *Orchestrator) observe(report model.RunReport) {
	o.logger.Debug("run finished",
		heightField(report.Height),
		zap.String("run_id", report.ID.String()),
		zap.Strings("failed_stages", report.FailedStages()),
		zap.Error(report.Err),
	)
}

// shutdown waits for the in-flight run and closes the connection.
func (o *Orchestrator) shutdown() {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	o.logger.Info("waiting for in-flight task")
	for waiting := true; waiting; {
		select {
		case report := <-o.results:
			o.observe(report)
		case <-done:
			waiting = false
		}
	}
	select {
	case report := <-o.results:
		o.observe(report)
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.slot.Close(ctx); err != nil {
		o.logger.Warn("close connection failed", zap.Error(err))
	}
}
