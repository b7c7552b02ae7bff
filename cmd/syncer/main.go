package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/coingecko"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/metrics"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/stages"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/syncer"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	DBHost         string        `long:"db-host" env:"SYNCER_DB_HOST" description:"database host" required:"true"`
	DBPort         int           `long:"db-port" env:"SYNCER_DB_PORT" description:"database port" default:"5432"`
	DBName         string        `long:"db-name" env:"SYNCER_DB_NAME" description:"database name" required:"true"`
	DBUser         string        `long:"db-user" env:"SYNCER_DB_USER" description:"database user" required:"true"`
	DBPassword     string        `long:"db-password" env:"SYNCER_DB_PASSWORD" description:"database password" required:"true"`
	ConnectTimeout time.Duration `long:"db-connect-timeout" env:"SYNCER_DB_CONNECT_TIMEOUT" description:"timeout of a single connection attempt" default:"10s"`
	Channel        string        `long:"channel" env:"SYNCER_CHANNEL" description:"notification channel announcing new heights" default:"ergowatch"`
	TickInterval   time.Duration `long:"tick-interval" env:"SYNCER_TICK_INTERVAL" description:"scheduler cadence" default:"10s"`
	SettleDelay    time.Duration `long:"settle-delay" env:"SYNCER_SETTLE_DELAY" description:"wait before the first stage of a run" default:"2s"`
	RecycleAfter   int           `long:"recycle-after" env:"SYNCER_RECYCLE_AFTER" description:"runs after which the connection is reopened" default:"100"`
	StagesConfig   string        `long:"stages-config" env:"SYNCER_STAGES_CONFIG" description:"YAML file overriding the stage defaults"`
	CoinGeckoURL   string        `long:"coingecko-url" env:"SYNCER_COINGECKO_URL" description:"CoinGecko API root" default:"https://api.coingecko.com/api/v3"`
	CoinGeckoRPS   int           `long:"coingecko-rps" env:"SYNCER_COINGECKO_RPS" description:"max CoinGecko requests per second" default:"1"`
	MetricsAddr    string        `long:"metrics-addr" env:"SYNCER_METRICS_ADDR" description:"address for metrics server" default:":2112"`
	LogJSON        bool          `long:"log-json" env:"SYNCER_LOG_JSON" description:"emit production JSON logs"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		// Logger options are part of the flags, so fall back to a default one.
		logger, _ := zap.NewDevelopment()
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	logger, err := newLogger(cfg.LogJSON)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("syncer failed", zap.Error(err))
	}
	logger.Info("syncer stopped")
}

func newLogger(json bool) (*zap.Logger, error) {
	if json {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	dialer, err := postgres.NewDialer(postgres.Config{
		Host:           cfg.DBHost,
		Port:           cfg.DBPort,
		Database:       cfg.DBName,
		User:           cfg.DBUser,
		Password:       cfg.DBPassword,
		Channel:        cfg.Channel,
		ConnectTimeout: cfg.ConnectTimeout,
	}, metrics.NewPostgres(), logger)
	if err != nil {
		return fmt.Errorf("init dialer: %w", err)
	}

	stagesCfg, err := stages.LoadConfig(cfg.StagesConfig)
	if err != nil {
		return err
	}
	prices, err := coingecko.NewClient(coingecko.Config{
		BaseURL: cfg.CoinGeckoURL,
		RPS:     cfg.CoinGeckoRPS,
	}, metrics.NewCoinGecko(), logger)
	if err != nil {
		return fmt.Errorf("init coingecko client: %w", err)
	}
	pipeline, err := stages.Build(stagesCfg, prices, logger.Named("stages"))
	if err != nil {
		return fmt.Errorf("init stages: %w", err)
	}

	orchestrator, err := syncer.New(dialer, pipeline, metrics.NewSyncer(cfg.Channel), syncer.Config{
		Channel:      cfg.Channel,
		TickInterval: cfg.TickInterval,
		SettleDelay:  cfg.SettleDelay,
		RecycleAfter: cfg.RecycleAfter,
	}, logger.Named("syncer"))
	if err != nil {
		return fmt.Errorf("init syncer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		return orchestrator.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()

	logger.Info("starting metrics server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
