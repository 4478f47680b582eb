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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/swap-price-monitor/internal/api"
	"github.com/kjannette/swap-price-monitor/internal/config"
	"github.com/kjannette/swap-price-monitor/internal/consumer"
	"github.com/kjannette/swap-price-monitor/internal/external"
	"github.com/kjannette/swap-price-monitor/internal/logging"
	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/pipeline"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
	"github.com/kjannette/swap-price-monitor/internal/scheduler"
)

const banner = `
╔══════════════════════════════════════╗
║      Swap Price Trend Dashboard      ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	if err := cfg.Validate(log); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	cfg.Print(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metrics.DefaultNamespace, reg)

	pair := pricing.Pair{Token0: cfg.Token0Symbol, Token1: cfg.Token1Symbol}
	proc := pipeline.NewProcessor(pair, logging.Component(log, "pipeline"))
	src := external.NewLogSource(cfg.LogSourceURL, logging.Component(log, "logsource"))

	// Consumers: snapshot for the REST API, websocket hub, then optional sinks
	snapshot := consumer.NewSnapshot(proc.Pair())
	hub := api.NewHub(snapshot, m, logging.Component(log, "ws"))
	fanout := consumer.NewFanout(logging.Component(log, "consumer"), snapshot, hub)

	if cfg.TerminalTable {
		fanout.Add(consumer.NewTableRenderer(os.Stdout, proc.Pair()))
	}

	if cfg.RedisAddr != "" {
		rdb, err := consumer.NewRedisClient(ctx, consumer.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connection failed")
		}
		defer rdb.Close()
		fanout.Add(consumer.NewRedisPublisher(rdb, cfg.RedisChannel, proc.Pair(), logging.Component(log, "redis")))
		log.Info().Str("addr", cfg.RedisAddr).Str("channel", cfg.RedisChannel).Msg("publishing series to redis")
	}

	loop := scheduler.NewRefreshLoop(proc, src, fanout, scheduler.RefreshLoopConfig{
		Settings: scheduler.RefreshSettings{
			Interval: cfg.RefreshInterval(),
			Enabled:  cfg.AutoRefresh,
		},
		Metrics: m,
		Log:     logging.Component(log, "refresh"),
	})

	srv := api.NewServer(snapshot, loop, hub, api.ServerConfig{
		Port:       cfg.DashboardPort,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
		Metrics:    m,
		Log:        logging.Component(log, "api"),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		return loop.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().Msg("all services started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("dashboard stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
