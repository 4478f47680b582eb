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
	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/config"
	"github.com/kjannette/swap-price-monitor/internal/db"
	"github.com/kjannette/swap-price-monitor/internal/logging"
	"github.com/kjannette/swap-price-monitor/internal/logserver"
	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	if err := cfg.Validate(log); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, logging.Component(log, "db"))
	defer closeStore()

	srv := logserver.NewServer(store, logserver.Config{
		Port:       cfg.LogServerPort,
		CORSOrigin: cfg.CORSAllowOrigin,
		Metrics:    metrics.New(metrics.DefaultNamespace, prometheus.NewRegistry()),
		Log:        logging.Component(log, "logserver"),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("trade-log server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("trade-log server shutdown error")
	}
	log.Info().Msg("shutdown complete")
}

// openStore picks the backend named by STORE_BACKEND. The returned func
// releases whatever the store holds.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (logserver.Store, func()) {
	if cfg.StoreBackend != "postgres" {
		log.Info().Msg("using in-memory trade-log store")
		return logserver.NewMemoryStore(), func() {}
	}

	log.Info().Str("host", cfg.DBHost).Int("port", cfg.DBPort).Str("db", cfg.DBName).Msg("connecting to postgres")
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connection failed")
	}
	if err := db.TestConnection(ctx, pool, log); err != nil {
		pool.Close()
		log.Fatal().Err(err).Msg("test query failed")
	}

	repo := repository.NewTradeLogRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		log.Fatal().Err(err).Msg("schema setup failed")
	}
	return repo, func() {
		pool.Close()
		log.Info().Msg("connection pool closed")
	}
}
