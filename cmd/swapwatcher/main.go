package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/kjannette/swap-price-monitor/internal/config"
	"github.com/kjannette/swap-price-monitor/internal/ethereum"
	"github.com/kjannette/swap-price-monitor/internal/external"
	"github.com/kjannette/swap-price-monitor/internal/logging"
	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/notifications"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	if err := cfg.ValidateWatcher(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pools, err := configuredPools(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid pool address")
	}

	client, err := ethereum.Dial(ctx, cfg.RPCWSEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("RPC connection failed")
	}
	defer client.Close()

	sink := external.NewLogSink(cfg.LogSourceURL, logging.Component(log, "logsink"))
	notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName, logging.Component(log, "notify"))

	watcher, err := ethereum.NewWatcher(client, sink, notify, ethereum.WatcherConfig{
		Pools:     pools,
		Pair:      pricing.Pair{Token0: cfg.Token0Symbol, Token1: cfg.Token1Symbol},
		Threshold: decimal.NewFromFloat(cfg.PriceDifferencePercent),
		Metrics:   metrics.New(metrics.DefaultNamespace, prometheus.NewRegistry()),
		Log:       logging.Component(log, "watcher"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("watcher setup failed")
	}

	watcher.Seed(ctx)

	log.Info().Float64("threshold_pct", cfg.PriceDifferencePercent).Int("pools", len(pools)).Msg("swap watcher started")
	if err := watcher.Run(ctx); err != nil {
		log.Error().Err(err).Msg("swap watcher stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

// configuredPools lists Uniswap first so a positive difference means
// Uniswap is the pricier side.
func configuredPools(cfg *config.Config) ([]ethereum.Pool, error) {
	var pools []ethereum.Pool
	for _, p := range []struct{ name, addr string }{
		{"Uniswap", cfg.UniswapPoolAddress},
		{"Pancakeswap", cfg.PancakeswapPoolAddress},
	} {
		if p.addr == "" {
			continue
		}
		if !common.IsHexAddress(p.addr) {
			return nil, fmt.Errorf("%s pool: %q is not an address", p.name, p.addr)
		}
		pools = append(pools, ethereum.Pool{Name: p.name, Address: common.HexToAddress(p.addr)})
	}
	return pools, nil
}
