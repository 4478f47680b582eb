package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

const (
	minResubscribeDelay = 1 * time.Second
	maxResubscribeDelay = 30 * time.Second
	logBufferSize       = 128
)

// LogPoster appends swap logs to the trade-log server.
type LogPoster interface {
	Post(ctx context.Context, entry models.SwapLog) error
}

// GapNotifier is told about every price gap at or above the threshold.
type GapNotifier interface {
	SendPriceGap(ctx context.Context, opp pricing.Opportunity, pair pricing.Pair)
}

type WatcherConfig struct {
	// Pools[0] is the "first" exchange in the price-gap comparison.
	Pools     []Pool
	Pair      pricing.Pair
	Threshold decimal.Decimal
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// Watcher streams Swap events from the configured pools, posts each one to
// the log server and checks the cross-pool price gap.
type Watcher struct {
	client   *Client
	abi      *PoolABI
	poster   LogPoster
	notifier GapNotifier
	cfg      WatcherConfig
	names    map[common.Address]string

	mu     sync.Mutex
	quotes map[string]pricing.Quote

	// a price check in progress swallows checks from newer events
	checking atomic.Bool
}

func NewWatcher(client *Client, poster LogPoster, notifier GapNotifier, cfg WatcherConfig) (*Watcher, error) {
	if len(cfg.Pools) == 0 {
		return nil, errors.New("watcher: no pools configured")
	}
	if cfg.Pair.Token0 == "" && cfg.Pair.Token1 == "" {
		cfg.Pair = pricing.DefaultPair
	}
	pabi, err := NewPoolABI()
	if err != nil {
		return nil, err
	}

	names := make(map[common.Address]string, len(cfg.Pools))
	for _, p := range cfg.Pools {
		names[p.Address] = p.Name
	}

	return &Watcher{
		client:   client,
		abi:      pabi,
		poster:   poster,
		notifier: notifier,
		cfg:      cfg,
		names:    names,
		quotes:   make(map[string]pricing.Quote),
	}, nil
}

// Seed primes the latest quotes from each pool's slot0 so the first swap can
// be compared straight away. Failures are logged and skipped.
func (w *Watcher) Seed(ctx context.Context) {
	for _, p := range w.cfg.Pools {
		sqrt, err := w.abi.Slot0(ctx, w.client.Reader(), p.Address)
		if err != nil {
			w.cfg.Log.Warn().Err(err).Str("pool", p.Name).Msg("could not read slot0")
			continue
		}
		if err := w.updateQuote(p.Name, sqrt.String()); err != nil {
			w.cfg.Log.Warn().Err(err).Str("pool", p.Name).Msg("could not decode slot0 price")
			continue
		}
		w.cfg.Log.Info().Str("pool", p.Name).Str("address", p.Address.Hex()).Msg("pool price seeded")
	}
}

// Run subscribes to Swap logs and handles them until ctx is cancelled,
// resubscribing with backoff when the subscription drops.
func (w *Watcher) Run(ctx context.Context) error {
	delay := minResubscribeDelay
	for {
		err := w.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.cfg.Log.Warn().Err(err).Dur("retry_in", delay).Msg("swap subscription dropped")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = nextBackoff(delay)
	}
}

func (w *Watcher) subscribe(ctx context.Context) error {
	logs := make(chan types.Log, logBufferSize)
	sub, err := w.client.Reader().SubscribeFilterLogs(ctx, w.abi.FilterQuery(w.cfg.Pools), logs)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	w.cfg.Log.Info().Int("pools", len(w.cfg.Pools)).Msg("waiting for swap events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case l := <-logs:
			if err := w.HandleLog(ctx, l); err != nil {
				w.cfg.Log.Error().Err(err).Str("tx", l.TxHash.Hex()).Msg("swap event handling failed")
			}
		}
	}
}

// HandleLog processes one Swap log: post it, update the pool's quote and
// run a price check.
func (w *Watcher) HandleLog(ctx context.Context, l types.Log) error {
	if l.Removed {
		return nil
	}
	name, ok := w.names[l.Address]
	if !ok {
		return fmt.Errorf("log from unwatched pool %s", l.Address.Hex())
	}

	ev, err := w.abi.DecodeSwap(l)
	if err != nil {
		return err
	}
	w.cfg.Metrics.SwapObserved(name)

	ts, err := w.client.BlockTime(ctx, ev.BlockNumber)
	if err != nil {
		return err
	}

	entry := models.SwapLog{
		DexName:      name,
		BlockNumber:  ev.BlockNumber,
		Timestamp:    ts,
		SqrtPriceX96: ev.SqrtPriceX96.String(),
		Amount0:      ev.Amount0.String(),
		Amount1:      ev.Amount1.String(),
	}
	if err := w.poster.Post(ctx, entry); err != nil {
		return fmt.Errorf("post swap log: %w", err)
	}

	if err := w.updateQuote(name, entry.SqrtPriceX96); err != nil {
		return err
	}
	w.CheckPrice(ctx)
	return nil
}

// CheckPrice compares the first two pools. It returns ok=false when a check
// is already running, a quote is missing or the gap is under threshold.
func (w *Watcher) CheckPrice(ctx context.Context) (pricing.Opportunity, bool) {
	if len(w.cfg.Pools) < 2 || !w.checking.CompareAndSwap(false, true) {
		return pricing.Opportunity{}, false
	}
	defer w.checking.Store(false)

	first, second, ok := w.latestQuotes()
	if !ok {
		return pricing.Opportunity{}, false
	}

	diff, err := pricing.DifferencePercent(first.Price, second.Price)
	if err != nil {
		w.cfg.Log.Warn().Err(err).Msg("price check skipped")
		return pricing.Opportunity{}, false
	}
	w.cfg.Log.Info().
		Str(first.Exchange, first.Price.StringFixed(8)).
		Str(second.Exchange, second.Price.StringFixed(8)).
		Str("difference_pct", diff.StringFixed(2)).
		Msg("swap detected, price checked")

	opp, ok, err := pricing.DetermineDirection(first, second, w.cfg.Threshold)
	if err != nil || !ok {
		w.cfg.Log.Debug().Msg("no arbitrage currently available")
		return pricing.Opportunity{}, false
	}

	w.cfg.Log.Info().Str("buy", opp.Buy).Str("sell", opp.Sell).Str("difference_pct", opp.DifferencePercent.StringFixed(2)).Msg("potential arbitrage direction")
	w.cfg.Metrics.PriceGap()
	if w.notifier != nil {
		w.notifier.SendPriceGap(ctx, opp, w.cfg.Pair)
	}
	return opp, true
}

func (w *Watcher) Quote(exchange string) (pricing.Quote, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.quotes[exchange]
	return q, ok
}

func (w *Watcher) updateQuote(exchange, sqrtPriceX96 string) error {
	price, err := pricing.DecodePair(sqrtPriceX96, w.cfg.Pair)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.quotes[exchange] = pricing.Quote{Exchange: exchange, Price: price}
	w.mu.Unlock()
	return nil
}

func (w *Watcher) latestQuotes() (first, second pricing.Quote, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	first, ok1 := w.quotes[w.cfg.Pools[0].Name]
	second, ok2 := w.quotes[w.cfg.Pools[1].Name]
	return first, second, ok1 && ok2
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxResubscribeDelay {
		return maxResubscribeDelay
	}
	return next
}
