package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/pipeline"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

const (
	DefaultSeriesKey = "swap-price:series"
	seriesTTL        = 10 * time.Minute
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel receives every snapshot; the same name is used as the key.
	Channel string
}

// NewRedisClient opens a client and pings it.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisPublisher stores the latest series view under a key and publishes it
// on a pub/sub channel. Failed cycles are published but never overwrite the
// last good snapshot.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	key     string
	channel string
	pair    pricing.Pair
	log     zerolog.Logger
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string, pair pricing.Pair, log zerolog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultSeriesKey
	}
	return &RedisPublisher{rdb: rdb, key: channel, channel: channel, pair: pair, log: log}
}

func (p *RedisPublisher) Consume(ctx context.Context, c pipeline.Cycle) {
	if err := p.Publish(ctx, c); err != nil {
		p.log.Warn().Err(err).Msg("redis publish failed")
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, c pipeline.Cycle) error {
	body, err := json.Marshal(NewView(c, p.pair))
	if err != nil {
		return fmt.Errorf("redis: marshal view: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	if !c.Failed() {
		pipe.Set(ctx, p.key, body, seriesTTL)
	}
	pipe.Publish(ctx, p.channel, body)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish %s: %w", p.channel, err)
	}
	return nil
}

// Latest reads back the stored snapshot. It returns redis.Nil when none exists.
func (p *RedisPublisher) Latest(ctx context.Context) (View, error) {
	raw, err := p.rdb.Get(ctx, p.key).Bytes()
	if err != nil {
		return View{}, err
	}
	var v View
	if err := json.Unmarshal(raw, &v); err != nil {
		return View{}, fmt.Errorf("redis: decode view: %w", err)
	}
	return v, nil
}
