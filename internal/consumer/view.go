// Package consumer holds the sinks that receive every refresh cycle: the
// dashboard snapshot, the terminal table and the Redis publisher.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/pipeline"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

const ChartTitle = "Swap Price Trend"

// Point is the chart-ready form of a price point.
type Point struct {
	Exchange  string    `json:"exchange"`
	T         int64     `json:"t"` // unix millis
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Exact     string    `json:"exact"`
}

// View is the JSON document shared by the API, the websocket push and Redis.
type View struct {
	Title       string    `json:"title"`
	PriceLabel  string    `json:"priceLabel"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Fetched     int       `json:"fetched"`
	Valid       int       `json:"valid"`
	Rejected    int       `json:"rejected"`
	Exchanges   []string  `json:"exchanges"`
	Points      []Point   `json:"points"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func NewView(c pipeline.Cycle, pair pricing.Pair) View {
	v := View{
		Title:       ChartTitle,
		PriceLabel:  fmt.Sprintf("Price (%s)", pair),
		Status:      string(c.Status),
		Fetched:     c.Fetched,
		Valid:       c.Valid,
		Rejected:    c.Rejected(),
		Exchanges:   c.Series.Exchanges(),
		Points:      Points(c.Series),
		LastUpdated: c.StartedAt.UTC(),
	}
	if c.Err != nil {
		v.Error = c.Err.Error()
		v.Rejected = 0
	}
	return v
}

func Points(s models.PriceSeries) []Point {
	out := make([]Point, 0, len(s))
	for _, p := range s {
		out = append(out, Point{
			Exchange:  p.Exchange,
			T:         p.TimestampUTC.UnixMilli(),
			Timestamp: p.TimestampUTC,
			Price:     p.Price,
			Exact:     p.Exact.String(),
		})
	}
	return out
}

// Fanout delivers each cycle to every consumer in order. A panicking
// consumer is logged and skipped.
type Fanout struct {
	consumers []pipeline.Consumer
	log       zerolog.Logger
}

func NewFanout(log zerolog.Logger, consumers ...pipeline.Consumer) *Fanout {
	f := &Fanout{log: log}
	for _, c := range consumers {
		if c != nil {
			f.consumers = append(f.consumers, c)
		}
	}
	return f
}

func (f *Fanout) Add(c pipeline.Consumer) {
	if c != nil {
		f.consumers = append(f.consumers, c)
	}
}

func (f *Fanout) Len() int { return len(f.consumers) }

func (f *Fanout) Consume(ctx context.Context, c pipeline.Cycle) {
	for _, sink := range f.consumers {
		f.deliver(ctx, sink, c)
	}
}

func (f *Fanout) deliver(ctx context.Context, sink pipeline.Consumer, c pipeline.Cycle) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error().Str("panic", fmt.Sprint(r)).Str("consumer", fmt.Sprintf("%T", sink)).Msg("consumer panicked")
		}
	}()
	sink.Consume(ctx, c)
}
