package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawSwapRecord is one untrusted entry from the trade-log server.
type RawSwapRecord map[string]any

// PricePoint is a single derived price observation for one exchange.
type PricePoint struct {
	Exchange         string          `json:"exchange"`
	TimestampSeconds int64           `json:"timestampSeconds"`
	TimestampUTC     time.Time       `json:"timestamp"`
	Price            float64         `json:"price"`
	Exact            decimal.Decimal `json:"exact"`
}

// PriceSeries is ordered by (Exchange, TimestampUTC) ascending.
type PriceSeries []PricePoint

// Exchanges returns the distinct exchange names in series order.
func (s PriceSeries) Exchanges() []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, p := range s {
		if _, ok := seen[p.Exchange]; ok {
			continue
		}
		seen[p.Exchange] = struct{}{}
		out = append(out, p.Exchange)
	}
	return out
}

// ForExchange returns the points belonging to one exchange.
func (s PriceSeries) ForExchange(exchange string) PriceSeries {
	out := PriceSeries{}
	for _, p := range s {
		if p.Exchange == exchange {
			out = append(out, p)
		}
	}
	return out
}
