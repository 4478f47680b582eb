package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

// UnknownExchange labels records that carry no dexName.
const UnknownExchange = "Unknown"

// Build maps validated records into price points for pair and orders them by
// (exchange, time). Records whose price cannot be decoded are logged and
// skipped. Ties keep their fetch order. The result is never nil.
func Build(valid []models.RawSwapRecord, pair pricing.Pair, log zerolog.Logger) models.PriceSeries {
	series := make(models.PriceSeries, 0, len(valid))
	for i, rec := range valid {
		p, err := buildPoint(rec, pair)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping undecodable swap record")
			continue
		}
		series = append(series, p)
	}

	SortSeries(series)
	return series
}

// SortSeries orders points by (Exchange, TimestampUTC) ascending, stable for ties.
func SortSeries(series models.PriceSeries) {
	sort.SliceStable(series, func(i, j int) bool {
		return comparePoints(series[i], series[j]) < 0
	})
}

// comparePoints returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func comparePoints(a, b models.PricePoint) int {
	if a.Exchange != b.Exchange {
		if a.Exchange < b.Exchange {
			return -1
		}
		return 1
	}
	return a.TimestampUTC.Compare(b.TimestampUTC)
}

func buildPoint(rec models.RawSwapRecord, pair pricing.Pair) (p models.PricePoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDecode, r)
		}
	}()

	ts, err := intField(rec, "timestamp")
	if err != nil {
		return models.PricePoint{}, err
	}
	exchange := stringField(rec, "dexName")
	if exchange == "" {
		exchange = UnknownExchange
	}

	exact, err := pricing.DecodePair(stringField(rec, "sqrtPriceX96"), pair)
	if err != nil {
		return models.PricePoint{}, err
	}
	price, err := pricing.Float(exact)
	if err != nil {
		return models.PricePoint{}, err
	}

	return models.PricePoint{
		Exchange:         exchange,
		TimestampSeconds: ts,
		TimestampUTC:     time.Unix(ts, 0).UTC(),
		Price:            price,
		Exact:            exact,
	}, nil
}
