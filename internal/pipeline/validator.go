package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/models"
)

// Validate filters a raw batch down to well-formed swap records.
//
// A record is kept when it is a JSON object with a non-empty sqrtPriceX96 and
// a timestamp coercible to an integer (a missing timestamp counts as 0).
// Rejected records are logged and skipped; Validate never fails the batch and
// always returns a non-nil, order-preserving subset of its input.
func Validate(records []any, log zerolog.Logger) []models.RawSwapRecord {
	out := make([]models.RawSwapRecord, 0, len(records))
	for i, raw := range records {
		rec, err := validateRecord(raw)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping swap record")
			continue
		}
		out = append(out, rec)
	}
	return out
}

func validateRecord(raw any) (rec models.RawSwapRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("%w: %v", ErrRecordMalformed, r)
		}
	}()

	rec, ok := asRecord(raw)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrRecordMalformed, raw)
	}
	if stringField(rec, "sqrtPriceX96") == "" {
		return nil, fmt.Errorf("%w: missing sqrtPriceX96", ErrRecordMalformed)
	}
	if _, err := intField(rec, "timestamp"); err != nil {
		return nil, err
	}
	return rec, nil
}
