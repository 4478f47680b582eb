package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kjannette/swap-price-monitor/internal/models"
)

func asRecord(raw any) (models.RawSwapRecord, bool) {
	switch r := raw.(type) {
	case models.RawSwapRecord:
		return r, r != nil
	case map[string]any:
		return models.RawSwapRecord(r), r != nil
	default:
		return nil, false
	}
}

// stringField mirrors str(record.get(key, "")): absent and null become "".
func stringField(rec models.RawSwapRecord, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	default:
		return fmt.Sprint(s)
	}
}

// intField coerces rec[key] to an integer; absent and null yield 0.
// Floats truncate toward zero, strings must hold a base-10 integer.
func intField(rec models.RawSwapRecord, key string) (int64, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %s %d overflows int64", ErrRecordMalformed, key, n)
		}
		return int64(n), nil
	case float64:
		return truncate(key, n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not a number", ErrRecordMalformed, key, n.String())
		}
		return truncate(key, f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not an integer", ErrRecordMalformed, key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type %T", ErrRecordMalformed, key, v)
	}
}

func truncate(key string, f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %s %v out of range", ErrRecordMalformed, key, f)
	}
	return int64(f), nil
}
