package pipeline

import (
	"errors"

	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

var (
	// ErrSourceUnavailable marks a failed log-source call. It is the only
	// error that reaches the refresh loop; the next cycle retries.
	ErrSourceUnavailable = errors.New("log source unavailable")

	// ErrRecordMalformed marks a record missing required fields.
	ErrRecordMalformed = errors.New("record malformed")

	// ErrDecode marks a record whose price cannot be derived.
	ErrDecode = pricing.ErrDecode
)
