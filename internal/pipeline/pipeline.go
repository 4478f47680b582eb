// Package pipeline turns raw swap-log batches into per-exchange price series.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

// Status is the terminal state of one refresh cycle.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusNoRecords          Status = "no_records"
	StatusNoValidRecords     Status = "no_valid_records"
	StatusNoDecodableRecords Status = "no_decodable_records"
	StatusSourceUnavailable  Status = "source_unavailable"
)

// Empty reports whether the status means "nothing to display yet".
func (s Status) Empty() bool {
	return s == StatusNoRecords || s == StatusNoValidRecords || s == StatusNoDecodableRecords
}

// Source yields one batch of raw swap records per call.
type Source interface {
	Fetch(ctx context.Context) ([]any, error)
}

// Consumer receives the result of every cycle, including failed and empty ones.
type Consumer interface {
	Consume(ctx context.Context, c Cycle)
}

// Cycle is the outcome of a single fetch-validate-build pass.
type Cycle struct {
	Series    models.PriceSeries
	Status    Status
	Err       error
	Fetched   int
	Valid     int
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the cycle ended on a source failure.
func (c Cycle) Failed() bool {
	return c.Err != nil
}

// Rejected is the number of fetched records that did not make it into the series.
func (c Cycle) Rejected() int {
	return c.Fetched - len(c.Series)
}

// Processor runs the validator and builder over a fetched batch.
type Processor struct {
	pair pricing.Pair
	log  zerolog.Logger
}

func NewProcessor(pair pricing.Pair, log zerolog.Logger) *Processor {
	if pair.Token0 == "" && pair.Token1 == "" {
		pair = pricing.DefaultPair
	}
	return &Processor{pair: pair, log: log}
}

func (p *Processor) Pair() pricing.Pair { return p.pair }

// Process validates and builds records into a cycle result. It never fails.
func (p *Processor) Process(records []any) Cycle {
	c := Cycle{Fetched: len(records), Series: models.PriceSeries{}}
	if len(records) == 0 {
		c.Status = StatusNoRecords
		return c
	}

	valid := Validate(records, p.log.With().Str("component", "validator").Logger())
	c.Valid = len(valid)
	if len(valid) == 0 {
		c.Status = StatusNoValidRecords
		return c
	}

	c.Series = Build(valid, p.pair, p.log.With().Str("component", "builder").Logger())
	if len(c.Series) == 0 {
		c.Status = StatusNoDecodableRecords
		return c
	}
	c.Status = StatusOK
	return c
}

// Run fetches one batch from src and processes it. Source errors are returned
// inside the cycle, never panicked or propagated.
func (p *Processor) Run(ctx context.Context, src Source) Cycle {
	started := time.Now()

	records, err := src.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return Cycle{
			Series:    models.PriceSeries{},
			Status:    StatusSourceUnavailable,
			Err:       err,
			StartedAt: started,
			Duration:  time.Since(started),
		}
	}

	c := p.Process(records)
	c.StartedAt = started
	c.Duration = time.Since(started)
	return c
}
