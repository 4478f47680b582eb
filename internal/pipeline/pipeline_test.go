package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

type stubSource struct {
	records []any
	err     error
}

func (s stubSource) Fetch(context.Context) ([]any, error) {
	return s.records, s.err
}

func TestProcessor_Statuses(t *testing.T) {
	p := NewProcessor(pricing.DefaultPair, zerolog.Nop())

	tests := []struct {
		name    string
		records []any
		status  Status
		points  int
	}{
		{name: "no records", records: nil, status: StatusNoRecords},
		{name: "no valid records", records: []any{map[string]any{"dexName": "Uniswap"}, "junk"}, status: StatusNoValidRecords},
		{name: "no decodable records", records: []any{map[string]any{"sqrtPriceX96": "0"}}, status: StatusNoDecodableRecords},
		{
			name: "one empty price in a batch of three",
			records: []any{
				map[string]any{"dexName": "Uniswap", "sqrtPriceX96": sqrtQ96, "timestamp": 1},
				map[string]any{"dexName": "Uniswap", "sqrtPriceX96": "", "timestamp": 2},
				map[string]any{"dexName": "Pancakeswap", "sqrtPriceX96": sqrtTwoQ96, "timestamp": 3},
			},
			status: StatusOK,
			points: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := p.Process(tc.records)
			assert.Equal(t, tc.status, c.Status)
			assert.NoError(t, c.Err)
			assert.False(t, c.Failed())
			assert.NotNil(t, c.Series)
			assert.Len(t, c.Series, tc.points)
			assert.Equal(t, len(tc.records), c.Fetched)
			assert.Equal(t, tc.status != StatusOK, tc.status.Empty())
		})
	}
}

func TestProcessor_RunCountsRejections(t *testing.T) {
	p := NewProcessor(pricing.Pair{}, zerolog.Nop())
	assert.Equal(t, pricing.DefaultPair, p.Pair())

	c := p.Run(context.Background(), stubSource{records: []any{
		map[string]any{"dexName": "Uniswap", "sqrtPriceX96": sqrtQ96, "timestamp": 1},
		map[string]any{"dexName": "Uniswap", "sqrtPriceX96": "0", "timestamp": 2},
		42,
	}})

	assert.Equal(t, StatusOK, c.Status)
	assert.Equal(t, 3, c.Fetched)
	assert.Equal(t, 2, c.Valid)
	assert.Equal(t, 2, c.Rejected())
	assert.False(t, c.StartedAt.IsZero())
}

func TestProcessor_RunSourceFailure(t *testing.T) {
	p := NewProcessor(pricing.DefaultPair, zerolog.Nop())
	cause := errors.New("connection refused")

	c := p.Run(context.Background(), stubSource{err: cause})

	require.True(t, c.Failed())
	assert.Equal(t, StatusSourceUnavailable, c.Status)
	assert.ErrorIs(t, c.Err, ErrSourceUnavailable)
	assert.ErrorIs(t, c.Err, cause)
	assert.Empty(t, c.Series)
	assert.False(t, c.Status.Empty())
}

func TestProcessor_HugeExponentIsSkippedQuickly(t *testing.T) {
	p := NewProcessor(pricing.DefaultPair, zerolog.Nop())
	done := make(chan Cycle, 1)
	go func() {
		done <- p.Process([]any{
			map[string]any{"dexName": "Uniswap", "sqrtPriceX96": "1e99999999", "timestamp": 1},
			map[string]any{"dexName": "Uniswap", "sqrtPriceX96": "79228162514264337593543950336", "timestamp": 2},
		})
	}()

	select {
	case c := <-done:
		assert.Equal(t, StatusOK, c.Status)
		require.Len(t, c.Series, 1)
		assert.Equal(t, int64(2), c.Series[0].TimestampSeconds)
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not return for a record with a huge exponent")
	}
}
