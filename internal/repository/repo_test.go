package repository_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/repository"
	"github.com/kjannette/swap-price-monitor/internal/testutil"
)

// ---------- TradeLogRepo ----------

func TestTradeLogRepo(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewTradeLogRepo(pool)
	ctx := context.Background()

	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	before, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}

	id := uuid.NewString()
	rec := models.RawSwapRecord{
		"id":           id,
		"dexName":      "Uniswap",
		"blockNumber":  json.Number("201"),
		"timestamp":    json.Number("1700000000"),
		"sqrtPriceX96": "1461446703485210103287273052203988822378723970341",
		"amount0":      "-1000000000000000000",
	}
	if err := repo.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	after, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if after != before+1 {
		t.Fatalf("expected %d rows, got %d", before+1, after)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	last := all[len(all)-1]
	if last["id"] != id {
		t.Fatalf("expected last record to be the one just appended, got %v", last["id"])
	}
	if last["timestamp"] != json.Number("1700000000") {
		t.Fatalf("timestamp should round-trip as an exact number, got %#v", last["timestamp"])
	}
	if last["sqrtPriceX96"] != rec["sqrtPriceX96"] {
		t.Fatalf("sqrtPriceX96 mismatch: %v", last["sqrtPriceX96"])
	}
}
