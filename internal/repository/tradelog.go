package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/swap-price-monitor/internal/models"
)

const tradeLogSchema = `
CREATE TABLE IF NOT EXISTS trade_logs (
	seq        BIGSERIAL PRIMARY KEY,
	record_id  TEXT NOT NULL,
	dex_name   TEXT NOT NULL DEFAULT '',
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// TradeLogRepo keeps posted swap logs as JSONB documents in arrival order.
type TradeLogRepo struct {
	pool *pgxpool.Pool
}

func NewTradeLogRepo(pool *pgxpool.Pool) *TradeLogRepo {
	return &TradeLogRepo{pool: pool}
}

// EnsureSchema creates the trade_logs table if it does not exist.
func (r *TradeLogRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, tradeLogSchema); err != nil {
		return fmt.Errorf("create trade_logs: %w", err)
	}
	return nil
}

func (r *TradeLogRepo) Append(ctx context.Context, rec models.RawSwapRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade log: %w", err)
	}
	id, _ := rec["id"].(string)
	dex, _ := rec["dexName"].(string)

	_, err = r.pool.Exec(ctx,
		`INSERT INTO trade_logs (record_id, dex_name, payload) VALUES ($1, $2, $3)`,
		id, dex, payload,
	)
	if err != nil {
		return fmt.Errorf("insert trade log: %w", err)
	}
	return nil
}

func (r *TradeLogRepo) All(ctx context.Context) ([]models.RawSwapRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT payload FROM trade_logs ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTradeLogs(rows)
}

func (r *TradeLogRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trade_logs`).Scan(&n)
	return n, err
}

func (r *TradeLogRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// --- scan helpers ---

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectTradeLogs(rows rowsIter) ([]models.RawSwapRecord, error) {
	out := []models.RawSwapRecord{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// decodePayload keeps numbers as json.Number so large integers survive.
func decodePayload(raw []byte) (models.RawSwapRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec models.RawSwapRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode trade log payload: %w", err)
	}
	return rec, nil
}
