package external_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/swap-price-monitor/internal/external"
	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/pipeline"
)

func TestLogSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"dexName":"Uniswap","blockNumber":201,"timestamp":1700000000,"sqrtPriceX96":"79228162514264337593543950336","amount0":"-5"},
			{"dexName":"Pancakeswap","timestamp":1700000003.0,"sqrtPriceX96":"79228162514264337593543950336"}
		]`))
	}))
	defer srv.Close()

	src := external.NewLogSource(srv.URL, zerolog.Nop())
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	first, ok := records[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Uniswap", first["dexName"])
	// numbers stay exact
	assert.Equal(t, json.Number("1700000000"), first["timestamp"])
}

func TestLogSourceFetch_EmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	records, err := external.NewLogSource(srv.URL, zerolog.Nop()).Fetch(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestLogSourceFetch_Null(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	records, err := external.NewLogSource(srv.URL, zerolog.Nop()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLogSourceFetch_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not found": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"object body": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"logs":[]}`))
		},
		"garbage body": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := external.NewLogSource(srv.URL, zerolog.Nop()).Fetch(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, pipeline.ErrSourceUnavailable)
		})
	}
}

func TestLogSourceFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := external.NewLogSource(url, zerolog.Nop()).Fetch(ctx)
	assert.ErrorIs(t, err, pipeline.ErrSourceUnavailable)
}

func TestLogSinkPost(t *testing.T) {
	var got models.SwapLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	entry := models.SwapLog{
		DexName:      "Uniswap",
		BlockNumber:  201,
		Timestamp:    1700000000,
		SqrtPriceX96: "79228162514264337593543950336",
		Amount0:      "-1000",
		Amount1:      "2000",
	}
	require.NoError(t, external.NewLogSink(srv.URL, zerolog.Nop()).Post(context.Background(), entry))
	assert.Equal(t, entry, got)
}

func TestLogSinkPost_Rejected(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "invalid trade log", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := external.NewLogSink(srv.URL, zerolog.Nop()).Post(context.Background(), models.SwapLog{DexName: "Uniswap"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), attempts.Load())
}
