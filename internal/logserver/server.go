// Package logserver serves the append-only trade-log endpoint the swap
// watcher writes to and the dashboard reads from.
package logserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/models"
)

const (
	TradeLogsPath = "/api/trade-logs"
	maxBodyBytes  = 1 << 20
)

type Config struct {
	Port       int
	CORSOrigin string
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
}

type Server struct {
	store      Store
	metrics    *metrics.Metrics
	log        zerolog.Logger
	httpServer *http.Server
}

func NewServer(store Store, cfg Config) *Server {
	s := &Server{
		store:   store,
		metrics: cfg.Metrics,
		log:     cfg.Log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+TradeLogsPath, s.handleList)
	mux.HandleFunc("POST "+TradeLogsPath, s.handleAppend)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsMiddleware(mux, cfg.CORSOrigin),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("trade-log server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.All(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list trade logs")
		writeError(w, http.StatusInternalServerError, "failed to fetch trade logs")
		return
	}
	if logs == nil {
		logs = []models.RawSwapRecord{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if missingID(rec["id"]) {
		rec["id"] = uuid.NewString()
	}

	if err := s.store.Append(r.Context(), rec); err != nil {
		s.log.Error().Err(err).Msg("store trade log")
		writeError(w, http.StatusInternalServerError, "failed to store trade log")
		return
	}
	s.metrics.RecordStored()

	s.log.Info().
		Interface("id", rec["id"]).
		Interface("dexName", rec["dexName"]).
		Interface("blockNumber", rec["blockNumber"]).
		Msg("new swap log")

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// missingID is true for an absent, null or empty-string id. Other values,
// numbers included, are kept as sent.
func missingID(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Records   int    `json:"records"`
	Store     string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Store:     "connected",
	}
	n, err := s.store.Count(r.Context())
	if err != nil {
		resp.Store = "disconnected"
	}
	resp.Records = n
	writeJSON(w, http.StatusOK, resp)
}

// decodeRecord accepts exactly one JSON object. Numbers stay json.Number so
// block numbers and timestamps are stored without float rounding.
func decodeRecord(body io.Reader) (models.RawSwapRecord, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("trade log exceeds %d bytes", tooBig.Limit)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if dec.More() {
		return nil, errors.New("expected a single JSON object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("trade log must be a JSON object")
	}
	return models.RawSwapRecord(obj), nil
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
