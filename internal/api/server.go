package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/consumer"
	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/pipeline"
	"github.com/kjannette/swap-price-monitor/internal/scheduler"
)

// RefreshController is the part of the refresh loop the dashboard drives.
type RefreshController interface {
	Settings() scheduler.RefreshSettings
	SetSettings(scheduler.RefreshSettings) scheduler.RefreshSettings
	Trigger(ctx context.Context) pipeline.Cycle
}

type ServerConfig struct {
	Port       int
	APIKey     string
	CORSOrigin string
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
}

type Server struct {
	snapshot   *consumer.Snapshot
	refresh    RefreshController
	hub        *Hub
	metrics    *metrics.Metrics
	httpServer *http.Server
	apiKey     string
	log        zerolog.Logger
}

func NewServer(snapshot *consumer.Snapshot, refresh RefreshController, hub *Hub, cfg ServerConfig) *Server {
	s := &Server{
		snapshot: snapshot,
		refresh:  refresh,
		hub:      hub,
		metrics:  cfg.Metrics,
		apiKey:   cfg.APIKey,
		log:      cfg.Log,
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.routes(cfg.CORSOrigin),
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: /ws connections are long-lived and set their own deadlines
	}
	return s
}

func (s *Server) routes(corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// Series routes
	mux.HandleFunc("GET /v1/series", s.handleSeries)
	mux.HandleFunc("GET /v1/series/{exchange}", s.handleSeriesByExchange)

	// Refresh controls
	mux.HandleFunc("GET /v1/refresh", s.handleGetRefresh)
	mux.HandleFunc("PUT /v1/refresh", s.handlePutRefresh)
	mux.HandleFunc("POST /v1/refresh/trigger", s.handleTriggerRefresh)

	// Live push
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWS)
	}

	// Health check and metrics (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.authMiddleware(corsMiddleware(mux, corsOrigin))
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("dashboard API server started")
	if s.apiKey != "" {
		s.log.Info().Msg("authentication: enabled (Bearer token)")
	} else {
		s.log.Info().Msg("authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		// browsers cannot set headers on websocket upgrades
		if auth == "" && r.URL.Path == "/ws" {
			if tok := r.URL.Query().Get("token"); tok != "" {
				auth = "Bearer " + tok
			}
		}
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
