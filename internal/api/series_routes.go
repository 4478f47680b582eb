package api

import (
	"net/http"
	"slices"

	"github.com/kjannette/swap-price-monitor/internal/consumer"
)

type exchangeSeriesJSON struct {
	Exchange    string           `json:"exchange"`
	Status      string           `json:"status"`
	Points      []consumer.Point `json:"points"`
	LastUpdated string           `json:"lastUpdated"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	view, ok := s.snapshot.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no refresh cycle has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSeriesByExchange(w http.ResponseWriter, r *http.Request) {
	exchange := r.PathValue("exchange")

	view, ok := s.snapshot.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no refresh cycle has completed yet")
		return
	}
	if !slices.Contains(view.Exchanges, exchange) {
		writeError(w, http.StatusNotFound, "no price data for exchange "+exchange)
		return
	}

	points := make([]consumer.Point, 0, len(view.Points))
	for _, p := range view.Points {
		if p.Exchange == exchange {
			points = append(points, p)
		}
	}
	writeJSON(w, http.StatusOK, exchangeSeriesJSON{
		Exchange:    exchange,
		Status:      view.Status,
		Points:      points,
		LastUpdated: view.LastUpdated.Format("15:04:05"),
	})
}
