package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kjannette/swap-price-monitor/internal/consumer"
	"github.com/kjannette/swap-price-monitor/internal/scheduler"
)

type refreshJSON struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"intervalSeconds"`
}

// refreshUpdate allows partial updates; absent fields keep their value.
type refreshUpdate struct {
	Enabled         *bool `json:"enabled"`
	IntervalSeconds *int  `json:"intervalSeconds"`
}

func toRefreshJSON(s scheduler.RefreshSettings) refreshJSON {
	return refreshJSON{Enabled: s.Enabled, IntervalSeconds: int(s.Interval / time.Second)}
}

func (s *Server) handleGetRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toRefreshJSON(s.refresh.Settings()))
}

func (s *Server) handlePutRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	next := s.refresh.Settings()
	if req.Enabled != nil {
		next.Enabled = *req.Enabled
	}
	if req.IntervalSeconds != nil {
		n := *req.IntervalSeconds
		minS, maxS := int(scheduler.MinInterval/time.Second), int(scheduler.MaxInterval/time.Second)
		if n < minS || n > maxS {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("intervalSeconds must be between %d and %d", minS, maxS))
			return
		}
		next.Interval = time.Duration(n) * time.Second
	}

	writeJSON(w, http.StatusOK, toRefreshJSON(s.refresh.SetSettings(next)))
}

func (s *Server) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	c := s.refresh.Trigger(r.Context())
	writeJSON(w, http.StatusOK, consumer.NewView(c, s.snapshot.Pair()))
}
