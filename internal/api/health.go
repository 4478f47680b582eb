package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	LogSource   string `json:"logSource"`
	AutoRefresh string `json:"autoRefresh"`
	LastCycle   string `json:"lastCycle,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := healthServices{LogSource: "unknown", AutoRefresh: "disabled"}

	if view, ok := s.snapshot.Latest(); ok {
		services.LastCycle = view.LastUpdated.Format(time.RFC3339)
		if view.Error != "" {
			services.LogSource = "unreachable"
		} else {
			services.LogSource = "reachable"
		}
	}
	if s.refresh != nil && s.refresh.Settings().Enabled {
		services.AutoRefresh = "enabled"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}
