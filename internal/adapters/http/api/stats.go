package api

import (
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// handleStats handles GET /stats requests.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{}
	if s.stats != nil {
		stats = s.stats.GetStats()
	}
	writeJSON(w, http.StatusOK, stats)
}
