package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByEngine      map[string]int `json:"by_engine"`
	ByOutcome     map[string]int `json:"by_outcome"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	GlobalResets  uint64         `json:"global_resets"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetResetStats(r.Context())
	if err != nil {
		s.logger.Error("get reset stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByEngine:      stats.CountByEngine,
		ByOutcome:     stats.CountByOutcome,
		AvgDurationMS: stats.AvgDurationMS,
		GlobalResets:  s.ctrl.Counters().Global(),
	})
}
