package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/ember/internal/model"
	"github.com/seantiz/ember/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listResetsResponse wraps the paginated reset history response.
type listResetsResponse struct {
	Resets []*model.ResetEvent `json:"resets"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func (s *Server) handleListResets(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, total, err := s.store.ListResetEvents(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list reset events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list resets")
		return
	}

	if events == nil {
		events = []*model.ResetEvent{}
	}

	s.writeJSON(w, http.StatusOK, listResetsResponse{
		Resets: events,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ev, err := s.store.GetResetEvent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "reset not found")
		return
	}
	if err != nil {
		s.logger.Error("get reset event", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get reset")
		return
	}

	s.writeJSON(w, http.StatusOK, ev)
}
