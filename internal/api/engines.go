package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/ember/internal/model"
	"github.com/seantiz/ember/internal/reset"
)

const maxBodySize = 1 << 20 // 1 MB

// engineResponse is one engine plus its live recovery state.
type engineResponse struct {
	model.Engine
	Resets uint64 `json:"resets"`
	Wedged bool   `json:"wedged"`
}

// resetEngineRequest is the JSON body for POST /v1/engines/{id}/reset.
// The body is optional; the reason defaults to manual.
type resetEngineRequest struct {
	Reason string `json:"reason"`
}

// engineID resolves the {id} URL parameter to an engine index, or -1 if
// it names no engine.
func (s *Server) engineID(r *http.Request) int {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 || id >= len(s.ctrl.Engines()) {
		return -1
	}
	return id
}

func (s *Server) engineResponse(id int) engineResponse {
	return engineResponse{
		Engine: s.ctrl.Engines()[id],
		Resets: s.ctrl.Counters().Engine(id),
		Wedged: s.ctrl.Wedged(id),
	}
}

func (s *Server) handleListEngines(w http.ResponseWriter, r *http.Request) {
	engines := s.ctrl.Engines()
	out := make([]engineResponse, len(engines))
	for i := range engines {
		out[i] = s.engineResponse(i)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEngine(w http.ResponseWriter, r *http.Request) {
	id := s.engineID(r)
	if id < 0 {
		s.writeError(w, http.StatusNotFound, "engine not found")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engineResponse(id))
}

func (s *Server) handleResetEngine(w http.ResponseWriter, r *http.Request) {
	id := s.engineID(r)
	if id < 0 {
		s.writeError(w, http.StatusNotFound, "engine not found")
		return
	}

	var req resetEngineRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = model.ReasonManual
	}

	rr, err := s.ctrl.Reset(r.Context(), id, reason)
	if errors.Is(err, reset.ErrWedged) {
		s.writeError(w, http.StatusConflict, "engine is wedged")
		return
	}
	if err != nil {
		// The attempt ran and failed; return the terminal request so the
		// caller sees which phase broke.
		s.writeJSON(w, http.StatusInternalServerError, rr)
		return
	}

	s.writeJSON(w, http.StatusOK, rr)
}
