package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/leadtier/internal/domain/model"
)

const defaultTopLimit = 10

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.ScoreDistribution(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleProgression(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.ProgressionStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleTopScores handles GET /v1/analytics/top?tier=&limit=N.
func (s *Server) handleTopScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.top_scores"
	q := r.URL.Query()

	n := defaultTopLimit
	if v := q.Get("limit"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", model.Errorf(op, ErrBadRequest, "limit must be a positive integer"))
			return
		}
	}
	if n > s.maxTopLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			model.WrapKind(op, ErrBadRequest, fmt.Errorf("limit %d exceeds %d", n, s.maxTopLimit)))
		return
	}

	var tier *model.Tier
	if v := q.Get("tier"); v != "" {
		t, err := model.ParseTier(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", model.WrapKind(op, ErrBadRequest, err))
			return
		}
		tier = &t
	}

	entries, err := s.engine.TopScores(r.Context(), tier, n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
