package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/leadtier/internal/domain/model"
)

type upsertLeadRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type batchRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=1000,dive,required"`
}

type recalculateResponse struct {
	UserID      string                  `json:"user_id"`
	TierChanged bool                    `json:"tier_changed"`
	TierChange  *model.TierChangeResult `json:"tier_change,omitempty"`
}

func (s *Server) handleGetLeadScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.engine.GetLeadScore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleUpsertLead(w http.ResponseWriter, r *http.Request) {
	var req upsertLeadRequest
	if err := s.decode(r, "api.upsert_lead", &req); err != nil {
		s.fail(w, r, err)
		return
	}
	lead := model.Lead{ID: chi.URLParam(r, "id"), Email: req.Email}
	if err := s.engine.UpsertLead(r.Context(), lead); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecalculateLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	change, err := s.engine.UpdateLeadScore(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recalculateResponse{UserID: id, TierChanged: change != nil, TierChange: change})
}

// handleBatchRecalculate recomputes the listed users. Per-user failures
// are reported in the body; the request itself succeeds.
func (s *Server) handleBatchRecalculate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := s.decode(r, "api.batch_recalculate", &req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.BatchUpdateScores(r.Context(), req.UserIDs))
}

func (s *Server) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RecalculateAllScores(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
