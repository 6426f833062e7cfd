package api

import (
	"net/http"
	"time"

	"github.com/okian/leadtier/internal/domain/model"
)

// interactionRequest is the body of POST /v1/interactions and
// POST /v1/events.
type interactionRequest struct {
	InteractionID string         `json:"interaction_id" validate:"omitempty,max=128"`
	UserID        string         `json:"user_id" validate:"required,max=128"`
	SessionID     string         `json:"session_id" validate:"omitempty,max=128"`
	Type          string         `json:"interaction_type" validate:"required,max=64"`
	Data          map[string]any `json:"interaction_data"`
	OccurredAt    *time.Time     `json:"occurred_at"`
}

func (s *Server) tracked(r *http.Request, op string) (model.Tracked, error) {
	var req interactionRequest
	if err := s.decode(r, op, &req); err != nil {
		return model.Tracked{}, err
	}
	in, err := model.ParseInteraction(req.Type, req.Data, s.acceptUnknown)
	if err != nil {
		return model.Tracked{}, err
	}
	t := model.Tracked{
		InteractionID: req.InteractionID,
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		Interaction:   in,
	}
	if req.OccurredAt != nil {
		t.OccurredAt = req.OccurredAt.UTC()
	}
	return t, nil
}

// handleApplyInteraction applies one interaction synchronously and returns
// the engagement update.
func (s *Server) handleApplyInteraction(w http.ResponseWriter, r *http.Request) {
	t, err := s.tracked(r, "api.apply_interaction")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	update, err := s.engine.Track(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

type ackResponse struct {
	Status string `json:"status"`
}

// handleTrackEvent queues a tracking beacon. A full queue answers 429.
func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.track_event"
	t, err := s.tracked(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ingestor.Enqueue(r.Context(), t); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
