package service

import (
	"context"
	"errors"

	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/metrics"
)

const maxTopScores = 100

// LeadScore is a user's current scoring state.
type LeadScore struct {
	Lead      model.Lead             `json:"lead"`
	Record    *model.LeadScoreRecord `json:"record"`
	Readiness model.Level            `json:"readiness_level"`
}

// GetLeadScore returns the lead and its score record. A lead that was
// never scored gets the default record.
func (e *Engine) GetLeadScore(ctx context.Context, userID string) (LeadScore, error) {
	const op = "engine.get_lead_score"
	lead, err := e.store.GetLead(ctx, userID)
	if err != nil {
		return LeadScore{}, e.loadError(op, err)
	}
	rec, err := e.loadRecord(ctx, op, userID, lead.CreatedAt)
	if err != nil {
		return LeadScore{}, err
	}
	return LeadScore{Lead: lead, Record: rec, Readiness: e.classifier.Readiness(rec.Score)}, nil
}

// UpsertLead creates a lead or updates its email.
func (e *Engine) UpsertLead(ctx context.Context, lead model.Lead) error {
	if lead.ID == "" {
		return model.Errorf("engine.upsert_lead", model.ErrValidation, "lead id is required")
	}
	if err := e.store.UpsertLead(ctx, lead); err != nil {
		return e.persistError("engine.upsert_lead", "upsert_lead", err)
	}
	return nil
}

// ScoreDistribution reports per-tier counts and averages and refreshes the
// leads-by-tier gauges.
func (e *Engine) ScoreDistribution(ctx context.Context) (model.ScoreDistribution, error) {
	d, err := e.store.ScoreDistribution(ctx)
	if err != nil {
		return model.ScoreDistribution{}, e.persistError("engine.score_distribution", "distribution", err)
	}
	for _, b := range d.Buckets {
		metrics.UpdateLeadsByTier(b.Tier.String(), b.Count)
	}
	return d, nil
}

// ProgressionStats reports tier transition history.
func (e *Engine) ProgressionStats(ctx context.Context) (model.ProgressionStats, error) {
	s, err := e.store.ProgressionStats(ctx)
	if err != nil {
		return model.ProgressionStats{}, e.persistError("engine.progression_stats", "progression", err)
	}
	return s, nil
}

// TopScores returns the n highest scores, optionally within one tier.
// n above the maximum is clamped.
func (e *Engine) TopScores(ctx context.Context, t *model.Tier, n int) ([]model.ScoreEntry, error) {
	const op = "engine.top_scores"
	if t != nil && !t.Valid() {
		return nil, model.Errorf(op, model.ErrValidation, "unknown tier %d", int(*t))
	}
	n = min(n, maxTopScores)
	out, err := e.store.TopScores(ctx, t, n)
	if errors.Is(err, model.ErrValidation) {
		return nil, model.WrapKind(op, model.ErrValidation, err)
	}
	if err != nil {
		return nil, e.persistError(op, "top_scores", err)
	}
	return out, nil
}
