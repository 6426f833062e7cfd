package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/leadtier/internal/adapters/repository"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/logger"
	"github.com/okian/leadtier/pkg/metrics"
)

// BatchError is one user's failure inside a batch.
type BatchError struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BatchResult summarizes a batch recompute. Changes lists tier
// transitions in input order.
type BatchResult struct {
	Changes []model.TierChangeResult `json:"changes"`
	Updated int                      `json:"updated"`
	Errors  []BatchError             `json:"errors"`
}

// UpdateLeadScore recomputes a user's score from the full activity
// counters. Running it twice without new activity changes nothing. It
// returns the tier transition, or nil when the tier is unchanged.
func (e *Engine) UpdateLeadScore(ctx context.Context, userID string) (*model.TierChangeResult, error) {
	const op = "engine.update_lead_score"
	start := time.Now()

	snap, err := e.store.GetUserActivitySnapshot(ctx, userID)
	if err != nil {
		return nil, e.loadError(op, err)
	}
	now := e.now().UTC()
	rec, err := e.loadRecord(ctx, op, userID, now)
	if err != nil {
		return nil, err
	}

	b := e.calc.Calculate(snap)
	prevTier := rec.Tier
	rec.PreviousScore = rec.Score
	rec.Score = float64(b.TotalScore)
	rec.Breakdown = b
	rec.UpdatedAt = now

	newTier := e.classifier.FromScore(rec.Score)
	change := e.detector.Detect(rec, newTier, now)

	if err := e.store.UpsertLeadScoreRecord(ctx, rec); err != nil {
		return nil, e.persistError(op, "upsert_record", err)
	}
	if change != nil {
		if err := e.store.SetUserTier(ctx, userID, newTier); err != nil {
			return nil, e.persistError(op, "set_user_tier", err)
		}
		metrics.RecordTierTransition(prevTier.String(), newTier.String())
	}
	metrics.RecordScoreComputation("batch", repository.Since(start))

	e.runTransitionHooks(ctx, change)
	return change, nil
}

// BatchUpdateScores recomputes scores chunk by chunk, running each chunk's
// users concurrently. A user's failure is recorded and never aborts the
// batch.
func (e *Engine) BatchUpdateScores(ctx context.Context, userIDs []string) BatchResult {
	start := time.Now()
	changes := make([]*model.TierChangeResult, len(userIDs))
	var (
		mu     sync.Mutex
		res    = BatchResult{Changes: []model.TierChangeResult{}, Errors: []BatchError{}}
		failed = map[int]error{}
	)

	for lo := 0; lo < len(userIDs); lo += e.chunkSize {
		hi := min(lo+e.chunkSize, len(userIDs))

		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				change, err := e.UpdateLeadScore(ctx, userIDs[i])
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed[i] = err
					return nil
				}
				changes[i] = change
				res.Updated++
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, id := range userIDs {
		if err, ok := failed[i]; ok {
			res.Errors = append(res.Errors, BatchError{UserID: id, Error: err.Error()})
			e.logger.Warn(ctx, "batch score update failed", logger.String("user_id", id), logger.Error(err))
			continue
		}
		if changes[i] != nil {
			res.Changes = append(res.Changes, *changes[i])
		}
	}

	metrics.RecordBatch(time.Since(start).Seconds(), res.Updated, len(res.Errors))
	e.logger.Info(ctx, "batch score update finished",
		logger.Int("users", len(userIDs)),
		logger.Int("updated", res.Updated),
		logger.Int("failed", len(res.Errors)),
		logger.Int("tier_changes", len(res.Changes)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res
}

// RecalculateAllScores runs the batch path over every known lead.
func (e *Engine) RecalculateAllScores(ctx context.Context) (BatchResult, error) {
	ids, err := e.store.ListLeadIDs(ctx)
	if err != nil {
		return BatchResult{}, e.persistError("engine.recalculate_all", "list_leads", err)
	}
	return e.BatchUpdateScores(ctx, ids), nil
}
