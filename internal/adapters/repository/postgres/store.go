// Package postgres is the production repository.Store backed by
// PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okian/leadtier/internal/adapters/repository"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/metrics"
)

const storeName = "postgres"

// foreignKeyViolation is the SQLSTATE for a missing referenced lead.
const foreignKeyViolation = "23503"

const (
	selectLead = `SELECT id, email, tier, lead_score, created_at FROM leads WHERE id = $1`

	upsertLead = `INSERT INTO leads (id, email, created_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`

	updateLeadTier = `UPDATE leads SET tier = $2 WHERE id = $1`

	updateLeadScore = `UPDATE leads SET lead_score = $2 WHERE id = $1`

	selectLeadIDs = `SELECT id FROM leads ORDER BY id`

	insertEvent = `INSERT INTO interaction_events (id, user_id, session_id, type, value, content_action, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

	selectActivity = `SELECT l.id,
	COUNT(e.id) FILTER (WHERE e.type = 'page_view'),
	COUNT(e.id) FILTER (WHERE e.type = 'tool_complete'),
	COUNT(e.id) FILTER (WHERE e.type = 'content_engagement' AND e.content_action = 'download'),
	COUNT(e.id) FILTER (WHERE e.type = 'webinar_registration'),
	COALESCE(SUM(e.value) FILTER (WHERE e.type = 'time_on_page'), 0) / 60.0,
	COALESCE(AVG(e.value) FILTER (WHERE e.type = 'scroll_depth'), 0),
	COUNT(e.id) FILTER (WHERE e.type = 'cta_click'),
	MAX(e.occurred_at)
FROM leads l LEFT JOIN interaction_events e ON e.user_id = l.id
WHERE l.id = $1
GROUP BY l.id`

	selectRecord = `SELECT user_id, breakdown, score, previous_score, tier, previous_tier,
	tier_progression, tier_changed_at, created_at, updated_at
FROM lead_scores WHERE user_id = $1`

	upsertRecord = `INSERT INTO lead_scores (user_id, breakdown, score, previous_score, tier, previous_tier,
	tier_progression, tier_changed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id) DO UPDATE SET
	breakdown = EXCLUDED.breakdown,
	score = EXCLUDED.score,
	previous_score = EXCLUDED.previous_score,
	tier = EXCLUDED.tier,
	previous_tier = EXCLUDED.previous_tier,
	tier_progression = EXCLUDED.tier_progression,
	tier_changed_at = EXCLUDED.tier_changed_at,
	updated_at = EXCLUDED.updated_at`

	selectTierTotals = `SELECT tier, COUNT(*), COALESCE(SUM(score), 0) FROM lead_scores GROUP BY tier`

	selectProgressions = `SELECT user_id, created_at, tier_progression FROM lead_scores
WHERE jsonb_array_length(tier_progression) > 0`

	selectTop = `SELECT user_id, score, tier FROM lead_scores ORDER BY score DESC, user_id ASC LIMIT $1`

	selectTopByTier = `SELECT user_id, score, tier FROM lead_scores WHERE tier = $1 ORDER BY score DESC, user_id ASC LIMIT $2`
)

// Store implements repository.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// New wraps an open database. Migrations are applied separately by Migrate.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryOperation(storeName, op, repository.Since(start))
}

func (s *Store) GetLead(ctx context.Context, userID string) (model.Lead, error) {
	defer observe("get_lead", time.Now())
	var (
		lead model.Lead
		tier string
	)
	err := s.db.QueryRowContext(ctx, selectLead, userID).Scan(&lead.ID, &lead.Email, &tier, &lead.LeadScore, &lead.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lead{}, repository.ErrLeadNotFound
	}
	if err != nil {
		return model.Lead{}, fmt.Errorf("failed to load lead %s: %w", userID, err)
	}
	if lead.Tier, err = model.ParseTier(tier); err != nil {
		return model.Lead{}, fmt.Errorf("lead %s: %w", userID, err)
	}
	return lead, nil
}

func (s *Store) UpsertLead(ctx context.Context, lead model.Lead) error {
	defer observe("upsert_lead", time.Now())
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, upsertLead, lead.ID, lead.Email, lead.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert lead %s: %w", lead.ID, err)
	}
	return nil
}

func (s *Store) SetUserTier(ctx context.Context, userID string, tier model.Tier) error {
	defer observe("set_user_tier", time.Now())
	res, err := s.db.ExecContext(ctx, updateLeadTier, userID, tier.String())
	if err != nil {
		return fmt.Errorf("failed to set tier for %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set tier for %s: %w", userID, err)
	}
	if n == 0 {
		return repository.ErrLeadNotFound
	}
	return nil
}

func (s *Store) ListLeadIDs(ctx context.Context) ([]string, error) {
	defer observe("list_leads", time.Now())
	rows, err := s.db.QueryContext(ctx, selectLeadIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	metrics.UpdateRepositoryLeadsTotal(len(ids))
	return ids, nil
}

// RecordInteraction appends a raw interaction. Redelivered IDs are ignored.
func (s *Store) RecordInteraction(ctx context.Context, ev model.InteractionEvent) error {
	defer observe("record_interaction", time.Now())
	_, err := s.db.ExecContext(ctx, insertEvent,
		ev.ID, ev.UserID, ev.SessionID, string(ev.Type), ev.Value, ev.ContentAction, ev.OccurredAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return repository.ErrLeadNotFound
		}
		return fmt.Errorf("failed to record interaction %s: %w", ev.ID, err)
	}
	return nil
}

func (s *Store) GetUserActivitySnapshot(ctx context.Context, userID string) (model.ActivitySnapshot, error) {
	defer observe("activity_snapshot", time.Now())
	var (
		snap model.ActivitySnapshot
		last sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, selectActivity, userID).Scan(
		&snap.UserID,
		&snap.PageViews,
		&snap.ToolUsage,
		&snap.ContentDownloads,
		&snap.WebinarRegistrations,
		&snap.TimeOnSiteMinutes,
		&snap.AverageScrollDepth,
		&snap.CTAClicks,
		&last,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ActivitySnapshot{}, repository.ErrLeadNotFound
	}
	if err != nil {
		return model.ActivitySnapshot{}, fmt.Errorf("failed to aggregate activity for %s: %w", userID, err)
	}
	if last.Valid {
		snap.LastActivityAt = last.Time
	}
	return snap, nil
}

func (s *Store) GetLeadScoreRecord(ctx context.Context, userID string) (*model.LeadScoreRecord, error) {
	defer observe("get_record", time.Now())
	var (
		rec                model.LeadScoreRecord
		breakdown, history []byte
		tier, prevTier     string
		changedAt          sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, selectRecord, userID).Scan(
		&rec.UserID, &breakdown, &rec.Score, &rec.PreviousScore, &tier, &prevTier,
		&history, &changedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load score record %s: %w", userID, err)
	}

	if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown for %s: %w", userID, err)
	}
	if rec.TierProgression, err = model.UnmarshalProgression(history); err != nil {
		return nil, fmt.Errorf("score record %s: %w", userID, err)
	}
	if rec.Tier, err = model.ParseTier(tier); err != nil {
		return nil, fmt.Errorf("score record %s: %w", userID, err)
	}
	if rec.PreviousTier, err = model.ParseTier(prevTier); err != nil {
		return nil, fmt.Errorf("score record %s: %w", userID, err)
	}
	if changedAt.Valid {
		t := changedAt.Time
		rec.TierChangedAt = &t
	}
	return &rec, nil
}

// UpsertLeadScoreRecord writes the full record and mirrors the score onto
// the lead row in one transaction.
func (s *Store) UpsertLeadScoreRecord(ctx context.Context, rec *model.LeadScoreRecord) error {
	defer observe("upsert_record", time.Now())

	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown for %s: %w", rec.UserID, err)
	}
	history, err := model.MarshalProgression(rec.TierProgression)
	if err != nil {
		return fmt.Errorf("failed to encode progression for %s: %w", rec.UserID, err)
	}
	var changedAt sql.NullTime
	if rec.TierChangedAt != nil {
		changedAt = sql.NullTime{Time: *rec.TierChangedAt, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, upsertRecord,
		rec.UserID, breakdown, rec.Score, rec.PreviousScore, rec.Tier.String(), rec.PreviousTier.String(),
		history, changedAt, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert score record %s: %w", rec.UserID, err)
	}
	if _, err := tx.ExecContext(ctx, updateLeadScore, rec.UserID, rec.Score); err != nil {
		return fmt.Errorf("failed to mirror score for %s: %w", rec.UserID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit score record %s: %w", rec.UserID, err)
	}
	return nil
}

func (s *Store) ScoreDistribution(ctx context.Context) (model.ScoreDistribution, error) {
	defer observe("score_distribution", time.Now())
	rows, err := s.db.QueryContext(ctx, selectTierTotals)
	if err != nil {
		return model.ScoreDistribution{}, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	counts := map[model.Tier]int{}
	sums := map[model.Tier]float64{}
	for rows.Next() {
		var (
			name  string
			count int
			sum   float64
		)
		if err := rows.Scan(&name, &count, &sum); err != nil {
			return model.ScoreDistribution{}, fmt.Errorf("failed to scan distribution: %w", err)
		}
		t, err := model.ParseTier(name)
		if err != nil {
			return model.ScoreDistribution{}, err
		}
		counts[t], sums[t] = count, sum
	}
	if err := rows.Err(); err != nil {
		return model.ScoreDistribution{}, fmt.Errorf("failed to query distribution: %w", err)
	}
	return repository.DistributionFromTotals(counts, sums), nil
}

func (s *Store) ProgressionStats(ctx context.Context) (model.ProgressionStats, error) {
	defer observe("progression_stats", time.Now())
	rows, err := s.db.QueryContext(ctx, selectProgressions)
	if err != nil {
		return model.ProgressionStats{}, fmt.Errorf("failed to query progressions: %w", err)
	}
	defer rows.Close()

	var records []*model.LeadScoreRecord
	for rows.Next() {
		var (
			rec     model.LeadScoreRecord
			history []byte
		)
		if err := rows.Scan(&rec.UserID, &rec.CreatedAt, &history); err != nil {
			return model.ProgressionStats{}, fmt.Errorf("failed to scan progression: %w", err)
		}
		if rec.TierProgression, err = model.UnmarshalProgression(history); err != nil {
			return model.ProgressionStats{}, fmt.Errorf("score record %s: %w", rec.UserID, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return model.ProgressionStats{}, fmt.Errorf("failed to query progressions: %w", err)
	}
	return repository.Progression(records), nil
}

func (s *Store) TopScores(ctx context.Context, tier *model.Tier, n int) ([]model.ScoreEntry, error) {
	defer observe("top_scores", time.Now())
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if tier != nil {
		rows, err = s.db.QueryContext(ctx, selectTopByTier, tier.String(), n)
	} else {
		rows, err = s.db.QueryContext(ctx, selectTop, n)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query top scores: %w", err)
	}
	defer rows.Close()

	out := make([]model.ScoreEntry, 0, n)
	for rows.Next() {
		var (
			e    model.ScoreEntry
			name string
		)
		if err := rows.Scan(&e.UserID, &e.Score, &name); err != nil {
			return nil, fmt.Errorf("failed to scan top score: %w", err)
		}
		if e.Tier, err = model.ParseTier(name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query top scores: %w", err)
	}
	repository.DenseRank(out)
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
