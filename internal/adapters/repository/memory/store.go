// Package memory is an in-process repository.Store for local runs and
// tests. Score ranking is served from per-tier treap indexes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/leadtier/internal/adapters/repository"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/metrics"
)

const storeName = "memory"

// Store keeps leads, score records and raw interactions in maps guarded by
// one RWMutex.
type Store struct {
	mu      sync.RWMutex
	leads   map[string]model.Lead
	records map[string]*model.LeadScoreRecord
	events  map[string][]model.InteractionEvent
	seen    map[string]struct{}
	byTier  map[model.Tier]*rankIndex
	all     *rankIndex
	now     func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		leads:   make(map[string]model.Lead),
		records: make(map[string]*model.LeadScoreRecord),
		events:  make(map[string][]model.InteractionEvent),
		seen:    make(map[string]struct{}),
		byTier:  make(map[model.Tier]*rankIndex),
		all:     newRankIndex(),
		now:     time.Now,
	}
	for _, t := range model.Tiers() {
		s.byTier[t] = newRankIndex()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryOperation(storeName, op, repository.Since(start))
}

func (s *Store) GetLead(_ context.Context, userID string) (model.Lead, error) {
	defer observe("get_lead", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[userID]
	if !ok {
		return model.Lead{}, repository.ErrLeadNotFound
	}
	return lead, nil
}

func (s *Store) UpsertLead(_ context.Context, lead model.Lead) error {
	defer observe("upsert_lead", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.leads[lead.ID]; ok {
		old.Email = lead.Email
		s.leads[lead.ID] = old
		return nil
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = s.now()
	}
	s.leads[lead.ID] = lead
	metrics.UpdateRepositoryLeadsTotal(len(s.leads))
	return nil
}

func (s *Store) SetUserTier(_ context.Context, userID string, tier model.Tier) error {
	defer observe("set_user_tier", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[userID]
	if !ok {
		return repository.ErrLeadNotFound
	}
	lead.Tier = tier
	s.leads[userID] = lead
	return nil
}

func (s *Store) ListLeadIDs(_ context.Context) ([]string, error) {
	defer observe("list_leads", time.Now())
	s.mu.RLock()
	ids := make([]string, 0, len(s.leads))
	for id := range s.leads {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// RecordInteraction appends a raw interaction. Redelivered IDs are ignored.
func (s *Store) RecordInteraction(_ context.Context, ev model.InteractionEvent) error {
	defer observe("record_interaction", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[ev.UserID]; !ok {
		return repository.ErrLeadNotFound
	}
	if ev.ID != "" {
		if _, dup := s.seen[ev.ID]; dup {
			return nil
		}
		s.seen[ev.ID] = struct{}{}
	}
	s.events[ev.UserID] = append(s.events[ev.UserID], ev)
	return nil
}

func (s *Store) GetUserActivitySnapshot(_ context.Context, userID string) (model.ActivitySnapshot, error) {
	defer observe("activity_snapshot", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.leads[userID]; !ok {
		return model.ActivitySnapshot{}, repository.ErrLeadNotFound
	}
	return repository.Aggregate(userID, s.events[userID]), nil
}

func (s *Store) GetLeadScoreRecord(_ context.Context, userID string) (*model.LeadScoreRecord, error) {
	defer observe("get_record", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// UpsertLeadScoreRecord stores a copy of rec, mirrors the score onto the
// lead and moves the user between tier indexes.
func (s *Store) UpsertLeadScoreRecord(_ context.Context, rec *model.LeadScoreRecord) error {
	defer observe("upsert_record", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.records[rec.UserID]; ok && old.Tier != rec.Tier {
		s.byTier[old.Tier].remove(rec.UserID)
	}
	s.records[rec.UserID] = rec.Clone()
	s.all.set(rec.UserID, rec.Score)
	if idx, ok := s.byTier[rec.Tier]; ok {
		idx.set(rec.UserID, rec.Score)
	}
	if lead, ok := s.leads[rec.UserID]; ok {
		lead.LeadScore = rec.Score
		s.leads[rec.UserID] = lead
	}
	return nil
}

func (s *Store) ScoreDistribution(_ context.Context) (model.ScoreDistribution, error) {
	defer observe("score_distribution", time.Now())
	return repository.Distribution(s.snapshotRecords()), nil
}

func (s *Store) ProgressionStats(_ context.Context) (model.ProgressionStats, error) {
	defer observe("progression_stats", time.Now())
	return repository.Progression(s.snapshotRecords()), nil
}

// TopScores returns the n best scores with dense ranks.
func (s *Store) TopScores(_ context.Context, tier *model.Tier, n int) ([]model.ScoreEntry, error) {
	defer observe("top_scores", time.Now())
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.all
	if tier != nil {
		var ok bool
		if idx, ok = s.byTier[*tier]; !ok {
			return []model.ScoreEntry{}, nil
		}
	}
	rows := idx.top(n)
	out := make([]model.ScoreEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ScoreEntry{
			UserID: r.id,
			Score:  r.score,
			Tier:   s.records[r.id].Tier,
		})
	}
	repository.DenseRank(out)
	return out, nil
}

func (s *Store) snapshotRecords() []*model.LeadScoreRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.LeadScoreRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
