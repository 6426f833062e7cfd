// Package repository defines the persistence contracts for leads, score
// records, raw interactions and the read-only analytics over them.
package repository

import (
	"context"

	"github.com/okian/leadtier/internal/domain/model"
)

// ActivityReader derives cumulative behavioral counters for a user.
type ActivityReader interface {
	// GetUserActivitySnapshot returns ErrLeadNotFound for unknown users.
	GetUserActivitySnapshot(ctx context.Context, userID string) (model.ActivitySnapshot, error)
}

// RecordStore reads and writes per-user score records. Every write is a
// full-record upsert keyed by UserID.
type RecordStore interface {
	// GetLeadScoreRecord returns ErrRecordNotFound when the user was never scored.
	GetLeadScoreRecord(ctx context.Context, userID string) (*model.LeadScoreRecord, error)
	UpsertLeadScoreRecord(ctx context.Context, rec *model.LeadScoreRecord) error
}

// LeadStore manages the user entity and its denormalized tier.
type LeadStore interface {
	// GetLead returns ErrLeadNotFound for unknown users.
	GetLead(ctx context.Context, userID string) (model.Lead, error)
	UpsertLead(ctx context.Context, lead model.Lead) error
	SetUserTier(ctx context.Context, userID string, tier model.Tier) error
	ListLeadIDs(ctx context.Context) ([]string, error)
}

// EventRecorder appends raw interactions.
type EventRecorder interface {
	RecordInteraction(ctx context.Context, ev model.InteractionEvent) error
}

// Analytics answers read-only reporting queries.
type Analytics interface {
	ScoreDistribution(ctx context.Context) (model.ScoreDistribution, error)
	ProgressionStats(ctx context.Context) (model.ProgressionStats, error)
	// TopScores lists the n highest scores, optionally restricted to a tier.
	TopScores(ctx context.Context, tier *model.Tier, n int) ([]model.ScoreEntry, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	ActivityReader
	RecordStore
	LeadStore
	EventRecorder
	Analytics

	Ping(ctx context.Context) error
	Close() error
}
