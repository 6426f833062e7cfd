package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leadtier/internal/adapters/broadcast"
	"github.com/okian/leadtier/internal/adapters/cache"
	"github.com/okian/leadtier/internal/adapters/repository"
	"github.com/okian/leadtier/internal/adapters/sequence"
	"github.com/okian/leadtier/internal/domain/dedupe"
	"github.com/okian/leadtier/internal/domain/engagement"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/internal/domain/scoring"
	"github.com/okian/leadtier/internal/domain/tier"
	"github.com/okian/leadtier/internal/domain/transition"
	"github.com/okian/leadtier/pkg/logger"
	"github.com/okian/leadtier/pkg/metrics"
)

const (
	minChunkSize      = 5
	maxChunkSize      = 10
	defaultSessionTTL = 30 * time.Minute
)

// Engine runs the scoring pipeline: the real-time interaction path, the
// batch recompute path and the analytics reads.
type Engine struct {
	store      repository.Store
	calc       *scoring.Calculator
	classifier *tier.Classifier
	detector   *transition.Detector

	sessions   cache.Cache
	sessionTTL time.Duration
	deduper    dedupe.Deduper
	publisher  broadcast.Publisher
	sequences  sequence.Trigger

	chunkSize int
	now       func() time.Time
	logger    logger.Logger
}

// NewEngine creates an engine over store. Collaborators default to their
// in-process implementations.
func NewEngine(store repository.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      store,
		calc:       scoring.NewCalculator(),
		classifier: tier.NewClassifier(),
		detector:   transition.NewDetector(),
		sessions:   cache.NewMemory(),
		sessionTTL: defaultSessionTTL,
		deduper:    dedupe.NewInMemoryDeduper(),
		publisher:  broadcast.NewMemory(),
		sequences:  sequence.NewMemory(),
		chunkSize:  maxChunkSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("engine")
	}
	return e
}

// Track applies a client interaction once per interaction ID. Redelivered
// IDs return an update flagged Duplicate without touching the store.
func (e *Engine) Track(ctx context.Context, t model.Tracked) (model.RealTimeEngagementUpdate, error) {
	if t.InteractionID != "" {
		seen, err := e.deduper.SeenAndRecord(ctx, t.InteractionID)
		switch {
		case err != nil:
			e.logger.Warn(ctx, "dedupe unavailable, applying interaction",
				logger.String("interaction_id", t.InteractionID), logger.Error(err))
		case seen:
			metrics.RecordInteractionDuplicate()
			return model.RealTimeEngagementUpdate{
				UserID:          t.UserID,
				SessionID:       t.SessionID,
				InteractionType: t.Type(),
				BehaviorSignals: []string{},
				Timestamp:       e.now().UTC(),
				Duplicate:       true,
			}, nil
		}
	}

	update, err := e.apply(ctx, t)
	if err != nil && t.InteractionID != "" {
		// Let the client retry an interaction that was not applied.
		if uerr := e.deduper.Unrecord(ctx, t.InteractionID); uerr != nil {
			e.logger.Warn(ctx, "failed to release interaction id",
				logger.String("interaction_id", t.InteractionID), logger.Error(uerr))
		}
	}
	return update, err
}

// ApplyInteraction adds the interaction's increment to the user's
// cumulative score, reclassifies the tier and runs the post-commit hooks.
// A missing lead fails with model.ErrNotFound before any write. Failures
// of the score write fail with model.ErrPersistence. Broadcast and
// sequence failures are logged and do not fail the call.
func (e *Engine) ApplyInteraction(ctx context.Context, userID, sessionID string, in model.Interaction) (model.RealTimeEngagementUpdate, error) {
	return e.apply(ctx, model.Tracked{UserID: userID, SessionID: sessionID, Interaction: in})
}

// apply is ApplyInteraction for a tracked interaction. A client
// interaction ID doubles as the stored event ID, so a retry after a failed
// score write does not count the interaction twice. A client timestamp is
// kept for the stored event unless it lies in the future.
func (e *Engine) apply(ctx context.Context, t model.Tracked) (model.RealTimeEngagementUpdate, error) {
	const op = "engine.apply_interaction"
	start := time.Now()
	userID, sessionID, in := t.UserID, t.SessionID, t.Interaction

	if strings.TrimSpace(userID) == "" {
		metrics.RecordInteractionRejected("missing_user")
		return model.RealTimeEngagementUpdate{}, model.Errorf(op, model.ErrValidation, "user id is required")
	}
	if in == nil {
		metrics.RecordInteractionRejected("missing_type")
		return model.RealTimeEngagementUpdate{}, model.Errorf(op, model.ErrValidation, "interaction is required")
	}

	lead, err := e.store.GetLead(ctx, userID)
	if err != nil {
		return model.RealTimeEngagementUpdate{}, e.loadError(op, err)
	}
	now := e.now().UTC()
	rec, err := e.loadRecord(ctx, op, lead.ID, now)
	if err != nil {
		return model.RealTimeEngagementUpdate{}, err
	}

	increment := e.calc.Increment(in)
	prevScore := rec.Score
	prevTier := rec.Tier
	rec.PreviousScore = prevScore
	rec.Score = round2(prevScore + increment)
	rec.UpdatedAt = now

	eventID := t.InteractionID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	occurredAt := now
	if !t.OccurredAt.IsZero() && t.OccurredAt.Before(now) {
		occurredAt = t.OccurredAt.UTC()
	}
	ev := model.NewInteractionEvent(eventID, userID, sessionID, in, occurredAt)
	if err := e.store.RecordInteraction(ctx, ev); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.RealTimeEngagementUpdate{}, model.WrapKind(op, model.ErrNotFound, err)
		}
		return model.RealTimeEngagementUpdate{}, e.persistError(op, "record_interaction", err)
	}

	newTier := e.classifier.FromScore(rec.Score)
	if newTier != rec.Tier {
		e.refreshBreakdown(ctx, rec)
	}
	change := e.detector.Detect(rec, newTier, now)

	if err := e.store.UpsertLeadScoreRecord(ctx, rec); err != nil {
		return model.RealTimeEngagementUpdate{}, e.persistError(op, "upsert_record", err)
	}
	if change != nil {
		if err := e.store.SetUserTier(ctx, userID, newTier); err != nil {
			return model.RealTimeEngagementUpdate{}, e.persistError(op, "set_user_tier", err)
		}
		metrics.RecordTierTransition(prevTier.String(), newTier.String())
	}

	update := model.RealTimeEngagementUpdate{
		UserID:          userID,
		SessionID:       sessionID,
		InteractionType: in.Type(),
		ScoreIncrement:  increment,
		PreviousScore:   prevScore,
		NewScore:        rec.Score,
		PreviousTier:    prevTier,
		NewTier:         rec.Tier,
		TierChanged:     change != nil,
		TierChange:      change,
		BehaviorSignals: e.observeSession(ctx, userID, sessionID, in, increment),
		ReadinessLevel:  e.classifier.Readiness(rec.Score),
		Timestamp:       now,
	}

	e.publish(ctx, broadcast.UserChannel(userID), broadcast.EventEngagementUpdated, update)
	e.runTransitionHooks(ctx, change)

	metrics.RecordInteractionApplied(string(in.Type()))
	metrics.RecordScoreComputation("incremental", repository.Since(start))
	return update, nil
}

// loadRecord returns the user's score record, or a fresh default one when
// the user has never been scored.
func (e *Engine) loadRecord(ctx context.Context, op, userID string, now time.Time) (*model.LeadScoreRecord, error) {
	rec, err := e.store.GetLeadScoreRecord(ctx, userID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return model.NewLeadScoreRecord(userID, now), nil
	}
	if err != nil {
		return nil, e.persistError(op, "get_record", err)
	}
	return rec, nil
}

// refreshBreakdown recomputes rec.Breakdown from the stored activity so
// that transition personalization sees current category scores. rec.Score
// keeps its incremental value. A failed read leaves the old breakdown.
func (e *Engine) refreshBreakdown(ctx context.Context, rec *model.LeadScoreRecord) {
	snap, err := e.store.GetUserActivitySnapshot(ctx, rec.UserID)
	if err != nil {
		e.logger.Warn(ctx, "activity snapshot unavailable, keeping breakdown",
			logger.String("user_id", rec.UserID), logger.Error(err))
		return
	}
	rec.Breakdown = e.calc.Calculate(snap)
}

// observeSession folds the interaction into the session statistics and
// returns the resulting behavior signals. Cache failures degrade to
// signals computed from this interaction alone.
func (e *Engine) observeSession(ctx context.Context, userID, sessionID string, in model.Interaction, increment float64) []string {
	var stats engagement.SessionStats
	key := engagement.SessionKey(userID, sessionID)

	err := cache.GetJSON(ctx, e.sessions, key, &stats)
	switch {
	case err == nil:
		metrics.RecordCacheLookup(true)
	case errors.Is(err, cache.ErrMiss):
		metrics.RecordCacheLookup(false)
	default:
		e.logger.Warn(ctx, "session cache read failed", logger.String("key", key), logger.Error(err))
		stats = engagement.SessionStats{}
	}

	stats.Observe(in, increment)
	if err := cache.SetJSON(ctx, e.sessions, key, stats, e.sessionTTL); err != nil {
		e.logger.Warn(ctx, "session cache write failed", logger.String("key", key), logger.Error(err))
	}
	return engagement.Signals(in, stats)
}

func (e *Engine) loadError(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return model.WrapKind(op, model.ErrNotFound, err)
	}
	return e.persistError(op, "get_lead", err)
}

func (e *Engine) persistError(op, step string, err error) error {
	metrics.RecordPersistenceError(step)
	return model.WrapKind(op+"."+step, model.ErrPersistence, err)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
