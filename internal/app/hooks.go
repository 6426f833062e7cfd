package service

import (
	"context"

	"github.com/okian/leadtier/internal/adapters/broadcast"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/logger"
	"github.com/okian/leadtier/pkg/metrics"
)

// Hooks run after the score record is durable. Every failure is logged,
// counted and swallowed.

func (e *Engine) runTransitionHooks(ctx context.Context, change *model.TierChangeResult) {
	if change == nil {
		return
	}
	e.publish(ctx, broadcast.UserChannel(change.UserID), broadcast.EventTierChanged, change)
	e.publish(ctx, broadcast.AdminChannel, broadcast.EventTierChanged, change)

	data := map[string]any{
		"previous_tier":   change.PreviousTier.String(),
		"new_tier":        change.NewTier.String(),
		"total_score":     change.TotalScore,
		"score_increase":  change.ScoreIncrease,
		"personalization": change.Personalization,
	}
	for _, seq := range change.Sequences {
		if err := e.sequences.TriggerSequence(ctx, change.UserID, seq, data); err != nil {
			metrics.RecordNotificationFailure("sequence")
			e.logger.Error(ctx, "failed to trigger sequence",
				logger.String("user_id", change.UserID),
				logger.String("sequence", seq),
				logger.Error(model.WrapKind("engine.trigger_sequence", model.ErrNotification, err)),
			)
			continue
		}
		metrics.RecordSequenceTriggered(seq)
	}
}

func (e *Engine) publish(ctx context.Context, channel, event string, payload any) {
	if err := e.publisher.Publish(ctx, channel, event, payload); err != nil {
		metrics.RecordNotificationFailure("broadcast")
		e.logger.Warn(ctx, "broadcast failed",
			logger.String("channel", channel),
			logger.String("event", event),
			logger.Error(model.WrapKind("engine.publish", model.ErrNotification, err)),
		)
	}
}
