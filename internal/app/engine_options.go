package service

import (
	"time"

	"github.com/okian/leadtier/internal/adapters/broadcast"
	"github.com/okian/leadtier/internal/adapters/cache"
	"github.com/okian/leadtier/internal/adapters/sequence"
	"github.com/okian/leadtier/internal/domain/dedupe"
	"github.com/okian/leadtier/internal/domain/scoring"
	"github.com/okian/leadtier/internal/domain/tier"
	"github.com/okian/leadtier/internal/domain/transition"
	"github.com/okian/leadtier/pkg/logger"
)

// EngineOption applies a configuration option to the Engine.
type EngineOption func(*Engine)

// WithCalculator sets the score calculator.
func WithCalculator(c *scoring.Calculator) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.calc = c
		}
	}
}

// WithClassifier sets the tier classifier.
func WithClassifier(c *tier.Classifier) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithDetector sets the tier transition detector.
func WithDetector(d *transition.Detector) EngineOption {
	return func(e *Engine) {
		if d != nil {
			e.detector = d
		}
	}
}

// WithSessionCache sets the cache holding per-session statistics.
func WithSessionCache(c cache.Cache) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.sessions = c
		}
	}
}

// WithSessionTTL sets how long idle session statistics are kept.
func WithSessionTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl > 0 {
			e.sessionTTL = ttl
		}
	}
}

// WithDeduper sets the interaction ID deduper.
func WithDeduper(d dedupe.Deduper) EngineOption {
	return func(e *Engine) {
		if d != nil {
			e.deduper = d
		}
	}
}

// WithPublisher sets the broadcast publisher.
func WithPublisher(p broadcast.Publisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithSequenceTrigger sets the sequence trigger.
func WithSequenceTrigger(t sequence.Trigger) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.sequences = t
		}
	}
}

// WithChunkSize sets the batch chunk size, clamped to [5, 10].
func WithChunkSize(n int) EngineOption {
	return func(e *Engine) {
		e.chunkSize = clampChunk(n)
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func clampChunk(n int) int {
	switch {
	case n < minChunkSize:
		return minChunkSize
	case n > maxChunkSize:
		return maxChunkSize
	}
	return n
}
