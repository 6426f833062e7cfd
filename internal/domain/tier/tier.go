// Package tier classifies lead scores into membership tiers and readiness
// levels. The two classifications use separate threshold tables.
package tier

import (
	"errors"
	"fmt"

	"github.com/okian/leadtier/internal/domain/model"
)

// ErrInvalidThresholds reports a threshold table that is not ascending.
var ErrInvalidThresholds = errors.New("invalid tier thresholds")

// Thresholds are the minimum scores for each tier above browser.
// A score equal to a threshold belongs to the higher tier.
type Thresholds struct {
	Engaged    float64 `koanf:"engaged"`
	SoftMember float64 `koanf:"soft_member"`
}

// ReadinessThresholds are the minimum scores for the medium and high
// readiness levels.
type ReadinessThresholds struct {
	Medium float64 `koanf:"medium"`
	High   float64 `koanf:"high"`
}

// DefaultThresholds returns the reference tier cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Engaged: 30, SoftMember: 70}
}

// DefaultReadinessThresholds returns the reference readiness cut points.
func DefaultReadinessThresholds() ReadinessThresholds {
	return ReadinessThresholds{Medium: 30, High: 70}
}

func (t Thresholds) Validate() error {
	if t.Engaged < 0 || t.SoftMember <= t.Engaged {
		return fmt.Errorf("%w: need 0 <= engaged (%v) < soft_member (%v)", ErrInvalidThresholds, t.Engaged, t.SoftMember)
	}
	return nil
}

func (t ReadinessThresholds) Validate() error {
	if t.Medium < 0 || t.High <= t.Medium {
		return fmt.Errorf("%w: need 0 <= medium (%v) < high (%v)", ErrInvalidThresholds, t.Medium, t.High)
	}
	return nil
}

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithThresholds sets the tier cut points.
func WithThresholds(t Thresholds) Option {
	return func(c *Classifier) {
		c.tiers = t
	}
}

// WithReadinessThresholds sets the readiness cut points.
func WithReadinessThresholds(t ReadinessThresholds) Option {
	return func(c *Classifier) {
		c.readiness = t
	}
}

// Classifier maps scores to tiers and readiness levels. It holds no
// mutable state.
type Classifier struct {
	tiers     Thresholds
	readiness ReadinessThresholds
}

// NewClassifier creates a classifier with the default cut points unless
// overridden by options.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		tiers:     DefaultThresholds(),
		readiness: DefaultReadinessThresholds(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromScore returns the tier for score. It is monotonically non-decreasing.
func (c *Classifier) FromScore(score float64) model.Tier {
	switch {
	case score >= c.tiers.SoftMember:
		return model.TierSoftMember
	case score >= c.tiers.Engaged:
		return model.TierEngaged
	default:
		return model.TierBrowser
	}
}

// Readiness returns the messaging readiness level for score.
func (c *Classifier) Readiness(score float64) model.Level {
	switch {
	case score >= c.readiness.High:
		return model.LevelHigh
	case score >= c.readiness.Medium:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}

// Thresholds returns the tier cut points in use.
func (c *Classifier) Thresholds() Thresholds { return c.tiers }
