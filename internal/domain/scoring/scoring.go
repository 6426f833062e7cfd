// Package scoring converts behavioral activity into lead scores.
//
// Both the batch path (full recomputation from counters) and the real-time
// path (flat per-interaction deltas) read their numbers from one injected
// configuration, so the two never disagree about weights.
package scoring

import (
	"errors"
	"math"

	"github.com/okian/leadtier/internal/domain/model"
)

// ErrInvalidWeights reports a weight table that cannot be used.
var ErrInvalidWeights = errors.New("invalid scoring weights")

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithWeights replaces the batch weighting table.
func WithWeights(w Weights) Option {
	return func(c *Calculator) {
		c.weights = w
	}
}

// WithIncrements replaces the real-time increment table.
func WithIncrements(in Increments) Option {
	return func(c *Calculator) {
		c.increments = in
	}
}

// Calculator is a stateless scorer. Its methods are pure and safe for
// concurrent use.
type Calculator struct {
	weights    Weights
	increments Increments
}

// NewCalculator creates a calculator with the default tables unless
// overridden by options.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		weights:    DefaultWeights(),
		increments: DefaultIncrements(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Weights returns the batch weighting table in use.
func (c *Calculator) Weights() Weights { return c.weights }

// Increments returns the real-time increment table in use.
func (c *Calculator) Increments() Increments { return c.increments }

// Calculate computes the score breakdown for an activity snapshot.
// Negative counters are treated as zero.
func (c *Calculator) Calculate(a model.ActivitySnapshot) model.ScoreBreakdown {
	w := c.weights

	pageViews := capAt(nonNeg(float64(a.PageViews))*w.PageViewPoints, w.PageViewCap)
	toolUsage := capAt(nonNeg(float64(a.ToolUsage))*w.ToolUsagePoints, w.ToolUsageCap)
	downloads := capAt(nonNeg(float64(a.ContentDownloads))*w.ContentDownloadPoints, w.ContentDownloadCap)
	webinars := capAt(nonNeg(float64(a.WebinarRegistrations))*w.WebinarRegistrationPoints, w.WebinarRegistrationCap)

	var timeOnSite float64
	minutes := nonNeg(a.TimeOnSiteMinutes)
	if minutes >= w.TimeOnSiteThresholdMinutes {
		timeOnSite = w.TimeOnSiteCap
	} else {
		timeOnSite = capAt(minutes*w.TimeOnSitePointsPerMinute, w.TimeOnSiteCap)
	}

	depth := math.Min(100, nonNeg(a.AverageScrollDepth))
	scroll := depth / 100 * w.ScrollDepthPoints

	var cta float64
	if a.CTAClicks >= w.CTARequiredClicks {
		cta = w.CTABonusPoints
	}

	raw := pageViews + toolUsage + downloads + webinars + timeOnSite + scroll + cta

	return model.ScoreBreakdown{
		PageViews:           round1(pageViews),
		ToolUsage:           round1(toolUsage),
		ContentDownloads:    round1(downloads),
		WebinarRegistration: round1(webinars),
		TimeOnSite:          round1(timeOnSite),
		ScrollDepth:         round1(scroll),
		CTAEngagement:       round1(cta),
		RawTotal:            raw,
		TotalScore:          int(math.Round(raw)),
	}
}

// Increment returns the flat score delta for a single interaction.
// Every interaction yields a positive delta.
func (c *Calculator) Increment(in model.Interaction) float64 {
	inc := c.increments
	switch v := in.(type) {
	case model.PageView:
		return inc.PageView
	case model.ScrollDepth:
		return math.Min(inc.ScrollDepthMax, nonNeg(v.Depth)/100)
	case model.TimeOnPage:
		return math.Min(inc.TimeOnPageMax, nonNeg(v.Seconds)/60)
	case model.CTAClick:
		return inc.CTAClick
	case model.ToolStart:
		return inc.ToolStart
	case model.ToolComplete:
		return inc.ToolComplete
	case model.ContentEngagement:
		return inc.ContentEngagement
	case model.FormSubmission:
		return inc.FormSubmission
	case model.WebinarRegistration:
		return inc.WebinarRegistration
	}
	return inc.Default
}

func nonNeg(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func capAt(v, limit float64) float64 {
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
