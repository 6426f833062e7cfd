package scoring

import (
	"fmt"
)

// Weights holds every weight, cap and threshold used by the batch score
// computation. A cap of zero disables capping for that sub-score.
type Weights struct {
	PageViewPoints float64 `koanf:"page_view_points"`
	PageViewCap    float64 `koanf:"page_view_cap"`

	ToolUsagePoints float64 `koanf:"tool_usage_points"`
	ToolUsageCap    float64 `koanf:"tool_usage_cap"`

	ContentDownloadPoints float64 `koanf:"content_download_points"`
	ContentDownloadCap    float64 `koanf:"content_download_cap"`

	WebinarRegistrationPoints float64 `koanf:"webinar_registration_points"`
	WebinarRegistrationCap    float64 `koanf:"webinar_registration_cap"`

	// Reaching the threshold awards TimeOnSiteCap outright; below it each
	// minute earns TimeOnSitePointsPerMinute.
	TimeOnSiteThresholdMinutes float64 `koanf:"time_on_site_threshold_minutes"`
	TimeOnSitePointsPerMinute  float64 `koanf:"time_on_site_points_per_minute"`
	TimeOnSiteCap              float64 `koanf:"time_on_site_cap"`

	// ScrollDepthPoints is awarded at 100% average depth, linearly below.
	ScrollDepthPoints float64 `koanf:"scroll_depth_points"`

	CTARequiredClicks int     `koanf:"cta_required_clicks"`
	CTABonusPoints    float64 `koanf:"cta_bonus_points"`
}

// DefaultWeights returns the reference weighting table.
func DefaultWeights() Weights {
	return Weights{
		PageViewPoints:             0.5,
		PageViewCap:                10,
		ToolUsagePoints:            5,
		ToolUsageCap:               30,
		ContentDownloadPoints:      4,
		ContentDownloadCap:         20,
		WebinarRegistrationPoints:  25,
		WebinarRegistrationCap:     0,
		TimeOnSiteThresholdMinutes: 5,
		TimeOnSitePointsPerMinute:  2,
		TimeOnSiteCap:              10,
		ScrollDepthPoints:          5,
		CTARequiredClicks:          5,
		CTABonusPoints:             10,
	}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	fields := map[string]float64{
		"page_view_points":               w.PageViewPoints,
		"page_view_cap":                  w.PageViewCap,
		"tool_usage_points":              w.ToolUsagePoints,
		"tool_usage_cap":                 w.ToolUsageCap,
		"content_download_points":        w.ContentDownloadPoints,
		"content_download_cap":           w.ContentDownloadCap,
		"webinar_registration_points":    w.WebinarRegistrationPoints,
		"webinar_registration_cap":       w.WebinarRegistrationCap,
		"time_on_site_threshold_minutes": w.TimeOnSiteThresholdMinutes,
		"time_on_site_points_per_minute": w.TimeOnSitePointsPerMinute,
		"time_on_site_cap":               w.TimeOnSiteCap,
		"scroll_depth_points":            w.ScrollDepthPoints,
		"cta_bonus_points":               w.CTABonusPoints,
		"cta_required_clicks":            float64(w.CTARequiredClicks),
	}
	for name, v := range fields {
		if v < 0 {
			return fmt.Errorf("%w: scoring.%s must not be negative", ErrInvalidWeights, name)
		}
	}
	return nil
}

// Increments holds the flat score deltas applied per real-time interaction.
type Increments struct {
	PageView            float64 `koanf:"page_view"`
	ScrollDepthMax      float64 `koanf:"scroll_depth_max"` // depth/100, capped here
	TimeOnPageMax       float64 `koanf:"time_on_page_max"` // seconds/60, capped here
	CTAClick            float64 `koanf:"cta_click"`
	ToolStart           float64 `koanf:"tool_start"`
	ToolComplete        float64 `koanf:"tool_complete"`
	ContentEngagement   float64 `koanf:"content_engagement"`
	FormSubmission      float64 `koanf:"form_submission"`
	WebinarRegistration float64 `koanf:"webinar_registration"`
	Default             float64 `koanf:"default"`
}

// DefaultIncrements returns the reference per-interaction deltas.
func DefaultIncrements() Increments {
	return Increments{
		PageView:            0.5,
		ScrollDepthMax:      1,
		TimeOnPageMax:       3,
		CTAClick:            2,
		ToolStart:           3,
		ToolComplete:        5,
		ContentEngagement:   1.5,
		FormSubmission:      10,
		WebinarRegistration: 15,
		Default:             0.5,
	}
}

// Validate requires every increment to be strictly positive so each
// tracked interaction moves the score.
func (in Increments) Validate() error {
	fields := map[string]float64{
		"page_view":            in.PageView,
		"scroll_depth_max":     in.ScrollDepthMax,
		"time_on_page_max":     in.TimeOnPageMax,
		"cta_click":            in.CTAClick,
		"tool_start":           in.ToolStart,
		"tool_complete":        in.ToolComplete,
		"content_engagement":   in.ContentEngagement,
		"form_submission":      in.FormSubmission,
		"webinar_registration": in.WebinarRegistration,
		"default":              in.Default,
	}
	for name, v := range fields {
		if v <= 0 {
			return fmt.Errorf("%w: increments.%s must be positive", ErrInvalidWeights, name)
		}
	}
	return nil
}
