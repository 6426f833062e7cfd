// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tier is a membership level derived from the lead score.
// Tiers are totally ordered: TierBrowser < TierEngaged < TierSoftMember.
type Tier int

const (
	TierBrowser Tier = iota
	TierEngaged
	TierSoftMember
)

var tierNames = [...]string{"browser", "engaged", "soft_member"}

// Tiers lists every tier in ascending order.
func Tiers() []Tier { return []Tier{TierBrowser, TierEngaged, TierSoftMember} }

func (t Tier) String() string {
	if t < TierBrowser || t > TierSoftMember {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool { return t >= TierBrowser && t <= TierSoftMember }

// ParseTier converts a tier name into a Tier. Both "soft_member" and
// "soft-member" are accepted.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "browser":
		return TierBrowser, nil
	case "engaged":
		return TierEngaged, nil
	case "soft_member", "soft-member":
		return TierSoftMember, nil
	}
	return TierBrowser, Errorf("model.parse_tier", ErrValidation, "unknown tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Level is the readiness classification used for messaging copy.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Lead is the user entity. Tier and LeadScore are denormalized copies kept
// for fast filtering.
type Lead struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Tier      Tier      `json:"tier"`
	LeadScore float64   `json:"lead_score"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivitySnapshot holds a user's cumulative behavioral counters.
// Counters never decrease except through an administrative reset.
type ActivitySnapshot struct {
	UserID               string    `json:"user_id"`
	PageViews            int       `json:"page_views_count"`
	ToolUsage            int       `json:"tool_usage_count"` // completed assessments only
	ContentDownloads     int       `json:"content_downloads_count"`
	WebinarRegistrations int       `json:"webinar_registrations_count"`
	TimeOnSiteMinutes    float64   `json:"total_time_on_site_minutes"`
	AverageScrollDepth   float64   `json:"average_scroll_depth"` // percent, [0,100]
	CTAClicks            int       `json:"cta_clicks_count"`
	LastActivityAt       time.Time `json:"last_activity_at"`
}

// ScoreBreakdown is the result of one score computation.
// Sub-scores are rounded to one decimal for display; RawTotal keeps the
// unrounded sum and TotalScore is RawTotal rounded to the nearest integer.
type ScoreBreakdown struct {
	PageViews           float64 `json:"page_views_score"`
	ToolUsage           float64 `json:"tool_usage_score"`
	ContentDownloads    float64 `json:"content_downloads_score"`
	WebinarRegistration float64 `json:"webinar_registration_score"`
	TimeOnSite          float64 `json:"time_on_site_score"`
	ScrollDepth         float64 `json:"scroll_depth_score"`
	CTAEngagement       float64 `json:"cta_engagement_score"`
	RawTotal            float64 `json:"raw_total"`
	TotalScore          int     `json:"total_score"`
}

// TierProgressionEntry is one append-only tier history item.
type TierProgressionEntry struct {
	Tier         Tier      `json:"tier"`
	Score        float64   `json:"score"`
	Timestamp    time.Time `json:"timestamp"`
	PreviousTier Tier      `json:"previous_tier"`
}

// LeadScoreRecord is the persistent per-user scoring state.
type LeadScoreRecord struct {
	UserID          string                 `json:"user_id"`
	Breakdown       ScoreBreakdown         `json:"breakdown"`
	Score           float64                `json:"score"`
	PreviousScore   float64                `json:"previous_score"`
	Tier            Tier                   `json:"tier"`
	PreviousTier    Tier                   `json:"previous_tier"`
	TierProgression []TierProgressionEntry `json:"tier_progression"`
	TierChangedAt   *time.Time             `json:"tier_changed_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// NewLeadScoreRecord returns the default record for a user scored for the
// first time.
func NewLeadScoreRecord(userID string, now time.Time) *LeadScoreRecord {
	return &LeadScoreRecord{
		UserID:          userID,
		Tier:            TierBrowser,
		PreviousTier:    TierBrowser,
		TierProgression: []TierProgressionEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy so stores never share the progression slice
// with callers.
func (r *LeadScoreRecord) Clone() *LeadScoreRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.TierProgression = append([]TierProgressionEntry(nil), r.TierProgression...)
	if r.TierChangedAt != nil {
		t := *r.TierChangedAt
		c.TierChangedAt = &t
	}
	return &c
}

// TierChangeResult describes a detected tier transition and the
// post-commit hooks that apply to it.
type TierChangeResult struct {
	UserID          string               `json:"user_id"`
	PreviousTier    Tier                 `json:"previous_tier"`
	NewTier         Tier                 `json:"new_tier"`
	ScoreIncrease   float64              `json:"score_increase"`
	TotalScore      float64              `json:"total_score"`
	Sequences       []string             `json:"triggered_sequences"`
	Personalization []string             `json:"personalization_updates"`
	Entry           TierProgressionEntry `json:"progression_entry"`
}

// Upgrade reports whether the transition moved the user up.
func (r TierChangeResult) Upgrade() bool { return r.NewTier > r.PreviousTier }

// RealTimeEngagementUpdate is returned from the incremental scoring path.
type RealTimeEngagementUpdate struct {
	UserID          string            `json:"user_id"`
	SessionID       string            `json:"session_id"`
	InteractionType InteractionType   `json:"interaction_type"`
	ScoreIncrement  float64           `json:"score_increment"`
	PreviousScore   float64           `json:"previous_score"`
	NewScore        float64           `json:"new_score"`
	PreviousTier    Tier              `json:"previous_tier"`
	NewTier         Tier              `json:"new_tier"`
	TierChanged     bool              `json:"tier_changed"`
	TierChange      *TierChangeResult `json:"tier_change,omitempty"`
	BehaviorSignals []string          `json:"behavior_signals"`
	ReadinessLevel  Level             `json:"readiness_level"`
	Timestamp       time.Time         `json:"timestamp"`
	// Duplicate is set when the interaction ID was already applied and
	// nothing was written.
	Duplicate bool `json:"duplicate,omitempty"`
}

// TierBucket is one row of the score distribution.
type TierBucket struct {
	Tier         Tier    `json:"tier"`
	Count        int     `json:"count"`
	Percentage   float64 `json:"percentage"`
	AverageScore float64 `json:"average_score"`
}

// ScoreDistribution summarizes scores across tiers.
type ScoreDistribution struct {
	Total        int          `json:"total"`
	AverageScore float64      `json:"average_score"`
	Buckets      []TierBucket `json:"buckets"`
}

// TransitionCount counts transitions for one (from, to) pair.
type TransitionCount struct {
	From  Tier `json:"from"`
	To    Tier `json:"to"`
	Count int  `json:"count"`
}

// ProgressionStats summarizes tier-progression history.
type ProgressionStats struct {
	TotalTransitions      int               `json:"total_transitions"`
	Upgrades              int               `json:"upgrades"`
	Regressions           int               `json:"regressions"`
	Transitions           []TransitionCount `json:"transitions"`
	AverageHoursToUpgrade float64           `json:"average_hours_to_first_upgrade"`
}

// ScoreEntry is a row of a top-N listing.
type ScoreEntry struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Tier   Tier    `json:"tier"`
}

// MarshalProgression encodes a progression slice for storage.
func MarshalProgression(p []TierProgressionEntry) ([]byte, error) {
	if p == nil {
		p = []TierProgressionEntry{}
	}
	return json.Marshal(p)
}

// UnmarshalProgression decodes a stored progression slice.
func UnmarshalProgression(b []byte) ([]TierProgressionEntry, error) {
	out := []TierProgressionEntry{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode tier progression: %w", err)
	}
	return out, nil
}
