// Package transition detects tier changes on a lead score record and
// derives the post-commit hooks (sequences and personalization flags)
// that apply to them.
package transition

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/leadtier/internal/domain/model"
)

// Sequence identifiers triggered by tier transitions.
const (
	SeqEngagedWelcome        = "engaged_visitor_welcome"
	SeqToolUserSeries        = "tool_user_series_14_day"
	SeqSoftMemberWelcome     = "soft_member_welcome"
	SeqAdvancedContentAccess = "advanced_content_access"
	SeqOfficeVisitInvitation = "office_visit_invitation"
	SeqPersonalizedConsult   = "personalized_consultation_offer"
	SeqWinBack               = "win_back_series"
)

// Personalization flags. Parameterized flags are formatted with their value.
const (
	FlagContentAccessLevel     = "content_access_level:%s"
	FlagHideEntryLeadMagnets   = "hide_entry_lead_magnets"
	FlagShowPremiumCTAs        = "show_premium_ctas"
	FlagShowWebinarInvitations = "show_webinar_invitations"
	FlagRecommendToolsCategory = "recommend_tools_category:%s"
)

// RegressionPolicy decides what a downward transition triggers.
type RegressionPolicy string

const (
	// RegressionSilent records the downgrade without triggering sequences.
	RegressionSilent RegressionPolicy = "silent"
	// RegressionWinBack enrolls downgraded users in a win-back sequence.
	RegressionWinBack RegressionPolicy = "win_back"
)

// ErrUnknownPolicy reports an unrecognized regression policy.
var ErrUnknownPolicy = errors.New("unknown regression policy")

// ParsePolicy converts a configured policy name.
func ParsePolicy(s string) (RegressionPolicy, error) {
	switch p := RegressionPolicy(s); p {
	case RegressionSilent, RegressionWinBack:
		return p, nil
	case "":
		return RegressionSilent, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

type pair struct{ from, to model.Tier }

var pairSequences = map[pair][]string{
	{model.TierBrowser, model.TierEngaged}:    {SeqEngagedWelcome, SeqToolUserSeries},
	{model.TierEngaged, model.TierSoftMember}: {SeqSoftMemberWelcome, SeqAdvancedContentAccess, SeqOfficeVisitInvitation},
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithRegressionPolicy sets the downgrade policy.
func WithRegressionPolicy(p RegressionPolicy) Option {
	return func(d *Detector) {
		d.policy = p
	}
}

// Detector is stateless apart from its policy.
type Detector struct {
	policy RegressionPolicy
}

// NewDetector creates a detector with the silent regression policy unless
// overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{policy: RegressionSilent}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Policy returns the downgrade policy in use.
func (d *Detector) Policy() RegressionPolicy { return d.policy }

// Detect compares rec.Tier with newTier. When they differ it appends a
// progression entry, moves rec to newTier and returns the hooks to run
// after the record is persisted. It returns nil and leaves rec untouched
// when the tier is unchanged.
//
// rec.Score and rec.PreviousScore must already hold the new and prior
// scores.
func (d *Detector) Detect(rec *model.LeadScoreRecord, newTier model.Tier, now time.Time) *model.TierChangeResult {
	if rec == nil || rec.Tier == newTier {
		return nil
	}

	prev := rec.Tier
	entry := model.TierProgressionEntry{
		Tier:         newTier,
		Score:        rec.Score,
		Timestamp:    now,
		PreviousTier: prev,
	}
	rec.TierProgression = append(rec.TierProgression, entry)
	rec.PreviousTier = prev
	rec.Tier = newTier
	changed := now
	rec.TierChangedAt = &changed

	return &model.TierChangeResult{
		UserID:          rec.UserID,
		PreviousTier:    prev,
		NewTier:         newTier,
		ScoreIncrease:   rec.Score - rec.PreviousScore,
		TotalScore:      rec.Score,
		Sequences:       d.sequences(prev, newTier),
		Personalization: Personalization(newTier, rec.Breakdown),
		Entry:           entry,
	}
}

func (d *Detector) sequences(from, to model.Tier) []string {
	out := []string{}
	if to < from {
		if d.policy == RegressionWinBack {
			out = append(out, SeqWinBack)
		}
		return out
	}
	out = append(out, pairSequences[pair{from, to}]...)
	if to == model.TierSoftMember {
		out = append(out, SeqPersonalizedConsult)
	}
	return out
}

// Personalization returns the personalization flags for a user landing on
// tier with breakdown b.
func Personalization(t model.Tier, b model.ScoreBreakdown) []string {
	out := []string{fmt.Sprintf(FlagContentAccessLevel, t)}
	switch t {
	case model.TierSoftMember:
		out = append(out, FlagHideEntryLeadMagnets, FlagShowPremiumCTAs)
	case model.TierEngaged:
		out = append(out, FlagShowWebinarInvitations)
	}
	return append(out, fmt.Sprintf(FlagRecommendToolsCategory, TopCategory(b)))
}

// Categories considered for tool recommendations, in tie-break order.
var categories = []string{"tool_usage", "content_downloads", "webinar_registration", "cta_engagement"}

// TopCategory returns the highest-scoring recommendation category. Ties go
// to the category declared first.
func TopCategory(b model.ScoreBreakdown) string {
	values := []float64{b.ToolUsage, b.ContentDownloads, b.WebinarRegistration, b.CTAEngagement}
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return categories[best]
}
