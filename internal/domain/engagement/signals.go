// Package engagement tracks per-session activity and derives behavior
// signal tags from it.
package engagement

import (
	"github.com/okian/leadtier/internal/domain/model"
)

// Behavior signal tags.
const (
	SignalHighIntent    = "high_intent"
	SignalDeepReader    = "deep_reader"
	SignalTimeInvested  = "time_invested"
	SignalCTAResponsive = "cta_responsive"
	SignalToolExplorer  = "tool_explorer"
	SignalSessionActive = "session_active"
)

// Thresholds over the running session statistics.
const (
	deepReaderDepth      = 75
	timeInvestedSeconds  = 180
	ctaResponsiveClicks  = 2
	toolExplorerEvents   = 2
	sessionActiveActions = 10
)

// SessionStats accumulates one session's interactions.
type SessionStats struct {
	Interactions   int     `json:"interactions"`
	CTAClicks      int     `json:"cta_clicks"`
	ToolEvents     int     `json:"tool_events"`
	MaxScrollDepth float64 `json:"max_scroll_depth"`
	SecondsOnPage  float64 `json:"seconds_on_page"`
	ScoreGained    float64 `json:"score_gained"`
}

// Observe folds one interaction and its score increment into s.
func (s *SessionStats) Observe(in model.Interaction, increment float64) {
	s.Interactions++
	s.ScoreGained += increment
	switch v := in.(type) {
	case model.CTAClick:
		s.CTAClicks++
	case model.ToolStart, model.ToolComplete:
		s.ToolEvents++
	case model.ScrollDepth:
		if v.Depth > s.MaxScrollDepth {
			s.MaxScrollDepth = v.Depth
		}
	case model.TimeOnPage:
		s.SecondsOnPage += v.Seconds
	}
}

// Signals returns the tags for the latest interaction given the session
// statistics after it was observed. The order is stable.
func Signals(in model.Interaction, s SessionStats) []string {
	out := []string{}
	switch in.(type) {
	case model.FormSubmission, model.WebinarRegistration, model.ToolComplete:
		out = append(out, SignalHighIntent)
	}
	if s.MaxScrollDepth >= deepReaderDepth {
		out = append(out, SignalDeepReader)
	}
	if s.SecondsOnPage >= timeInvestedSeconds {
		out = append(out, SignalTimeInvested)
	}
	if s.CTAClicks >= ctaResponsiveClicks {
		out = append(out, SignalCTAResponsive)
	}
	if s.ToolEvents >= toolExplorerEvents {
		out = append(out, SignalToolExplorer)
	}
	if s.Interactions >= sessionActiveActions {
		out = append(out, SignalSessionActive)
	}
	return out
}

// SessionKey is the cache key for a user's session statistics.
func SessionKey(userID, sessionID string) string {
	return "session:" + userID + ":" + sessionID
}
