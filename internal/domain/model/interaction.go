package model

import (
	"fmt"
	"strings"
	"time"
)

// InteractionType names a tracked interaction.
type InteractionType string

const (
	InteractionPageView            InteractionType = "page_view"
	InteractionScrollDepth         InteractionType = "scroll_depth"
	InteractionTimeOnPage          InteractionType = "time_on_page"
	InteractionCTAClick            InteractionType = "cta_click"
	InteractionToolStart           InteractionType = "tool_start"
	InteractionToolComplete        InteractionType = "tool_complete"
	InteractionContentEngagement   InteractionType = "content_engagement"
	InteractionFormSubmission      InteractionType = "form_submission"
	InteractionWebinarRegistration InteractionType = "webinar_registration"
)

// ContentActionDownload marks a content engagement that counts as a download.
const ContentActionDownload = "download"

// Interaction is one tracked user interaction. Each variant carries only
// the fields its score increment needs.
type Interaction interface {
	Type() InteractionType
}

type PageView struct {
	Path string `json:"path,omitempty"`
}

type ScrollDepth struct {
	Depth float64 `json:"depth"` // percent, [0,100]
}

type TimeOnPage struct {
	Seconds float64 `json:"time_spent_seconds"`
}

type CTAClick struct {
	CTAID string `json:"cta_id,omitempty"`
}

type ToolStart struct {
	ToolID string `json:"tool_id,omitempty"`
}

type ToolComplete struct {
	ToolID string `json:"tool_id,omitempty"`
}

type ContentEngagement struct {
	ContentID string `json:"content_id,omitempty"`
	Action    string `json:"action,omitempty"`
}

type FormSubmission struct {
	FormID string `json:"form_id,omitempty"`
}

type WebinarRegistration struct {
	WebinarID string `json:"webinar_id,omitempty"`
}

// Other is an interaction type the scorer has no dedicated weight for.
// It only exists when unknown types are explicitly accepted.
type Other struct {
	Kind string `json:"kind"`
}

func (PageView) Type() InteractionType            { return InteractionPageView }
func (ScrollDepth) Type() InteractionType         { return InteractionScrollDepth }
func (TimeOnPage) Type() InteractionType          { return InteractionTimeOnPage }
func (CTAClick) Type() InteractionType            { return InteractionCTAClick }
func (ToolStart) Type() InteractionType           { return InteractionToolStart }
func (ToolComplete) Type() InteractionType        { return InteractionToolComplete }
func (ContentEngagement) Type() InteractionType   { return InteractionContentEngagement }
func (FormSubmission) Type() InteractionType      { return InteractionFormSubmission }
func (WebinarRegistration) Type() InteractionType { return InteractionWebinarRegistration }
func (o Other) Type() InteractionType             { return InteractionType(o.Kind) }

// ParseInteraction builds an Interaction from a loosely typed payload.
// Unknown types are rejected unless allowUnknown is set.
func ParseInteraction(typ string, data map[string]any, allowUnknown bool) (Interaction, error) {
	const op = "model.parse_interaction"
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return nil, Errorf(op, ErrValidation, "missing interaction type")
	}

	switch InteractionType(typ) {
	case InteractionPageView:
		return PageView{Path: str(data, "path")}, nil
	case InteractionScrollDepth:
		d, ok := num(data, "depth")
		if !ok {
			return nil, Errorf(op, ErrValidation, "scroll_depth requires numeric depth")
		}
		if d < 0 || d > 100 {
			return nil, Errorf(op, ErrValidation, "depth %v out of range [0,100]", d)
		}
		return ScrollDepth{Depth: d}, nil
	case InteractionTimeOnPage:
		s, ok := num(data, "time_spent_seconds")
		if !ok {
			return nil, Errorf(op, ErrValidation, "time_on_page requires numeric time_spent_seconds")
		}
		if s < 0 {
			return nil, Errorf(op, ErrValidation, "time_spent_seconds must not be negative")
		}
		return TimeOnPage{Seconds: s}, nil
	case InteractionCTAClick:
		return CTAClick{CTAID: str(data, "cta_id")}, nil
	case InteractionToolStart:
		return ToolStart{ToolID: str(data, "tool_id")}, nil
	case InteractionToolComplete:
		return ToolComplete{ToolID: str(data, "tool_id")}, nil
	case InteractionContentEngagement:
		return ContentEngagement{ContentID: str(data, "content_id"), Action: strings.ToLower(str(data, "action"))}, nil
	case InteractionFormSubmission:
		return FormSubmission{FormID: str(data, "form_id")}, nil
	case InteractionWebinarRegistration:
		return WebinarRegistration{WebinarID: str(data, "webinar_id")}, nil
	}

	if allowUnknown {
		return Other{Kind: typ}, nil
	}
	return nil, Errorf(op, ErrValidation, "unknown interaction type %q", typ)
}

func str(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		if v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func num(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// InteractionEvent is a persisted raw interaction. Value holds the
// variant's numeric field (scroll depth or seconds on page).
type InteractionEvent struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	SessionID     string          `json:"session_id"`
	Type          InteractionType `json:"type"`
	Value         float64         `json:"value"`
	ContentAction string          `json:"content_action,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewInteractionEvent flattens an Interaction into its stored form.
func NewInteractionEvent(id, userID, sessionID string, in Interaction, at time.Time) InteractionEvent {
	ev := InteractionEvent{
		ID:         id,
		UserID:     userID,
		SessionID:  sessionID,
		Type:       in.Type(),
		OccurredAt: at,
	}
	switch v := in.(type) {
	case ScrollDepth:
		ev.Value = v.Depth
	case TimeOnPage:
		ev.Value = v.Seconds
	case ContentEngagement:
		ev.ContentAction = v.Action
	}
	return ev
}

// Tracked is an interaction as received from a client. InteractionID is
// optional and used only for duplicate suppression.
type Tracked struct {
	InteractionID string      `json:"interaction_id,omitempty"`
	UserID        string      `json:"user_id"`
	SessionID     string      `json:"session_id"`
	Interaction   Interaction `json:"-"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// Type returns the wrapped interaction's type, or "" when none is set.
func (t Tracked) Type() InteractionType {
	if t.Interaction == nil {
		return ""
	}
	return t.Interaction.Type()
}
