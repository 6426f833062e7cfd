package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/leadtier/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseInteraction(t *testing.T) {
	Convey("Given raw interaction payloads", t, func() {
		Convey("When the type is a known variant", func() {
			in, err := model.ParseInteraction("scroll_depth", map[string]any{"depth": 60.0}, false)

			Convey("Then the variant carries its typed field", func() {
				So(err, ShouldBeNil)
				So(in, ShouldResemble, model.ScrollDepth{Depth: 60})
				So(in.Type(), ShouldEqual, model.InteractionScrollDepth)
			})
		})

		Convey("When content engagement has an action", func() {
			in, err := model.ParseInteraction("content_engagement", map[string]any{"content_id": "ebook-1", "action": "Download"}, false)

			Convey("Then the action is normalized", func() {
				So(err, ShouldBeNil)
				So(in, ShouldResemble, model.ContentEngagement{ContentID: "ebook-1", Action: "download"})
			})
		})

		Convey("When the type is missing", func() {
			_, err := model.ParseInteraction("  ", nil, false)

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the type is unknown", func() {
			_, err := model.ParseInteraction("video_play", nil, false)

			Convey("Then it is rejected at the boundary", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "video_play")
			})

			Convey("And it is accepted as Other when allowed", func() {
				in, err := model.ParseInteraction("video_play", nil, true)
				So(err, ShouldBeNil)
				So(in, ShouldResemble, model.Other{Kind: "video_play"})
				So(in.Type(), ShouldEqual, model.InteractionType("video_play"))
			})
		})

		Convey("When numeric fields are missing or out of range", func() {
			_, errMissing := model.ParseInteraction("scroll_depth", map[string]any{}, false)
			_, errRange := model.ParseInteraction("scroll_depth", map[string]any{"depth": 140.0}, false)
			_, errNeg := model.ParseInteraction("time_on_page", map[string]any{"time_spent_seconds": -3.0}, false)
			_, errType := model.ParseInteraction("time_on_page", map[string]any{"time_spent_seconds": "90"}, false)

			Convey("Then each is a validation error", func() {
				So(errors.Is(errMissing, model.ErrValidation), ShouldBeTrue)
				So(errors.Is(errRange, model.ErrValidation), ShouldBeTrue)
				So(errors.Is(errNeg, model.ErrValidation), ShouldBeTrue)
				So(errors.Is(errType, model.ErrValidation), ShouldBeTrue)
			})
		})
	})
}

func TestNewInteractionEvent(t *testing.T) {
	Convey("Given interactions flattened into events", t, func() {
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		Convey("Then numeric fields land in Value", func() {
			ev := model.NewInteractionEvent("e1", "u1", "s1", model.TimeOnPage{Seconds: 120}, at)
			So(ev.Type, ShouldEqual, model.InteractionTimeOnPage)
			So(ev.Value, ShouldEqual, 120)
			So(ev.OccurredAt, ShouldEqual, at)
		})

		Convey("Then content actions are kept", func() {
			ev := model.NewInteractionEvent("e2", "u1", "s1", model.ContentEngagement{Action: model.ContentActionDownload}, at)
			So(ev.ContentAction, ShouldEqual, "download")
			So(ev.Value, ShouldEqual, 0)
		})
	})
}

func TestTier(t *testing.T) {
	Convey("Given the tier enumeration", t, func() {
		Convey("Then tiers are ordered by threshold", func() {
			So(model.TierBrowser < model.TierEngaged, ShouldBeTrue)
			So(model.TierEngaged < model.TierSoftMember, ShouldBeTrue)
			So(model.Tiers(), ShouldResemble, []model.Tier{model.TierBrowser, model.TierEngaged, model.TierSoftMember})
		})

		Convey("Then names round-trip through JSON", func() {
			b, err := json.Marshal(map[string]model.Tier{"tier": model.TierSoftMember})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"tier":"soft_member"}`)

			var out map[string]model.Tier
			So(json.Unmarshal(b, &out), ShouldBeNil)
			So(out["tier"], ShouldEqual, model.TierSoftMember)
		})

		Convey("Then the hyphenated spelling parses", func() {
			tier, err := model.ParseTier("soft-member")
			So(err, ShouldBeNil)
			So(tier, ShouldEqual, model.TierSoftMember)
		})

		Convey("Then unknown names fail validation", func() {
			_, err := model.ParseTier("vip")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			So(model.Tier(7).Valid(), ShouldBeFalse)
		})
	})
}

func TestLeadScoreRecord(t *testing.T) {
	Convey("Given a new record", t, func() {
		now := time.Now()
		rec := model.NewLeadScoreRecord("u-1", now)

		Convey("Then it defaults to the lowest tier", func() {
			So(rec.Tier, ShouldEqual, model.TierBrowser)
			So(rec.PreviousTier, ShouldEqual, model.TierBrowser)
			So(rec.TierProgression, ShouldBeEmpty)
			So(rec.TierChangedAt, ShouldBeNil)
		})

		Convey("When cloned", func() {
			rec.TierProgression = append(rec.TierProgression, model.TierProgressionEntry{Tier: model.TierEngaged})
			c := rec.Clone()
			c.TierProgression[0].Tier = model.TierSoftMember

			Convey("Then the progression is not shared", func() {
				So(rec.TierProgression[0].Tier, ShouldEqual, model.TierEngaged)
			})
		})

		Convey("When the progression is encoded", func() {
			rec.TierProgression = append(rec.TierProgression, model.TierProgressionEntry{Tier: model.TierEngaged, Score: 40, Timestamp: now.UTC().Truncate(time.Second)})
			b, err := model.MarshalProgression(rec.TierProgression)
			So(err, ShouldBeNil)

			back, err := model.UnmarshalProgression(b)
			So(err, ShouldBeNil)
			So(back, ShouldResemble, rec.TierProgression)

			empty, err := model.UnmarshalProgression(nil)
			So(err, ShouldBeNil)
			So(empty, ShouldBeEmpty)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given kind errors", t, func() {
		cause := errors.New("connection reset")
		err := model.WrapKind("store.upsert", model.ErrPersistence, cause)

		Convey("Then both the kind and cause match", func() {
			So(errors.Is(err, model.ErrPersistence), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(model.KindOf(err), ShouldEqual, model.ErrPersistence)
			So(err.Error(), ShouldEqual, "store.upsert: persistence failed: connection reset")
		})

		Convey("Then the op is reachable with errors.As", func() {
			var kerr *model.Error
			So(errors.As(err, &kerr), ShouldBeTrue)
			So(kerr.Op, ShouldEqual, "store.upsert")
		})

		Convey("Then wrapping nil yields nil", func() {
			So(model.WrapKind("x", model.ErrNotFound, nil), ShouldBeNil)
			So(model.KindOf(errors.New("plain")), ShouldBeNil)
		})
	})
}
