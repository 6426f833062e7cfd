package transition_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/internal/domain/transition"
	. "github.com/smartystreets/goconvey/convey"
)

func record(tier model.Tier, prevScore, score float64) *model.LeadScoreRecord {
	rec := model.NewLeadScoreRecord("u-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rec.Tier = tier
	rec.PreviousTier = tier
	rec.PreviousScore = prevScore
	rec.Score = score
	return rec
}

func TestDetector_Detect(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	Convey("Given a detector with the default policy", t, func() {
		d := transition.NewDetector()

		Convey("When a browser reaches the engaged tier", func() {
			rec := record(model.TierBrowser, 25, 40)
			res := d.Detect(rec, model.TierEngaged, now)

			Convey("Then the engaged sequences are triggered", func() {
				So(res, ShouldNotBeNil)
				So(res.Sequences, ShouldResemble, []string{"engaged_visitor_welcome", "tool_user_series_14_day"})
				So(res.ScoreIncrease, ShouldEqual, 15)
				So(res.TotalScore, ShouldEqual, 40)
				So(res.Upgrade(), ShouldBeTrue)
			})

			Convey("And the record is moved with a progression entry", func() {
				So(rec.Tier, ShouldEqual, model.TierEngaged)
				So(rec.PreviousTier, ShouldEqual, model.TierBrowser)
				So(*rec.TierChangedAt, ShouldEqual, now)
				So(rec.TierProgression, ShouldResemble, []model.TierProgressionEntry{{
					Tier: model.TierEngaged, Score: 40, Timestamp: now, PreviousTier: model.TierBrowser,
				}})
				So(res.Entry, ShouldResemble, rec.TierProgression[0])
			})

			Convey("And engaged personalization is selected", func() {
				So(res.Personalization, ShouldResemble, []string{
					"content_access_level:engaged",
					"show_webinar_invitations",
					"recommend_tools_category:tool_usage",
				})
			})
		})

		Convey("When an engaged lead becomes a soft member", func() {
			rec := record(model.TierEngaged, 60, 75)
			rec.Breakdown = model.ScoreBreakdown{ToolUsage: 10, ContentDownloads: 20, CTAEngagement: 20}
			res := d.Detect(rec, model.TierSoftMember, now)

			Convey("Then the pair and landing sequences are triggered", func() {
				So(res.Sequences, ShouldResemble, []string{
					"soft_member_welcome", "advanced_content_access", "office_visit_invitation",
					"personalized_consultation_offer",
				})
			})

			Convey("Then ties go to the first declared category", func() {
				So(res.Personalization, ShouldResemble, []string{
					"content_access_level:soft_member",
					"hide_entry_lead_magnets",
					"show_premium_ctas",
					"recommend_tools_category:content_downloads",
				})
			})
		})

		Convey("When a browser jumps straight to soft member", func() {
			res := d.Detect(record(model.TierBrowser, 10, 90), model.TierSoftMember, now)

			Convey("Then only the landing sequence applies", func() {
				So(res.Sequences, ShouldResemble, []string{"personalized_consultation_offer"})
			})
		})

		Convey("When the tier regresses", func() {
			rec := record(model.TierSoftMember, 75, 50)
			res := d.Detect(rec, model.TierEngaged, now)

			Convey("Then it is recorded without sequences", func() {
				So(res, ShouldNotBeNil)
				So(res.Sequences, ShouldBeEmpty)
				So(res.ScoreIncrease, ShouldEqual, -25)
				So(res.Upgrade(), ShouldBeFalse)
				So(rec.TierProgression, ShouldHaveLength, 1)
			})
		})

		Convey("When the tier is unchanged", func() {
			rec := record(model.TierEngaged, 40, 55)
			res := d.Detect(rec, model.TierEngaged, now)

			Convey("Then nothing happens even though the score moved", func() {
				So(res, ShouldBeNil)
				So(rec.TierProgression, ShouldBeEmpty)
				So(rec.TierChangedAt, ShouldBeNil)
			})
		})

		Convey("When history already exists", func() {
			rec := record(model.TierBrowser, 25, 40)
			d.Detect(rec, model.TierEngaged, now)
			rec.PreviousScore, rec.Score = 40, 72
			d.Detect(rec, model.TierSoftMember, now.Add(time.Hour))

			Convey("Then entries are appended in order", func() {
				So(rec.TierProgression, ShouldHaveLength, 2)
				So(rec.TierProgression[0].Tier, ShouldEqual, model.TierEngaged)
				So(rec.TierProgression[1].PreviousTier, ShouldEqual, model.TierEngaged)
			})
		})
	})

	Convey("Given a detector with the win-back policy", t, func() {
		d := transition.NewDetector(transition.WithRegressionPolicy(transition.RegressionWinBack))

		Convey("Then a regression enrolls the win-back sequence", func() {
			res := d.Detect(record(model.TierEngaged, 35, 20), model.TierBrowser, now)
			So(res.Sequences, ShouldResemble, []string{"win_back_series"})
			So(res.Personalization[0], ShouldEqual, "content_access_level:browser")
		})
	})
}

func TestParsePolicy(t *testing.T) {
	Convey("Given policy names", t, func() {
		p, err := transition.ParsePolicy("")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, transition.RegressionSilent)

		p, err = transition.ParsePolicy("win_back")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, transition.RegressionWinBack)

		_, err = transition.ParsePolicy("nag")
		So(errors.Is(err, transition.ErrUnknownPolicy), ShouldBeTrue)
	})
}

func TestTopCategory(t *testing.T) {
	Convey("Given breakdowns", t, func() {
		So(transition.TopCategory(model.ScoreBreakdown{}), ShouldEqual, "tool_usage")
		So(transition.TopCategory(model.ScoreBreakdown{WebinarRegistration: 25, ToolUsage: 5}), ShouldEqual, "webinar_registration")
		So(transition.TopCategory(model.ScoreBreakdown{CTAEngagement: 10, ToolUsage: 10}), ShouldEqual, "tool_usage")
	})
}
