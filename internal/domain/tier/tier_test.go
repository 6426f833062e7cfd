package tier_test

import (
	"errors"
	"testing"

	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassifier_FromScore(t *testing.T) {
	Convey("Given the default classifier", t, func() {
		c := tier.NewClassifier()

		Convey("Then boundary scores belong to the higher tier", func() {
			So(c.FromScore(29), ShouldEqual, model.TierBrowser)
			So(c.FromScore(29.99), ShouldEqual, model.TierBrowser)
			So(c.FromScore(30), ShouldEqual, model.TierEngaged)
			So(c.FromScore(69), ShouldEqual, model.TierEngaged)
			So(c.FromScore(70), ShouldEqual, model.TierSoftMember)
		})

		Convey("Then negative and huge scores stay in range", func() {
			So(c.FromScore(-5), ShouldEqual, model.TierBrowser)
			So(c.FromScore(1e6), ShouldEqual, model.TierSoftMember)
		})

		Convey("Then tiers never decrease as the score grows", func() {
			prev := c.FromScore(-1)
			for s := 0.0; s <= 150; s += 0.25 {
				cur := c.FromScore(s)
				So(cur >= prev, ShouldBeTrue)
				prev = cur
			}
		})
	})
}

func TestClassifier_Readiness(t *testing.T) {
	Convey("Given the default classifier", t, func() {
		c := tier.NewClassifier()

		Convey("Then readiness follows its own cut points", func() {
			So(c.Readiness(10), ShouldEqual, model.LevelLow)
			So(c.Readiness(30), ShouldEqual, model.LevelMedium)
			So(c.Readiness(69), ShouldEqual, model.LevelMedium)
			So(c.Readiness(70), ShouldEqual, model.LevelHigh)
		})

		Convey("When readiness thresholds diverge from tier thresholds", func() {
			c := tier.NewClassifier(tier.WithReadinessThresholds(tier.ReadinessThresholds{Medium: 50, High: 90}))

			Convey("Then the tier is unaffected", func() {
				So(c.FromScore(40), ShouldEqual, model.TierEngaged)
				So(c.Readiness(40), ShouldEqual, model.LevelLow)
				So(c.FromScore(80), ShouldEqual, model.TierSoftMember)
				So(c.Readiness(80), ShouldEqual, model.LevelMedium)
			})
		})
	})
}

func TestThresholds_Validate(t *testing.T) {
	Convey("Given threshold tables", t, func() {
		Convey("Then the defaults are valid", func() {
			So(tier.DefaultThresholds().Validate(), ShouldBeNil)
			So(tier.DefaultReadinessThresholds().Validate(), ShouldBeNil)
		})

		Convey("Then non-ascending tables are rejected", func() {
			So(errors.Is(tier.Thresholds{Engaged: 70, SoftMember: 30}.Validate(), tier.ErrInvalidThresholds), ShouldBeTrue)
			So(errors.Is(tier.ReadinessThresholds{Medium: -1, High: 10}.Validate(), tier.ErrInvalidThresholds), ShouldBeTrue)
		})

		Convey("Then custom tier thresholds are honored", func() {
			c := tier.NewClassifier(tier.WithThresholds(tier.Thresholds{Engaged: 10, SoftMember: 20}))
			So(c.FromScore(15), ShouldEqual, model.TierEngaged)
			So(c.Thresholds().SoftMember, ShouldEqual, 20)
		})
	})
}
