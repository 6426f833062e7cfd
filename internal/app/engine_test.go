package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/leadtier/internal/adapters/broadcast"
	"github.com/okian/leadtier/internal/adapters/repository"
	"github.com/okian/leadtier/internal/adapters/repository/memory"
	"github.com/okian/leadtier/internal/adapters/sequence"
	service "github.com/okian/leadtier/internal/app"
	"github.com/okian/leadtier/internal/domain/engagement"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/internal/domain/transition"
	"github.com/okian/leadtier/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	publisher *broadcast.Memory
	sequences *sequence.Memory
	engine    *service.Engine
}

func newFixture(opts ...service.EngineOption) *fixture {
	f := &fixture{
		store:     memory.New(memory.WithClock(func() time.Time { return fixedNow })),
		publisher: broadcast.NewMemory(),
		sequences: sequence.NewMemory(),
	}
	base := []service.EngineOption{
		service.WithPublisher(f.publisher),
		service.WithSequenceTrigger(f.sequences),
		service.WithEngineClock(func() time.Time { return fixedNow }),
		service.WithEngineLogger(logger.Nop()),
	}
	f.engine = service.NewEngine(f.store, append(base, opts...)...)
	return f
}

func (f *fixture) lead(id string, score float64, t model.Tier) {
	ctx := context.Background()
	So(f.store.UpsertLead(ctx, model.Lead{ID: id, Email: id + "@example.com", CreatedAt: fixedNow.Add(-48 * time.Hour)}), ShouldBeNil)
	if score == 0 && t == model.TierBrowser {
		return
	}
	rec := model.NewLeadScoreRecord(id, fixedNow.Add(-48*time.Hour))
	rec.Score, rec.Tier, rec.PreviousTier = score, t, t
	So(f.store.UpsertLeadScoreRecord(ctx, rec), ShouldBeNil)
	So(f.store.SetUserTier(ctx, id, t), ShouldBeNil)
}

func (f *fixture) events(id string, list ...model.Interaction) {
	for i, in := range list {
		ev := model.NewInteractionEvent(id+"-ev-"+string(rune('a'+i)), id, "s-0", in, fixedNow)
		So(f.store.RecordInteraction(context.Background(), ev), ShouldBeNil)
	}
}

func channels(msgs []broadcast.Published) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Channel+"/"+m.Message.Event)
	}
	return out
}

func TestEngine_WebinarTransition(t *testing.T) {
	Convey("Given a browser at 25 points", t, func() {
		f := newFixture()
		f.lead("u-1", 25, model.TierBrowser)
		ctx := context.Background()

		Convey("When they register for a webinar", func() {
			update, err := f.engine.ApplyInteraction(ctx, "u-1", "s-1", model.WebinarRegistration{WebinarID: "w-1"})
			So(err, ShouldBeNil)

			Convey("Then the score reaches 40 and the lead becomes engaged", func() {
				So(update.ScoreIncrement, ShouldEqual, 15.0)
				So(update.NewScore, ShouldEqual, 40.0)
				So(update.NewTier, ShouldEqual, model.TierEngaged)
				So(update.TierChanged, ShouldBeTrue)
				So(update.TierChange.ScoreIncrease, ShouldEqual, 15.0)
				So(update.TierChange.TotalScore, ShouldEqual, 40.0)
			})

			Convey("Then personalization recommends the webinar category", func() {
				So(update.TierChange.Personalization, ShouldContain, "recommend_tools_category:webinar_registration")
				So(update.TierChange.Personalization, ShouldContain, "content_access_level:engaged")
			})

			Convey("Then the stored score stays incremental", func() {
				rec, err := f.store.GetLeadScoreRecord(ctx, "u-1")
				So(err, ShouldBeNil)
				So(rec.Score, ShouldEqual, 40.0)
				So(rec.Breakdown.WebinarRegistration, ShouldEqual, 25.0)
			})
		})
	})
}

func TestEngine_TrackRetry(t *testing.T) {
	Convey("Given a store whose first score write fails", t, func() {
		ctx := context.Background()
		store := &failingStore{Store: memory.New(), upsertErr: errors.New("disk full")}
		e := service.NewEngine(store, service.WithEngineLogger(logger.Nop()))
		So(store.UpsertLead(ctx, model.Lead{ID: "u-1"}), ShouldBeNil)
		tracked := model.Tracked{InteractionID: "beacon-1", UserID: "u-1", SessionID: "s-1", Interaction: model.ToolComplete{ToolID: "quiz"}}

		Convey("When the client retries the same beacon", func() {
			_, err1 := e.Track(ctx, tracked)
			store.upsertErr = nil
			update, err2 := e.Track(ctx, tracked)

			Convey("Then it is applied once and counted once", func() {
				So(errors.Is(err1, model.ErrPersistence), ShouldBeTrue)
				So(err2, ShouldBeNil)
				So(update.Duplicate, ShouldBeFalse)
				So(update.NewScore, ShouldEqual, 5.0)
				snap, err := store.GetUserActivitySnapshot(ctx, "u-1")
				So(err, ShouldBeNil)
				So(snap.ToolUsage, ShouldEqual, 1)
			})
		})
	})
}

func TestEngine_OccurredAt(t *testing.T) {
	Convey("Given a lead with a tracked interaction carrying a client timestamp", t, func() {
		f := newFixture()
		f.lead("u-1", 0, model.TierBrowser)
		ctx := context.Background()

		Convey("When the timestamp is in the past", func() {
			at := fixedNow.Add(-time.Hour)
			_, err := f.engine.Track(ctx, model.Tracked{UserID: "u-1", Interaction: model.PageView{}, OccurredAt: at})
			So(err, ShouldBeNil)

			Convey("Then the stored event keeps it", func() {
				snap, err := f.store.GetUserActivitySnapshot(ctx, "u-1")
				So(err, ShouldBeNil)
				So(snap.LastActivityAt, ShouldEqual, at)
			})
		})

		Convey("When the timestamp is in the future", func() {
			_, err := f.engine.Track(ctx, model.Tracked{UserID: "u-1", Interaction: model.PageView{}, OccurredAt: fixedNow.Add(time.Hour)})
			So(err, ShouldBeNil)

			Convey("Then the server time is used", func() {
				snap, err := f.store.GetUserActivitySnapshot(ctx, "u-1")
				So(err, ShouldBeNil)
				So(snap.LastActivityAt, ShouldEqual, fixedNow)
			})
		})
	})
}

func TestEngine_ApplyInteraction(t *testing.T) {
	Convey("Given an engaged-threshold candidate at 25 points", t, func() {
		f := newFixture()
		f.lead("u-1", 25, model.TierBrowser)
		ctx := context.Background()

		Convey("When a form submission pushes the score past 30", func() {
			update, err := f.engine.ApplyInteraction(ctx, "u-1", "s-1", model.FormSubmission{FormID: "newsletter"})
			So(err, ShouldBeNil)

			Convey("Then the update reports the transition", func() {
				So(update.ScoreIncrement, ShouldEqual, 10.0)
				So(update.PreviousScore, ShouldEqual, 25.0)
				So(update.NewScore, ShouldEqual, 35.0)
				So(update.PreviousTier, ShouldEqual, model.TierBrowser)
				So(update.NewTier, ShouldEqual, model.TierEngaged)
				So(update.TierChanged, ShouldBeTrue)
				So(update.ReadinessLevel, ShouldEqual, model.LevelMedium)
				So(update.BehaviorSignals, ShouldContain, engagement.SignalHighIntent)
				So(update.TierChange.ScoreIncrease, ShouldEqual, 10.0)
				So(update.TierChange.Sequences, ShouldResemble, []string{transition.SeqEngagedWelcome, transition.SeqToolUserSeries})
			})

			Convey("Then the record, history and lead tier are persisted", func() {
				rec, err := f.store.GetLeadScoreRecord(ctx, "u-1")
				So(err, ShouldBeNil)
				So(rec.Score, ShouldEqual, 35.0)
				So(rec.PreviousScore, ShouldEqual, 25.0)
				So(rec.Tier, ShouldEqual, model.TierEngaged)
				So(rec.TierProgression, ShouldHaveLength, 1)
				So(*rec.TierChangedAt, ShouldEqual, fixedNow)

				lead, err := f.store.GetLead(ctx, "u-1")
				So(err, ShouldBeNil)
				So(lead.Tier, ShouldEqual, model.TierEngaged)
				So(lead.LeadScore, ShouldEqual, 35.0)
			})

			Convey("Then broadcasts and sequences fire", func() {
				So(channels(f.publisher.Messages()), ShouldResemble, []string{
					"user:u-1/" + broadcast.EventEngagementUpdated,
					"user:u-1/" + broadcast.EventTierChanged,
					broadcast.AdminChannel + "/" + broadcast.EventTierChanged,
				})
				enrolled := f.sequences.Enrollments("u-1")
				So(enrolled, ShouldHaveLength, 2)
				So(enrolled[0].SequenceID, ShouldEqual, transition.SeqEngagedWelcome)
				So(enrolled[0].Context["new_tier"], ShouldEqual, "engaged")
			})
		})

		Convey("When a page view keeps the tier", func() {
			update, err := f.engine.ApplyInteraction(ctx, "u-1", "s-1", model.PageView{Path: "/pricing"})
			So(err, ShouldBeNil)

			Convey("Then only the engagement broadcast is sent", func() {
				So(update.NewScore, ShouldEqual, 25.5)
				So(update.TierChanged, ShouldBeFalse)
				So(update.TierChange, ShouldBeNil)
				So(channels(f.publisher.Messages()), ShouldResemble, []string{"user:u-1/" + broadcast.EventEngagementUpdated})
				So(f.sequences.Enrollments("u-1"), ShouldBeEmpty)
			})
		})

		Convey("When the first interaction arrives for a never-scored lead", func() {
			f.lead("u-new", 0, model.TierBrowser)
			update, err := f.engine.ApplyInteraction(ctx, "u-new", "s-1", model.ScrollDepth{Depth: 50})
			So(err, ShouldBeNil)

			Convey("Then a default record is created", func() {
				So(update.PreviousScore, ShouldEqual, 0.0)
				So(update.NewScore, ShouldEqual, 0.5)
				rec, err := f.store.GetLeadScoreRecord(ctx, "u-new")
				So(err, ShouldBeNil)
				So(rec.Tier, ShouldEqual, model.TierBrowser)
			})
		})

		Convey("When CTA clicks repeat within a session", func() {
			_, err := f.engine.ApplyInteraction(ctx, "u-1", "s-9", model.CTAClick{CTAID: "hero"})
			So(err, ShouldBeNil)
			update, err := f.engine.ApplyInteraction(ctx, "u-1", "s-9", model.CTAClick{CTAID: "footer"})
			So(err, ShouldBeNil)

			Convey("Then the session statistics produce the signal", func() {
				So(update.BehaviorSignals, ShouldContain, engagement.SignalCTAResponsive)
			})
		})
	})
}

func TestEngine_ApplyInteractionFailures(t *testing.T) {
	Convey("Given an engine", t, func() {
		ctx := context.Background()

		Convey("When the lead does not exist", func() {
			f := newFixture()
			_, err := f.engine.ApplyInteraction(ctx, "ghost", "s-1", model.PageView{})

			Convey("Then it fails with NotFound and writes nothing", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				_, rerr := f.store.GetLeadScoreRecord(ctx, "ghost")
				So(errors.Is(rerr, repository.ErrRecordNotFound), ShouldBeTrue)
				So(f.publisher.Messages(), ShouldBeEmpty)
			})
		})

		Convey("When the request is malformed", func() {
			f := newFixture()
			_, errUser := f.engine.ApplyInteraction(ctx, " ", "s-1", model.PageView{})
			_, errType := f.engine.ApplyInteraction(ctx, "u-1", "s-1", nil)

			Convey("Then it fails validation", func() {
				So(errors.Is(errUser, model.ErrValidation), ShouldBeTrue)
				So(errors.Is(errType, model.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the score write fails", func() {
			store := &failingStore{Store: memory.New(), upsertErr: errors.New("disk full")}
			pub := broadcast.NewMemory()
			e := service.NewEngine(store, service.WithPublisher(pub), service.WithEngineLogger(logger.Nop()))
			So(store.UpsertLead(ctx, model.Lead{ID: "u-1"}), ShouldBeNil)

			_, err := e.ApplyInteraction(ctx, "u-1", "s-1", model.PageView{})

			Convey("Then it fails with a persistence error and broadcasts nothing", func() {
				So(errors.Is(err, model.ErrPersistence), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "disk full")
				So(pub.Messages(), ShouldBeEmpty)
			})
		})

		Convey("When broadcast and sequence triggers fail", func() {
			f := newFixture(service.WithSequenceTrigger(failingTrigger{}))
			f.lead("u-1", 69, model.TierEngaged)
			f.publisher.FailWith(errors.New("redis down"))

			update, err := f.engine.ApplyInteraction(ctx, "u-1", "s-1", model.ToolComplete{ToolID: "quiz"})

			Convey("Then the committed change still succeeds", func() {
				So(err, ShouldBeNil)
				So(update.NewTier, ShouldEqual, model.TierSoftMember)
				rec, err := f.store.GetLeadScoreRecord(ctx, "u-1")
				So(err, ShouldBeNil)
				So(rec.Tier, ShouldEqual, model.TierSoftMember)
				So(rec.Score, ShouldEqual, 74.0)
			})
		})
	})
}

func TestEngine_Track(t *testing.T) {
	Convey("Given an engine and a lead", t, func() {
		f := newFixture()
		f.lead("u-1", 10, model.TierBrowser)
		ctx := context.Background()
		tracked := model.Tracked{InteractionID: "beacon-1", UserID: "u-1", SessionID: "s-1", Interaction: model.CTAClick{}}

		Convey("When the same interaction ID is delivered twice", func() {
			first, err1 := f.engine.Track(ctx, tracked)
			second, err2 := f.engine.Track(ctx, tracked)

			Convey("Then it is applied once", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.Duplicate, ShouldBeFalse)
				So(second.Duplicate, ShouldBeTrue)
				rec, _ := f.store.GetLeadScoreRecord(ctx, "u-1")
				So(rec.Score, ShouldEqual, 12.0)
			})
		})

		Convey("When an interaction fails", func() {
			lost := model.Tracked{InteractionID: "beacon-2", UserID: "u-late", Interaction: model.PageView{}}
			_, err := f.engine.Track(ctx, lost)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)

			Convey("Then its ID can be retried", func() {
				f.lead("u-late", 0, model.TierBrowser)
				update, err := f.engine.Track(ctx, lost)
				So(err, ShouldBeNil)
				So(update.Duplicate, ShouldBeFalse)
				So(update.NewScore, ShouldEqual, 0.5)
			})
		})

		Convey("When no interaction ID is given", func() {
			anon := model.Tracked{UserID: "u-1", Interaction: model.PageView{}}
			_, _ = f.engine.Track(ctx, anon)
			update, err := f.engine.Track(ctx, anon)

			Convey("Then every delivery is applied", func() {
				So(err, ShouldBeNil)
				So(update.NewScore, ShouldEqual, 11.0)
			})
		})
	})
}

func TestEngine_UpdateLeadScore(t *testing.T) {
	Convey("Given a lead with an engaged activity history", t, func() {
		f := newFixture()
		f.lead("u-1", 0, model.TierBrowser)
		ctx := context.Background()

		var history []model.Interaction
		for i := 0; i < 20; i++ {
			history = append(history, model.PageView{})
		}
		for i := 0; i < 4; i++ {
			history = append(history, model.ToolComplete{})
		}
		for i := 0; i < 3; i++ {
			history = append(history, model.ContentEngagement{Action: model.ContentActionDownload})
		}
		for i := 0; i < 6; i++ {
			history = append(history, model.CTAClick{})
		}
		history = append(history, model.TimeOnPage{Seconds: 480}, model.ScrollDepth{Depth: 85})
		f.events("u-1", history...)

		Convey("When the score is recomputed", func() {
			change, err := f.engine.UpdateLeadScore(ctx, "u-1")
			So(err, ShouldBeNil)

			Convey("Then the breakdown total becomes the score", func() {
				So(change, ShouldNotBeNil)
				So(change.NewTier, ShouldEqual, model.TierEngaged)
				So(change.TotalScore, ShouldEqual, 66.0)
				rec, _ := f.store.GetLeadScoreRecord(ctx, "u-1")
				So(rec.Breakdown.TotalScore, ShouldEqual, 66)
				So(rec.Breakdown.RawTotal, ShouldAlmostEqual, 66.25, 0.0001)
			})

			Convey("Then recomputing again changes nothing", func() {
				again, err := f.engine.UpdateLeadScore(ctx, "u-1")
				So(err, ShouldBeNil)
				So(again, ShouldBeNil)
				rec, _ := f.store.GetLeadScoreRecord(ctx, "u-1")
				So(rec.Score, ShouldEqual, 66.0)
				So(rec.TierProgression, ShouldHaveLength, 1)
			})
		})

		Convey("When the lead is unknown", func() {
			_, err := f.engine.UpdateLeadScore(ctx, "ghost")

			Convey("Then it fails with NotFound", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a soft member whose recomputed score collapses", t, func() {
		ctx := context.Background()

		Convey("When the regression policy is silent", func() {
			f := newFixture()
			f.lead("u-1", 75, model.TierSoftMember)
			change, err := f.engine.UpdateLeadScore(ctx, "u-1")

			Convey("Then the tier drops without sequences", func() {
				So(err, ShouldBeNil)
				So(change.NewTier, ShouldEqual, model.TierBrowser)
				So(change.ScoreIncrease, ShouldEqual, -75.0)
				So(change.Sequences, ShouldBeEmpty)
				So(f.sequences.Enrollments("u-1"), ShouldBeEmpty)
			})
		})

		Convey("When the regression policy is win_back", func() {
			f := newFixture(service.WithDetector(transition.NewDetector(transition.WithRegressionPolicy(transition.RegressionWinBack))))
			f.lead("u-1", 75, model.TierSoftMember)
			_, err := f.engine.UpdateLeadScore(ctx, "u-1")

			Convey("Then the win-back sequence starts", func() {
				So(err, ShouldBeNil)
				enrolled := f.sequences.Enrollments("u-1")
				So(enrolled, ShouldHaveLength, 1)
				So(enrolled[0].SequenceID, ShouldEqual, transition.SeqWinBack)
			})
		})
	})
}

func TestEngine_Batch(t *testing.T) {
	Convey("Given several leads and one unknown ID", t, func() {
		f := newFixture(service.WithChunkSize(1))
		ctx := context.Background()
		ids := []string{"a", "b", "ghost", "c", "d", "e", "f"}
		for _, id := range ids {
			if id != "ghost" {
				f.lead(id, 0, model.TierBrowser)
			}
		}
		f.events("b", model.WebinarRegistration{}, model.WebinarRegistration{}, model.WebinarRegistration{})
		f.events("d", model.WebinarRegistration{}, model.WebinarRegistration{})

		Convey("When the batch runs", func() {
			res := f.engine.BatchUpdateScores(ctx, ids)

			Convey("Then failures are isolated and changes keep input order", func() {
				So(res.Updated, ShouldEqual, 6)
				So(res.Errors, ShouldHaveLength, 1)
				So(res.Errors[0].UserID, ShouldEqual, "ghost")
				So(res.Changes, ShouldHaveLength, 2)
				So(res.Changes[0].UserID, ShouldEqual, "b")
				So(res.Changes[0].NewTier, ShouldEqual, model.TierSoftMember)
				So(res.Changes[1].UserID, ShouldEqual, "d")
				So(res.Changes[1].NewTier, ShouldEqual, model.TierEngaged)
			})
		})

		Convey("When every lead is recalculated", func() {
			res, err := f.engine.RecalculateAllScores(ctx)

			Convey("Then only known leads are processed", func() {
				So(err, ShouldBeNil)
				So(res.Updated, ShouldEqual, 6)
				So(res.Errors, ShouldBeEmpty)
			})

			Convey("Then analytics reflect the new tiers", func() {
				dist, err := f.engine.ScoreDistribution(ctx)
				So(err, ShouldBeNil)
				So(dist.Total, ShouldEqual, 6)
				So(dist.Buckets[2].Count, ShouldEqual, 1)

				stats, err := f.engine.ProgressionStats(ctx)
				So(err, ShouldBeNil)
				So(stats.Upgrades, ShouldEqual, 2)

				soft := model.TierSoftMember
				top, err := f.engine.TopScores(ctx, &soft, 500)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 1)
				So(top[0].UserID, ShouldEqual, "b")
				So(top[0].Score, ShouldEqual, 75.0)
			})
		})
	})
}

func TestEngine_Leads(t *testing.T) {
	Convey("Given an engine", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("When a lead is upserted and read back", func() {
			So(f.engine.UpsertLead(ctx, model.Lead{ID: "u-1", Email: "u@example.com"}), ShouldBeNil)
			score, err := f.engine.GetLeadScore(ctx, "u-1")

			Convey("Then the default record is returned", func() {
				So(err, ShouldBeNil)
				So(score.Lead.Email, ShouldEqual, "u@example.com")
				So(score.Record.Tier, ShouldEqual, model.TierBrowser)
				So(score.Readiness, ShouldEqual, model.LevelLow)
			})
		})

		Convey("Then bad input is rejected", func() {
			So(errors.Is(f.engine.UpsertLead(ctx, model.Lead{}), model.ErrValidation), ShouldBeTrue)
			_, err := f.engine.TopScores(ctx, nil, 0)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = f.engine.GetLeadScore(ctx, "ghost")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

type failingStore struct {
	*memory.Store
	upsertErr error
}

func (s *failingStore) UpsertLeadScoreRecord(ctx context.Context, rec *model.LeadScoreRecord) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.Store.UpsertLeadScoreRecord(ctx, rec)
}

type failingTrigger struct{}

func (failingTrigger) TriggerSequence(context.Context, string, string, map[string]any) error {
	return errors.New("smtp unavailable")
}
