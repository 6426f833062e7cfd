package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okian/leadtier/internal/adapters/repository/memory"
	"github.com/okian/leadtier/internal/adapters/sequence"
	service "github.com/okian/leadtier/internal/app"
	"github.com/okian/leadtier/internal/domain/model"
	"github.com/okian/leadtier/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func waitForScore(store *memory.Store, userID string, want float64) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := store.GetLeadScoreRecord(context.Background(), userID)
		if err == nil && rec.Score == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))
		ctx := context.Background()

		Convey("Then it refuses work", func() {
			So(svc.Engine(), ShouldBeNil)
			So(errors.Is(svc.Enqueue(ctx, model.Tracked{UserID: "u"}), service.ErrNotStarted), ShouldBeTrue)
			So(errors.Is(svc.Ping(ctx), service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldBeFalse)
		})

		Convey("Then stopping it is a no-op", func() {
			So(func() { svc.Stop() }, ShouldNotPanic)
		})
	})

	Convey("Given a started in-memory service", t, func() {
		store := memory.New()
		seqs := sequence.NewMemory()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(16),
			service.WithStore(store),
			service.WithSequences(seqs),
			service.WithLogger(logger.Nop()),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.Start(ctx), ShouldBeNil)

		So(store.UpsertLead(ctx, model.Lead{ID: "u-1"}), ShouldBeNil)

		Convey("When interactions are enqueued", func() {
			for _, in := range []model.Interaction{model.WebinarRegistration{}, model.FormSubmission{}, model.ToolComplete{}} {
				So(svc.Enqueue(ctx, model.Tracked{UserID: "u-1", SessionID: "s-1", Interaction: in}), ShouldBeNil)
			}

			Convey("Then the workers apply them", func() {
				So(waitForScore(store, "u-1", 30), ShouldBeTrue)
				So(seqs.Enrollments("u-1"), ShouldHaveLength, 2)
			})
		})

		Convey("Then it reports healthy stats", func() {
			So(svc.Ping(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["workerCount"], ShouldEqual, 1)
			So(stats["queueSize"], ShouldEqual, 16)
			So(stats["redis"], ShouldBeFalse)
			So(stats["regressionPolicy"], ShouldEqual, "silent")
		})

		Convey("Then the engine serves synchronous calls", func() {
			update, err := svc.Engine().ApplyInteraction(ctx, "u-1", "s-2", model.PageView{})
			So(err, ShouldBeNil)
			So(update.NewScore, ShouldEqual, 0.5)
		})
	})
}

func TestService_StopDrainsQueue(t *testing.T) {
	Convey("Given a service started on a context that is cancelled before Stop", t, func() {
		store := memory.New()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(128),
			service.WithStore(store),
			service.WithLogger(logger.Nop()),
		)
		ctx, cancel := context.WithCancel(context.Background())
		So(svc.Start(ctx), ShouldBeNil)
		So(store.UpsertLead(ctx, model.Lead{ID: "u-1"}), ShouldBeNil)

		accepted := 0
		for i := 0; i < 100; i++ {
			if svc.Enqueue(ctx, model.Tracked{UserID: "u-1", Interaction: model.PageView{}}) == nil {
				accepted++
			}
		}

		Convey("When shutdown follows the signal order", func() {
			cancel()
			svc.Stop()

			Convey("Then every accepted interaction was applied", func() {
				So(accepted, ShouldEqual, 100)
				rec, err := store.GetLeadScoreRecord(context.Background(), "u-1")
				So(err, ShouldBeNil)
				So(rec.Score, ShouldEqual, 50.0)
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a service whose only worker is stuck", t, func() {
		release := make(chan struct{})
		store := &blockingStore{Store: memory.New(), release: release}
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(2),
			service.WithStore(store),
			service.WithLogger(logger.Nop()),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When the queue fills up", func() {
			var err error
			accepted := 0
			for i := 0; i < 10 && err == nil; i++ {
				if err = svc.Enqueue(ctx, model.Tracked{UserID: "u-1", Interaction: model.PageView{}}); err == nil {
					accepted++
				}
			}
			close(release)
			svc.Stop()

			Convey("Then the service reports backpressure", func() {
				So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
				So(accepted, ShouldBeBetweenOrEqual, 2, 3)
			})
		})
	})
}

func TestService_Redis(t *testing.T) {
	Convey("Given a service backed by redis", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store := memory.New()
		svc := service.New(
			service.WithStore(store),
			service.WithRedis(client),
			service.WithLogger(logger.Nop()),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(store.UpsertLead(ctx, model.Lead{ID: "u-1"}), ShouldBeNil)

		Convey("When the same interaction is tracked twice", func() {
			tracked := model.Tracked{InteractionID: "i-1", UserID: "u-1", SessionID: "s-1", Interaction: model.CTAClick{}}
			first, err1 := svc.Engine().Track(ctx, tracked)
			second, err2 := svc.Engine().Track(ctx, tracked)

			Convey("Then redis deduplicates it", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.NewScore, ShouldEqual, 2.0)
				So(second.Duplicate, ShouldBeTrue)
				So(svc.Ping(ctx), ShouldBeNil)
				So(svc.GetStats()["redis"], ShouldBeTrue)
			})
		})
	})
}

type blockingStore struct {
	*memory.Store
	release chan struct{}
}

func (s *blockingStore) GetLead(ctx context.Context, userID string) (model.Lead, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return model.Lead{}, ctx.Err()
	}
	return s.Store.GetLead(ctx, userID)
}
