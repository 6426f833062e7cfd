package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/leadtier/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When an interaction ID is new", func() {
			seen, err := d.SeenAndRecord(ctx, "int-1")

			Convey("Then it is recorded", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an interaction ID is redelivered", func() {
			_, _ = d.SeenAndRecord(ctx, "int-1")
			seen, err := d.SeenAndRecord(ctx, "int-1")

			Convey("Then it is reported as seen", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an interaction ID is unrecorded", func() {
			_, _ = d.SeenAndRecord(ctx, "int-1")
			So(d.Unrecord(ctx, "int-1"), ShouldBeNil)
			So(d.Unrecord(ctx, "missing"), ShouldBeNil)

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				seen, _ := d.SeenAndRecord(ctx, "int-1")
				So(seen, ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper at capacity", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, id := range []string{"a", "b", "c"} {
			_, _ = d.SeenAndRecord(ctx, id)
		}

		Convey("When a fourth ID arrives", func() {
			seen, _ := d.SeenAndRecord(ctx, "d")

			Convey("Then the oldest ID is evicted", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)

				again, _ := d.SeenAndRecord(ctx, "c")
				So(again, ShouldBeTrue)
				evicted, _ := d.SeenAndRecord(ctx, "a")
				So(evicted, ShouldBeFalse)
			})
		})

		Convey("When a middle ID is unrecorded", func() {
			So(d.Unrecord(ctx, "b"), ShouldBeNil)
			_, _ = d.SeenAndRecord(ctx, "d")

			Convey("Then no eviction is needed", func() {
				So(d.Size(), ShouldEqual, 3)
				seen, _ := d.SeenAndRecord(ctx, "a")
				So(seen, ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many goroutines record distinct IDs", func() {
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 250; i++ {
						_, _ = d.SeenAndRecord(ctx, fmt.Sprintf("g%d-%d", g, i))
					}
				}(g)
			}
			wg.Wait()

			Convey("Then every ID is kept", func() {
				So(d.Size(), ShouldEqual, 2000)
			})
		})
	})
}

func TestRedisDeduper(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	Convey("Given a Redis deduper", t, func() {
		mr.FlushAll()
		d := dedupe.NewRedisDeduper(client, dedupe.WithTTL(time.Minute), dedupe.WithKeyPrefix("test:"))

		Convey("When an ID is recorded twice", func() {
			first, err1 := d.SeenAndRecord(ctx, "int-1")
			second, err2 := d.SeenAndRecord(ctx, "int-1")

			Convey("Then the second call reports it as seen", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(mr.Exists("test:int-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the TTL elapses", func() {
			_, _ = d.SeenAndRecord(ctx, "int-2")
			mr.FastForward(2 * time.Minute)

			Convey("Then the ID is forgotten", func() {
				seen, err := d.SeenAndRecord(ctx, "int-2")
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
			})
		})

		Convey("When an ID is unrecorded", func() {
			_, _ = d.SeenAndRecord(ctx, "int-3")
			So(d.Unrecord(ctx, "int-3"), ShouldBeNil)

			Convey("Then the key is removed", func() {
				So(mr.Exists("test:int-3"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When Redis is unreachable", func() {
			broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
			defer broken.Close()
			bd := dedupe.NewRedisDeduper(broken)

			Convey("Then the error is returned", func() {
				_, err := bd.SeenAndRecord(ctx, "int-4")
				So(err, ShouldNotBeNil)
			})
		})
	})
}
