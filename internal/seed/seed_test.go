package seed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/teamcap/internal/adapters/http/api"
	service "github.com/okian/teamcap/internal/app"
	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/internal/seed"
	"github.com/okian/teamcap/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerator(t *testing.T) {
	Convey("Given two generators with the same seed", t, func() {
		a := seed.NewGenerator(7).Generate(12, 9, "2026-10-12")
		b := seed.NewGenerator(7).Generate(12, 9, "2026-10-12")

		Convey("Then they produce the same dataset", func() {
			So(a, ShouldResemble, b)
		})

		Convey("Then the dataset is well formed", func() {
			So(len(a.People), ShouldEqual, 12)
			So(len(a.WorkUnits), ShouldEqual, 9)
			So(len(a.Availability), ShouldEqual, 12)
			ids := map[string]bool{}
			for i, p := range a.People {
				So(p.ID, ShouldNotBeEmpty)
				So(ids[p.ID], ShouldBeFalse)
				ids[p.ID] = true
				So(len(p.Skills), ShouldBeBetweenOrEqual, 1, 3)
				So(p.TaskHours7d, ShouldBeLessThanOrEqualTo, p.MaxCapacity)
				So(a.Availability[i].PersonID, ShouldEqual, p.ID)
				for _, raw := range a.Availability[i].BusySlots {
					_, err := model.ParseSlot(raw)
					So(err, ShouldBeNil)
				}
			}
			for _, wu := range a.WorkUnits {
				So(wu.EstimatedHours, ShouldBeBetweenOrEqual, 2.0, 12.0)
				So(wu.Status, ShouldBeIn, []string{model.StatusTodo, model.StatusAtRisk})
			}
		})

		Convey("Then another seed gives other ids", func() {
			c := seed.NewGenerator(8).Generate(12, 9, "2026-10-12")
			So(c.People[0].ID, ShouldNotEqual, a.People[0].ID)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		svc := service.New(service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(mux)
		ts := httptest.NewServer(mux)
		defer ts.Close()

		cfg := &seed.Config{
			BaseURL:   ts.URL,
			People:    15,
			WorkUnits: 10,
			Week:      "2026-10-12",
			Chunk:     4,
			Workers:   2,
			Timeout:   5 * time.Second,
			Seed:      1,
		}

		Convey("When seeding and allocating synchronously", func() {
			cfg.Commit = true
			stats, err := seed.Run(ctx, cfg, logger.Nop())
			So(err, ShouldBeNil)

			Convey("Then every work unit has an outcome", func() {
				So(stats.PeopleSent, ShouldEqual, 15)
				So(stats.AvailabilitySent, ShouldEqual, 15)
				So(stats.Assigned+stats.Partial+stats.NoCapacity, ShouldEqual, 10)
				So(stats.Committed, ShouldEqual, stats.Assigned+stats.Partial)
				So(svc.GetStats()["people"], ShouldEqual, 15)
			})
		})

		Convey("When allocating through the batch queue", func() {
			cfg.Async = true
			stats, err := seed.Run(ctx, cfg, logger.Nop())
			So(err, ShouldBeNil)
			So(stats.Assigned+stats.Partial+stats.NoCapacity, ShouldEqual, 10)
		})
	})

	Convey("Given no service", t, func() {
		cfg := &seed.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}
		_, err := seed.Run(context.Background(), cfg, logger.Nop())
		So(err, ShouldNotBeNil)
	})

	Convey("Given a service that rejects writes", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				return
			}
			http.Error(w, "nope", http.StatusBadRequest)
		}))
		defer ts.Close()
		cfg := &seed.Config{BaseURL: ts.URL, People: 2, WorkUnits: 1, Timeout: time.Second}
		_, err := seed.Run(context.Background(), cfg, logger.Nop())
		So(errors.Is(err, seed.ErrUnexpectedStatus), ShouldBeTrue)
	})
}
