package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/okian/teamcap/internal/config"
	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func batch() allocation.Batch {
	return allocation.Batch{
		WorkUnits: []model.WorkUnit{{ID: "wu", Title: "API", RequiredSkills: []string{"go"}, EstimatedHours: 4}},
		People:    []model.Person{{ID: "a", Name: "Ada", Skills: []string{"go"}, MaxCapacity: 40}},
	}
}

func TestBuildEngine(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)

		convey.Convey("When no selector is configured", func() {
			e, err := buildEngine(cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			convey.So(e.Mode(), convey.ShouldEqual, allocation.ModeSequential)
			convey.So(e.Calculator().GridCapacity(), convey.ShouldEqual, 50)

			convey.Convey("Then proposals are deterministic", func() {
				res, err := e.AllocateBatch(ctx, batch())
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Proposals[0].Source, convey.ShouldEqual, model.SourceDeterministic)
			})
		})

		convey.Convey("When the simulated selector is on", func() {
			cfg.SimulateSelector = true
			cfg.SimulatedLatencyMinMS = 0
			cfg.SimulatedLatencyMaxMS = 0
			cfg.SelectorMode = "independent"
			cfg.GridCapacity = 40
			e, err := buildEngine(cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			convey.So(e.Mode(), convey.ShouldEqual, allocation.ModeIndependent)
			convey.So(e.Calculator().GridCapacity(), convey.ShouldEqual, 40)

			convey.Convey("Then proposals come from the selector", func() {
				res, err := e.AllocateBatch(ctx, batch())
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Proposals[0].Source, convey.ShouldEqual, model.SourceExternal)
				convey.So(res.Proposals[0].Status, convey.ShouldEqual, model.ProposalAssigned)
			})
		})

		convey.Convey("When an external selector URL is set", func() {
			cfg.SelectorURL = "http://127.0.0.1:1/select"
			cfg.SelectorTimeoutMS = 200
			e, err := buildEngine(cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then an unreachable selector falls back", func() {
				res, err := e.AllocateBatch(ctx, batch())
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Proposals[0].Source, convey.ShouldEqual, model.SourceFallback)
			})
		})
	})
}

func TestBuildService(t *testing.T) {
	convey.Convey("Given a sqlite configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.StoreDriver = "sqlite"
		cfg.SQLitePath = filepath.Join(t.TempDir(), "teamcap.db")
		cfg.WorkerCount = 1

		svc, err := buildService(cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("When the HTTP server is built", func() {
			srv := newHTTPServer(ctx, cfg.Addr, svc)
			convey.So(srv.Addr, convey.ShouldEqual, cfg.Addr)
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)

			convey.Convey("Then routes are served from the sqlite store", func() {
				rec := httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"started":true`)
			})

			convey.Convey("Then the API document is served", func() {
				rec := httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "/capacity/{person_id}:")
			})
		})
	})

	convey.Convey("Given an unknown store driver", t, func() {
		cfg := config.New(context.Background())
		cfg.StoreDriver = "postgres"

		_, err := buildService(cfg, logger.Nop())
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
