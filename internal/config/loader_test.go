package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/teamcap/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
				convey.So(cfg.MaxBatchSize, convey.ShouldEqual, 200)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			setenv("TEAMCAP_ADDR", ":8080")
			setenv("TEAMCAP_QUEUE_SIZE", "64")
			setenv("TEAMCAP_WORKER_COUNT", "3")
			setenv("TEAMCAP_SKILL_WEIGHT", "20.5")
			setenv("TEAMCAP_SELECTOR_MODE", "Independent")
			setenv("TEAMCAP_SIMULATE_SELECTOR", "true")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.SkillWeight, convey.ShouldEqual, 20.5)
				convey.So(cfg.SelectorMode, convey.ShouldEqual, "independent")
				convey.So(cfg.SimulateSelector, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfig(t, `
# file layer
addr: ":9090"
store_driver: sqlite
sqlite_path: /tmp/teamcap-test.db
worker_count: 24
selector_url: http://localhost:7000/select
`)
			setenv("TEAMCAP_CONFIG", path)
			setenv("TEAMCAP_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/teamcap-test.db")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.SelectorURL, convey.ShouldEqual, "http://localhost:7000/select")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			setenv("TEAMCAP_CONFIG", writeConfig(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			setenv("TEAMCAP_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			setenv("TEAMCAP_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			setenv("TEAMCAP_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with an unknown selector mode", func() {
			setenv("TEAMCAP_SELECTOR_MODE", "parallel")

			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

var configEnvVars = []string{
	"TEAMCAP_CONFIG",
	"TEAMCAP_ADDR",
	"TEAMCAP_QUEUE_SIZE",
	"TEAMCAP_WORKER_COUNT",
	"TEAMCAP_SKILL_WEIGHT",
	"TEAMCAP_SELECTOR_MODE",
	"TEAMCAP_SIMULATE_SELECTOR",
}

func setenv(key, value string) { _ = os.Setenv(key, value) }

func clearConfigEnvVars() {
	for _, v := range configEnvVars {
		_ = os.Unsetenv(v)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teamcap.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
