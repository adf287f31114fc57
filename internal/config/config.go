// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and TEAMCAP_* env vars.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver is memory or sqlite; SQLitePath is used by the latter.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`

	// QueueSize bounds the batch queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of batch workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many commit ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxBatchSize caps work units per allocation.
	MaxBatchSize int `koanf:"max_batch_size"`

	// GridCapacity is the number of bookable hours in a week.
	GridCapacity int `koanf:"grid_capacity"`

	// Scorecard weights.
	SkillWeight        float64 `koanf:"skill_weight"`
	BatchPenalty       float64 `koanf:"batch_penalty"`
	UtilizationPenalty float64 `koanf:"utilization_penalty"`

	// Shortlist sizes.
	ScorecardLimit   int `koanf:"scorecard_limit"`
	EligibilityLimit int `koanf:"eligibility_limit"`

	// SelectorURL enables the external selection step when set.
	SelectorURL         string `koanf:"selector_url"`
	SelectorTimeoutMS   int    `koanf:"selector_timeout_ms"`
	SelectorMode        string `koanf:"selector_mode"`
	SelectorConcurrency int    `koanf:"selector_concurrency"`
	// SimulateSelector uses the built-in simulated selector instead of SelectorURL.
	SimulateSelector bool `koanf:"simulate_selector"`
	// SimulatedLatencyMinMS and SimulatedLatencyMaxMS bound the simulated selector's latency.
	SimulatedLatencyMinMS int `koanf:"simulated_latency_min_ms"`
	SimulatedLatencyMaxMS int `koanf:"simulated_latency_max_ms"`
}

// New creates a Config with defaults. Context is accepted first to follow the
// project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		StoreDriver:           "memory",
		SQLitePath:            "data/teamcap.db",
		QueueSize:             1024,
		WorkerCount:           runtime.NumCPU(),
		DedupeSize:            50_000,
		MaxBatchSize:          200,
		GridCapacity:          50,
		SkillWeight:           15,
		BatchPenalty:          40,
		UtilizationPenalty:    40,
		ScorecardLimit:        10,
		EligibilityLimit:      5,
		SelectorTimeoutMS:     30_000,
		SelectorMode:          "sequential",
		SelectorConcurrency:   4,
		SimulatedLatencyMinMS: 80,
		SimulatedLatencyMaxMS: 150,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != "memory" && c.StoreDriver != "sqlite":
		return fmt.Errorf("%w: store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == "sqlite" && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path must be set for sqlite", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	case c.QueueSize < 1, c.WorkerCount < 1, c.DedupeSize < 1, c.MaxBatchSize < 1:
		return fmt.Errorf("%w: queue_size, worker_count, dedupe_size and max_batch_size must be positive", ErrInvalidConfig)
	case c.GridCapacity < 1:
		return fmt.Errorf("%w: grid_capacity must be positive", ErrInvalidConfig)
	case c.SkillWeight < 0 || c.BatchPenalty < 0 || c.UtilizationPenalty < 0:
		return fmt.Errorf("%w: scorecard weights must not be negative", ErrInvalidConfig)
	case c.ScorecardLimit < 1 || c.EligibilityLimit < 1:
		return fmt.Errorf("%w: shortlist limits must be positive", ErrInvalidConfig)
	case c.SelectorMode != "sequential" && c.SelectorMode != "independent":
		return fmt.Errorf("%w: selector_mode %q", ErrInvalidConfig, c.SelectorMode)
	case c.SelectorTimeoutMS < 1 || c.SelectorConcurrency < 1:
		return fmt.Errorf("%w: selector timeout and concurrency must be positive", ErrInvalidConfig)
	case c.SimulatedLatencyMinMS < 0 || c.SimulatedLatencyMaxMS < c.SimulatedLatencyMinMS:
		return fmt.Errorf("%w: simulated latency range [%d, %d]", ErrInvalidConfig, c.SimulatedLatencyMinMS, c.SimulatedLatencyMaxMS)
	}
	return nil
}
