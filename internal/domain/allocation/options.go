package allocation

import (
	"time"

	"github.com/okian/teamcap/internal/domain/capacity"
	"github.com/okian/teamcap/internal/domain/ranking"
	"github.com/okian/teamcap/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRanker sets the candidate ranker.
func WithRanker(r *ranking.Ranker) Option {
	return func(e *Engine) {
		if r != nil {
			e.ranker = r
		}
	}
}

// WithCalculator sets the capacity calculator.
func WithCalculator(c *capacity.Calculator) Option {
	return func(e *Engine) {
		if c != nil {
			e.calc = c
		}
	}
}

// WithSelector configures an external selection step. Without one the engine
// fills work units greedily from the proportional ranking.
func WithSelector(s Selector) Option {
	return func(e *Engine) {
		e.selector = s
	}
}

// WithMode sets how selector calls are scheduled.
func WithMode(m Mode) Option {
	return func(e *Engine) {
		if m == ModeSequential || m == ModeIndependent {
			e.mode = m
		}
	}
}

// WithConcurrency bounds parallel selector calls in independent mode.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSelectorTimeout sets the per work unit selector timeout.
func WithSelectorTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLimits sets the shortlist sizes of the scorecard and proportional rankings.
func WithLimits(scorecard, eligible int) Option {
	return func(e *Engine) {
		if scorecard > 0 {
			e.scorecardLimit = scorecard
		}
		if eligible > 0 {
			e.eligibleLimit = eligible
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithIDGenerator sets how proposal ids are made.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newID = f
		}
	}
}
