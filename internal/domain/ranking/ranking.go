// Package ranking scores candidates for a work unit.
//
// Two strategies are kept side by side because they serve different call
// paths: Scorecard ranks the full pool before an external selection step,
// Proportional picks eligible people when no external step follows.
package ranking

import (
	"slices"
	"strings"

	"github.com/okian/teamcap/internal/domain/model"
)

// Default weights and shortlist sizes.
const (
	DefaultSkillWeight        = 15.0
	DefaultBatchPenalty       = 40.0
	DefaultUtilizationPenalty = 40.0
	DefaultScorecardLimit     = 10
	DefaultProportionalLimit  = 5

	// MinEligibleFreeHours is the free-hours floor of the proportional strategy.
	MinEligibleFreeHours = 1.0
)

// Strategy names a ranking variant.
type Strategy string

// Strategies.
const (
	StrategyScorecard    Strategy = "scorecard"
	StrategyProportional Strategy = "proportional"
)

// Weights are the coefficients of the scorecard formula.
type Weights struct {
	Skill       float64
	Batch       float64
	Utilization float64
}

// DefaultWeights returns the standard scorecard coefficients.
func DefaultWeights() Weights {
	return Weights{
		Skill:       DefaultSkillWeight,
		Batch:       DefaultBatchPenalty,
		Utilization: DefaultUtilizationPenalty,
	}
}

// Ranker produces shortlists. It is safe for concurrent use; it holds no state
// besides its configuration.
type Ranker struct {
	weights Weights
}

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithWeights overrides the scorecard weights. Negative weights are ignored.
func WithWeights(w Weights) Option {
	return func(r *Ranker) {
		if w.Skill >= 0 {
			r.weights.Skill = w.Skill
		}
		if w.Batch >= 0 {
			r.weights.Batch = w.Batch
		}
		if w.Utilization >= 0 {
			r.weights.Utilization = w.Utilization
		}
	}
}

// New creates a Ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Weights returns the configured weights.
func (r *Ranker) Weights() Weights { return r.weights }

// Score is the scorecard value of one person for a given match count.
func (r *Ranker) Score(p model.PersonState, matchCount int) float64 {
	return float64(matchCount)*r.weights.Skill +
		p.PerformanceRating -
		float64(p.BatchTaskCount)*r.weights.Batch -
		p.Utilization*r.weights.Utilization
}

// Scorecard ranks every person by skill match, performance, batch load and
// utilization, best first, and returns at most limit candidates.
// A limit below 1 means DefaultScorecardLimit.
func (r *Ranker) Scorecard(people []*model.PersonState, wu model.WorkUnit, limit int) []model.CandidateScore {
	if limit < 1 {
		limit = DefaultScorecardLimit
	}
	required := normalize(wu.RequiredSkills)
	out := make([]model.CandidateScore, 0, len(people))
	for i, p := range people {
		if p == nil {
			continue
		}
		matches := SubstringMatches(required, p.Skills)
		out = append(out, model.CandidateScore{
			PersonState: *p,
			BaseScore:   r.Score(*p, matches),
			MatchCount:  matches,
			Index:       i,
		})
	}
	sortByScore(out)
	return truncate(out, limit)
}

// Proportional keeps people with at least one free hour and scores them by the
// share of required skills they hold exactly. With no required skills every
// eligible person scores 1. A limit below 1 means DefaultProportionalLimit.
func (r *Ranker) Proportional(people []*model.PersonState, wu model.WorkUnit, limit int) []model.CandidateScore {
	if limit < 1 {
		limit = DefaultProportionalLimit
	}
	required := normalize(wu.RequiredSkills)
	out := make([]model.CandidateScore, 0, len(people))
	for i, p := range people {
		if p == nil || p.TrueFreeHours < MinEligibleFreeHours {
			continue
		}
		matches := ExactMatches(required, p.Skills)
		score := 1.0
		if len(required) > 0 {
			score = float64(matches) / float64(len(required))
		}
		out = append(out, model.CandidateScore{
			PersonState: *p,
			BaseScore:   score,
			MatchCount:  matches,
			Index:       i,
		})
	}
	sortByScore(out)
	return truncate(out, limit)
}

// Rank dispatches to the named strategy.
func (r *Ranker) Rank(s Strategy, people []*model.PersonState, wu model.WorkUnit, limit int) []model.CandidateScore {
	if s == StrategyProportional {
		return r.Proportional(people, wu, limit)
	}
	return r.Scorecard(people, wu, limit)
}

// SubstringMatches counts required skills contained, case-insensitively, in
// at least one of the person's skills. required must already be normalized.
func SubstringMatches(required, skills []string) int {
	have := normalize(skills)
	n := 0
	for _, req := range required {
		for _, s := range have {
			if strings.Contains(s, req) {
				n++
				break
			}
		}
	}
	return n
}

// ExactMatches counts required skills equal, ignoring case and surrounding
// space, to one of the person's skills. required must already be normalized.
func ExactMatches(required, skills []string) int {
	have := make(map[string]struct{}, len(skills))
	for _, s := range normalize(skills) {
		have[s] = struct{}{}
	}
	n := 0
	for _, req := range required {
		if _, ok := have[req]; ok {
			n++
		}
	}
	return n
}

// normalize lowercases and trims skills, dropping empty ones.
func normalize(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// sortByScore orders by score descending, then by input index ascending.
// The index key makes the order independent of the sort routine.
func sortByScore(c []model.CandidateScore) {
	slices.SortStableFunc(c, func(a, b model.CandidateScore) int {
		switch {
		case a.BaseScore > b.BaseScore:
			return -1
		case a.BaseScore < b.BaseScore:
			return 1
		}
		return a.Index - b.Index
	})
}

func truncate(c []model.CandidateScore, limit int) []model.CandidateScore {
	if len(c) > limit {
		return c[:limit]
	}
	return c
}
