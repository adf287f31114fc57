// Package allocation turns a batch of work units and a pool of people into
// team proposals. Work units are handled in input order and every accepted
// allocation is folded back into the batch state before the next unit is
// ranked, so later units see the load placed by earlier ones.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/teamcap/internal/domain/capacity"
	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/internal/domain/ranking"
	"github.com/okian/teamcap/pkg/logger"
	"github.com/okian/teamcap/pkg/metrics"
)

// Mode controls how selector calls are scheduled within a batch.
type Mode string

// Modes.
const (
	// ModeSequential asks the selector one unit at a time, each shortlist
	// reflecting every earlier fold-back.
	ModeSequential Mode = "sequential"
	// ModeIndependent asks the selector for all units at once using
	// shortlists from the initial state. Answers are still folded back in
	// input order.
	ModeIndependent Mode = "independent"
)

// Defaults.
const (
	DefaultSelectorTimeout = 30 * time.Second
	DefaultConcurrency     = 4

	hoursEpsilon = 1e-9
)

// Batch is the input of one allocation run.
type Batch struct {
	WorkUnits    []model.WorkUnit
	People       []model.Person
	Availability []model.AvailabilityRecord
	// Week selects availability records by week_start_date. Empty means the
	// latest record of each person.
	Week string
}

// Result is the output of one allocation run.
type Result struct {
	Proposals []model.Proposal
	// People is the batch state after the last fold-back.
	People []model.PersonState
	// InvalidSlots lists unparseable busy slot keys per person.
	InvalidSlots map[string][]string
}

// Engine runs allocation batches. An Engine holds no batch state and can
// serve concurrent batches.
type Engine struct {
	ranker         *ranking.Ranker
	calc           *capacity.Calculator
	selector       Selector
	mode           Mode
	concurrency    int
	timeout        time.Duration
	scorecardLimit int
	eligibleLimit  int
	log            logger.Logger
	newID          func() string
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		ranker:         ranking.New(),
		calc:           capacity.New(),
		mode:           ModeSequential,
		concurrency:    DefaultConcurrency,
		timeout:        DefaultSelectorTimeout,
		scorecardLimit: ranking.DefaultScorecardLimit,
		eligibleLimit:  ranking.DefaultProportionalLimit,
		log:            logger.Nop(),
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the configured scheduling mode.
func (e *Engine) Mode() Mode { return e.mode }

// Calculator returns the capacity calculator used for enrichment.
func (e *Engine) Calculator() *capacity.Calculator { return e.calc }

// answer is one selector round trip.
type answer struct {
	shortlist []model.CandidateScore
	raw       []byte
	err       error
}

// AllocateBatch produces one proposal per work unit. Input problems are
// reported as ErrInvalidInput before anything runs. Selector failures never
// fail the batch. If ctx is cancelled the proposals made so far are
// returned together with ctx.Err().
func (e *Engine) AllocateBatch(ctx context.Context, b Batch) (Result, error) {
	start := time.Now()
	if len(b.WorkUnits) == 0 {
		return Result{}, fmt.Errorf("%w: no work units", ErrInvalidInput)
	}
	if len(b.People) == 0 {
		return Result{}, fmt.Errorf("%w: no people", ErrInvalidInput)
	}
	for _, wu := range b.WorkUnits {
		if wu.ID == "" {
			return Result{}, fmt.Errorf("%w: work unit without id", ErrInvalidInput)
		}
	}

	busy, invalid := e.busySets(b.Availability, b.Week)
	st, err := NewState(e.calc, b.People, busy)
	if err != nil {
		return Result{}, err
	}
	for id, keys := range invalid {
		e.log.Warn(ctx, "skipping invalid busy slots", logger.String("person_id", id), logger.Strings("slots", keys))
	}

	res := Result{Proposals: make([]model.Proposal, 0, len(b.WorkUnits)), InvalidSlots: invalid}
	var answers []answer
	if e.selector != nil && e.mode == ModeIndependent {
		answers = e.prefetch(ctx, st, b.WorkUnits)
	}

	for i, wu := range b.WorkUnits {
		if err := ctx.Err(); err != nil {
			res.People = st.Values()
			e.log.Warn(ctx, "batch cancelled",
				logger.Int("done", len(res.Proposals)),
				logger.Int("total", len(b.WorkUnits)),
				logger.Error(err))
			return res, err
		}

		var p model.Proposal
		switch {
		case wu.EstimatedHours <= hoursEpsilon:
			p = e.nothingToAllocate(wu)
		case e.selector == nil:
			p = e.greedy(st, wu)
		case answers != nil:
			p = e.resolve(ctx, st, wu, answers[i])
		default:
			p = e.resolve(ctx, st, wu, e.ask(ctx, wu, e.ranker.Scorecard(st.People(), wu, e.scorecardLimit)))
		}
		metrics.RecordWorkUnit(string(p.Status))
		metrics.RecordProposalSource(string(p.Source))
		if p.Warning != "" {
			e.log.Warn(ctx, "work unit not fully staffed",
				logger.String("work_unit_id", wu.ID),
				logger.String("status", string(p.Status)),
				logger.String("warning", p.Warning))
		}
		res.Proposals = append(res.Proposals, p)
	}

	res.People = st.Values()
	took := time.Since(start)
	metrics.RecordBatch(string(e.mode), float64(took.Milliseconds()))
	e.log.Info(ctx, "batch allocated",
		logger.Int("work_units", len(b.WorkUnits)),
		logger.Int("people", st.Len()),
		logger.String("mode", string(e.mode)),
		logger.Duration("took", took))
	return res, nil
}

// busySets picks one availability record per person and expands it.
func (e *Engine) busySets(recs []model.AvailabilityRecord, week string) (map[string]model.SlotSet, map[string][]string) {
	latest := make(map[string]model.AvailabilityRecord, len(recs))
	for _, r := range recs {
		if week != "" && r.WeekStart != week {
			continue
		}
		if cur, ok := latest[r.PersonID]; !ok || r.WeekStart > cur.WeekStart {
			latest[r.PersonID] = r
		}
	}
	busy := make(map[string]model.SlotSet, len(latest))
	invalid := make(map[string][]string)
	for id, r := range latest {
		set, bad := e.calc.BusySet(r)
		busy[id] = set
		if len(bad) > 0 {
			invalid[id] = bad
		}
	}
	return busy, invalid
}

// prefetch asks the selector for every unit concurrently, ranking each
// against the same initial snapshot.
func (e *Engine) prefetch(ctx context.Context, st *State, units []model.WorkUnit) []answer {
	snapshot := st.Snapshot()
	answers := make([]answer, len(units))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, wu := range units {
		if wu.EstimatedHours <= hoursEpsilon {
			continue
		}
		g.Go(func() error {
			answers[i] = e.ask(ctx, wu, e.ranker.Scorecard(snapshot, wu, e.scorecardLimit))
			return nil
		})
	}
	_ = g.Wait() // calls never return errors; failures live in each answer
	return answers
}

func (e *Engine) ask(ctx context.Context, wu model.WorkUnit, shortlist []model.CandidateScore) answer {
	a := answer{shortlist: shortlist}
	if len(shortlist) == 0 {
		a.err = fmt.Errorf("%w: empty shortlist", ErrSelectorFailed)
		return a
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.selector.Select(cctx, NewRequest(wu, shortlist))
	metrics.RecordSelectorLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		a.err = fmt.Errorf("%w: %w", ErrSelectorFailed, err)
		return a
	}
	a.raw = raw
	return a
}

// resolve validates a selector answer and folds it back, falling back to
// the top shortlisted candidate when the answer is unusable.
func (e *Engine) resolve(ctx context.Context, st *State, wu model.WorkUnit, a answer) model.Proposal {
	if a.err != nil {
		reason := "error"
		if errors.Is(a.err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.RecordSelectorFailure(reason)
		e.log.Warn(ctx, "selector failed, using fallback",
			logger.String("work_unit_id", wu.ID), logger.Error(a.err))
		return e.fallback(st, wu, a.shortlist, a.err.Error())
	}

	switch resp := ParseSelection(a.raw).(type) {
	case Malformed:
		metrics.RecordSelectorFailure("malformed")
		e.log.Warn(ctx, "malformed selector response, using fallback",
			logger.String("work_unit_id", wu.ID), logger.String("reason", resp.Reason))
		return e.fallback(st, wu, a.shortlist, fmt.Sprintf("%v: %s", ErrMalformedResponse, resp.Reason))
	case Ok:
		team := e.validate(ctx, st, wu, resp.Team)
		if len(team) == 0 {
			metrics.RecordSelectorFailure("empty_team")
			e.log.Warn(ctx, "selector returned no usable members, using fallback",
				logger.String("work_unit_id", wu.ID))
			return e.fallback(st, wu, a.shortlist, "no known team members in selector response")
		}
		p := e.newProposal(wu, model.SourceExternal)
		p.Reasoning = resp.Reasoning
		var over []string
		for _, m := range team {
			live, _ := st.Get(m.PersonID)
			if m.AllocatedHours <= live.TrueFreeHours+hoursEpsilon {
				p.Team = append(p.Team, m)
				continue
			}
			over = append(over, fmt.Sprintf("%s (%.1fh requested, %.1fh free)", m.PersonID, m.AllocatedHours, live.TrueFreeHours))
			if live.TrueFreeHours <= hoursEpsilon {
				metrics.RecordDroppedMember("no_free_hours")
				continue
			}
			m.AllocatedHours = live.TrueFreeHours
			p.Team = append(p.Team, m)
		}
		if len(p.Team) == 0 {
			e.log.Warn(ctx, "selector picked only depleted members, using fallback",
				logger.String("work_unit_id", wu.ID))
			return e.fallback(st, wu, a.shortlist, "selected members have no free hours")
		}
		for _, m := range p.Team {
			_ = st.Fold(m.PersonID, m.AllocatedHours) // validated above
		}
		if len(over) > 0 {
			p.Warning = "allocation capped at free hours: " + strings.Join(over, ", ")
		}
		finish(&p, wu, "")
		return p
	}
	return e.fallback(st, wu, a.shortlist, "unrecognized selector response")
}

// validate drops unknown and repeated members and coerces their hours.
func (e *Engine) validate(ctx context.Context, st *State, wu model.WorkUnit, members []RawMember) []model.TeamMember {
	seen := make(map[string]struct{}, len(members))
	team := make([]model.TeamMember, 0, len(members))
	for _, m := range members {
		p, ok := st.Get(m.ID)
		if !ok {
			metrics.RecordDroppedMember("unknown")
			e.log.Debug(ctx, "dropping unknown team member",
				logger.String("work_unit_id", wu.ID), logger.String("person_id", m.ID))
			continue
		}
		if _, dup := seen[m.ID]; dup {
			metrics.RecordDroppedMember("duplicate")
			continue
		}
		seen[m.ID] = struct{}{}
		team = append(team, model.TeamMember{
			PersonID:       m.ID,
			Name:           p.Name,
			AllocatedHours: CoerceHours(m.Hours),
		})
	}
	return team
}

// fallback assigns the first shortlisted candidate that still has free
// hours, capped at those hours.
func (e *Engine) fallback(st *State, wu model.WorkUnit, shortlist []model.CandidateScore, reason string) model.Proposal {
	p := e.newProposal(wu, model.SourceFallback)
	p.Reasoning = "selector unavailable (" + reason + ")"
	for _, c := range shortlist {
		live, ok := st.Get(c.ID)
		if !ok || live.TrueFreeHours <= 0 {
			continue
		}
		free := live.TrueFreeHours
		h := math.Min(math.Max(0, wu.EstimatedHours), free)
		p.Team = []model.TeamMember{{PersonID: live.ID, Name: live.Name, AllocatedHours: h}}
		_ = st.Fold(live.ID, h)
		p.Reasoning += fmt.Sprintf("; assigned top shortlisted candidate %s with %.1f free hours", live.Name, free)
		break
	}
	finish(&p, wu, "no shortlisted candidate has free hours")
	return p
}

// greedy fills the estimate from the proportional ranking, best first.
func (e *Engine) greedy(st *State, wu model.WorkUnit) model.Proposal {
	p := e.newProposal(wu, model.SourceDeterministic)
	remaining := math.Max(0, wu.EstimatedHours)
	required := len(wu.RequiredSkills)
	var parts []string
	for _, c := range e.ranker.Proportional(st.People(), wu, e.eligibleLimit) {
		if len(p.Team) > 0 && remaining <= hoursEpsilon {
			break
		}
		h := math.Min(remaining, c.TrueFreeHours)
		p.Team = append(p.Team, model.TeamMember{PersonID: c.ID, Name: c.Name, AllocatedHours: h})
		_ = st.Fold(c.ID, h)
		remaining -= h
		parts = append(parts, fmt.Sprintf("%s %.1fh (%d/%d skills)", c.Name, h, c.MatchCount, required))
	}
	if len(parts) > 0 {
		p.Reasoning = "greedy fill by skill match: " + strings.Join(parts, ", ")
	}
	finish(&p, wu, "no candidate has at least 1 free hour")
	return p
}

// nothingToAllocate accepts a zero-hour unit without touching anyone's load.
func (e *Engine) nothingToAllocate(wu model.WorkUnit) model.Proposal {
	p := e.newProposal(wu, model.SourceDeterministic)
	p.Status = model.ProposalAssigned
	p.Reasoning = "estimate is 0 hours; nothing to allocate"
	return p
}

func (e *Engine) newProposal(wu model.WorkUnit, src model.ProposalSource) model.Proposal {
	return model.Proposal{
		ID:         e.newID(),
		WorkUnitID: wu.ID,
		Team:       []model.TeamMember{},
		Source:     src,
	}
}

// finish sets the status. An empty team is always no_capacity with a warning.
func finish(p *model.Proposal, wu model.WorkUnit, emptyWarning string) {
	if len(p.Team) == 0 {
		p.Status = model.ProposalNoCapacity
		p.Source = model.SourceNone
		p.Warning = joinWarning(p.Warning, emptyWarning)
		if p.Warning == "" {
			p.Warning = "no capacity"
		}
		return
	}
	total := p.TotalHours()
	if total+hoursEpsilon < wu.EstimatedHours {
		p.Status = model.ProposalPartial
		p.Warning = joinWarning(p.Warning, fmt.Sprintf("only %.1f of %.1f hours allocated", total, wu.EstimatedHours))
		return
	}
	p.Status = model.ProposalAssigned
}

func joinWarning(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
