package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/okian/teamcap/internal/domain/allocation"
)

// Simulation defaults.
const (
	defaultMinLatency = 80 * time.Millisecond
	defaultMaxLatency = 150 * time.Millisecond
	defaultRandomSeed = 42
	defaultMaxTeam    = 3
)

// SimulatedSelector stands in for a remote ranking service. It waits a
// random latency, then picks shortlisted candidates in order until the
// estimate is covered, answering in the same JSON shape a remote service
// would use.
type SimulatedSelector struct {
	minLatency time.Duration
	maxLatency time.Duration
	maxTeam    int
	fenced     bool

	mu  sync.Mutex
	rng *rand.Rand
}

// SimOption applies a configuration option to the SimulatedSelector.
type SimOption func(*SimulatedSelector)

// WithLatencyRange sets the simulated latency range. A zero range disables
// the wait.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimOption {
	return func(s *SimulatedSelector) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithMaxTeam bounds the team size.
func WithMaxTeam(n int) SimOption {
	return func(s *SimulatedSelector) {
		if n > 0 {
			s.maxTeam = n
		}
	}
}

// WithFencedOutput wraps answers in a markdown code fence.
func WithFencedOutput(on bool) SimOption {
	return func(s *SimulatedSelector) {
		s.fenced = on
	}
}

// WithSeed sets the latency random seed.
func WithSeed(seed int64) SimOption {
	return func(s *SimulatedSelector) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // latency jitter only
	}
}

// NewSimulatedSelector creates a SimulatedSelector.
func NewSimulatedSelector(opts ...SimOption) *SimulatedSelector {
	s := &SimulatedSelector{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		maxTeam:    defaultMaxTeam,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // latency jitter only
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type simMember struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	AllocatedHours float64 `json:"allocated_hours"`
}

type simAnswer struct {
	Team      []simMember `json:"team"`
	Reasoning string      `json:"reasoning"`
}

// Select honors ctx while waiting.
func (s *SimulatedSelector) Select(ctx context.Context, req allocation.Request) ([]byte, error) {
	if len(req.Candidates) == 0 {
		return nil, ErrEmptyShortlist
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(s.latency()):
	}

	remaining := math.Max(0, req.EstimatedHours)
	ans := simAnswer{Team: make([]simMember, 0, s.maxTeam)}
	var names []string
	for _, c := range req.Candidates {
		if len(ans.Team) == s.maxTeam || (len(ans.Team) > 0 && remaining <= 0) {
			break
		}
		if c.TrueFreeHours <= 0 {
			continue
		}
		h := math.Min(remaining, c.TrueFreeHours)
		ans.Team = append(ans.Team, simMember{ID: c.ID, Name: c.Name, AllocatedHours: h})
		names = append(names, c.Name)
		remaining -= h
	}
	if len(ans.Team) == 0 {
		ans.Reasoning = "no shortlisted candidate has free hours"
	} else {
		ans.Reasoning = fmt.Sprintf("%s cover the %.1f hours of %q with the strongest skill match", strings.Join(names, " and "), req.EstimatedHours, req.WorkUnitTitle)
	}

	out, err := json.Marshal(ans)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal simulated answer: %w", err)
	}
	if s.fenced {
		out = []byte("```json\n" + string(out) + "\n```")
	}
	return out, nil
}

func (s *SimulatedSelector) latency() time.Duration {
	if s.maxLatency <= s.minLatency {
		return s.minLatency
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
}
