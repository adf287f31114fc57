package allocation

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/okian/teamcap/internal/domain/model"
)

// Candidate is one shortlist entry as shown to a Selector.
type Candidate struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Skills            []string `json:"skills"`
	TrueFreeHours     float64  `json:"true_free_hours"`
	Utilization       float64  `json:"utilization"`
	PerformanceRating float64  `json:"performance_rating"`
	Score             float64  `json:"score"`
	MatchCount        int      `json:"match_count"`
}

// Request is what a Selector gets for one work unit.
type Request struct {
	WorkUnitID     string      `json:"work_unit_id"`
	WorkUnitTitle  string      `json:"work_unit_title"`
	Description    string      `json:"description"`
	EstimatedHours float64     `json:"estimated_hours"`
	RequiredSkills []string    `json:"required_skills"`
	Candidates     []Candidate `json:"candidates"`
}

// NewRequest builds a Request from a work unit and its shortlist.
func NewRequest(wu model.WorkUnit, shortlist []model.CandidateScore) Request {
	cands := make([]Candidate, len(shortlist))
	for i, c := range shortlist {
		cands[i] = Candidate{
			ID:                c.ID,
			Name:              c.Name,
			Skills:            c.Skills,
			TrueFreeHours:     c.TrueFreeHours,
			Utilization:       c.Utilization,
			PerformanceRating: c.PerformanceRating,
			Score:             c.BaseScore,
			MatchCount:        c.MatchCount,
		}
	}
	return Request{
		WorkUnitID:     wu.ID,
		WorkUnitTitle:  wu.Title,
		Description:    wu.Description,
		EstimatedHours: wu.EstimatedHours,
		RequiredSkills: wu.RequiredSkills,
		Candidates:     cands,
	}
}

// Selector picks a team out of a shortlist. It returns the raw answer; the
// engine parses and validates it.
type Selector interface {
	Select(ctx context.Context, req Request) ([]byte, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, req Request) ([]byte, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }

// RawMember is a team entry before validation.
type RawMember struct {
	ID    string
	Name  string
	Hours json.RawMessage
}

// SelectionResponse is either Ok or Malformed.
type SelectionResponse interface {
	selection()
}

// Ok carries a team as returned by the selector.
type Ok struct {
	Team      []RawMember
	Reasoning string
}

// Malformed carries an answer that has no usable team field.
type Malformed struct {
	Raw    string
	Reason string
}

func (Ok) selection()        {}
func (Malformed) selection() {}

type rawMember struct {
	ID       string          `json:"id"`
	PersonID string          `json:"person_id"`
	Name     string          `json:"name"`
	Hours    json.RawMessage `json:"allocated_hours"`
}

// ParseSelection turns raw selector output into a SelectionResponse. It
// strips markdown code fences and unwraps at most one enclosing object, so
// both {"team":[...]} and {"result":{"team":[...]}} are accepted.
func ParseSelection(raw []byte) SelectionResponse {
	body := stripFences(raw)
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return Malformed{Raw: string(raw), Reason: "not a JSON object"}
	}
	if _, ok := top["team"]; !ok && len(top) == 1 {
		for _, inner := range top {
			var nested map[string]json.RawMessage
			if json.Unmarshal(inner, &nested) == nil {
				top = nested
			}
		}
	}
	teamRaw, ok := top["team"]
	if !ok {
		return Malformed{Raw: string(raw), Reason: "missing team"}
	}
	var members []rawMember
	if err := json.Unmarshal(teamRaw, &members); err != nil {
		return Malformed{Raw: string(raw), Reason: "team is not a list of members"}
	}

	resp := Ok{Team: make([]RawMember, 0, len(members))}
	if r, ok := top["reasoning"]; ok {
		_ = json.Unmarshal(r, &resp.Reasoning) // non-string reasoning is ignored
	}
	for _, m := range members {
		id := m.ID
		if id == "" {
			id = m.PersonID
		}
		resp.Team = append(resp.Team, RawMember{ID: strings.TrimSpace(id), Name: m.Name, Hours: m.Hours})
	}
	return resp
}

func stripFences(raw []byte) []byte {
	body := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(body, []byte("```")) {
		return body
	}
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = body[3:]
	}
	body = bytes.TrimSpace(body)
	body = bytes.TrimSuffix(body, []byte("```"))
	return bytes.TrimSpace(body)
}

// CoerceHours reads allocated hours from a JSON number or numeric string.
// Anything else, and any negative or non-finite value, is 0.
func CoerceHours(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var v float64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		v = f
	default:
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
