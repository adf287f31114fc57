package allocation

import (
	"fmt"
	"math"

	"github.com/okian/teamcap/internal/domain/capacity"
	"github.com/okian/teamcap/internal/domain/model"
)

// State is the running view of every person during one batch. It is owned
// by a single AllocateBatch call and is not safe for concurrent use.
type State struct {
	people map[string]*model.PersonState
	order  []string
}

// NewState enriches people with their free hours and utilization. busy maps
// person ids to their busy grid cells; people without an entry have a free
// calendar. Duplicate or empty ids are rejected.
func NewState(calc *capacity.Calculator, people []model.Person, busy map[string]model.SlotSet) (*State, error) {
	s := &State{
		people: make(map[string]*model.PersonState, len(people)),
		order:  make([]string, 0, len(people)),
	}
	for _, p := range people {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: person without id", ErrInvalidInput)
		}
		if _, dup := s.people[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate person %q", ErrInvalidInput, p.ID)
		}
		st := &model.PersonState{
			Person:        p,
			TrueFreeHours: calc.TrueFreeHours(p, busy[p.ID]),
		}
		st.Utilization = utilization(st)
		s.people[p.ID] = st
		s.order = append(s.order, p.ID)
	}
	return s, nil
}

// Get returns the live state of one person.
func (s *State) Get(id string) (*model.PersonState, bool) {
	p, ok := s.people[id]
	return p, ok
}

// Len is the number of people in the batch.
func (s *State) Len() int { return len(s.order) }

// People returns the live states in input order.
func (s *State) People() []*model.PersonState {
	out := make([]*model.PersonState, len(s.order))
	for i, id := range s.order {
		out[i] = s.people[id]
	}
	return out
}

// Snapshot returns copies of the states in input order.
func (s *State) Snapshot() []*model.PersonState {
	out := make([]*model.PersonState, len(s.order))
	for i, id := range s.order {
		cp := *s.people[id]
		out[i] = &cp
	}
	return out
}

// Values returns the states by value in input order.
func (s *State) Values() []model.PersonState {
	out := make([]model.PersonState, len(s.order))
	for i, id := range s.order {
		out[i] = *s.people[id]
	}
	return out
}

// Fold applies an allocation of hours to one person. Free hours never go
// below zero; utilization is recomputed from the hours allocated so far in
// the batch.
func (s *State) Fold(id string, hours float64) error {
	p, ok := s.people[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPerson, id)
	}
	if hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		hours = 0
	}
	p.TrueFreeHours = math.Max(0, p.TrueFreeHours-hours)
	p.BatchTaskCount++
	p.BatchAllocatedHours += hours
	p.Utilization = utilization(p)
	return nil
}

func utilization(p *model.PersonState) float64 {
	return (p.TaskHours7d + p.BatchAllocatedHours) / math.Max(1, p.MaxCapacity)
}
