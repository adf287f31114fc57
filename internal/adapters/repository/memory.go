package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/pkg/metrics"
)

type availabilityKey struct {
	personID string
	week     string
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu sync.RWMutex

	people      map[string]model.Person
	peopleOrder []string

	units      map[string]model.WorkUnit
	unitsOrder []string

	avail      map[availabilityKey]model.AvailabilityRecord
	availOrder []availabilityKey

	commits map[string]struct{}

	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		people:  make(map[string]model.Person),
		units:   make(map[string]model.WorkUnit),
		avail:   make(map[availabilityKey]model.AvailabilityRecord),
		commits: make(map[string]struct{}),
	}
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// UpsertPeople inserts or replaces people. Nothing is written if any record is invalid.
func (s *MemoryStore) UpsertPeople(_ context.Context, people []model.Person) error {
	defer observe("upsert_people", time.Now())
	for _, p := range people {
		if err := validatePerson(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, p := range people {
		if _, ok := s.people[p.ID]; !ok {
			s.peopleOrder = append(s.peopleOrder, p.ID)
		}
		s.people[p.ID] = clonePerson(p)
	}
	metrics.UpdatePeopleTotal(len(s.people))
	return nil
}

// GetPerson returns one person.
func (s *MemoryStore) GetPerson(_ context.Context, id string) (model.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return model.Person{}, fmt.Errorf("%w: person %s", ErrNotFound, id)
	}
	return clonePerson(p), nil
}

// ListPeople returns every person in insertion order.
func (s *MemoryStore) ListPeople(_ context.Context) ([]model.Person, error) {
	defer observe("list_people", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Person, 0, len(s.peopleOrder))
	for _, id := range s.peopleOrder {
		out = append(out, clonePerson(s.people[id]))
	}
	return out, nil
}

// UpsertWorkUnits inserts or replaces work units.
func (s *MemoryStore) UpsertWorkUnits(_ context.Context, units []model.WorkUnit) error {
	defer observe("upsert_work_units", time.Now())
	for _, wu := range units {
		if err := validateWorkUnit(wu); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, wu := range units {
		if _, ok := s.units[wu.ID]; !ok {
			s.unitsOrder = append(s.unitsOrder, wu.ID)
		}
		if wu.Status == "" {
			wu.Status = model.StatusTodo
		}
		s.units[wu.ID] = cloneWorkUnit(wu)
	}
	metrics.UpdateWorkUnitsTotal(len(s.units))
	return nil
}

// GetWorkUnit returns one work unit.
func (s *MemoryStore) GetWorkUnit(_ context.Context, id string) (model.WorkUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wu, ok := s.units[id]
	if !ok {
		return model.WorkUnit{}, fmt.Errorf("%w: work unit %s", ErrNotFound, id)
	}
	return cloneWorkUnit(wu), nil
}

// ListWorkUnits returns the requested units, or all of them.
func (s *MemoryStore) ListWorkUnits(_ context.Context, ids []string) ([]model.WorkUnit, error) {
	defer observe("list_work_units", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(ids) == 0 {
		ids = s.unitsOrder
	}
	out := make([]model.WorkUnit, 0, len(ids))
	for _, id := range ids {
		wu, ok := s.units[id]
		if !ok {
			return nil, fmt.Errorf("%w: work unit %s", ErrNotFound, id)
		}
		out = append(out, cloneWorkUnit(wu))
	}
	return out, nil
}

// PutAvailability stores one record per person and week.
func (s *MemoryStore) PutAvailability(_ context.Context, records []model.AvailabilityRecord) error {
	defer observe("put_availability", time.Now())
	for _, r := range records {
		if err := validateAvailability(r); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, r := range records {
		if _, ok := s.people[r.PersonID]; !ok {
			return fmt.Errorf("%w: person %s", ErrNotFound, r.PersonID)
		}
	}
	for _, r := range records {
		k := availabilityKey{personID: r.PersonID, week: r.WeekStart}
		if _, ok := s.avail[k]; !ok {
			s.availOrder = append(s.availOrder, k)
		}
		s.avail[k] = cloneAvailability(r)
	}
	return nil
}

// ListAvailability returns records for week, or all records.
func (s *MemoryStore) ListAvailability(_ context.Context, week string) ([]model.AvailabilityRecord, error) {
	defer observe("list_availability", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AvailabilityRecord, 0, len(s.availOrder))
	for _, k := range s.availOrder {
		if week != "" && k.week != week {
			continue
		}
		out = append(out, cloneAvailability(s.avail[k]))
	}
	return out, nil
}

// ApplyCommit writes accepted proposals back.
func (s *MemoryStore) ApplyCommit(_ context.Context, commitID string, assignments []Assignment) error {
	defer observe("apply_commit", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.commits[commitID]; ok && commitID != "" {
		return fmt.Errorf("%w: %s", ErrDuplicate, commitID)
	}
	for _, a := range assignments {
		if _, ok := s.units[a.WorkUnitID]; !ok {
			return fmt.Errorf("%w: work unit %s", ErrNotFound, a.WorkUnitID)
		}
		for _, m := range a.Team {
			if _, ok := s.people[m.PersonID]; !ok {
				return fmt.Errorf("%w: person %s", ErrNotFound, m.PersonID)
			}
			if m.AllocatedHours < 0 {
				return fmt.Errorf("%w: negative hours for %s", ErrInvalidRecord, m.PersonID)
			}
		}
	}
	for _, a := range assignments {
		for _, m := range a.Team {
			p := s.people[m.PersonID]
			p.TaskHours7d += m.AllocatedHours
			s.people[m.PersonID] = p
		}
		wu := s.units[a.WorkUnitID]
		wu.Status = model.StatusAssigned
		wu.AssigneeID = assigneeOf(a.Team)
		s.units[a.WorkUnitID] = wu
	}
	if commitID != "" {
		s.commits[commitID] = struct{}{}
	}
	return nil
}

// Count summarizes the store.
func (s *MemoryStore) Count(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{People: len(s.people), WorkUnits: len(s.units), Availability: len(s.avail)}, nil
}

// Close marks the store closed for writes.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
