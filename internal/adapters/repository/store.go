// Package repository persists people, work units and availability for the
// allocation service.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/teamcap/internal/domain/model"
	"github.com/okian/teamcap/pkg/logger"
)

// Drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Counts is a summary of stored records.
type Counts struct {
	People       int `json:"people"`
	WorkUnits    int `json:"work_units"`
	Availability int `json:"availability"`
}

// Assignment is one accepted proposal being written back.
type Assignment struct {
	WorkUnitID string             `json:"work_unit_id"`
	Team       []model.TeamMember `json:"team"`
}

// Store provides read/write access to planning data. Listings keep the order
// in which records were first inserted.
type Store interface {
	UpsertPeople(ctx context.Context, people []model.Person) error
	GetPerson(ctx context.Context, id string) (model.Person, error)
	ListPeople(ctx context.Context) ([]model.Person, error)

	UpsertWorkUnits(ctx context.Context, units []model.WorkUnit) error
	GetWorkUnit(ctx context.Context, id string) (model.WorkUnit, error)
	// ListWorkUnits returns the given units in the given order, or all units
	// when ids is empty. An unknown id is ErrNotFound.
	ListWorkUnits(ctx context.Context, ids []string) ([]model.WorkUnit, error)

	// PutAvailability replaces the record of each person and week.
	PutAvailability(ctx context.Context, records []model.AvailabilityRecord) error
	// ListAvailability returns the records of one week, or all when week is empty.
	ListAvailability(ctx context.Context, week string) ([]model.AvailabilityRecord, error)

	// ApplyCommit adds allocated hours to each member's task hours and marks
	// the work units assigned, all or nothing. A non-empty commitID is
	// recorded with the changes; applying it again is ErrDuplicate.
	ApplyCommit(ctx context.Context, commitID string, assignments []Assignment) error

	Count(ctx context.Context) (Counts, error)
	Close() error
}

// Open returns the store for driver.
func Open(driver, path string, log logger.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(path, WithSQLiteLogger(log))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func validatePerson(p model.Person) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: person without id", ErrInvalidRecord)
	}
	if p.MaxCapacity < 0 || p.MeetingHours7d < 0 || p.TaskHours7d < 0 {
		return fmt.Errorf("%w: person %s has negative hours", ErrInvalidRecord, p.ID)
	}
	return nil
}

func validateWorkUnit(wu model.WorkUnit) error {
	if strings.TrimSpace(wu.ID) == "" {
		return fmt.Errorf("%w: work unit without id", ErrInvalidRecord)
	}
	if wu.EstimatedHours < 0 {
		return fmt.Errorf("%w: work unit %s has negative estimate", ErrInvalidRecord, wu.ID)
	}
	return nil
}

func validateAvailability(r model.AvailabilityRecord) error {
	if strings.TrimSpace(r.PersonID) == "" || strings.TrimSpace(r.WeekStart) == "" {
		return fmt.Errorf("%w: availability needs profile_id and week_start_date", ErrInvalidRecord)
	}
	return nil
}

func clonePerson(p model.Person) model.Person {
	p.Skills = append([]string(nil), p.Skills...)
	return p
}

func cloneWorkUnit(wu model.WorkUnit) model.WorkUnit {
	wu.RequiredSkills = append([]string(nil), wu.RequiredSkills...)
	return wu
}

func cloneAvailability(r model.AvailabilityRecord) model.AvailabilityRecord {
	r.BusySlots = append([]string(nil), r.BusySlots...)
	r.DaysOff = append([]string(nil), r.DaysOff...)
	return r
}

// assigneeOf picks the member with the most hours, first on ties.
func assigneeOf(team []model.TeamMember) string {
	best := -1
	for i, m := range team {
		if best < 0 || m.AllocatedHours > team[best].AllocatedHours {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return team[best].PersonID
}
