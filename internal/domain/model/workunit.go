package model

// Work unit statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusAtRisk     = "at_risk"
	StatusAssigned   = "assigned"
	StatusDone       = "done"
)

// WorkUnit is a task that needs people. The engine never mutates it.
type WorkUnit struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"required_skills"`
	EstimatedHours float64  `json:"estimated_hours"`
	Status         string   `json:"status"`
	AssigneeID     string   `json:"assignee_id,omitempty"`
}

// AvailabilityRecord carries one person's calendar signal for one week.
type AvailabilityRecord struct {
	PersonID  string   `json:"profile_id"`
	WeekStart string   `json:"week_start_date"` // YYYY-MM-DD
	BusySlots []string `json:"busy_slots"`      // "Mon-9" style keys
	DaysOff   []string `json:"days_off,omitempty"`
}

// Slots parses BusySlots. Spellings of the same cell collapse into one key.
// Keys that do not parse are returned separately so callers can log them;
// they do not count as busy.
func (r AvailabilityRecord) Slots() (SlotSet, []string) {
	set := make(SlotSet, len(r.BusySlots))
	var invalid []string
	for _, raw := range r.BusySlots {
		key, err := ParseSlot(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		set.Add(key)
	}
	return set, invalid
}

// Days parses DaysOff, skipping names that are not weekdays.
func (r AvailabilityRecord) Days() []Weekday {
	days := make([]Weekday, 0, len(r.DaysOff))
	for _, raw := range r.DaysOff {
		if d, err := ParseWeekday(raw); err == nil {
			days = append(days, d)
		}
	}
	return days
}
