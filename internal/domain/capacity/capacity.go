// Package capacity derives a person's true free hours from two independent
// signals: calendar busy slots and logged workload.
package capacity

import (
	"math"

	"github.com/okian/teamcap/internal/domain/model"
)

// Default grid: 10 working hours on each of 5 weekdays.
const (
	DefaultGridStartHour = 9
	DefaultGridHours     = 10
	DefaultGridDays      = 5
	DefaultGridCapacity  = DefaultGridHours * DefaultGridDays
)

// Bottleneck names the signal that limits free hours.
type Bottleneck string

// Bottlenecks.
const (
	BottleneckCalendar Bottleneck = "calendar"
	BottleneckWorkload Bottleneck = "workload"
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithGridCapacity overrides the number of cells in the weekly grid.
func WithGridCapacity(cells int) Option {
	return func(c *Calculator) {
		if cells > 0 {
			c.gridCapacity = float64(cells)
		}
	}
}

// WithGridHours sets the first working hour and how many hours a day has.
// Only used to expand days off into busy cells.
func WithGridHours(start, hours int) Option {
	return func(c *Calculator) {
		if start >= 0 && hours > 0 && start+hours <= 24 {
			c.startHour = start
			c.hoursPerDay = hours
		}
	}
}

// Calculator computes free hours. The zero value is not usable; use New.
type Calculator struct {
	gridCapacity float64
	startHour    int
	hoursPerDay  int
}

// New creates a Calculator with the default 50-cell grid.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		gridCapacity: DefaultGridCapacity,
		startHour:    DefaultGridStartHour,
		hoursPerDay:  DefaultGridHours,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report is the breakdown behind a TrueFreeHours value.
type Report struct {
	PersonID        string     `json:"person_id"`
	BusySlots       int        `json:"busy_slots"`
	CalendarFree    float64    `json:"calendar_free"`
	CurrentWorkload float64    `json:"current_workload"`
	WorkloadFree    float64    `json:"workload_free"`
	TrueFreeHours   float64    `json:"true_free_hours"`
	Bottleneck      Bottleneck `json:"bottleneck"`
}

// GridCapacity returns the number of cells in the weekly grid.
func (c *Calculator) GridCapacity() float64 { return c.gridCapacity }

// CalendarFree is the grid capacity minus busy cells, never negative.
func (c *Calculator) CalendarFree(busy model.SlotSet) float64 {
	return math.Max(0, c.gridCapacity-float64(busy.Len()))
}

// WorkloadFree is max capacity minus meeting and task hours, never negative.
func WorkloadFree(p model.Person) float64 {
	return math.Max(0, p.MaxCapacity-p.CurrentWorkload())
}

// TrueFreeHours returns the tighter of the calendar and workload limits.
func (c *Calculator) TrueFreeHours(p model.Person, busy model.SlotSet) float64 {
	return math.Min(c.CalendarFree(busy), WorkloadFree(p))
}

// Breakdown returns every intermediate value of TrueFreeHours.
func (c *Calculator) Breakdown(p model.Person, busy model.SlotSet) Report {
	calendarFree := c.CalendarFree(busy)
	workloadFree := WorkloadFree(p)
	r := Report{
		PersonID:        p.ID,
		BusySlots:       busy.Len(),
		CalendarFree:    calendarFree,
		CurrentWorkload: p.CurrentWorkload(),
		WorkloadFree:    workloadFree,
		TrueFreeHours:   math.Min(calendarFree, workloadFree),
		Bottleneck:      BottleneckWorkload,
	}
	if calendarFree < workloadFree {
		r.Bottleneck = BottleneckCalendar
	}
	return r
}

// BusySet merges a record's busy slots with every grid cell of its days off.
// The second return value lists slot keys that could not be parsed.
func (c *Calculator) BusySet(rec model.AvailabilityRecord) (model.SlotSet, []string) {
	busy, invalid := rec.Slots()
	days := rec.Days()
	if len(days) == 0 {
		return busy, invalid
	}
	off := make(model.SlotSet, len(days)*c.hoursPerDay)
	for _, d := range days {
		for h := c.startHour; h < c.startHour+c.hoursPerDay; h++ {
			off.Add(model.SlotKey{Day: d, Hour: h})
		}
	}
	return busy.Union(off), invalid
}
