package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSlot is returned when a calendar slot key cannot be parsed.
var ErrInvalidSlot = errors.New("invalid slot key")

// Weekday enumerates calendar days, Monday first.
type Weekday int

// Weekdays.
const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var weekdayLookup = map[string]Weekday{
	"mon": Monday, "monday": Monday,
	"tue": Tuesday, "tues": Tuesday, "tuesday": Tuesday,
	"wed": Wednesday, "wednesday": Wednesday,
	"thu": Thursday, "thur": Thursday, "thurs": Thursday, "thursday": Thursday,
	"fri": Friday, "friday": Friday,
	"sat": Saturday, "saturday": Saturday,
	"sun": Sunday, "sunday": Sunday,
}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdayNames[d]
}

// ParseWeekday accepts short or long English names, any case.
func ParseWeekday(s string) (Weekday, error) {
	d, ok := weekdayLookup[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: day %q", ErrInvalidSlot, s)
	}
	return d, nil
}

// SlotKey identifies one hour of one weekday.
type SlotKey struct {
	Day  Weekday
	Hour int // 0..23
}

func (k SlotKey) String() string {
	return k.Day.String() + "-" + strconv.Itoa(k.Hour)
}

// ParseSlot parses keys of the form "{Day}-{Hour}", e.g. "Mon-9".
func ParseSlot(s string) (SlotKey, error) {
	day, hour, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return SlotKey{}, fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	d, err := ParseWeekday(day)
	if err != nil {
		return SlotKey{}, err
	}
	h, err := strconv.Atoi(strings.TrimSpace(hour))
	if err != nil || h < 0 || h > 23 {
		return SlotKey{}, fmt.Errorf("%w: hour in %q", ErrInvalidSlot, s)
	}
	return SlotKey{Day: d, Hour: h}, nil
}

// SlotSet is a set of busy slots.
type SlotSet map[SlotKey]struct{}

// NewSlotSet builds a set from keys.
func NewSlotSet(keys ...SlotKey) SlotSet {
	s := make(SlotSet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts k.
func (s SlotSet) Add(k SlotKey) { s[k] = struct{}{} }

// Has reports membership.
func (s SlotSet) Has(k SlotKey) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of distinct busy slots.
func (s SlotSet) Len() int { return len(s) }

// Union returns a new set with the members of both.
func (s SlotSet) Union(other SlotSet) SlotSet {
	out := make(SlotSet, len(s)+len(other))
	for k := range s {
		out.Add(k)
	}
	for k := range other {
		out.Add(k)
	}
	return out
}
