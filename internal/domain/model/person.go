// Package model contains the domain types passed between layers.
package model

// Person is a team member profile as read from the store.
type Person struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Skills            []string `json:"skills"`
	MaxCapacity       float64  `json:"max_capacity"`     // hours per week
	MeetingHours7d    float64  `json:"meeting_hours_7d"` // trailing 7 days
	TaskHours7d       float64  `json:"task_hours_7d"`    // trailing 7 days
	PerformanceRating float64  `json:"performance_rating"`
}

// CurrentWorkload is meeting plus task hours over the last week.
func (p Person) CurrentWorkload() float64 {
	return p.MeetingHours7d + p.TaskHours7d
}

// PersonState is a Person enriched with the values that change while a
// batch runs. It is never persisted.
type PersonState struct {
	Person

	TrueFreeHours       float64 `json:"true_free_hours"`
	Utilization         float64 `json:"utilization"`
	BatchTaskCount      int     `json:"batch_task_count"`
	BatchAllocatedHours float64 `json:"batch_allocated_hours"`
}

// CandidateScore is a ranked view of a PersonState for one work unit.
type CandidateScore struct {
	PersonState

	BaseScore  float64 `json:"base_score"`
	MatchCount int     `json:"match_count"`
	// Index is the position of the person in the ranked input; ties keep it ascending.
	Index int `json:"-"`
}
