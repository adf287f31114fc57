// Package backup picks a single replacement owner for an at-risk task
// without any external ranking step. Results depend only on the input.
package backup

import (
	"fmt"
	"slices"
	"strings"

	"github.com/okian/teamcap/internal/domain/model"
)

const (
	// MeetingWeight models the context-switch cost of meeting hours.
	MeetingWeight = 1.2
	// RatingScale is the top of the performance rating range.
	RatingScale = 5.0
)

// BandwidthScore is remaining weekly capacity, with meetings weighted
// heavier, scaled by performance.
func BandwidthScore(p model.Person) float64 {
	return (p.MaxCapacity - (p.MeetingHours7d*MeetingWeight + p.TaskHours7d)) * (p.PerformanceRating / RatingScale)
}

// Select returns the person sharing at least one required skill with the
// task that has the highest bandwidth score. The current assignee is never
// picked. Ties keep input order. It returns nil when no one qualifies.
func Select(task model.WorkUnit, people []model.Person) *model.Person {
	required := make(map[string]struct{}, len(task.RequiredSkills))
	for _, s := range task.RequiredSkills {
		if s = normalize(s); s != "" {
			required[s] = struct{}{}
		}
	}
	if len(required) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var pool []scored
	for i, p := range people {
		if p.ID == "" || p.ID == task.AssigneeID || !overlaps(required, p.Skills) {
			continue
		}
		pool = append(pool, scored{idx: i, score: BandwidthScore(p)})
	}
	if len(pool) == 0 {
		return nil
	}
	slices.SortStableFunc(pool, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.idx - b.idx
	})
	best := people[pool[0].idx]
	return &best
}

// Suggest wraps Select into a reassignment. ok is false when there is no
// backup, which is a normal outcome.
func Suggest(task model.WorkUnit, people []model.Person) (model.Reassignment, bool) {
	p := Select(task, people)
	if p == nil {
		return model.Reassignment{}, false
	}
	score := BandwidthScore(*p)
	return model.Reassignment{
		TaskID:           task.ID,
		SuggestedOwnerID: p.ID,
		BandwidthScore:   score,
		Reasoning: fmt.Sprintf("%s shares required skills and has the highest bandwidth score %.1f (rating %.1f, %.1fh meetings, %.1fh tasks of %.1fh)",
			p.Name, score, p.PerformanceRating, p.MeetingHours7d, p.TaskHours7d, p.MaxCapacity),
	}, true
}

func overlaps(required map[string]struct{}, skills []string) bool {
	for _, s := range skills {
		if _, ok := required[normalize(s)]; ok {
			return true
		}
	}
	return false
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
