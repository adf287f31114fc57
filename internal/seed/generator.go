package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/teamcap/internal/domain/model"
)

var (
	skillPool = []string{"go", "postgresql", "react", "kubernetes", "python", "design", "terraform", "graphql"}
	firstName = []string{"Ada", "Bo", "Cy", "Dee", "Eli", "Fay", "Gus", "Hana", "Ivo", "Jun"}
	titles    = []string{"API endpoint", "Schema migration", "Dashboard", "Cluster upgrade", "Data export", "Onboarding flow"}
	weekdays  = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}
)

// Dataset is one generated set of planning data.
type Dataset struct {
	People       []model.Person
	WorkUnits    []model.WorkUnit
	Availability []model.AvailabilityRecord
}

// Generator produces planning data from a seeded source. Ids are uuids drawn
// from the same source so a seed always yields the same dataset.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a Generator.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // test data only
}

func (g *Generator) id() string {
	u, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		panic(fmt.Sprintf("seed: uuid from rng: %v", err))
	}
	return u.String()
}

func (g *Generator) skills(minN, maxN int) []string {
	n := minN + g.rng.Intn(maxN-minN+1)
	picked := g.rng.Perm(len(skillPool))[:n]
	out := make([]string, n)
	for i, p := range picked {
		out[i] = skillPool[p]
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// Generate builds a dataset with one availability record per person.
func (g *Generator) Generate(people, units int, week string) Dataset {
	ds := Dataset{
		People:       make([]model.Person, people),
		WorkUnits:    make([]model.WorkUnit, units),
		Availability: make([]model.AvailabilityRecord, people),
	}
	for i := range ds.People {
		capacity := float64(32 + 4*g.rng.Intn(3))
		ds.People[i] = model.Person{
			ID:                g.id(),
			Name:              firstName[i%len(firstName)] + " " + strconv.Itoa(i+1),
			Skills:            g.skills(1, 3),
			MaxCapacity:       capacity,
			MeetingHours7d:    round1(g.rng.Float64() * 10),
			TaskHours7d:       round1(g.rng.Float64() * capacity * 0.6),
			PerformanceRating: round1(2 + g.rng.Float64()*3),
		}
		ds.Availability[i] = g.availability(ds.People[i].ID, week)
	}
	for i := range ds.WorkUnits {
		status := model.StatusTodo
		if g.rng.Intn(5) == 0 {
			status = model.StatusAtRisk
		}
		ds.WorkUnits[i] = model.WorkUnit{
			ID:             g.id(),
			Title:          titles[i%len(titles)] + " #" + strconv.Itoa(i+1),
			RequiredSkills: g.skills(1, 2),
			EstimatedHours: float64(2 + g.rng.Intn(11)),
			Status:         status,
		}
	}
	return ds
}

func (g *Generator) availability(personID, week string) model.AvailabilityRecord {
	rec := model.AvailabilityRecord{PersonID: personID, WeekStart: week}
	busy := g.rng.Intn(16)
	seen := make(map[string]struct{}, busy)
	for len(rec.BusySlots) < busy {
		key := weekdays[g.rng.Intn(len(weekdays))] + "-" + strconv.Itoa(9+g.rng.Intn(10))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rec.BusySlots = append(rec.BusySlots, key)
	}
	if g.rng.Intn(10) == 0 {
		rec.DaysOff = []string{weekdays[g.rng.Intn(len(weekdays))]}
	}
	return rec
}
