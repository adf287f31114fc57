package allocation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func person(id string, skills []string, rating, taskHours float64) model.Person {
	return model.Person{
		ID:                id,
		Name:              "name-" + id,
		Skills:            skills,
		MaxCapacity:       40,
		TaskHours7d:       taskHours,
		PerformanceRating: rating,
	}
}

func unit(id string, hours float64, skills ...string) model.WorkUnit {
	return model.WorkUnit{ID: id, Title: "title " + id, RequiredSkills: skills, EstimatedHours: hours, Status: model.StatusTodo}
}

func counterIDs() allocation.Option {
	var n int
	return allocation.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("p-%d", n)
	})
}

// topPick answers with the first shortlisted candidate for the full estimate.
func topPick(calls *atomic.Int32) allocation.Selector {
	return allocation.SelectorFunc(func(_ context.Context, req allocation.Request) ([]byte, error) {
		if calls != nil {
			calls.Add(1)
		}
		c := req.Candidates[0]
		return json.Marshal(map[string]any{
			"team":      []map[string]any{{"id": c.ID, "name": c.Name, "allocated_hours": req.EstimatedHours}},
			"reasoning": "best fit " + c.ID,
		})
	})
}

func fixed(raw string, err error) allocation.Selector {
	return allocation.SelectorFunc(func(context.Context, allocation.Request) ([]byte, error) {
		return []byte(raw), err
	})
}

func TestAllocateBatchInput(t *testing.T) {
	Convey("Given an engine", t, func() {
		e := allocation.New()
		ctx := context.Background()
		people := []model.Person{person("a", nil, 3, 0)}
		units := []model.WorkUnit{unit("w1", 2)}

		Convey("When there are no work units", func() {
			_, err := e.AllocateBatch(ctx, allocation.Batch{People: people})
			So(errors.Is(err, allocation.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When there are no people", func() {
			_, err := e.AllocateBatch(ctx, allocation.Batch{WorkUnits: units})
			So(errors.Is(err, allocation.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When a person id repeats", func() {
			_, err := e.AllocateBatch(ctx, allocation.Batch{WorkUnits: units, People: append(people, people[0])})
			So(errors.Is(err, allocation.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When a work unit has no id", func() {
			_, err := e.AllocateBatch(ctx, allocation.Batch{WorkUnits: []model.WorkUnit{{EstimatedHours: 1}}, People: people})
			So(errors.Is(err, allocation.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestGreedyFoldBack(t *testing.T) {
	Convey("Given one PostgreSQL person with 6 free hours and no selector", t, func() {
		e := allocation.New(counterIDs())
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("A", 5, "PostgreSQL"), unit("B", 5, "PostgreSQL")},
			People:    []model.Person{person("pg", []string{"postgresql"}, 4, 34)},
		}

		Convey("When both work units are allocated", func() {
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)
			So(len(res.Proposals), ShouldEqual, 2)

			Convey("Then A gets the full 5 hours", func() {
				a := res.Proposals[0]
				So(a.ID, ShouldEqual, "p-1")
				So(a.Status, ShouldEqual, model.ProposalAssigned)
				So(a.Source, ShouldEqual, model.SourceDeterministic)
				So(a.Team, ShouldResemble, []model.TeamMember{{PersonID: "pg", Name: "name-pg", AllocatedHours: 5}})
			})

			Convey("Then B only sees the remaining hour", func() {
				bp := res.Proposals[1]
				So(bp.Status, ShouldEqual, model.ProposalPartial)
				So(bp.TotalHours(), ShouldEqual, 1)
				So(bp.Warning, ShouldNotBeEmpty)
			})

			Convey("Then the final state reflects both fold-backs", func() {
				st := res.People[0]
				So(st.TrueFreeHours, ShouldEqual, 0)
				So(st.BatchTaskCount, ShouldEqual, 2)
				So(st.BatchAllocatedHours, ShouldEqual, 6)
				So(st.Utilization, ShouldEqual, 1.0)
			})
		})

		Convey("When a third unit arrives after the person is depleted", func() {
			b.WorkUnits = append(b.WorkUnits, unit("C", 2, "PostgreSQL"))
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)

			Convey("Then it is reported as no capacity with a warning", func() {
				c := res.Proposals[2]
				So(c.Status, ShouldEqual, model.ProposalNoCapacity)
				So(c.Source, ShouldEqual, model.SourceNone)
				So(c.Team, ShouldBeEmpty)
				So(c.Warning, ShouldNotBeEmpty)
			})
		})
	})
}

func TestZeroHourUnits(t *testing.T) {
	Convey("Given a zero-hour unit ahead of a real one", t, func() {
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("Z", 0, "go"), unit("A", 4, "go")},
			People:    []model.Person{person("a", []string{"go"}, 4, 0)},
		}

		check := func(res allocation.Result) {
			z := res.Proposals[0]
			So(z.Status, ShouldEqual, model.ProposalAssigned)
			So(z.Team, ShouldBeEmpty)
			So(res.Proposals[1].Team[0].AllocatedHours, ShouldEqual, 4)
			So(res.People[0].BatchTaskCount, ShouldEqual, 1)
			So(res.People[0].BatchAllocatedHours, ShouldEqual, 4)
		}

		Convey("When allocating greedily", func() {
			res, err := allocation.New().AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)

			Convey("Then nobody is loaded for the zero-hour unit", func() {
				check(res)
			})
		})

		Convey("When allocating with a selector in either mode", func() {
			for _, mode := range []allocation.Mode{allocation.ModeSequential, allocation.ModeIndependent} {
				var calls atomic.Int32
				e := allocation.New(allocation.WithSelector(topPick(&calls)), allocation.WithMode(mode))
				res, err := e.AllocateBatch(context.Background(), b)
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 1)
				check(res)
			}
		})
	})
}

func TestSequentialSelection(t *testing.T) {
	Convey("Given two go people where the better one has only 6 free hours", t, func() {
		var calls atomic.Int32
		e := allocation.New(allocation.WithSelector(topPick(&calls)))
		star := person("star", []string{"Go"}, 5, 0)
		star.MeetingHours7d = 34
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("A", 5, "go"), unit("B", 5, "go")},
			People:    []model.Person{star, person("solid", []string{"golang"}, 3, 0)},
		}

		Convey("When allocating sequentially", func() {
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)

			Convey("Then the second unit goes to someone else", func() {
				So(calls.Load(), ShouldEqual, 2)
				So(res.Proposals[0].Team[0].PersonID, ShouldEqual, "star")
				So(res.Proposals[0].Source, ShouldEqual, model.SourceExternal)
				So(res.Proposals[0].Reasoning, ShouldEqual, "best fit star")
				So(res.Proposals[1].Team[0].PersonID, ShouldEqual, "solid")
				So(res.Proposals[1].Status, ShouldEqual, model.ProposalAssigned)
			})
		})

		Convey("When allocating in independent mode", func() {
			e := allocation.New(
				allocation.WithSelector(topPick(&calls)),
				allocation.WithMode(allocation.ModeIndependent),
				allocation.WithConcurrency(2),
			)
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)

			Convey("Then both shortlists come from the initial state but fold-back still applies", func() {
				So(res.Proposals[0].Team[0].PersonID, ShouldEqual, "star")
				So(res.Proposals[1].Team[0].PersonID, ShouldEqual, "star")
				So(res.Proposals[1].Team[0].AllocatedHours, ShouldEqual, 1)
				So(res.Proposals[1].Status, ShouldEqual, model.ProposalPartial)
				So(res.Proposals[1].Warning, ShouldContainSubstring, "capped at free hours")
				So(res.People[0].BatchTaskCount, ShouldEqual, 2)
				So(res.People[0].TrueFreeHours, ShouldEqual, 0)
			})
		})
	})
}

// always answers with one person for the full estimate.
func always(id string) allocation.Selector {
	return allocation.SelectorFunc(func(_ context.Context, req allocation.Request) ([]byte, error) {
		return json.Marshal(map[string]any{
			"team":      []map[string]any{{"id": id, "allocated_hours": req.EstimatedHours}},
			"reasoning": "only " + id,
		})
	})
}

func TestSelectorOvercommit(t *testing.T) {
	Convey("Given one PostgreSQL person with 6 free hours and a selector that always picks them", t, func() {
		pg := person("pg", []string{"PostgreSQL"}, 4, 0)
		pg.MeetingHours7d = 34
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("A", 5, "PostgreSQL"), unit("B", 5, "PostgreSQL")},
			People:    []model.Person{pg},
		}
		e := allocation.New(allocation.WithSelector(always("pg")))

		Convey("When both units are allocated sequentially", func() {
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)

			Convey("Then the second unit only gets the hour that is left", func() {
				a, second := res.Proposals[0], res.Proposals[1]
				So(a.Status, ShouldEqual, model.ProposalAssigned)
				So(a.Team[0].AllocatedHours, ShouldEqual, 5)
				So(second.Status, ShouldEqual, model.ProposalPartial)
				So(second.Source, ShouldEqual, model.SourceExternal)
				So(second.Team, ShouldHaveLength, 1)
				So(second.Team[0].AllocatedHours, ShouldEqual, 1)
				So(second.Warning, ShouldContainSubstring, "capped at free hours")
				So(res.People[0].TrueFreeHours, ShouldEqual, 0)
				So(res.People[0].BatchAllocatedHours, ShouldEqual, 6)
			})
		})

		Convey("When a third unit arrives after the person is depleted", func() {
			b.WorkUnits = append(b.WorkUnits, unit("C", 2, "PostgreSQL"))
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)

			Convey("Then it is never re-assigned to the depleted person", func() {
				c := res.Proposals[2]
				So(c.Status, ShouldEqual, model.ProposalNoCapacity)
				So(c.Team, ShouldBeEmpty)
				So(res.People[0].BatchTaskCount, ShouldEqual, 2)
			})
		})
	})
}

func TestSelectorFallback(t *testing.T) {
	Convey("Given a pool whose top scorer is fully booked", t, func() {
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("A", 8, "go")},
			People: []model.Person{
				person("booked", []string{"go"}, 5, 40),
				person("free", []string{"go"}, 2, 37),
			},
		}
		ctx := context.Background()

		check := func(res allocation.Result) {
			p := res.Proposals[0]
			So(p.Source, ShouldEqual, model.SourceFallback)
			So(p.Team, ShouldResemble, []model.TeamMember{{PersonID: "free", Name: "name-free", AllocatedHours: 3}})
			So(p.Status, ShouldEqual, model.ProposalPartial)
			So(res.People[1].TrueFreeHours, ShouldEqual, 0)
		}

		Convey("When the selector errors", func() {
			e := allocation.New(allocation.WithSelector(fixed("", errors.New("boom"))))
			res, err := e.AllocateBatch(ctx, b)
			So(err, ShouldBeNil)
			check(res)
			So(res.Proposals[0].Reasoning, ShouldContainSubstring, "boom")
		})

		Convey("When the selector times out", func() {
			slow := allocation.SelectorFunc(func(ctx context.Context, _ allocation.Request) ([]byte, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
			e := allocation.New(allocation.WithSelector(slow), allocation.WithSelectorTimeout(10*time.Millisecond))
			res, err := e.AllocateBatch(ctx, b)
			So(err, ShouldBeNil)
			check(res)
			So(res.Proposals[0].Reasoning, ShouldContainSubstring, "deadline exceeded")
		})

		Convey("When the selector answers without a team", func() {
			e := allocation.New(allocation.WithSelector(fixed(`{"reasoning":"thinking"}`, nil)))
			res, err := e.AllocateBatch(ctx, b)
			So(err, ShouldBeNil)
			check(res)
		})

		Convey("When every returned member is unknown", func() {
			e := allocation.New(allocation.WithSelector(fixed(`{"team":[{"id":"ghost","allocated_hours":4}]}`, nil)))
			res, err := e.AllocateBatch(ctx, b)
			So(err, ShouldBeNil)
			check(res)
		})

		Convey("When nobody on the shortlist has free hours", func() {
			b.People[1].TaskHours7d = 40
			e := allocation.New(allocation.WithSelector(fixed("nope", nil)))
			res, err := e.AllocateBatch(ctx, b)
			So(err, ShouldBeNil)
			p := res.Proposals[0]
			So(p.Status, ShouldEqual, model.ProposalNoCapacity)
			So(p.Team, ShouldBeEmpty)
			So(p.Warning, ShouldNotBeEmpty)
		})
	})
}

func TestSelectorValidation(t *testing.T) {
	Convey("Given a selector answer with noise", t, func() {
		raw := "```json\n" + `{"result":{"team":[
			{"id":"a","allocated_hours":"3"},
			{"id":"ghost","allocated_hours":2},
			{"id":"a","allocated_hours":9},
			{"id":"b","allocated_hours":-4}
		],"reasoning":"pair"}}` + "\n```"
		e := allocation.New(allocation.WithSelector(fixed(raw, nil)))
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("A", 3)},
			People:    []model.Person{person("a", nil, 3, 0), person("b", nil, 3, 0)},
		}

		Convey("When it is resolved", func() {
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)

			Convey("Then unknown and repeated ids are dropped and hours coerced", func() {
				p := res.Proposals[0]
				So(p.Source, ShouldEqual, model.SourceExternal)
				So(p.Reasoning, ShouldEqual, "pair")
				So(p.Team, ShouldResemble, []model.TeamMember{
					{PersonID: "a", Name: "name-a", AllocatedHours: 3},
					{PersonID: "b", Name: "name-b", AllocatedHours: 0},
				})
				So(p.Status, ShouldEqual, model.ProposalAssigned)
				So(res.People[1].BatchTaskCount, ShouldEqual, 1)
			})
		})
	})
}

func TestCancellation(t *testing.T) {
	Convey("Given a batch of three units", t, func() {
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("A", 1), unit("B", 1), unit("C", 1)},
			People:    []model.Person{person("a", nil, 3, 0)},
		}

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			res, err := allocation.New().AllocateBatch(ctx, b)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(res.Proposals, ShouldBeEmpty)
			So(res.People[0].BatchTaskCount, ShouldEqual, 0)
		})

		Convey("When the context is cancelled during the first unit", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			inner := topPick(nil)
			sel := allocation.SelectorFunc(func(c context.Context, req allocation.Request) ([]byte, error) {
				defer cancel()
				return inner.Select(c, req)
			})
			res, err := allocation.New(allocation.WithSelector(sel)).AllocateBatch(ctx, b)

			Convey("Then the finished proposal is kept with a consistent state", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(len(res.Proposals), ShouldEqual, 1)
				So(res.People[0].BatchTaskCount, ShouldEqual, 1)
				So(res.People[0].TrueFreeHours, ShouldEqual, 39)
			})
		})
	})
}

func TestAvailabilityWeeks(t *testing.T) {
	Convey("Given two weeks of availability for one person", t, func() {
		p := model.Person{ID: "a", MaxCapacity: 100}
		b := allocation.Batch{
			WorkUnits: []model.WorkUnit{unit("A", 0)},
			People:    []model.Person{p},
			Availability: []model.AvailabilityRecord{
				{PersonID: "a", WeekStart: "2026-10-12", BusySlots: []string{"Mon-9"}},
				{PersonID: "a", WeekStart: "2026-10-19", BusySlots: []string{"Mon-9", "Mon-10", "bad"}, DaysOff: []string{"Tue"}},
			},
		}
		e := allocation.New()

		Convey("When no week is given the latest record is used", func() {
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)
			So(res.People[0].TrueFreeHours, ShouldEqual, 50-12)
			So(res.InvalidSlots["a"], ShouldResemble, []string{"bad"})
		})

		Convey("When a week is given only that record counts", func() {
			b.Week = "2026-10-12"
			res, err := e.AllocateBatch(context.Background(), b)
			So(err, ShouldBeNil)
			So(res.People[0].TrueFreeHours, ShouldEqual, 49)
		})
	})
}
