package backup_test

import (
	"testing"

	"github.com/okian/teamcap/internal/domain/backup"
	"github.com/okian/teamcap/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBandwidthScore(t *testing.T) {
	Convey("Given a person", t, func() {
		p := model.Person{MaxCapacity: 40, MeetingHours7d: 10, TaskHours7d: 8, PerformanceRating: 4}

		Convey("Then meetings weigh 1.2 and rating scales by a fifth", func() {
			So(backup.BandwidthScore(p), ShouldAlmostEqual, (40-(12+8))*0.8, 1e-9)
		})

		Convey("Then an overloaded person scores negative", func() {
			p.TaskHours7d = 40
			So(backup.BandwidthScore(p), ShouldBeLessThan, 0)
		})
	})
}

func TestSelect(t *testing.T) {
	Convey("Given an at-risk task and a team", t, func() {
		task := model.WorkUnit{ID: "t1", RequiredSkills: []string{"React", "css"}, Status: model.StatusAtRisk, AssigneeID: "owner"}
		people := []model.Person{
			{ID: "owner", Name: "Owner", Skills: []string{"react"}, MaxCapacity: 80, PerformanceRating: 5},
			{ID: "sub", Name: "Sub", Skills: []string{"React Native"}, MaxCapacity: 80, PerformanceRating: 5},
			{ID: "mid", Name: "Mid", Skills: []string{" CSS "}, MaxCapacity: 40, TaskHours7d: 10, PerformanceRating: 3},
			{ID: "top", Name: "Top", Skills: []string{"react"}, MaxCapacity: 40, MeetingHours7d: 5, PerformanceRating: 5},
			{ID: "twin", Name: "Twin", Skills: []string{"react"}, MaxCapacity: 40, MeetingHours7d: 5, PerformanceRating: 5},
		}

		Convey("When selecting a backup", func() {
			got := backup.Select(task, people)

			Convey("Then exact overlap, the current owner rule and input order decide", func() {
				So(got, ShouldNotBeNil)
				So(got.ID, ShouldEqual, "top")
			})

			Convey("Then the choice is repeatable", func() {
				for i := 0; i < 5; i++ {
					So(backup.Select(task, people).ID, ShouldEqual, got.ID)
				}
			})
		})

		Convey("When no skill intersects", func() {
			task.RequiredSkills = []string{"rust"}
			So(backup.Select(task, people), ShouldBeNil)
			_, ok := backup.Suggest(task, people)
			So(ok, ShouldBeFalse)
		})

		Convey("When nothing is required", func() {
			task.RequiredSkills = nil
			So(backup.Select(task, people), ShouldBeNil)
		})

		Convey("When suggesting a reassignment", func() {
			r, ok := backup.Suggest(task, people)
			So(ok, ShouldBeTrue)
			So(r.TaskID, ShouldEqual, "t1")
			So(r.SuggestedOwnerID, ShouldEqual, "top")
			So(r.BandwidthScore, ShouldAlmostEqual, 34, 1e-9)
			So(r.Reasoning, ShouldContainSubstring, "Top")
		})
	})
}
