package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func engineSettings() Settings {
	return Settings{
		SlotDuration:    60,
		DayStart:        "09:00",
		DayEnd:          "17:00",
		LunchBreakStart: "12:00",
		LunchBreakEnd:   "13:00",
	}
}

func runEngine(t *testing.T, settings Settings, courses []*Course, rooms []*Classroom, opts Options) *Result {
	t.Helper()
	eng := New(settings, courses, rooms, opts, zap.NewNop())
	go func() {
		for range eng.Progress() {
		}
	}()
	return eng.Run(context.Background())
}

func TestRunPlacesSingleCourseInsideTeacherWindow(t *testing.T) {
	course := &Course{
		ID:              "algo",
		TeacherID:       "t1",
		Category:        CategoryCompulsory,
		Level:           1,
		Semester:        1,
		Cohorts:         []Cohort{{Department: "CS", Headcount: 30}},
		Sessions:        []Session{{Type: SessionTheory, Hours: 2}},
		TeacherCalendar: Calendar{"Monday": {{Start: "09:00", End: "12:00"}}},
	}
	rooms := []*Classroom{activeRoom("r1", 40, RoomTheory)}

	result := runEngine(t, engineSettings(), []*Course{course}, rooms, Options{Seed: 7})
	require.Len(t, result.Schedule, 1)
	require.Empty(t, result.Unscheduled)

	item := result.Schedule[0]
	assert.Equal(t, "Monday", item.Day)
	assert.Equal(t, 2, item.SessionHours)
	start, end := splitRange(item.TimeRange)
	assert.GreaterOrEqual(t, start, minuteOf("09:00"))
	assert.LessOrEqual(t, end, minuteOf("12:00"))
}

func TestRunReportsTeacherConflictForContestedSlot(t *testing.T) {
	calendar := Calendar{"Monday": {{Start: "09:00", End: "10:00"}}}
	courseA := &Course{
		ID: "a", TeacherID: "t1",
		Cohorts:         []Cohort{{Department: "CS", Headcount: 20}},
		Sessions:        []Session{{Type: SessionTheory, Hours: 1}},
		TeacherCalendar: calendar,
	}
	courseB := &Course{
		ID: "b", TeacherID: "t1",
		Cohorts:         []Cohort{{Department: "EE", Headcount: 20}},
		Sessions:        []Session{{Type: SessionTheory, Hours: 1}},
		TeacherCalendar: calendar,
	}
	rooms := []*Classroom{activeRoom("r1", 30, RoomTheory), activeRoom("r2", 30, RoomTheory)}

	result := runEngine(t, engineSettings(), []*Course{courseA, courseB}, rooms, Options{Seed: 3})
	require.Len(t, result.Schedule, 1)
	require.Len(t, result.Unscheduled, 1)
	assert.Contains(t, result.Unscheduled[0].Reason, string(ReasonTeacherConflict))
}

func TestRunSplitsLongSessionAcrossOneDay(t *testing.T) {
	// 16:00 end keeps the longest contiguous run at 3 blocks, so a 4-hour
	// session can only land as two same-day chunks.
	settings := engineSettings()
	settings.DayEnd = "16:00"

	course := &Course{
		ID: "lab-heavy", TeacherID: "t1",
		Cohorts:  []Cohort{{Department: "CS", Headcount: 25}},
		Sessions: []Session{{Type: SessionTheory, Hours: 4}},
	}
	rooms := []*Classroom{activeRoom("r1", 30, RoomTheory)}

	result := runEngine(t, settings, []*Course{course}, rooms, Options{Seed: 11, EnableSessionSplitting: true})
	require.Empty(t, result.Unscheduled)
	require.Len(t, result.Schedule, 2)
	assert.Equal(t, result.Schedule[0].Day, result.Schedule[1].Day, "chunks stay on one day")
	assert.Equal(t, 4, result.Schedule[0].SessionHours+result.Schedule[1].SessionHours)

	diag := result.Diagnostics["lab-heavy"]
	require.NotNil(t, diag)
	require.NotEmpty(t, diag.Sessions)
	assert.True(t, diag.Sessions[len(diag.Sessions)-1].SplitSucceeded)
}

func TestRunDeadlineReturnsPartialResult(t *testing.T) {
	pinned := &Course{
		ID: "pinned", TeacherID: "t9",
		Cohorts:   []Cohort{{Department: "CS", Headcount: 20}},
		Sessions:  []Session{{Type: SessionTheory, Hours: 1}},
		Hardcoded: []HardcodedPlacement{{Day: "Monday", Start: "09:00", Hours: 1, Type: SessionTheory}},
	}
	var courses []*Course
	courses = append(courses, pinned)
	for _, id := range []string{"c1", "c2", "c3"} {
		courses = append(courses, &Course{
			ID: id, TeacherID: "t-" + id,
			Cohorts:  []Cohort{{Department: "CS", Headcount: 20}},
			Sessions: []Session{{Type: SessionTheory, Hours: 2}},
		})
	}
	rooms := []*Classroom{activeRoom("r1", 30, RoomTheory)}

	result := runEngine(t, engineSettings(), courses, rooms, Options{Seed: 5, Timeout: time.Nanosecond})
	assert.True(t, result.TimedOut)
	assert.NotEmpty(t, result.Warnings)
	require.Len(t, result.Schedule, 1, "hardcoded placement survives the deadline")
	assert.True(t, result.Schedule[0].Hardcoded)
	assert.Len(t, result.Unscheduled, len(courses), "unprocessed tail is reported unscheduled")
	for _, unscheduled := range result.Unscheduled {
		assert.Equal(t, "not processed before deadline", unscheduled.Reason)
	}
}

func TestRunIsDeterministicForSameSeed(t *testing.T) {
	build := func() ([]*Course, []*Classroom) {
		courses := []*Course{}
		for _, spec := range []struct {
			id, teacher, dept string
			hours             int
		}{
			{"c1", "t1", "CS", 2}, {"c2", "t1", "CS", 1}, {"c3", "t2", "EE", 3},
			{"c4", "t2", "EE", 2}, {"c5", "t3", "ME", 2}, {"c6", "t3", "CS", 1},
		} {
			courses = append(courses, &Course{
				ID: spec.id, TeacherID: spec.teacher,
				Category: CategoryCompulsory, Level: 1, Semester: 1,
				Cohorts:  []Cohort{{Department: spec.dept, Headcount: 35}},
				Sessions: []Session{{Type: SessionTheory, Hours: spec.hours}},
			})
		}
		rooms := []*Classroom{
			activeRoom("r1", 45, RoomTheory),
			activeRoom("r2", 45, RoomTheory),
			activeRoom("r3", 120, RoomHybrid),
		}
		return courses, rooms
	}

	coursesA, roomsA := build()
	coursesB, roomsB := build()
	first := runEngine(t, engineSettings(), coursesA, roomsA, Options{Seed: 42})
	second := runEngine(t, engineSettings(), coursesB, roomsB, Options{Seed: 42})

	assert.Equal(t, first.Schedule, second.Schedule)
	assert.Equal(t, first.Unscheduled, second.Unscheduled)
	assert.Equal(t, first.SoftScore, second.SoftScore)
}

func TestRunOutputViolatesNoHardConstraints(t *testing.T) {
	var courses []*Course
	teachers := []string{"t1", "t2", "t1", "t3", "t2", "t1", "t3", "t2"}
	departments := []string{"CS", "CS", "EE", "EE", "ME", "ME", "CS", "EE"}
	for i := 0; i < 8; i++ {
		courses = append(courses, &Course{
			ID:        string(rune('a' + i)),
			TeacherID: teachers[i],
			Category:  CategoryCompulsory, Level: 1 + i%2, Semester: 1,
			Cohorts:  []Cohort{{Department: departments[i], Headcount: 30}},
			Sessions: []Session{{Type: SessionTheory, Hours: 1 + i%3}},
		})
	}
	rooms := []*Classroom{
		activeRoom("r1", 40, RoomTheory),
		activeRoom("r2", 40, RoomTheory),
		activeRoom("r3", 60, RoomHybrid),
	}

	result := runEngine(t, engineSettings(), courses, rooms, Options{Seed: 99})
	courseMap := make(map[string]*Course)
	for _, course := range courses {
		courseMap[course.ID] = course
	}

	for i := range result.Schedule {
		for j := i + 1; j < len(result.Schedule); j++ {
			a, b := result.Schedule[i], result.Schedule[j]
			if a.Day != b.Day || !rangesOverlap(a.TimeRange, b.TimeRange) {
				continue
			}
			ca, cb := courseMap[a.CourseID], courseMap[b.CourseID]
			assert.NotEqual(t, a.ClassroomID, b.ClassroomID, "classroom double-booked: %v vs %v", a, b)
			assert.NotEqual(t, ca.TeacherID, cb.TeacherID, "teacher double-booked: %v vs %v", a, b)
			if ca.IsCompulsory() && cb.IsCompulsory() && ca.Level == cb.Level && ca.Semester == cb.Semester {
				assert.False(t, sharesDepartment(ca, cb), "compulsory cohort overlap: %v vs %v", a, b)
			}
		}
	}
}

func TestRunRespectsCapacityAndConservation(t *testing.T) {
	courses := []*Course{
		{
			ID: "c1", TeacherID: "t1", CapacityMargin: 10,
			Cohorts:  []Cohort{{Department: "CS", Headcount: 44}},
			Sessions: []Session{{Type: SessionTheory, Hours: 2}, {Type: SessionLab, Hours: 2}},
			Hardcoded: []HardcodedPlacement{
				{Day: "Tuesday", Start: "09:00", Hours: 2, Type: SessionTheory},
			},
		},
	}
	rooms := []*Classroom{
		activeRoom("r1", 40, RoomTheory),
		activeRoom("lab1", 45, RoomLab),
	}

	result := runEngine(t, engineSettings(), courses, rooms, Options{Seed: 17})
	totalHours := 0
	for _, item := range result.Schedule {
		totalHours += item.SessionHours
		if item.ClassroomID == "" {
			continue
		}
		var room *Classroom
		for _, candidate := range rooms {
			if candidate.ID == item.ClassroomID {
				room = candidate
			}
		}
		require.NotNil(t, room)
		if !item.Hardcoded {
			assert.GreaterOrEqual(t, room.Capacity, courses[0].EffectiveHeadcount())
		}
	}
	assert.LessOrEqual(t, totalHours, courses[0].RequiredHours(), "scheduled hours never exceed required total")
}

func TestRunCombinedTheoryLabSharesDay(t *testing.T) {
	course := &Course{
		ID: "phys", TeacherID: "t1",
		Cohorts: []Cohort{{Department: "PH", Headcount: 24}},
		Sessions: []Session{
			{Type: SessionTheory, Hours: 2},
			{Type: SessionLab, Hours: 2},
		},
	}
	rooms := []*Classroom{
		activeRoom("hall", 30, RoomTheory),
		activeRoom("lab", 30, RoomLab),
	}

	result := runEngine(t, engineSettings(), []*Course{course}, rooms, Options{Seed: 23, EnableCombinedTheoryLab: true})
	require.Empty(t, result.Unscheduled)
	require.Len(t, result.Schedule, 2)
	assert.Equal(t, result.Schedule[0].Day, result.Schedule[1].Day, "theory and lab share one day")
}

func TestRunProgressSnapshotsArriveInStageOrder(t *testing.T) {
	courses := []*Course{}
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		courses = append(courses, &Course{
			ID: id, TeacherID: "t-" + id,
			Cohorts:  []Cohort{{Department: "CS", Headcount: 20}},
			Sessions: []Session{{Type: SessionTheory, Hours: 1}},
		})
	}
	rooms := []*Classroom{activeRoom("r1", 30, RoomTheory)}

	eng := New(engineSettings(), courses, rooms, Options{Seed: 1, ProgressEvery: 2}, zap.NewNop())
	done := make(chan []Snapshot)
	go func() {
		var snapshots []Snapshot
		for snapshot := range eng.Progress() {
			snapshots = append(snapshots, snapshot)
		}
		done <- snapshots
	}()

	result := eng.Run(context.Background())
	snapshots := <-done

	require.NotNil(t, result)
	require.NotEmpty(t, snapshots)
	assert.Equal(t, "hardcoded", snapshots[0].Stage)
	assert.Equal(t, "optimize", snapshots[len(snapshots)-1].Stage)
}

func TestParallelSelectorPicksBestAttempt(t *testing.T) {
	courses := []*Course{
		{
			ID: "c1", TeacherID: "t1",
			Cohorts:  []Cohort{{Department: "CS", Headcount: 30}},
			Sessions: []Session{{Type: SessionTheory, Hours: 2}},
		},
		{
			ID: "c2", TeacherID: "t2",
			Cohorts:  []Cohort{{Department: "EE", Headcount: 30}},
			Sessions: []Session{{Type: SessionTheory, Hours: 1}},
		},
	}
	rooms := []*Classroom{activeRoom("r1", 40, RoomTheory), activeRoom("r2", 40, RoomTheory)}

	selected := RunParallel(context.Background(), 3, engineSettings(), courses, rooms, Options{Seed: 100}, zap.NewNop())
	require.Len(t, selected.Attempts, 3)
	require.NotNil(t, selected.Best)
	for _, attempt := range selected.Attempts {
		assert.LessOrEqual(t, attempt.Score, selected.Best.Score)
	}
	assert.Empty(t, selected.Best.Result.Unscheduled)
}
