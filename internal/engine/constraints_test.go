package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeRoom(id string, capacity int, roomType RoomType) *Classroom {
	return &Classroom{ID: id, Capacity: capacity, Type: roomType, Active: true}
}

func TestFindSuitableClassroomPrefersIdealUtilization(t *testing.T) {
	course := &Course{ID: "c1", Cohorts: []Cohort{{Department: "CS", Headcount: 40}}}
	rooms := []*Classroom{
		activeRoom("huge", 300, RoomTheory),
		activeRoom("snug", 50, RoomTheory),
		activeRoom("tight", 39, RoomTheory),
	}
	grid := BuildTimeGrid(Settings{SlotDuration: 60, DayStart: "09:00", DayEnd: "12:00"})

	room, ok := FindSuitableClassroom(course, SessionTheory, rooms, "Monday", grid[:2], nil, DefaultUtilizationBand)
	require.True(t, ok)
	assert.Equal(t, "snug", room.ID, "40/50 = 80%% sits in the ideal band")
}

func TestFindSuitableClassroomAppliesCapacityMargin(t *testing.T) {
	// 50 students with a 20% margin need only 40 seats.
	course := &Course{ID: "c1", CapacityMargin: 20, Cohorts: []Cohort{{Department: "CS", Headcount: 50}}}
	rooms := []*Classroom{activeRoom("r40", 40, RoomTheory)}
	grid := BuildTimeGrid(Settings{SlotDuration: 60, DayStart: "09:00", DayEnd: "12:00"})

	room, ok := FindSuitableClassroom(course, SessionTheory, rooms, "Monday", grid[:1], nil, DefaultUtilizationBand)
	require.True(t, ok)
	assert.Equal(t, "r40", room.ID)

	course.CapacityMargin = 0
	_, ok = FindSuitableClassroom(course, SessionTheory, rooms, "Monday", grid[:1], nil, DefaultUtilizationBand)
	assert.False(t, ok)
}

func TestFindSuitableClassroomTypeCompatibility(t *testing.T) {
	course := &Course{ID: "c1", Cohorts: []Cohort{{Department: "CS", Headcount: 20}}}
	labOnly := []*Classroom{activeRoom("lab", 30, RoomLab)}
	hybrid := []*Classroom{activeRoom("hyb", 30, RoomHybrid)}
	grid := BuildTimeGrid(Settings{SlotDuration: 60, DayStart: "09:00", DayEnd: "12:00"})

	_, ok := FindSuitableClassroom(course, SessionTheory, labOnly, "Monday", grid[:1], nil, DefaultUtilizationBand)
	assert.False(t, ok, "theory must reject lab-only rooms")

	_, ok = FindSuitableClassroom(course, SessionLab, labOnly, "Monday", grid[:1], nil, DefaultUtilizationBand)
	assert.True(t, ok)

	_, ok = FindSuitableClassroom(course, SessionLab, hybrid, "Monday", grid[:1], nil, DefaultUtilizationBand)
	assert.True(t, ok, "hybrid rooms host lab sessions")
}

func TestFindSuitableClassroomHonoursRoomCalendarAndOccupancy(t *testing.T) {
	course := &Course{ID: "c1", Cohorts: []Cohort{{Department: "CS", Headcount: 20}}}
	room := activeRoom("r1", 25, RoomTheory)
	room.Calendar = Calendar{"Monday": {{Start: "09:00", End: "11:00"}}}
	grid := BuildTimeGrid(Settings{SlotDuration: 60, DayStart: "09:00", DayEnd: "13:00"})

	_, ok := FindSuitableClassroom(course, SessionTheory, []*Classroom{room}, "Tuesday", grid[:1], nil, DefaultUtilizationBand)
	assert.False(t, ok, "room calendar restricts to Monday")

	idx := NewConflictIndex(grid)
	idx.AddScheduleItem(compulsoryCourse("other", "t9", "EE"), ScheduleItem{CourseID: "other", ClassroomID: "r1", Day: "Monday", TimeRange: "09:00-10:00"})
	_, ok = FindSuitableClassroom(course, SessionTheory, []*Classroom{room}, "Monday", grid[:1], idx, DefaultUtilizationBand)
	assert.False(t, ok, "occupied room must be skipped")

	_, ok = FindSuitableClassroom(course, SessionTheory, []*Classroom{room}, "Monday", grid[1:2], idx, DefaultUtilizationBand)
	assert.True(t, ok)
}

func TestFindSuitableClassroomDepartmentPriorityBreaksTies(t *testing.T) {
	course := &Course{ID: "c1", Cohorts: []Cohort{{Department: "CS", Headcount: 40}}}
	preferred := activeRoom("cs-room", 50, RoomTheory)
	preferred.PriorityDepartment = "CS"
	plain := activeRoom("plain", 50, RoomTheory)
	grid := BuildTimeGrid(Settings{SlotDuration: 60, DayStart: "09:00", DayEnd: "12:00"})

	room, ok := FindSuitableClassroom(course, SessionTheory, []*Classroom{plain, preferred}, "Monday", grid[:1], nil, DefaultUtilizationBand)
	require.True(t, ok)
	assert.Equal(t, "cs-room", room.ID)
}

func TestDifficultyOrdersScarceCoursesFirst(t *testing.T) {
	rooms := []*Classroom{
		activeRoom("small", 30, RoomTheory),
		activeRoom("large", 200, RoomTheory),
	}
	scarce := &Course{ID: "big", Sessions: []Session{{Type: SessionTheory, Hours: 3}}, Cohorts: []Cohort{{Department: "CS", Headcount: 150}}}
	easy := &Course{ID: "small", Sessions: []Session{{Type: SessionTheory, Hours: 1}}, Cohorts: []Cohort{{Department: "CS", Headcount: 20}}}

	assert.Greater(t,
		Difficulty(scarce, rooms, DefaultDifficultyWeights),
		Difficulty(easy, rooms, DefaultDifficultyWeights),
	)
}

func TestHasConflictDetectsTeacherAndCohortOverlap(t *testing.T) {
	courses := map[string]*Course{
		"a": compulsoryCourse("a", "t1", "CS"),
		"b": compulsoryCourse("b", "t1", "EE"),
		"c": compulsoryCourse("c", "t2", "CS"),
		"d": {ID: "d", TeacherID: "t3", Category: "elective", Cohorts: []Cohort{{Department: "CS"}}, Level: 2, Semester: 1},
	}
	schedule := []ScheduleItem{
		{CourseID: "a", ClassroomID: "r1", Day: "Monday", TimeRange: "09:00-11:00"},
	}

	assert.True(t, HasConflict(schedule, ScheduleItem{CourseID: "b", ClassroomID: "r2", Day: "Monday", TimeRange: "10:00-11:00"}, courses), "shared teacher")
	assert.True(t, HasConflict(schedule, ScheduleItem{CourseID: "c", ClassroomID: "r2", Day: "Monday", TimeRange: "10:00-11:00"}, courses), "shared compulsory cohort")
	assert.True(t, HasConflict(schedule, ScheduleItem{CourseID: "c", ClassroomID: "r1", Day: "Monday", TimeRange: "10:00-11:00"}, courses), "shared classroom")
	assert.False(t, HasConflict(schedule, ScheduleItem{CourseID: "d", ClassroomID: "r2", Day: "Monday", TimeRange: "10:00-11:00"}, courses), "elective does not join cohort exclusion")
	assert.False(t, HasConflict(schedule, ScheduleItem{CourseID: "c", ClassroomID: "r2", Day: "Monday", TimeRange: "11:00-12:00"}, courses), "adjacent ranges do not overlap")
}
