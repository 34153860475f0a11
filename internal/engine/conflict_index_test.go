package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexFixture() (*ConflictIndex, []TimeBlock) {
	grid := BuildTimeGrid(Settings{SlotDuration: 60, DayStart: "09:00", DayEnd: "13:00"})
	return NewConflictIndex(grid), grid
}

func compulsoryCourse(id, teacher, department string) *Course {
	return &Course{
		ID:        id,
		TeacherID: teacher,
		Level:     2,
		Semester:  1,
		Category:  CategoryCompulsory,
		Cohorts:   []Cohort{{Department: department, Headcount: 30}},
	}
}

func TestConflictIndexAddRemoveIsIdempotent(t *testing.T) {
	idx, _ := indexFixture()
	course := compulsoryCourse("c1", "t1", "CS")
	item := ScheduleItem{CourseID: "c1", ClassroomID: "r1", Day: "Monday", TimeRange: "09:00-11:00", SessionHours: 2}

	idx.AddScheduleItem(course, item)
	idx.RemoveScheduleItem(course, item)

	stats := idx.Stats()
	assert.Zero(t, stats.Teachers, "teacher index leaked keys")
	assert.Zero(t, stats.Classrooms, "classroom index leaked keys")
	assert.Zero(t, stats.Cohorts, "cohort index leaked keys")
	assert.Zero(t, stats.Tokens, "reverse index leaked keys")
	assert.Empty(t, idx.CheckConflicts(course, "r1", "Monday", "09:00-11:00"))
}

func TestConflictIndexTeacherPrecedesClassroomAndDepartment(t *testing.T) {
	idx, _ := indexFixture()
	placed := compulsoryCourse("c1", "t1", "CS")
	idx.AddScheduleItem(placed, ScheduleItem{CourseID: "c1", ClassroomID: "r1", Day: "Monday", TimeRange: "09:00-10:00"})

	// Same teacher, same room, same cohort: teacher wins.
	rival := compulsoryCourse("c2", "t1", "CS")
	assert.Equal(t, ReasonTeacherConflict, idx.CheckConflicts(rival, "r1", "Monday", "09:00-10:00"))

	// Different teacher, same room: classroom wins over department.
	rival2 := compulsoryCourse("c3", "t2", "CS")
	assert.Equal(t, ReasonClassroomConflict, idx.CheckConflicts(rival2, "r1", "Monday", "09:00-10:00"))

	// Different teacher and room, shared compulsory cohort.
	rival3 := compulsoryCourse("c4", "t3", "CS")
	assert.Equal(t, ReasonDepartmentConflict, idx.CheckConflicts(rival3, "r2", "Monday", "09:00-10:00"))
}

func TestConflictIndexNormalizesDayVariants(t *testing.T) {
	idx, _ := indexFixture()
	course := compulsoryCourse("c1", "t1", "CS")
	idx.AddScheduleItem(course, ScheduleItem{CourseID: "c1", ClassroomID: "r1", Day: "MONDAY", TimeRange: "09:00-10:00"})

	rival := compulsoryCourse("c2", "t1", "EE")
	assert.Equal(t, ReasonTeacherConflict, idx.CheckConflicts(rival, "", "mon", "09:00-10:00"))
}

func TestConflictIndexNonOverlappingRangesDoNotConflict(t *testing.T) {
	idx, _ := indexFixture()
	course := compulsoryCourse("c1", "t1", "CS")
	idx.AddScheduleItem(course, ScheduleItem{CourseID: "c1", ClassroomID: "r1", Day: "Monday", TimeRange: "09:00-10:00"})

	rival := compulsoryCourse("c2", "t1", "CS")
	assert.Empty(t, idx.CheckConflicts(rival, "r1", "Monday", "10:00-11:00"))
	assert.Empty(t, idx.CheckConflicts(rival, "r1", "Tuesday", "09:00-10:00"))
}

func TestConflictIndexCacheInvalidatedOnMutation(t *testing.T) {
	idx, _ := indexFixture()
	course := compulsoryCourse("c1", "t1", "CS")

	require.Empty(t, idx.CheckConflicts(course, "r1", "Monday", "09:00-10:00"))
	require.Empty(t, idx.CheckConflicts(course, "r1", "Monday", "09:00-10:00"))
	stats := idx.Stats()
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(1), stats.CacheMisses)

	rival := compulsoryCourse("c2", "t1", "CS")
	idx.AddScheduleItem(rival, ScheduleItem{CourseID: "c2", ClassroomID: "r1", Day: "Monday", TimeRange: "09:00-10:00"})

	// The cached empty result must not survive the mutation.
	assert.Equal(t, ReasonTeacherConflict, idx.CheckConflicts(course, "r1", "Monday", "09:00-10:00"))
	assert.Equal(t, uint64(2), idx.Stats().CacheMisses)
}

func TestConflictIndexCoursesAt(t *testing.T) {
	idx, _ := indexFixture()
	idx.AddScheduleItem(compulsoryCourse("beta", "t1", "CS"), ScheduleItem{CourseID: "beta", Day: "Monday", TimeRange: "09:00-10:00"})
	idx.AddScheduleItem(compulsoryCourse("alpha", "t2", "EE"), ScheduleItem{CourseID: "alpha", Day: "Monday", TimeRange: "09:00-10:00"})
	assert.Equal(t, []string{"alpha", "beta"}, idx.CoursesAt("Monday", "09:00"))
}
