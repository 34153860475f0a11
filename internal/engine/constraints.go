package engine

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// UtilizationBand is the capacity-fill window classrooms are ranked toward.
type UtilizationBand struct {
	Low  float64
	High float64
}

// DefaultUtilizationBand keeps rooms between 70% and 90% full.
var DefaultUtilizationBand = UtilizationBand{Low: 0.7, High: 0.9}

// utilizationScore peaks inside the ideal band and heavily penalises rooms
// that cannot seat the course at all.
func utilizationScore(headcount, capacity int, band UtilizationBand) float64 {
	if capacity <= 0 {
		return -1000
	}
	ratio := float64(headcount) / float64(capacity)
	switch {
	case ratio > 1:
		return -500 * (ratio - 1)
	case ratio >= band.Low && ratio <= band.High:
		return 100
	case ratio > band.High:
		return 100 - 200*(ratio-band.High)
	default:
		return 100 * ratio / band.Low
	}
}

// FindSuitableClassroom selects the best room for a session occupying the
// given block run. Rooms must be active, type-compatible, large enough for
// the margin-adjusted headcount, available on every block and unoccupied
// across the range. Survivors are ranked by utilization closeness, then
// department priority, then smallest adequate capacity.
func FindSuitableClassroom(
	course *Course,
	sessionType SessionType,
	rooms []*Classroom,
	day string,
	blocks []TimeBlock,
	idx *ConflictIndex,
	band UtilizationBand,
) (*Classroom, bool) {
	if band.Low <= 0 || band.High <= band.Low {
		band = DefaultUtilizationBand
	}
	needed := course.EffectiveHeadcount()
	timeRange := rangeOf(blocks)
	department := ""
	if len(course.Cohorts) > 0 {
		department = course.Cohorts[0].Department
	}

	candidates := lo.Filter(rooms, func(room *Classroom, _ int) bool {
		if !room.Active || !room.suits(sessionType) || room.Capacity < needed {
			return false
		}
		if !room.Calendar.AllowsRun(day, blocks) {
			return false
		}
		return idx == nil || idx.RoomFree(room.ID, day, timeRange)
	})
	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si := utilizationScore(needed, candidates[i].Capacity, band)
		sj := utilizationScore(needed, candidates[j].Capacity, band)
		if si != sj {
			return si > sj
		}
		pi := candidates[i].PriorityDepartment == department && department != ""
		pj := candidates[j].PriorityDepartment == department && department != ""
		if pi != pj {
			return pi
		}
		if candidates[i].Capacity != candidates[j].Capacity {
			return candidates[i].Capacity < candidates[j].Capacity
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}

// matchingRoomCount counts rooms that could ever host the course's largest
// session, ignoring occupancy. Used by Difficulty.
func matchingRoomCount(course *Course, rooms []*Classroom) int {
	needed := course.EffectiveHeadcount()
	count := 0
	for _, room := range rooms {
		if !room.Active || room.Capacity < needed {
			continue
		}
		ok := false
		for _, session := range course.Sessions {
			if room.suits(session.Type) {
				ok = true
				break
			}
		}
		if ok || len(course.Sessions) == 0 {
			count++
		}
	}
	return count
}

// DifficultyWeights tune the schedule-order priority score.
type DifficultyWeights struct {
	Headcount    float64
	RoomScarcity float64
	Duration     float64
}

// DefaultDifficultyWeights is the baseline before adaptive tuning.
var DefaultDifficultyWeights = DifficultyWeights{Headcount: 1, RoomScarcity: 120, Duration: 10}

// Difficulty scores how hard a course is to place: large enrolments, few
// viable rooms and long sessions all push it earlier in the ordering.
func Difficulty(course *Course, rooms []*Classroom, weights DifficultyWeights) float64 {
	if weights == (DifficultyWeights{}) {
		weights = DefaultDifficultyWeights
	}
	score := weights.Headcount * float64(course.Headcount())
	matches := matchingRoomCount(course, rooms)
	score += weights.RoomScarcity / float64(matches+1)
	if len(course.Sessions) > 0 {
		total := 0
		for _, session := range course.Sessions {
			total += session.Hours
		}
		score += weights.Duration * float64(total) / float64(len(course.Sessions))
	}
	return score
}

// HasConflict is the O(n) reference check used by the optimizers where a
// full index rebuild would be wasteful: it scans the schedule for same-day
// overlaps sharing the candidate's teacher, classroom or compulsory cohort.
func HasConflict(schedule []ScheduleItem, candidate ScheduleItem, courses map[string]*Course) bool {
	course := courses[candidate.CourseID]
	for i := range schedule {
		other := &schedule[i]
		if other.CourseID == candidate.CourseID && other.TimeRange == candidate.TimeRange && other.Day == candidate.Day {
			continue
		}
		if NormalizeDay(other.Day) != NormalizeDay(candidate.Day) {
			continue
		}
		if !rangesOverlap(other.TimeRange, candidate.TimeRange) {
			continue
		}
		if other.ClassroomID != "" && other.ClassroomID == candidate.ClassroomID {
			return true
		}
		otherCourse := courses[other.CourseID]
		if course == nil || otherCourse == nil {
			continue
		}
		if course.TeacherID != "" && course.TeacherID == otherCourse.TeacherID {
			return true
		}
		if course.IsCompulsory() && otherCourse.IsCompulsory() &&
			course.Level == otherCourse.Level && course.Semester == otherCourse.Semester &&
			sharesDepartment(course, otherCourse) {
			return true
		}
	}
	return false
}

func sharesDepartment(a, b *Course) bool {
	for _, ca := range a.Cohorts {
		for _, cb := range b.Cohorts {
			if ca.Department == cb.Department {
				return true
			}
		}
	}
	return false
}

// stddev over per-teacher load hours; teachers with no load are ignored.
// Keys are accumulated in sorted order so rounding never depends on map
// iteration order.
func loadStddev(loads map[string]int) float64 {
	if len(loads) == 0 {
		return 0
	}
	keys := lo.Keys(loads)
	sort.Strings(keys)
	sum := 0.0
	for _, key := range keys {
		sum += float64(loads[key])
	}
	mean := sum / float64(len(keys))
	variance := 0.0
	for _, key := range keys {
		diff := float64(loads[key]) - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(keys)))
}
