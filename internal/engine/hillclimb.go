package engine

import (
	"math/rand"
	"time"
)

// HillClimbParams bound the swap-based improvement pass.
type HillClimbParams struct {
	MaxIterations int
	MaxStale      int
}

// DefaultHillClimbParams is the baseline before adaptive tuning.
func DefaultHillClimbParams() HillClimbParams {
	return HillClimbParams{MaxIterations: 600, MaxStale: 120}
}

// HillClimb repeatedly swaps the (day, timeRange) of two random
// non-hardcoded placements and keeps the swap when it does not lower the
// soft score and introduces no hard-constraint violation. It stops after
// MaxStale non-improving iterations or when the deadline passes.
func HillClimb(
	schedule []ScheduleItem,
	courses map[string]*Course,
	rooms map[string]*Classroom,
	grid []TimeBlock,
	idx *ConflictIndex,
	rng *rand.Rand,
	scoreParams ScoreParams,
	params HillClimbParams,
	deadline time.Time,
) []ScheduleItem {
	if params.MaxIterations <= 0 {
		params = DefaultHillClimbParams()
	}
	movable := movableIndices(schedule)
	if len(movable) < 2 {
		return schedule
	}

	current := SoftScore(schedule, courses, rooms, scoreParams)
	stale := 0
	for iter := 0; iter < params.MaxIterations; iter++ {
		if stale >= params.MaxStale || time.Now().After(deadline) {
			break
		}
		i := movable[rng.Intn(len(movable))]
		j := movable[rng.Intn(len(movable))]
		if i == j {
			stale++
			continue
		}
		if !trySwap(schedule, i, j, courses, rooms, grid, idx) {
			stale++
			continue
		}
		next := SoftScore(schedule, courses, rooms, scoreParams)
		if next < current {
			// Revert: the swap is symmetric.
			swapSlots(schedule, i, j, courses, idx)
			stale++
			continue
		}
		if next > current {
			stale = 0
		} else {
			stale++
		}
		current = next
	}
	return schedule
}

func movableIndices(schedule []ScheduleItem) []int {
	indices := make([]int, 0, len(schedule))
	for i := range schedule {
		if !schedule[i].Hardcoded {
			indices = append(indices, i)
		}
	}
	return indices
}

// trySwap exchanges day/time between two placements when both remain valid
// in their new slots. Durations must match so the block count is preserved.
func trySwap(
	schedule []ScheduleItem,
	i, j int,
	courses map[string]*Course,
	rooms map[string]*Classroom,
	grid []TimeBlock,
	idx *ConflictIndex,
) bool {
	a, b := &schedule[i], &schedule[j]
	if a.SessionHours != b.SessionHours {
		return false
	}
	courseA, courseB := courses[a.CourseID], courses[b.CourseID]
	if courseA == nil || courseB == nil {
		return false
	}

	blocksA := blocksWithin(grid, a.TimeRange)
	blocksB := blocksWithin(grid, b.TimeRange)
	if len(blocksA) == 0 || len(blocksB) == 0 {
		return false
	}

	// Validate each item in the other's slot: teacher calendar, target
	// classroom availability, and hard constraints via the reference check.
	if !courseA.TeacherCalendar.AllowsRun(b.Day, blocksB) || !courseB.TeacherCalendar.AllowsRun(a.Day, blocksA) {
		return false
	}
	if roomA := rooms[a.ClassroomID]; roomA != nil && !roomA.Calendar.AllowsRun(b.Day, blocksB) {
		return false
	}
	if roomB := rooms[b.ClassroomID]; roomB != nil && !roomB.Calendar.AllowsRun(a.Day, blocksA) {
		return false
	}

	swapSlots(schedule, i, j, courses, idx)

	rest := make([]ScheduleItem, 0, len(schedule)-2)
	for k := range schedule {
		if k != i && k != j {
			rest = append(rest, schedule[k])
		}
	}
	if HasConflict(rest, schedule[i], courses) || HasConflict(append(rest, schedule[i]), schedule[j], courses) {
		swapSlots(schedule, i, j, courses, idx)
		return false
	}
	return true
}

// swapSlots exchanges (day, timeRange) wholesale between two items, keeping
// the conflict index in step.
func swapSlots(schedule []ScheduleItem, i, j int, courses map[string]*Course, idx *ConflictIndex) {
	a, b := schedule[i], schedule[j]
	if idx != nil {
		idx.RemoveScheduleItem(courses[a.CourseID], a)
		idx.RemoveScheduleItem(courses[b.CourseID], b)
	}
	schedule[i].Day, schedule[j].Day = b.Day, a.Day
	schedule[i].TimeRange, schedule[j].TimeRange = b.TimeRange, a.TimeRange
	if idx != nil {
		idx.AddScheduleItem(courses[schedule[i].CourseID], schedule[i])
		idx.AddScheduleItem(courses[schedule[j].CourseID], schedule[j])
	}
}
