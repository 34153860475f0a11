package engine

import "sort"

// slotToken identifies one occupied block on one day.
type slotToken struct {
	Day   string
	Start string
}

// cohortKey identifies a compulsory cohort: courses sharing it may never
// overlap in time.
type cohortKey struct {
	Department string
	Level      int
	Semester   int
}

type checkKey struct {
	CourseID    string
	ClassroomID string
	Day         string
	TimeRange   string
}

// IndexStats exposes cache behaviour for diagnostics.
type IndexStats struct {
	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`
	Teachers    int    `json:"teachers"`
	Classrooms  int    `json:"classrooms"`
	Cohorts     int    `json:"cohorts"`
	Tokens      int    `json:"tokens"`
}

// ConflictIndex incrementally tracks which (day, block) tokens are occupied
// per teacher, classroom and compulsory cohort, so conflict checks never
// rescan the whole schedule. A single engine run owns its index exclusively.
type ConflictIndex struct {
	grid     []TimeBlock
	teachers map[string]map[slotToken]int
	rooms    map[string]map[slotToken]int
	cohorts  map[cohortKey]map[slotToken]int
	byToken  map[slotToken]map[string]int

	cache  map[checkKey]FailureReason
	hits   uint64
	misses uint64
}

// NewConflictIndex builds an empty index over the given time grid.
func NewConflictIndex(grid []TimeBlock) *ConflictIndex {
	return &ConflictIndex{
		grid:     grid,
		teachers: make(map[string]map[slotToken]int),
		rooms:    make(map[string]map[slotToken]int),
		cohorts:  make(map[cohortKey]map[slotToken]int),
		byToken:  make(map[slotToken]map[string]int),
		cache:    make(map[checkKey]FailureReason),
	}
}

func cohortKeysOf(course *Course) []cohortKey {
	if !course.IsCompulsory() {
		return nil
	}
	keys := make([]cohortKey, 0, len(course.Cohorts))
	for _, cohort := range course.Cohorts {
		keys = append(keys, cohortKey{Department: cohort.Department, Level: course.Level, Semester: course.Semester})
	}
	return keys
}

// tokensOf maps a (day, timeRange) onto the occupied grid tokens. Ranges
// that do not align with the grid fall back to per-block overlap testing so
// hardcoded placements still index correctly.
func (x *ConflictIndex) tokensOf(day, timeRange string) []slotToken {
	day = NormalizeDay(day)
	covered := blocksWithin(x.grid, timeRange)
	if len(covered) == 0 {
		start, end := splitRange(timeRange)
		if start < 0 || end <= start {
			return nil
		}
		for _, block := range x.grid {
			bs, be := minuteOf(block.Start), minuteOf(block.End)
			if bs < end && start < be {
				covered = append(covered, block)
			}
		}
	}
	tokens := make([]slotToken, 0, len(covered))
	for _, block := range covered {
		tokens = append(tokens, slotToken{Day: day, Start: block.Start})
	}
	return tokens
}

func bump[K comparable](set map[K]int, key K, delta int) {
	set[key] += delta
	if set[key] <= 0 {
		delete(set, key)
	}
}

// AddScheduleItem registers a placement in all applicable indices and drops
// the memoized check cache.
func (x *ConflictIndex) AddScheduleItem(course *Course, item ScheduleItem) {
	x.apply(course, item, 1)
}

// RemoveScheduleItem reverses AddScheduleItem for the same item, restoring
// every index to its pre-add state.
func (x *ConflictIndex) RemoveScheduleItem(course *Course, item ScheduleItem) {
	x.apply(course, item, -1)
}

func (x *ConflictIndex) apply(course *Course, item ScheduleItem, delta int) {
	tokens := x.tokensOf(item.Day, item.TimeRange)
	for _, token := range tokens {
		if course.TeacherID != "" {
			if x.teachers[course.TeacherID] == nil {
				x.teachers[course.TeacherID] = make(map[slotToken]int)
			}
			bump(x.teachers[course.TeacherID], token, delta)
			if len(x.teachers[course.TeacherID]) == 0 {
				delete(x.teachers, course.TeacherID)
			}
		}
		if item.ClassroomID != "" {
			if x.rooms[item.ClassroomID] == nil {
				x.rooms[item.ClassroomID] = make(map[slotToken]int)
			}
			bump(x.rooms[item.ClassroomID], token, delta)
			if len(x.rooms[item.ClassroomID]) == 0 {
				delete(x.rooms, item.ClassroomID)
			}
		}
		for _, key := range cohortKeysOf(course) {
			if x.cohorts[key] == nil {
				x.cohorts[key] = make(map[slotToken]int)
			}
			bump(x.cohorts[key], token, delta)
			if len(x.cohorts[key]) == 0 {
				delete(x.cohorts, key)
			}
		}
		if x.byToken[token] == nil {
			x.byToken[token] = make(map[string]int)
		}
		bump(x.byToken[token], item.CourseID, delta)
		if len(x.byToken[token]) == 0 {
			delete(x.byToken, token)
		}
	}
	// Any mutation invalidates memoized results.
	if len(x.cache) > 0 {
		x.cache = make(map[checkKey]FailureReason)
	}
}

// CoursesAt returns the ids of courses occupying a token, for diagnostics.
func (x *ConflictIndex) CoursesAt(day, blockStart string) []string {
	token := slotToken{Day: NormalizeDay(day), Start: blockStart}
	ids := make([]string, 0, len(x.byToken[token]))
	for id := range x.byToken[token] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CheckConflicts reports the first applicable conflict for placing the
// course into (day, timeRange) using classroomID. Precedence is teacher,
// then classroom, then department cohort. An empty reason means no conflict.
// Results are memoized until the next index mutation.
func (x *ConflictIndex) CheckConflicts(course *Course, classroomID, day, timeRange string) FailureReason {
	key := checkKey{CourseID: course.ID, ClassroomID: classroomID, Day: NormalizeDay(day), TimeRange: timeRange}
	if reason, ok := x.cache[key]; ok {
		x.hits++
		return reason
	}
	x.misses++
	reason := x.check(course, classroomID, key.Day, timeRange)
	x.cache[key] = reason
	return reason
}

func (x *ConflictIndex) check(course *Course, classroomID, day, timeRange string) FailureReason {
	tokens := x.tokensOf(day, timeRange)
	if course.TeacherID != "" {
		occupied := x.teachers[course.TeacherID]
		for _, token := range tokens {
			if occupied[token] > 0 {
				return ReasonTeacherConflict
			}
		}
	}
	if classroomID != "" {
		occupied := x.rooms[classroomID]
		for _, token := range tokens {
			if occupied[token] > 0 {
				return ReasonClassroomConflict
			}
		}
	}
	for _, key := range cohortKeysOf(course) {
		occupied := x.cohorts[key]
		for _, token := range tokens {
			if occupied[token] > 0 {
				return ReasonDepartmentConflict
			}
		}
	}
	return ""
}

// RoomFree reports whether a classroom is unoccupied across the range.
func (x *ConflictIndex) RoomFree(classroomID, day, timeRange string) bool {
	occupied := x.rooms[classroomID]
	if len(occupied) == 0 {
		return true
	}
	for _, token := range x.tokensOf(day, timeRange) {
		if occupied[token] > 0 {
			return false
		}
	}
	return true
}

// Stats snapshots index and cache counters.
func (x *ConflictIndex) Stats() IndexStats {
	return IndexStats{
		CacheHits:   x.hits,
		CacheMisses: x.misses,
		Teachers:    len(x.teachers),
		Classrooms:  len(x.rooms),
		Cohorts:     len(x.cohorts),
		Tokens:      len(x.byToken),
	}
}
