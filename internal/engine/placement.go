package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options govern one engine run. Zero values fall back to sane defaults so
// callers only set what they care about.
type Options struct {
	Seed                    int64
	Timeout                 time.Duration
	EnableSessionSplitting  bool
	EnableCombinedTheoryLab bool
	EnableBacktracking      bool
	MaxAttemptsPerCourse    int
	Band                    UtilizationBand
	Weights                 DifficultyWeights
	Score                   ScoreParams
	HillClimb               HillClimbParams
	ProgressEvery           int
}

func (o Options) withDefaults() Options {
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Band.High <= o.Band.Low {
		o.Band = DefaultUtilizationBand
	}
	if o.Weights == (DifficultyWeights{}) {
		o.Weights = DefaultDifficultyWeights
	}
	if o.Score.Band.High <= o.Score.Band.Low {
		o.Score = DefaultScoreParams()
	}
	if o.HillClimb.MaxIterations <= 0 {
		o.HillClimb = DefaultHillClimbParams()
	}
	if o.MaxAttemptsPerCourse <= 0 {
		o.MaxAttemptsPerCourse = 400
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 5
	}
	return o
}

// Result is everything one run produces. The schedule is ordered by day,
// then start time, then course id, so identical seeds yield identical bytes.
type Result struct {
	Schedule    []ScheduleItem                `json:"schedule"`
	Unscheduled []UnscheduledCourse           `json:"unscheduled"`
	Metrics     Metrics                       `json:"metrics"`
	Diagnostics map[string]*CourseDiagnostics `json:"diagnostics,omitempty"`
	IndexStats  IndexStats                    `json:"index_stats"`
	Warnings    []string                      `json:"warnings,omitempty"`
	Seed        int64                         `json:"seed"`
	SoftScore   float64                       `json:"soft_score"`
	TimedOut    bool                          `json:"timed_out"`
	Elapsed     time.Duration                 `json:"elapsed"`
}

// Engine runs the greedy-with-fallback placement over one problem instance.
// A single run is single-threaded; it owns its index, RNG and schedule
// exclusively. Concurrency only exists across independent runs.
type Engine struct {
	settings Settings
	grid     []TimeBlock
	courses  []*Course
	rooms    []*Classroom
	opts     Options
	logger   *zap.Logger

	rng        *rand.Rand
	idx        *ConflictIndex
	progress   *progressSink
	tracker    *AttemptTracker
	courseByID map[string]*Course
	roomByID   map[string]*Classroom

	schedule       []ScheduleItem
	teacherLoads   map[string]int
	scheduledHours map[string]int
	diagnostics    map[string]*CourseDiagnostics
}

// New prepares an engine run. Inputs are treated as read-only.
func New(settings Settings, courses []*Course, rooms []*Classroom, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	grid := BuildTimeGrid(settings)

	e := &Engine{
		settings:       settings,
		grid:           grid,
		courses:        courses,
		rooms:          rooms,
		opts:           opts,
		logger:         logger,
		rng:            rand.New(rand.NewSource(opts.Seed)),
		idx:            NewConflictIndex(grid),
		progress:       newProgressSink(),
		courseByID:     make(map[string]*Course, len(courses)),
		roomByID:       make(map[string]*Classroom, len(rooms)),
		teacherLoads:   make(map[string]int),
		scheduledHours: make(map[string]int),
		diagnostics:    make(map[string]*CourseDiagnostics),
	}
	for _, course := range courses {
		e.courseByID[course.ID] = course
	}
	for _, room := range rooms {
		e.roomByID[room.ID] = room
	}
	if opts.EnableBacktracking {
		e.tracker = NewAttemptTracker(opts.MaxAttemptsPerCourse)
	}
	return e
}

// Progress exposes the snapshot stream. It is closed when Run returns, so
// callers may drain it eagerly or from a worker goroutine.
func (e *Engine) Progress() <-chan Snapshot {
	return e.progress.ch
}

// Run executes the full pipeline: hardcoded placements, greedy placement
// with fallbacks, then local search. It always returns a result; a tripped
// deadline truncates the run and surfaces a warning instead of an error.
func (e *Engine) Run(ctx context.Context) *Result {
	start := time.Now()
	deadline := start.Add(e.opts.Timeout)
	defer e.progress.close()

	result := &Result{Seed: e.opts.Seed, Diagnostics: e.diagnostics}

	if len(e.grid) == 0 {
		result.Warnings = append(result.Warnings, "time grid is empty; check timetable settings")
		result.Elapsed = time.Since(start)
		return result
	}

	e.progress.push(Snapshot{Stage: "hardcoded", Message: "placing pinned sessions"})
	e.placeHardcoded(result)

	ordered := e.orderCourses()
	e.progress.push(Snapshot{Stage: "placement", Message: fmt.Sprintf("placing %d courses", len(ordered))})

	for i, course := range ordered {
		if expired(ctx, deadline) {
			result.TimedOut = true
			result.Warnings = append(result.Warnings, fmt.Sprintf("deadline reached after %d of %d courses", i, len(ordered)))
			for _, remaining := range ordered[i:] {
				result.Unscheduled = append(result.Unscheduled, UnscheduledCourse{
					CourseID: remaining.ID,
					Reason:   "not processed before deadline",
				})
			}
			break
		}
		e.placeCourse(course, result)
		if (i+1)%e.opts.ProgressEvery == 0 || i == len(ordered)-1 {
			e.progress.push(Snapshot{
				Stage:         "placement",
				Percent:       float64(i+1) / float64(len(ordered)) * 100,
				Message:       fmt.Sprintf("processed %d/%d courses", i+1, len(ordered)),
				CurrentCourse: course.ID,
				Placed:        len(e.schedule),
				Unscheduled:   len(result.Unscheduled),
			})
		}
	}

	e.progress.push(Snapshot{Stage: "optimize", Percent: 100, Message: "running local search", Placed: len(e.schedule)})
	improved := HillClimb(e.schedule, e.courseByID, e.roomByID, e.grid, e.idx, e.rng, e.opts.Score, e.opts.HillClimb, deadline)
	e.schedule = improved

	e.finalize(result, start)
	e.logger.Info("engine run finished",
		zap.Int64("seed", result.Seed),
		zap.Int("placed", len(result.Schedule)),
		zap.Int("unscheduled", len(result.Unscheduled)),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result
}

func expired(ctx context.Context, deadline time.Time) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	return time.Now().After(deadline)
}

func (e *Engine) finalize(result *Result, start time.Time) {
	sort.SliceStable(e.schedule, func(i, j int) bool {
		a, b := e.schedule[i], e.schedule[j]
		if da, db := dayOrdinal(a.Day), dayOrdinal(b.Day); da != db {
			return da < db
		}
		as, _ := splitRange(a.TimeRange)
		bs, _ := splitRange(b.TimeRange)
		if as != bs {
			return as < bs
		}
		return a.CourseID < b.CourseID
	})
	result.Schedule = e.schedule
	result.Metrics = ComputeMetrics(e.schedule, e.courseByID, e.roomByID)
	result.SoftScore = SoftScore(e.schedule, e.courseByID, e.roomByID, e.opts.Score)
	result.IndexStats = e.idx.Stats()
	result.Elapsed = time.Since(start)
}

func dayOrdinal(day string) int {
	normalized := NormalizeDay(day)
	for i, name := range Days {
		if name == normalized {
			return i
		}
	}
	return len(Days)
}

// placeHardcoded pushes every pinned session verbatim, resolving a room by
// type when none was pinned, and records the hours already satisfied.
func (e *Engine) placeHardcoded(result *Result) {
	for _, course := range e.courses {
		for _, pin := range course.Hardcoded {
			hours := pin.Hours
			if hours <= 0 {
				hours = 1
			}
			blocks := e.runAt(pin.Start, hours)
			if len(blocks) == 0 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("course %s: hardcoded slot %s %s does not fit the grid", course.ID, pin.Day, pin.Start))
				continue
			}
			roomID := pin.ClassroomID
			if roomID == "" {
				room, ok := FindSuitableClassroom(course, pin.Type, e.rooms, pin.Day, blocks, e.idx, e.opts.Band)
				if !ok {
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("course %s: no classroom for hardcoded slot %s %s", course.ID, pin.Day, pin.Start))
					continue
				}
				roomID = room.ID
			}
			item := ScheduleItem{
				CourseID:     course.ID,
				ClassroomID:  roomID,
				Day:          NormalizeDay(pin.Day),
				TimeRange:    rangeOf(blocks),
				SessionType:  pin.Type,
				SessionHours: len(blocks),
				Hardcoded:    true,
			}
			e.push(course, item)
		}
	}
}

// runAt returns the contiguous block run starting at the given clock time,
// or nil when the grid cannot supply it.
func (e *Engine) runAt(start string, hours int) []TimeBlock {
	for i, block := range e.grid {
		if block.Start != start {
			continue
		}
		if i+hours > len(e.grid) {
			return nil
		}
		run := e.grid[i : i+hours]
		if !contiguousRun(run) {
			return nil
		}
		return run
	}
	return nil
}

func (e *Engine) push(course *Course, item ScheduleItem) {
	e.schedule = append(e.schedule, item)
	e.idx.AddScheduleItem(course, item)
	if course.TeacherID != "" {
		e.teacherLoads[course.TeacherID] += item.SessionHours
	}
	e.scheduledHours[course.ID] += item.SessionHours
}

func (e *Engine) pop(course *Course, item ScheduleItem) {
	for i := len(e.schedule) - 1; i >= 0; i-- {
		if e.schedule[i] == item {
			e.schedule = append(e.schedule[:i], e.schedule[i+1:]...)
			break
		}
	}
	e.idx.RemoveScheduleItem(course, item)
	if course.TeacherID != "" {
		e.teacherLoads[course.TeacherID] -= item.SessionHours
	}
	e.scheduledHours[course.ID] -= item.SessionHours
}

// orderCourses sorts by difficulty descending, tie-broken by ascending
// current teacher load, then id so runs stay deterministic.
func (e *Engine) orderCourses() []*Course {
	ordered := make([]*Course, len(e.courses))
	copy(ordered, e.courses)
	difficulties := make(map[string]float64, len(ordered))
	for _, course := range ordered {
		difficulties[course.ID] = Difficulty(course, e.rooms, e.opts.Weights)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := difficulties[ordered[i].ID], difficulties[ordered[j].ID]
		if di != dj {
			return di > dj
		}
		li, lj := e.teacherLoads[ordered[i].TeacherID], e.teacherLoads[ordered[j].TeacherID]
		if li != lj {
			return li < lj
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

// residualSessions returns the sessions still owed after hardcoded coverage,
// largest first. Hardcoded hours retire whole sessions greedily and shave a
// partially covered one, so total scheduled hours can never exceed the
// course's required total.
func (e *Engine) residualSessions(course *Course) []Session {
	sessions := make([]Session, 0, len(course.Sessions))
	for _, session := range course.Sessions {
		if session.Hours > 0 {
			sessions = append(sessions, session)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Hours > sessions[j].Hours })

	covered := e.scheduledHours[course.ID]
	residual := make([]Session, 0, len(sessions))
	for _, session := range sessions {
		if covered >= session.Hours {
			covered -= session.Hours
			continue
		}
		if covered > 0 {
			session.Hours -= covered
			covered = 0
		}
		residual = append(residual, session)
	}
	return residual
}

func (e *Engine) diag(course *Course) *CourseDiagnostics {
	if d, ok := e.diagnostics[course.ID]; ok {
		return d
	}
	d := &CourseDiagnostics{CourseID: course.ID}
	e.diagnostics[course.ID] = d
	return d
}

// placeCourse works through a course's residual sessions, trying combined
// theory+lab placement first when enabled, then per-session search with the
// splitting fallback.
func (e *Engine) placeCourse(course *Course, result *Result) {
	pending := e.residualSessions(course)
	if len(pending) == 0 {
		return
	}
	if e.tracker != nil {
		e.tracker.SeedDomain(course.ID, e.grid)
	}

	if e.opts.EnableCombinedTheoryLab {
		pending = e.tryCombinedPlacement(course, pending)
	}

	var failed []FailureReason
	for _, session := range pending {
		sessionDiag := &SessionDiagnostics{Type: session.Type, Hours: session.Hours}
		e.diag(course).Sessions = append(e.diag(course).Sessions, sessionDiag)

		if e.placeSession(course, session, "", sessionDiag) {
			sessionDiag.Placed = true
			continue
		}
		if e.opts.EnableSessionSplitting && session.Hours > 1 {
			if e.trySplitPlacement(course, session, sessionDiag) {
				sessionDiag.Placed = true
				sessionDiag.SplitSucceeded = true
				continue
			}
		}
		sessionDiag.FinalReason = dominantReason(sessionDiag.Attempts)
		failed = append(failed, sessionDiag.FinalReason)
	}

	if len(failed) > 0 {
		result.Unscheduled = append(result.Unscheduled, UnscheduledCourse{
			CourseID: course.ID,
			Reason:   describeFailures(failed),
		})
	}
}

// tryCombinedPlacement attempts to put the first pending theory and lab
// sessions on one shared day, reducing student campus visits. On success
// both sessions are removed from the pending list.
func (e *Engine) tryCombinedPlacement(course *Course, pending []Session) []Session {
	theoryIdx, labIdx := -1, -1
	for i, session := range pending {
		if session.Type == SessionTheory && theoryIdx < 0 {
			theoryIdx = i
		}
		if session.Type == SessionLab && labIdx < 0 {
			labIdx = i
		}
	}
	if theoryIdx < 0 || labIdx < 0 {
		return pending
	}

	days := e.shuffledDays()
	for _, day := range days {
		theoryDiag := &SessionDiagnostics{Type: SessionTheory, Hours: pending[theoryIdx].Hours}
		if !e.placeSession(course, pending[theoryIdx], day, theoryDiag) {
			continue
		}
		labDiag := &SessionDiagnostics{Type: SessionLab, Hours: pending[labIdx].Hours}
		if e.placeSession(course, pending[labIdx], day, labDiag) {
			theoryDiag.Placed = true
			labDiag.Placed = true
			e.diag(course).Sessions = append(e.diag(course).Sessions, theoryDiag, labDiag)
			remaining := make([]Session, 0, len(pending)-2)
			for i, session := range pending {
				if i != theoryIdx && i != labIdx {
					remaining = append(remaining, session)
				}
			}
			return remaining
		}
		// Lab would not fit alongside; undo the theory placement and try
		// the next day.
		e.popLast(course)
	}
	return pending
}

func (e *Engine) popLast(course *Course) {
	for i := len(e.schedule) - 1; i >= 0; i-- {
		if e.schedule[i].CourseID == course.ID && !e.schedule[i].Hardcoded {
			e.pop(course, e.schedule[i])
			return
		}
	}
}

// placeSession searches shuffled days and start blocks for a valid
// contiguous run. Classroom choice is deferred until the run itself is
// viable. When pinDay is non-empty only that day is searched.
func (e *Engine) placeSession(course *Course, session Session, pinDay string, diag *SessionDiagnostics) bool {
	days := e.shuffledDays()
	if pinDay != "" {
		days = []string{pinDay}
	}
	for _, day := range days {
		if e.tracker != nil && e.tracker.Exhausted(course.ID) {
			return false
		}
		if e.placeOnDay(course, session, day, diag) {
			return true
		}
	}
	return false
}

func (e *Engine) placeOnDay(course *Course, session Session, day string, diag *SessionDiagnostics) bool {
	hours := session.Hours
	if hours <= 0 || hours > len(e.grid) {
		e.recordAttempt(course, diag, SlotAttempt{Day: day, Hours: hours, Reason: ReasonInsufficientBlocks})
		return false
	}

	starts := e.rng.Perm(len(e.grid) - hours + 1)
	for _, startIdx := range starts {
		run := e.grid[startIdx : startIdx+hours]
		attempt := SlotAttempt{Day: day, Start: run[0].Start, Hours: hours}

		if !contiguousRun(run) {
			attempt.Reason = ReasonInsufficientBlocks
			e.recordAttempt(course, diag, attempt)
			continue
		}
		if !course.TeacherCalendar.AllowsRun(day, run) {
			attempt.Reason = ReasonTeacherUnavailable
			e.recordAttempt(course, diag, attempt)
			continue
		}
		timeRange := rangeOf(run)
		if reason := e.idx.CheckConflicts(course, "", day, timeRange); reason != "" {
			attempt.Reason = reason
			attempt.Detail = strings.Join(e.idx.CoursesAt(day, run[0].Start), ",")
			e.recordAttempt(course, diag, attempt)
			continue
		}
		room, ok := FindSuitableClassroom(course, session.Type, e.rooms, day, run, e.idx, e.opts.Band)
		if !ok {
			attempt.Reason = ReasonNoClassroom
			e.recordAttempt(course, diag, attempt)
			continue
		}

		item := ScheduleItem{
			CourseID:     course.ID,
			ClassroomID:  room.ID,
			Day:          NormalizeDay(day),
			TimeRange:    timeRange,
			SessionType:  session.Type,
			SessionHours: hours,
		}
		e.push(course, item)
		if e.tracker != nil {
			e.tracker.RecordSuccess(course.ID, item.Day, timeRange)
		}
		return true
	}
	return false
}

func (e *Engine) recordAttempt(course *Course, diag *SessionDiagnostics, attempt SlotAttempt) {
	diag.Attempts = append(diag.Attempts, attempt)
	if e.tracker != nil {
		e.tracker.RecordFailure(course.ID, attempt)
	}
}

// trySplitPlacement places a long session as two same-day chunks with
// independent slot search, still respecting every per-chunk constraint.
func (e *Engine) trySplitPlacement(course *Course, session Session, diag *SessionDiagnostics) bool {
	first := session.Hours / 2
	if session.Hours%2 != 0 {
		first++
	}
	second := session.Hours - first
	if first == 0 || second == 0 {
		return false
	}

	for _, day := range e.shuffledDays() {
		firstDiag := &SessionDiagnostics{Type: session.Type, Hours: first}
		if !e.placeOnDay(course, Session{Type: session.Type, Hours: first}, day, firstDiag) {
			continue
		}
		secondDiag := &SessionDiagnostics{Type: session.Type, Hours: second}
		if e.placeOnDay(course, Session{Type: session.Type, Hours: second}, day, secondDiag) {
			diag.Attempts = append(diag.Attempts, firstDiag.Attempts...)
			diag.Attempts = append(diag.Attempts, secondDiag.Attempts...)
			return true
		}
		e.popLast(course)
	}
	return false
}

func (e *Engine) shuffledDays() []string {
	days := make([]string, len(Days))
	copy(days, Days)
	e.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
	return days
}

func contiguousRun(run []TimeBlock) bool {
	for i := 0; i < len(run)-1; i++ {
		if !contiguous(run[i], run[i+1]) {
			return false
		}
	}
	return true
}

// reasonSeverity orders failure reasons by how much they explain: an actual
// conflict names the bottleneck better than plain unavailability.
var reasonSeverity = map[FailureReason]int{
	ReasonTeacherConflict:    6,
	ReasonDepartmentConflict: 5,
	ReasonClassroomConflict:  4,
	ReasonNoClassroom:        3,
	ReasonTeacherUnavailable: 2,
	ReasonInsufficientBlocks: 1,
}

// dominantReason picks the most telling rejection across attempts, so the
// unscheduled report names the real bottleneck rather than the last miss.
func dominantReason(attempts []SlotAttempt) FailureReason {
	if len(attempts) == 0 {
		return ReasonInsufficientBlocks
	}
	best := attempts[0].Reason
	for _, attempt := range attempts[1:] {
		if reasonSeverity[attempt.Reason] > reasonSeverity[best] {
			best = attempt.Reason
		}
	}
	return best
}

func describeFailures(reasons []FailureReason) string {
	counts := make(map[FailureReason]int)
	order := make([]FailureReason, 0, len(reasons))
	for _, reason := range reasons {
		if counts[reason] == 0 {
			order = append(order, reason)
		}
		counts[reason]++
	}
	parts := make([]string, 0, len(order))
	for _, reason := range order {
		if counts[reason] > 1 {
			parts = append(parts, fmt.Sprintf("%s (%d sessions)", reason, counts[reason]))
		} else {
			parts = append(parts, string(reason))
		}
	}
	return strings.Join(parts, "; ")
}
