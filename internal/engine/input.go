package engine

import "math"

// SessionType distinguishes the room requirements of a teaching unit.
type SessionType string

const (
	SessionTheory   SessionType = "theory"
	SessionLab      SessionType = "lab"
	SessionCombined SessionType = "combined"
)

// RoomType describes what a classroom can host.
type RoomType string

const (
	RoomTheory RoomType = "theory"
	RoomLab    RoomType = "lab"
	RoomHybrid RoomType = "hybrid"
)

// CategoryCompulsory marks courses whose cohorts may never overlap in time.
const CategoryCompulsory = "compulsory"

// Session is a contiguous multi-block teaching unit owned by a course.
type Session struct {
	Type  SessionType `json:"type"`
	Hours int         `json:"hours"`
}

// Cohort is a department group attending a course.
type Cohort struct {
	Department string `json:"department"`
	Headcount  int    `json:"headcount"`
}

// HardcodedPlacement pins a session to a fixed day/time before the search
// starts. ClassroomID may be empty, in which case a room is resolved by type.
type HardcodedPlacement struct {
	Day         string      `json:"day"`
	Start       string      `json:"start"`
	Hours       int         `json:"hours"`
	Type        SessionType `json:"type"`
	ClassroomID string      `json:"classroom_id,omitempty"`
}

// Course is the engine-facing view of a catalog course, hydrated with its
// sessions, cohorts, pinned placements and the owning teacher's calendar.
type Course struct {
	ID              string               `json:"id"`
	TeacherID       string               `json:"teacher_id,omitempty"`
	Level           int                  `json:"level"`
	Semester        int                  `json:"semester"`
	Category        string               `json:"category"`
	CapacityMargin  int                  `json:"capacity_margin"`
	Cohorts         []Cohort             `json:"cohorts"`
	Sessions        []Session            `json:"sessions"`
	Hardcoded       []HardcodedPlacement `json:"hardcoded,omitempty"`
	TeacherCalendar Calendar             `json:"teacher_calendar,omitempty"`
}

// Headcount sums cohort sizes.
func (c *Course) Headcount() int {
	total := 0
	for _, cohort := range c.Cohorts {
		total += cohort.Headcount
	}
	return total
}

// EffectiveHeadcount applies the capacity margin, allowing slight
// overbooking of a room: ceil(headcount * (1 - margin/100)).
func (c *Course) EffectiveHeadcount() int {
	margin := c.CapacityMargin
	if margin < 0 {
		margin = 0
	}
	if margin > 100 {
		margin = 100
	}
	return int(math.Ceil(float64(c.Headcount()) * (1 - float64(margin)/100)))
}

// RequiredHours is the weekly block total across all sessions.
func (c *Course) RequiredHours() int {
	total := 0
	for _, session := range c.Sessions {
		total += session.Hours
	}
	return total
}

// IsCompulsory reports whether the course participates in cohort exclusion.
func (c *Course) IsCompulsory() bool {
	return c.Category == CategoryCompulsory
}

// Classroom is the engine-facing view of a room.
type Classroom struct {
	ID                 string   `json:"id"`
	Capacity           int      `json:"capacity"`
	Type               RoomType `json:"type"`
	Active             bool     `json:"active"`
	PriorityDepartment string   `json:"priority_department,omitempty"`
	Calendar           Calendar `json:"calendar,omitempty"`
}

// suits reports whether the room type can host the session type. Lab
// sessions need lab or hybrid rooms; theory sessions reject lab-only rooms.
func (r *Classroom) suits(sessionType SessionType) bool {
	switch sessionType {
	case SessionLab:
		return r.Type == RoomLab || r.Type == RoomHybrid
	case SessionCombined:
		return r.Type == RoomHybrid || r.Type == RoomLab
	default:
		return r.Type != RoomLab
	}
}

// ScheduleItem is the atomic placement the engine produces. Once pushed into
// a schedule it only changes when an optimizer swaps its day/time wholesale.
type ScheduleItem struct {
	CourseID     string      `json:"course_id"`
	ClassroomID  string      `json:"classroom_id"`
	Day          string      `json:"day"`
	TimeRange    string      `json:"time_range"`
	SessionType  SessionType `json:"session_type"`
	SessionHours int         `json:"session_hours"`
	Hardcoded    bool        `json:"hardcoded"`
}

// FailureReason categorises why a candidate slot was rejected. These are
// normal search outcomes, never errors.
type FailureReason string

const (
	ReasonTeacherUnavailable FailureReason = "teacher_unavailable"
	ReasonTeacherConflict    FailureReason = "teacher_conflict"
	ReasonDepartmentConflict FailureReason = "department_conflict"
	ReasonClassroomConflict  FailureReason = "classroom_conflict"
	ReasonNoClassroom        FailureReason = "no_classroom"
	ReasonInsufficientBlocks FailureReason = "insufficient_blocks"
)
