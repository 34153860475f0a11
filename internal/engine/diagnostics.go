package engine

// SlotAttempt records one candidate slot the search rejected.
type SlotAttempt struct {
	Day    string        `json:"day"`
	Start  string        `json:"start"`
	Hours  int           `json:"hours"`
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// SessionDiagnostics traces the search for one residual session.
type SessionDiagnostics struct {
	Type           SessionType   `json:"type"`
	Hours          int           `json:"hours"`
	Attempts       []SlotAttempt `json:"attempts,omitempty"`
	Placed         bool          `json:"placed"`
	SplitSucceeded bool          `json:"split_succeeded,omitempty"`
	FinalReason    FailureReason `json:"final_reason,omitempty"`
}

// CourseDiagnostics aggregates per-session traces for reporting layers.
type CourseDiagnostics struct {
	CourseID string                `json:"course_id"`
	Sessions []*SessionDiagnostics `json:"sessions"`
}

// UnscheduledCourse reports a course the run could not fully place.
type UnscheduledCourse struct {
	CourseID string `json:"course_id"`
	Reason   string `json:"reason"`
}

// Metrics summarises placement quality for the whole schedule.
type Metrics struct {
	AvgCapacityMargin float64 `json:"avg_capacity_margin"`
	MaxCapacityWaste  float64 `json:"max_capacity_waste"`
	TeacherLoadStddev float64 `json:"teacher_load_stddev"`
	PlacedSessions    int     `json:"placed_sessions"`
	ScheduledHours    int     `json:"scheduled_hours"`
}
