package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
)

// TimetableStatus is the lifecycle state of a generated timetable version.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// TimetableVersion is one generated timetable for a term. Versions are
// monotonic per term; at most one version per term is published at a time.
type TimetableVersion struct {
	ID          string          `db:"id" json:"id"`
	TermID      string          `db:"term_id" json:"term_id"`
	Version     int             `db:"version" json:"version"`
	Status      TimetableStatus `db:"status" json:"status"`
	Seed        int64           `db:"seed" json:"seed"`
	SoftScore   float64         `db:"soft_score" json:"soft_score"`
	Placed      int             `db:"placed" json:"placed"`
	Unscheduled int             `db:"unscheduled" json:"unscheduled"`
	Meta        types.JSONText  `db:"meta" json:"meta,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetablePlacement is one scheduled session inside a timetable version.
type TimetablePlacement struct {
	ID           string `db:"id" json:"id"`
	VersionID    string `db:"version_id" json:"version_id"`
	CourseID     string `db:"course_id" json:"course_id"`
	ClassroomID  string `db:"classroom_id" json:"classroom_id"`
	Day          string `db:"day" json:"day"`
	TimeRange    string `db:"time_range" json:"time_range"`
	SessionType  string `db:"session_type" json:"session_type"`
	SessionHours int    `db:"session_hours" json:"session_hours"`
	Hardcoded    bool   `db:"hardcoded" json:"hardcoded"`
}

// TimetableSettings is the single-row grid configuration used by generation.
type TimetableSettings struct {
	ID              string    `db:"id" json:"id"`
	SlotDuration    int       `db:"slot_duration" json:"slot_duration"`
	DayStart        string    `db:"day_start" json:"day_start"`
	DayEnd          string    `db:"day_end" json:"day_end"`
	LunchBreakStart string    `db:"lunch_break_start" json:"lunch_break_start"`
	LunchBreakEnd   string    `db:"lunch_break_end" json:"lunch_break_end"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ToEngine converts the stored row into the engine's settings shape.
func (s *TimetableSettings) ToEngine() engine.Settings {
	return engine.Settings{
		SlotDuration:    s.SlotDuration,
		DayStart:        s.DayStart,
		DayEnd:          s.DayEnd,
		LunchBreakStart: s.LunchBreakStart,
		LunchBreakEnd:   s.LunchBreakEnd,
	}
}
