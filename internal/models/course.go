package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
)

// Course is a catalog entry scheduled by the timetable engine. Sessions,
// cohorts, pinned slots and the availability calendar are stored as JSONB so
// the catalog schema does not need one table per nested collection.
type Course struct {
	ID             string         `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	Name           string         `db:"name" json:"name"`
	TeacherID      string         `db:"teacher_id" json:"teacher_id"`
	Category       string         `db:"category" json:"category"`
	Level          int            `db:"level" json:"level"`
	Semester       int            `db:"semester" json:"semester"`
	CapacityMargin int            `db:"capacity_margin" json:"capacity_margin"`
	Sessions       types.JSONText `db:"sessions" json:"sessions"`
	Cohorts        types.JSONText `db:"cohorts" json:"cohorts"`
	Hardcoded      types.JSONText `db:"hardcoded" json:"hardcoded,omitempty"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures query params for listing courses.
type CourseFilter struct {
	Search    string
	TeacherID string
	Category  string
	Level     int
	Semester  int
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ToEngine converts the stored row plus the owning teacher's calendar into
// the engine's input shape. Malformed JSONB collections decode to empty
// slices rather than failing the whole generation.
func (c *Course) ToEngine(teacherCalendar engine.Calendar) *engine.Course {
	course := &engine.Course{
		ID:              c.ID,
		TeacherID:       c.TeacherID,
		Category:        c.Category,
		Level:           c.Level,
		Semester:        c.Semester,
		CapacityMargin:  c.CapacityMargin,
		TeacherCalendar: teacherCalendar,
	}
	if len(c.Sessions) > 0 {
		_ = json.Unmarshal(c.Sessions, &course.Sessions)
	}
	if len(c.Cohorts) > 0 {
		_ = json.Unmarshal(c.Cohorts, &course.Cohorts)
	}
	if len(c.Hardcoded) > 0 {
		_ = json.Unmarshal(c.Hardcoded, &course.Hardcoded)
	}
	return course
}
