package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
)

// Teacher represents an instructor record. The calendar JSONB holds the
// weekly availability windows consumed by timetable generation.
type Teacher struct {
	ID         string         `db:"id" json:"id"`
	Email      string         `db:"email" json:"email"`
	FullName   string         `db:"full_name" json:"full_name"`
	Department *string        `db:"department" json:"department,omitempty"`
	Phone      *string        `db:"phone" json:"phone,omitempty"`
	Calendar   types.JSONText `db:"calendar" json:"calendar,omitempty"`
	Active     bool           `db:"active" json:"active"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// AvailabilityCalendar decodes the stored calendar. A nil result means the
// teacher is available at any grid slot.
func (t *Teacher) AvailabilityCalendar() engine.Calendar {
	if len(t.Calendar) == 0 {
		return nil
	}
	var calendar engine.Calendar
	if err := json.Unmarshal(t.Calendar, &calendar); err != nil {
		return nil
	}
	return calendar
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search     string
	Department string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
