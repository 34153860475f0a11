package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
)

// Classroom is a bookable room with a type, capacity and an optional
// availability calendar stored as JSONB.
type Classroom struct {
	ID                 string         `db:"id" json:"id"`
	Name               string         `db:"name" json:"name"`
	Building           *string        `db:"building" json:"building,omitempty"`
	Capacity           int            `db:"capacity" json:"capacity"`
	Type               string         `db:"type" json:"type"`
	PriorityDepartment *string        `db:"priority_department" json:"priority_department,omitempty"`
	Calendar           types.JSONText `db:"calendar" json:"calendar,omitempty"`
	Active             bool           `db:"active" json:"active"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// ClassroomFilter captures query params for listing classrooms.
type ClassroomFilter struct {
	Search      string
	Type        string
	MinCapacity int
	Active      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// ToEngine converts the stored row into the engine's room shape.
func (r *Classroom) ToEngine() *engine.Classroom {
	room := &engine.Classroom{
		ID:       r.ID,
		Capacity: r.Capacity,
		Type:     engine.RoomType(r.Type),
		Active:   r.Active,
	}
	if r.PriorityDepartment != nil {
		room.PriorityDepartment = *r.PriorityDepartment
	}
	if len(r.Calendar) > 0 {
		_ = json.Unmarshal(r.Calendar, &room.Calendar)
	}
	return room
}
