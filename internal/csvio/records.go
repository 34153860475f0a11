// Package csvio parses bulk catalog uploads. Nested course collections are
// encoded in single CSV cells: entries are separated by ";" and fields inside
// an entry by "/", e.g. sessions "theory:3;lab:2" and pinned slots
// "Monday/09:00/2/theory" with an optional trailing classroom name.
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
)

// CourseRecord is one row of a course catalog upload.
type CourseRecord struct {
	Code           string `csv:"code"`
	Name           string `csv:"name"`
	TeacherEmail   string `csv:"teacher_email"`
	Category       string `csv:"category"`
	Level          int    `csv:"level"`
	Semester       int    `csv:"semester"`
	CapacityMargin int    `csv:"capacity_margin"`
	Sessions       string `csv:"sessions"`
	Cohorts        string `csv:"cohorts"`
	Hardcoded      string `csv:"hardcoded"`
}

// ClassroomRecord is one row of a classroom upload.
type ClassroomRecord struct {
	Name               string `csv:"name"`
	Building           string `csv:"building"`
	Capacity           int    `csv:"capacity"`
	Type               string `csv:"type"`
	PriorityDepartment string `csv:"priority_department"`
}

// ParseCourses decodes a course upload. The delimiter is configurable because
// spreadsheet exports in some locales use semicolons.
func ParseCourses(data []byte, delim rune) ([]*CourseRecord, error) {
	var records []*CourseRecord
	if err := gocsv.UnmarshalCSV(newReader(data, delim), &records); err != nil {
		return nil, fmt.Errorf("parse course csv: %w", err)
	}
	return records, nil
}

// ParseClassrooms decodes a classroom upload.
func ParseClassrooms(data []byte, delim rune) ([]*ClassroomRecord, error) {
	var records []*ClassroomRecord
	if err := gocsv.UnmarshalCSV(newReader(data, delim), &records); err != nil {
		return nil, fmt.Errorf("parse classroom csv: %w", err)
	}
	return records, nil
}

// newReader builds a per-call reader so concurrent uploads with different
// delimiters never share configuration.
func newReader(data []byte, delim rune) gocsv.CSVReader {
	if delim == 0 {
		delim = ','
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimSpace(data)))
	r.Comma = delim
	r.TrimLeadingSpace = true
	return r
}

// SessionList expands the encoded sessions cell, e.g. "theory:3;lab:2".
func (r *CourseRecord) SessionList() ([]engine.Session, error) {
	entries := splitEntries(r.Sessions)
	if len(entries) == 0 {
		return nil, fmt.Errorf("course %s: sessions column is empty", r.Code)
	}
	sessions := make([]engine.Session, 0, len(entries))
	for _, entry := range entries {
		kind, hours, err := splitPair(entry)
		if err != nil {
			return nil, fmt.Errorf("course %s: bad session %q: %w", r.Code, entry, err)
		}
		sessionType, err := parseSessionType(kind)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", r.Code, err)
		}
		sessions = append(sessions, engine.Session{Type: sessionType, Hours: hours})
	}
	return sessions, nil
}

// CohortList expands the encoded cohorts cell, e.g. "CS:40;EE:25".
func (r *CourseRecord) CohortList() ([]engine.Cohort, error) {
	entries := splitEntries(r.Cohorts)
	if len(entries) == 0 {
		return nil, fmt.Errorf("course %s: cohorts column is empty", r.Code)
	}
	cohorts := make([]engine.Cohort, 0, len(entries))
	for _, entry := range entries {
		department, headcount, err := splitPair(entry)
		if err != nil {
			return nil, fmt.Errorf("course %s: bad cohort %q: %w", r.Code, entry, err)
		}
		cohorts = append(cohorts, engine.Cohort{Department: department, Headcount: headcount})
	}
	return cohorts, nil
}

// HardcodedList expands the pinned slots cell. Each entry is
// day/start/hours/type with an optional fifth classroom field.
func (r *CourseRecord) HardcodedList() ([]engine.HardcodedPlacement, error) {
	entries := splitEntries(r.Hardcoded)
	if len(entries) == 0 {
		return nil, nil
	}
	pinned := make([]engine.HardcodedPlacement, 0, len(entries))
	for _, entry := range entries {
		fields := strings.Split(entry, "/")
		if len(fields) < 4 || len(fields) > 5 {
			return nil, fmt.Errorf("course %s: bad pinned slot %q", r.Code, entry)
		}
		hours, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil || hours <= 0 {
			return nil, fmt.Errorf("course %s: bad pinned hours in %q", r.Code, entry)
		}
		sessionType, err := parseSessionType(fields[3])
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", r.Code, err)
		}
		placement := engine.HardcodedPlacement{
			Day:   engine.NormalizeDay(fields[0]),
			Start: strings.TrimSpace(fields[1]),
			Hours: hours,
			Type:  sessionType,
		}
		if len(fields) == 5 {
			placement.ClassroomID = strings.TrimSpace(fields[4])
		}
		pinned = append(pinned, placement)
	}
	return pinned, nil
}

func splitEntries(cell string) []string {
	var entries []string
	for _, entry := range strings.Split(cell, ";") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

func splitPair(entry string) (string, int, error) {
	parts := strings.SplitN(entry, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected name:count")
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || count <= 0 {
		return "", 0, fmt.Errorf("count must be a positive integer")
	}
	return strings.TrimSpace(parts[0]), count, nil
}

func parseSessionType(raw string) (engine.SessionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "theory":
		return engine.SessionTheory, nil
	case "lab":
		return engine.SessionLab, nil
	case "combined":
		return engine.SessionCombined, nil
	default:
		return "", fmt.Errorf("unknown session type %q", raw)
	}
}
