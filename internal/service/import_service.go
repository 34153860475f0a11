package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/csvio"
	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type importCourseRepository interface {
	UpsertByCode(ctx context.Context, course *models.Course) error
}

type importClassroomRepository interface {
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, classroom *models.Classroom) error
}

type importTeacherLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
}

// ImportService loads catalog data from CSV uploads. Courses are upserted by
// code so re-uploading a corrected file is idempotent; classrooms that already
// exist by name are skipped.
type ImportService struct {
	courses    importCourseRepository
	classrooms importClassroomRepository
	teachers   importTeacherLookup
	logger     *zap.Logger
}

// NewImportService constructs an ImportService.
func NewImportService(courses importCourseRepository, classrooms importClassroomRepository, teachers importTeacherLookup, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{courses: courses, classrooms: classrooms, teachers: teachers, logger: logger}
}

// ImportCourses parses and stores a course catalog upload. Rows that fail to
// resolve are reported in the summary instead of aborting the whole file.
func (s *ImportService) ImportCourses(ctx context.Context, data []byte, delim rune) (*dto.ImportSummary, error) {
	records, err := csvio.ParseCourses(data, delim)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course csv")
	}

	summary := &dto.ImportSummary{}
	for i, record := range records {
		if err := s.importCourse(ctx, record); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d (%s): %v", i+2, record.Code, err))
			continue
		}
		summary.Imported++
	}

	s.logger.Info("course import finished",
		zap.Int("imported", summary.Imported),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (s *ImportService) importCourse(ctx context.Context, record *csvio.CourseRecord) error {
	code := strings.TrimSpace(record.Code)
	if code == "" {
		return errors.New("code is required")
	}
	if record.Category != "compulsory" && record.Category != "elective" {
		return fmt.Errorf("category must be compulsory or elective, got %q", record.Category)
	}

	teacher, err := s.teachers.FindByEmail(ctx, strings.TrimSpace(record.TeacherEmail))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("teacher %s not found", record.TeacherEmail)
		}
		return fmt.Errorf("resolve teacher: %w", err)
	}

	sessions, err := record.SessionList()
	if err != nil {
		return err
	}
	cohorts, err := record.CohortList()
	if err != nil {
		return err
	}
	pinned, err := record.HardcodedList()
	if err != nil {
		return err
	}

	course := &models.Course{
		Code:           code,
		Name:           strings.TrimSpace(record.Name),
		TeacherID:      teacher.ID,
		Category:       record.Category,
		Level:          record.Level,
		Semester:       record.Semester,
		CapacityMargin: record.CapacityMargin,
		Active:         true,
	}
	if course.Sessions, err = encodeJSONB(sessions); err != nil {
		return err
	}
	if course.Cohorts, err = encodeJSONB(cohorts); err != nil {
		return err
	}
	if len(pinned) > 0 {
		if course.Hardcoded, err = encodeJSONB(pinned); err != nil {
			return err
		}
	}

	return s.courses.UpsertByCode(ctx, course)
}

// ImportClassrooms parses and stores a classroom upload.
func (s *ImportService) ImportClassrooms(ctx context.Context, data []byte, delim rune) (*dto.ImportSummary, error) {
	records, err := csvio.ParseClassrooms(data, delim)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid classroom csv")
	}

	summary := &dto.ImportSummary{}
	for i, record := range records {
		if err := s.importClassroom(ctx, record); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d (%s): %v", i+2, record.Name, err))
			continue
		}
		summary.Imported++
	}

	s.logger.Info("classroom import finished",
		zap.Int("imported", summary.Imported),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (s *ImportService) importClassroom(ctx context.Context, record *csvio.ClassroomRecord) error {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return errors.New("name is required")
	}
	if record.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	switch record.Type {
	case "theory", "lab", "hybrid":
	default:
		return fmt.Errorf("type must be theory, lab or hybrid, got %q", record.Type)
	}

	exists, err := s.classrooms.ExistsByName(ctx, name, "")
	if err != nil {
		return fmt.Errorf("check classroom name: %w", err)
	}
	if exists {
		return errors.New("classroom already exists")
	}

	classroom := &models.Classroom{
		Name:     name,
		Capacity: record.Capacity,
		Type:     record.Type,
		Active:   true,
	}
	if building := strings.TrimSpace(record.Building); building != "" {
		classroom.Building = &building
	}
	if department := strings.TrimSpace(record.PriorityDepartment); department != "" {
		classroom.PriorityDepartment = &department
	}
	return s.classrooms.Create(ctx, classroom)
}

func encodeJSONB(value interface{}) (types.JSONText, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return types.JSONText(raw), nil
}
