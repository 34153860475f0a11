package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Deactivate(ctx context.Context, id string) error
}

type courseTeacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CourseSessionRequest describes one teaching unit of a course.
type CourseSessionRequest struct {
	Type  engine.SessionType `json:"type" validate:"required,oneof=theory lab combined"`
	Hours int                `json:"hours" validate:"required,min=1,max=8"`
}

// CourseCohortRequest describes one department group attending a course.
type CourseCohortRequest struct {
	Department string `json:"department" validate:"required"`
	Headcount  int    `json:"headcount" validate:"required,min=1"`
}

// CourseHardcodedRequest pins a session to a fixed slot.
type CourseHardcodedRequest struct {
	Day         string             `json:"day" validate:"required"`
	Start       string             `json:"start" validate:"required"`
	Hours       int                `json:"hours" validate:"required,min=1,max=8"`
	Type        engine.SessionType `json:"type" validate:"required,oneof=theory lab combined"`
	ClassroomID string             `json:"classroom_id"`
}

// CreateCourseRequest represents payload for creating courses.
type CreateCourseRequest struct {
	Code           string                   `json:"code" validate:"required,max=50"`
	Name           string                   `json:"name" validate:"required,max=200"`
	TeacherID      string                   `json:"teacher_id" validate:"required"`
	Category       string                   `json:"category" validate:"required,oneof=compulsory elective"`
	Level          int                      `json:"level" validate:"required,min=1,max=8"`
	Semester       int                      `json:"semester" validate:"required,min=1,max=14"`
	CapacityMargin int                      `json:"capacity_margin" validate:"min=0,max=100"`
	Sessions       []CourseSessionRequest   `json:"sessions" validate:"required,min=1,dive"`
	Cohorts        []CourseCohortRequest    `json:"cohorts" validate:"required,min=1,dive"`
	Hardcoded      []CourseHardcodedRequest `json:"hardcoded" validate:"omitempty,dive"`
}

// UpdateCourseRequest represents payload for updating courses.
type UpdateCourseRequest struct {
	Code           string                   `json:"code" validate:"required,max=50"`
	Name           string                   `json:"name" validate:"required,max=200"`
	TeacherID      string                   `json:"teacher_id" validate:"required"`
	Category       string                   `json:"category" validate:"required,oneof=compulsory elective"`
	Level          int                      `json:"level" validate:"required,min=1,max=8"`
	Semester       int                      `json:"semester" validate:"required,min=1,max=14"`
	CapacityMargin int                      `json:"capacity_margin" validate:"min=0,max=100"`
	Sessions       []CourseSessionRequest   `json:"sessions" validate:"required,min=1,dive"`
	Cohorts        []CourseCohortRequest    `json:"cohorts" validate:"required,min=1,dive"`
	Hardcoded      []CourseHardcodedRequest `json:"hardcoded" validate:"omitempty,dive"`
	Active         *bool                    `json:"active"`
}

// CourseService orchestrates course catalog operations.
type CourseService struct {
	repo      courseRepository
	teachers  courseTeacherLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, teachers courseTeacherLookup, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, teachers: teachers, validator: validate, logger: logger}
}

// List returns courses plus pagination data.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return courses, pagination, nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.ensureTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.Code, ""); err != nil {
		return nil, err
	}

	course := &models.Course{
		Code:           strings.TrimSpace(req.Code),
		Name:           strings.TrimSpace(req.Name),
		TeacherID:      req.TeacherID,
		Category:       req.Category,
		Level:          req.Level,
		Semester:       req.Semester,
		CapacityMargin: req.CapacityMargin,
		Active:         true,
	}
	if err := s.applyCollections(course, req.Sessions, req.Cohorts, req.Hardcoded); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies an existing course.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.ensureTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.Code, id); err != nil {
		return nil, err
	}

	course.Code = strings.TrimSpace(req.Code)
	course.Name = strings.TrimSpace(req.Name)
	course.TeacherID = req.TeacherID
	course.Category = req.Category
	course.Level = req.Level
	course.Semester = req.Semester
	course.CapacityMargin = req.CapacityMargin
	if err := s.applyCollections(course, req.Sessions, req.Cohorts, req.Hardcoded); err != nil {
		return nil, err
	}
	if req.Active != nil {
		course.Active = *req.Active
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Deactivate removes a course from future generations without deleting it.
func (s *CourseService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate course")
	}
	return nil
}

func (s *CourseService) ensureTeacher(ctx context.Context, teacherID string) error {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.Active {
		return appErrors.Clone(appErrors.ErrValidation, "teacher is inactive")
	}
	return nil
}

func (s *CourseService) ensureUniqueCode(ctx context.Context, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, strings.TrimSpace(code), excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "course code already used")
	}
	return nil
}

// applyCollections serializes the nested collections onto the JSONB columns.
func (s *CourseService) applyCollections(course *models.Course, sessions []CourseSessionRequest, cohorts []CourseCohortRequest, hardcoded []CourseHardcodedRequest) error {
	engineSessions := make([]engine.Session, 0, len(sessions))
	for _, sess := range sessions {
		engineSessions = append(engineSessions, engine.Session{Type: sess.Type, Hours: sess.Hours})
	}
	engineCohorts := make([]engine.Cohort, 0, len(cohorts))
	for _, cohort := range cohorts {
		engineCohorts = append(engineCohorts, engine.Cohort{
			Department: strings.TrimSpace(cohort.Department),
			Headcount:  cohort.Headcount,
		})
	}
	var enginePinned []engine.HardcodedPlacement
	for _, pin := range hardcoded {
		if !validDay(pin.Day) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown hardcoded day: "+pin.Day)
		}
		enginePinned = append(enginePinned, engine.HardcodedPlacement{
			Day:         pin.Day,
			Start:       pin.Start,
			Hours:       pin.Hours,
			Type:        pin.Type,
			ClassroomID: pin.ClassroomID,
		})
	}

	var err error
	if course.Sessions, err = marshalJSONB(engineSessions); err != nil {
		return err
	}
	if course.Cohorts, err = marshalJSONB(engineCohorts); err != nil {
		return err
	}
	if len(enginePinned) == 0 {
		course.Hardcoded = nil
		return nil
	}
	course.Hardcoded, err = marshalJSONB(enginePinned)
	return err
}

func validDay(day string) bool {
	for _, known := range engine.Days {
		if known == day {
			return true
		}
	}
	return false
}

func marshalJSONB(value interface{}) (types.JSONText, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode payload")
	}
	return types.JSONText(raw), nil
}
