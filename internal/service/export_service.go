package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

// ExportFormat names a supported timetable artifact format.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportTimetableSource interface {
	FindByID(ctx context.Context, id string) (*models.TimetableVersion, error)
	ListPlacements(ctx context.Context, versionID string) ([]models.TimetablePlacement, error)
}

type exportCourseSource interface {
	ListActive(ctx context.Context) ([]models.Course, error)
}

type exportClassroomSource interface {
	ListActive(ctx context.Context) ([]models.Classroom, error)
}

type exportTeacherSource interface {
	ListActive(ctx context.Context) ([]models.Teacher, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type gridRenderer interface {
	RenderGrid(grid export.WeekGrid) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders stored timetable versions into downloadable files.
type ExportService struct {
	timetables exportTimetableSource
	courses    exportCourseSource
	classrooms exportClassroomSource
	teachers   exportTeacherSource
	storage    fileStorage
	csv        csvRenderer
	pdf        gridRenderer
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(
	timetables exportTimetableSource,
	courses exportCourseSource,
	classrooms exportClassroomSource,
	teachers exportTeacherSource,
	store fileStorage,
	signer *storage.SignedURLSigner,
	cfg ExportConfig,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		timetables: timetables,
		courses:    courses,
		classrooms: classrooms,
		teachers:   teachers,
		storage:    store,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewTimetablePDFExporter(),
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
	}
}

// Export renders a stored version into the requested format and returns a
// signed download URL.
func (s *ExportService) Export(ctx context.Context, versionID, format string) (*dto.ExportResponse, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	version, err := s.timetables.FindByID(ctx, versionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable version")
	}
	placements, err := s.timetables.ListPlacements(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable placements")
	}

	names, err := s.loadNames(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(buildPlacementDataset(placements, names))
	case ExportFormatPDF:
		payload, err = s.pdf.RenderGrid(buildWeekGrid(version, placements, names))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}

	filename := buildExportFilename(version, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable export")
	}

	token, expiresAt, err := s.signer.Generate(version.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("timetable exported",
		zap.String("version_id", version.ID),
		zap.String("format", format),
		zap.String("file", relPath))

	return &dto.ExportResponse{
		Format:    format,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (versionID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// exportNames maps catalog IDs onto human-readable labels.
type exportNames struct {
	courseCode  map[string]string
	courseName  map[string]string
	teacherName map[string]string
	teacherByID map[string]string
	roomName    map[string]string
}

func (s *ExportService) loadNames(ctx context.Context) (exportNames, error) {
	names := exportNames{
		courseCode:  make(map[string]string),
		courseName:  make(map[string]string),
		teacherName: make(map[string]string),
		teacherByID: make(map[string]string),
		roomName:    make(map[string]string),
	}

	teachers, err := s.teachers.ListActive(ctx)
	if err != nil {
		return names, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	for i := range teachers {
		names.teacherName[teachers[i].ID] = teachers[i].FullName
	}

	courses, err := s.courses.ListActive(ctx)
	if err != nil {
		return names, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	for i := range courses {
		names.courseCode[courses[i].ID] = courses[i].Code
		names.courseName[courses[i].ID] = courses[i].Name
		names.teacherByID[courses[i].ID] = names.teacherName[courses[i].TeacherID]
	}

	classrooms, err := s.classrooms.ListActive(ctx)
	if err != nil {
		return names, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}
	for i := range classrooms {
		names.roomName[classrooms[i].ID] = classrooms[i].Name
	}
	return names, nil
}

func buildPlacementDataset(placements []models.TimetablePlacement, names exportNames) export.Dataset {
	rows := make([]map[string]string, 0, len(placements))
	for _, p := range placements {
		pinned := ""
		if p.Hardcoded {
			pinned = "yes"
		}
		rows = append(rows, map[string]string{
			"Day":       p.Day,
			"Time":      p.TimeRange,
			"Code":      labelOr(names.courseCode[p.CourseID], p.CourseID),
			"Course":    names.courseName[p.CourseID],
			"Teacher":   names.teacherByID[p.CourseID],
			"Classroom": labelOr(names.roomName[p.ClassroomID], p.ClassroomID),
			"Type":      p.SessionType,
			"Hours":     strconv.Itoa(p.SessionHours),
			"Pinned":    pinned,
		})
	}
	return export.Dataset{
		Headers: []string{"Day", "Time", "Code", "Course", "Teacher", "Classroom", "Type", "Hours", "Pinned"},
		Rows:    rows,
	}
}

func buildWeekGrid(version *models.TimetableVersion, placements []models.TimetablePlacement, names exportNames) export.WeekGrid {
	grid := export.WeekGrid{
		Title: fmt.Sprintf("Timetable %s v%d", version.TermID, version.Version),
		Cells: make(map[string]map[string][]string),
	}

	daySeen := make(map[string]bool)
	slotSeen := make(map[string]bool)
	for _, p := range placements {
		if !daySeen[p.Day] {
			daySeen[p.Day] = true
			grid.Days = append(grid.Days, p.Day)
		}
		if !slotSeen[p.TimeRange] {
			slotSeen[p.TimeRange] = true
			grid.Slots = append(grid.Slots, p.TimeRange)
		}
		if grid.Cells[p.Day] == nil {
			grid.Cells[p.Day] = make(map[string][]string)
		}
		line := fmt.Sprintf("%s %s (%s)",
			labelOr(names.courseCode[p.CourseID], p.CourseID),
			labelOr(names.roomName[p.ClassroomID], p.ClassroomID),
			p.SessionType)
		grid.Cells[p.Day][p.TimeRange] = append(grid.Cells[p.Day][p.TimeRange], line)
	}

	sort.SliceStable(grid.Days, func(i, j int) bool { return weekdayOrdinal(grid.Days[i]) < weekdayOrdinal(grid.Days[j]) })
	sort.SliceStable(grid.Slots, func(i, j int) bool { return slotStartMinute(grid.Slots[i]) < slotStartMinute(grid.Slots[j]) })
	return grid
}

func buildExportFilename(version *models.TimetableVersion, format string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	term := sanitizeFilename(version.TermID)
	return fmt.Sprintf("timetable_%s_v%d_%s.%s", term, version.Version, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

var weekdayOrder = map[string]int{
	"Monday": 0, "Tuesday": 1, "Wednesday": 2, "Thursday": 3, "Friday": 4, "Saturday": 5, "Sunday": 6,
}

func weekdayOrdinal(day string) int {
	if ordinal, ok := weekdayOrder[day]; ok {
		return ordinal
	}
	return len(weekdayOrder)
}

func slotStartMinute(slot string) int {
	var h, m int
	if _, err := fmt.Sscanf(slot, "%d:%d", &h, &m); err != nil {
		return 24 * 60
	}
	return h*60 + m
}
