package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

func newExportService(t *testing.T, repo *stubTimetableRepo) *ExportService {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(
		repo,
		&stubCourseSource{courses: []models.Course{catalogCourse("c1", "CS101", "t1")}},
		&stubClassroomSource{rooms: []models.Classroom{{ID: "r1", Name: "A-101", Capacity: 40, Type: "theory", Active: true}}},
		&stubTeacherSource{teachers: []models.Teacher{{ID: "t1", FullName: "Ada Lovelace", Active: true}}},
		store,
		signer,
		ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour},
		zap.NewNop(),
	)
}

func exportFixtureRepo() *stubTimetableRepo {
	repo := newStubTimetableRepo()
	repo.versions["v1"] = &models.TimetableVersion{ID: "v1", TermID: "2026-fall", Version: 1, Status: models.TimetableStatusDraft}
	repo.placements["v1"] = []models.TimetablePlacement{
		{ID: "p1", VersionID: "v1", CourseID: "c1", ClassroomID: "r1", Day: "Monday", TimeRange: "09:00-11:00", SessionType: "theory", SessionHours: 2},
		{ID: "p2", VersionID: "v1", CourseID: "c1", ClassroomID: "r1", Day: "Wednesday", TimeRange: "10:00-12:00", SessionType: "lab", SessionHours: 2, Hardcoded: true},
	}
	return repo
}

func TestExportServiceCSVRoundTrip(t *testing.T) {
	svc := newExportService(t, exportFixtureRepo())

	res, err := svc.Export(context.Background(), "v1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", res.Format)
	require.True(t, strings.HasPrefix(res.URL, "/api/v1/exports/"))
	assert.True(t, res.ExpiresAt.After(time.Now()))

	token := strings.TrimPrefix(res.URL, "/api/v1/exports/")
	versionID, relPath, _, err := svc.ParseToken(token, false)
	require.NoError(t, err)
	assert.Equal(t, "v1", versionID)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	content, err := io.ReadAll(file)
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "Day")
	assert.Contains(t, text, "CS101")
	assert.Contains(t, text, "Ada Lovelace")
	assert.Contains(t, text, "A-101")
}

func TestExportServicePDF(t *testing.T) {
	svc := newExportService(t, exportFixtureRepo())

	res, err := svc.Export(context.Background(), "v1", "pdf")
	require.NoError(t, err)

	token := strings.TrimPrefix(res.URL, "/api/v1/exports/")
	_, relPath, _, err := svc.ParseToken(token, false)
	require.NoError(t, err)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	header := make([]byte, 4)
	_, err = io.ReadFull(file, header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := newExportService(t, exportFixtureRepo())
	_, err := svc.Export(context.Background(), "v1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceVersionNotFound(t *testing.T) {
	svc := newExportService(t, newStubTimetableRepo())
	_, err := svc.Export(context.Background(), "missing", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCleanupRemovesOldFiles(t *testing.T) {
	svc := newExportService(t, exportFixtureRepo())

	_, err := svc.Export(context.Background(), "v1", "csv")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	removed, err := svc.Cleanup(time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
}

func TestExportServiceRejectsTamperedToken(t *testing.T) {
	svc := newExportService(t, exportFixtureRepo())

	res, err := svc.Export(context.Background(), "v1", "csv")
	require.NoError(t, err)

	token := strings.TrimPrefix(res.URL, "/api/v1/exports/")
	_, _, _, err = svc.ParseToken(token+"x", false)
	assert.Error(t, err)
}
