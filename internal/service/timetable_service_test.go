package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/engine"
	"github.com/noah-isme/campus-timetable-api/internal/models"
)

type stubTimetableRepo struct {
	versions   map[string]*models.TimetableVersion
	placements map[string][]models.TimetablePlacement
	published  []string
	deleted    []string
}

func newStubTimetableRepo() *stubTimetableRepo {
	return &stubTimetableRepo{
		versions:   make(map[string]*models.TimetableVersion),
		placements: make(map[string][]models.TimetablePlacement),
	}
}

func (s *stubTimetableRepo) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, version *models.TimetableVersion) error {
	if version.ID == "" {
		version.ID = "v-stub"
	}
	version.Version = len(s.versions) + 1
	if version.Status == "" {
		version.Status = models.TimetableStatusDraft
	}
	cp := *version
	s.versions[version.ID] = &cp
	return nil
}

func (s *stubTimetableRepo) InsertPlacements(ctx context.Context, exec sqlx.ExtContext, placements []models.TimetablePlacement) error {
	if len(placements) == 0 {
		return nil
	}
	versionID := placements[0].VersionID
	s.placements[versionID] = append(s.placements[versionID], placements...)
	return nil
}

func (s *stubTimetableRepo) ListByTerm(ctx context.Context, termID string) ([]models.TimetableVersion, error) {
	var out []models.TimetableVersion
	for _, v := range s.versions {
		if v.TermID == termID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *stubTimetableRepo) FindByID(ctx context.Context, id string) (*models.TimetableVersion, error) {
	if v, ok := s.versions[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubTimetableRepo) ListPlacements(ctx context.Context, versionID string) ([]models.TimetablePlacement, error) {
	return s.placements[versionID], nil
}

func (s *stubTimetableRepo) Publish(ctx context.Context, exec sqlx.ExtContext, id, termID string) error {
	v, ok := s.versions[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, other := range s.versions {
		if other.TermID == termID && other.Status == models.TimetableStatusPublished {
			other.Status = models.TimetableStatusArchived
		}
	}
	v.Status = models.TimetableStatusPublished
	s.published = append(s.published, id)
	return nil
}

func (s *stubTimetableRepo) Delete(ctx context.Context, id string) error {
	if _, ok := s.versions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.versions, id)
	delete(s.placements, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubCourseSource struct{ courses []models.Course }

func (s *stubCourseSource) ListActive(ctx context.Context) ([]models.Course, error) {
	return s.courses, nil
}

type stubClassroomSource struct{ rooms []models.Classroom }

func (s *stubClassroomSource) ListActive(ctx context.Context) ([]models.Classroom, error) {
	return s.rooms, nil
}

type stubTeacherSource struct{ teachers []models.Teacher }

func (s *stubTeacherSource) ListActive(ctx context.Context) ([]models.Teacher, error) {
	return s.teachers, nil
}

type stubSettingsSource struct{}

func (stubSettingsSource) Get(ctx context.Context) (*models.TimetableSettings, error) {
	return &models.TimetableSettings{
		ID:              "default",
		SlotDuration:    60,
		DayStart:        "09:00",
		DayEnd:          "17:00",
		LunchBreakStart: "12:00",
		LunchBreakEnd:   "13:00",
	}, nil
}

type stubHistory struct{ records []engine.RunRecord }

func (s *stubHistory) Record(record engine.RunRecord) { s.records = append(s.records, record) }

func (s *stubHistory) QuerySimilar(signature uint64) []engine.RunRecord { return nil }

type generatorTxProvider struct {
	db *sqlx.DB
}

func newGeneratorTxProvider(t *testing.T) (*generatorTxProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &generatorTxProvider{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (p *generatorTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func catalogCourse(id, code, teacherID string) models.Course {
	return models.Course{
		ID:        id,
		Code:      code,
		Name:      "Course " + code,
		TeacherID: teacherID,
		Category:  "compulsory",
		Level:     1,
		Semester:  1,
		Sessions:  types.JSONText(`[{"type":"theory","hours":2}]`),
		Cohorts:   types.JSONText(`[{"department":"CS","headcount":30}]`),
		Active:    true,
	}
}

func newGenerationService(t *testing.T, repo *stubTimetableRepo, history engine.HistoryStore) (*TimetableService, sqlmock.Sqlmock) {
	tx, mock := newGeneratorTxProvider(t)
	svc := NewTimetableService(
		repo,
		&stubCourseSource{courses: []models.Course{
			catalogCourse("c1", "CS101", "t1"),
			catalogCourse("c2", "CS102", "t2"),
		}},
		&stubClassroomSource{rooms: []models.Classroom{
			{ID: "r1", Name: "A-101", Capacity: 40, Type: "theory", Active: true},
			{ID: "r2", Name: "A-102", Capacity: 40, Type: "hybrid", Active: true},
		}},
		&stubTeacherSource{teachers: []models.Teacher{
			{ID: "t1", Email: "a@example.edu", FullName: "Teacher A", Active: true},
			{ID: "t2", Email: "b@example.edu", FullName: "Teacher B", Active: true},
		}},
		stubSettingsSource{},
		tx,
		history,
		nil,
		nil,
		GenerationDefaults{Timeout: 10 * time.Second},
		validator.New(),
		zap.NewNop(),
	)
	return svc, mock
}

func TestTimetableServiceGeneratePersistsVersionAndPlacements(t *testing.T) {
	repo := newStubTimetableRepo()
	history := &stubHistory{}
	svc, mock := newGenerationService(t, repo, history)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{TermID: "2026-fall", Seed: 7})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.VersionID)
	assert.Equal(t, "2026-fall", resp.TermID)
	assert.Equal(t, 1, resp.Version)
	assert.Equal(t, 2, resp.Placed)
	assert.Empty(t, resp.Unscheduled)
	assert.False(t, resp.TimedOut)

	require.Contains(t, repo.versions, resp.VersionID)
	assert.Len(t, repo.placements[resp.VersionID], resp.Placed)

	require.Len(t, history.records, 1)
	assert.InDelta(t, 1.0, history.records[0].SuccessRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateRequiresTerm(t *testing.T) {
	repo := newStubTimetableRepo()
	svc, _ := newGenerationService(t, repo, nil)

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Empty(t, repo.versions)
}

func TestTimetableServiceGenerateRejectsEmptyCatalog(t *testing.T) {
	tx, _ := newGeneratorTxProvider(t)
	svc := NewTimetableService(
		newStubTimetableRepo(),
		&stubCourseSource{},
		&stubClassroomSource{rooms: []models.Classroom{{ID: "r1", Capacity: 40, Type: "theory", Active: true}}},
		&stubTeacherSource{},
		stubSettingsSource{},
		tx,
		nil, nil, nil,
		GenerationDefaults{},
		validator.New(),
		zap.NewNop(),
	)

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{TermID: "2026-fall"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active courses")
}

func TestTimetableServicePublishArchivesPreviousVersion(t *testing.T) {
	repo := newStubTimetableRepo()
	repo.versions["v1"] = &models.TimetableVersion{ID: "v1", TermID: "2026-fall", Version: 1, Status: models.TimetableStatusPublished}
	repo.versions["v2"] = &models.TimetableVersion{ID: "v2", TermID: "2026-fall", Version: 2, Status: models.TimetableStatusDraft}
	svc, mock := newGenerationService(t, repo, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	published, err := svc.Publish(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusPublished, published.Status)
	assert.Equal(t, models.TimetableStatusArchived, repo.versions["v1"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServicePublishRejectsAlreadyPublished(t *testing.T) {
	repo := newStubTimetableRepo()
	repo.versions["v1"] = &models.TimetableVersion{ID: "v1", TermID: "2026-fall", Status: models.TimetableStatusPublished}
	svc, _ := newGenerationService(t, repo, nil)

	_, err := svc.Publish(context.Background(), "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already published")
}

func TestTimetableServiceDeleteRejectsPublishedVersion(t *testing.T) {
	repo := newStubTimetableRepo()
	repo.versions["v1"] = &models.TimetableVersion{ID: "v1", TermID: "2026-fall", Status: models.TimetableStatusPublished}
	svc, _ := newGenerationService(t, repo, nil)

	err := svc.Delete(context.Background(), "v1")
	require.Error(t, err)
	assert.Empty(t, repo.deleted)
}

func TestTimetableServiceDeleteRemovesDraft(t *testing.T) {
	repo := newStubTimetableRepo()
	repo.versions["v1"] = &models.TimetableVersion{ID: "v1", TermID: "2026-fall", Status: models.TimetableStatusDraft}
	svc, _ := newGenerationService(t, repo, nil)

	require.NoError(t, svc.Delete(context.Background(), "v1"))
	assert.Equal(t, []string{"v1"}, repo.deleted)
}

func TestTimetableServiceListByTerm(t *testing.T) {
	repo := newStubTimetableRepo()
	repo.versions["v1"] = &models.TimetableVersion{ID: "v1", TermID: "2026-fall", Status: models.TimetableStatusDraft}
	repo.versions["v2"] = &models.TimetableVersion{ID: "v2", TermID: "2027-spring", Status: models.TimetableStatusDraft}
	svc, _ := newGenerationService(t, repo, nil)

	versions, cached, err := svc.List(context.Background(), "2026-fall")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, versions, 1)
	assert.Equal(t, "v1", versions[0].ID)

	_, _, err = svc.List(context.Background(), "")
	assert.Error(t, err)
}

func TestTimetableServiceAsyncJobLifecycle(t *testing.T) {
	repo := newStubTimetableRepo()
	svc, mock := newGenerationService(t, repo, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Queue().Start(ctx)
	defer svc.Queue().Stop()

	status, err := svc.Enqueue(ctx, dto.GenerateTimetableRequest{TermID: "2026-fall", Seed: 11, Async: true})
	require.NoError(t, err)
	assert.Equal(t, dto.JobStateQueued, status.State)

	deadline := time.Now().Add(10 * time.Second)
	for {
		current, err := svc.Job(status.JobID)
		require.NoError(t, err)
		if current.State == dto.JobStateCompleted {
			require.NotNil(t, current.Result)
			assert.Equal(t, 2, current.Result.Placed)
			assert.NotNil(t, current.FinishedAt)
			break
		}
		if current.State == dto.JobStateFailed {
			t.Fatalf("generation job failed: %s", current.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, state %s", current.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTimetableServiceJobUnknownID(t *testing.T) {
	svc, _ := newGenerationService(t, newStubTimetableRepo(), nil)
	_, err := svc.Job("missing")
	require.Error(t, err)
}
