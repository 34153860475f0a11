package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func newCourseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCourseRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "teacher_id", "category", "level", "semester", "capacity_margin", "sessions", "cohorts", "hardcoded", "active", "created_at", "updated_at"}).
		AddRow("c1", "CS101", "Intro", "t1", "compulsory", 1, 1, 10, []byte(`[]`), []byte(`[]`), nil, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE 1=1 AND active = $1 AND category = $2")).
		WithArgs(true, "compulsory").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE 1=1 AND active = $1 AND category = $2")).
		WithArgs(true, "compulsory").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	active := true
	list, total, err := repo.List(context.Background(), models.CourseFilter{Active: &active, Category: "compulsory"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "teacher_id", "category", "level", "semester", "capacity_margin", "sessions", "cohorts", "hardcoded", "active", "created_at", "updated_at"}).
		AddRow("c1", "CS101", "Intro", "t1", "compulsory", 1, 1, 0, []byte(`[{"type":"theory","hours":2}]`), []byte(`[{"department":"CS","headcount":30}]`), nil, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE active = TRUE ORDER BY code ASC")).
		WillReturnRows(rows)

	list, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "CS101", list[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").
		WillReturnResult(sqlmock.NewResult(1, 1))

	course := &models.Course{
		Code:      "CS101",
		Name:      "Intro",
		TeacherID: "t1",
		Category:  "compulsory",
		Level:     1,
		Semester:  1,
		Sessions:  types.JSONText(`[{"type":"theory","hours":2}]`),
		Cohorts:   types.JSONText(`[{"department":"CS","headcount":30}]`),
		Active:    true,
	}
	require.NoError(t, repo.Create(context.Background(), course))
	assert.NotEmpty(t, course.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUpsertByCode(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses .* ON CONFLICT \\(code\\) DO UPDATE SET").
		WillReturnResult(sqlmock.NewResult(1, 1))

	course := &models.Course{
		Code:      "CS101",
		Name:      "Intro v2",
		TeacherID: "t1",
		Category:  "compulsory",
		Level:     1,
		Semester:  1,
		Sessions:  types.JSONText(`[{"type":"theory","hours":3}]`),
		Cohorts:   types.JSONText(`[{"department":"CS","headcount":40}]`),
		Active:    true,
	}
	require.NoError(t, repo.UpsertByCode(context.Background(), course))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE LOWER(code) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("CS101", "c2").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByCode(context.Background(), "CS101", "c2")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
