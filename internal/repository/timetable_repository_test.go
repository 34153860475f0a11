package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRepositoryCreateVersionedAssignsNextVersion(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_versions WHERE term_id = $1")).
		WithArgs("2026-fall").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectExec("INSERT INTO timetable_versions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	version := &models.TimetableVersion{TermID: "2026-fall", Seed: 42, SoftScore: 18.5}
	require.NoError(t, repo.CreateVersioned(context.Background(), nil, version))
	assert.Equal(t, 3, version.Version)
	assert.NotEmpty(t, version.ID)
	assert.Equal(t, models.TimetableStatusDraft, version.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateVersionedRequiresTerm(t *testing.T) {
	db, _, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	err := repo.CreateVersioned(context.Background(), nil, &models.TimetableVersion{})
	assert.Error(t, err)
}

func TestTimetableRepositoryPublishArchivesPrevious(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec("UPDATE timetable_versions SET status").
		WithArgs(models.TimetableStatusArchived, sqlmock.AnyArg(), "2026-fall", models.TimetableStatusPublished, "v2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE timetable_versions SET status").
		WithArgs(models.TimetableStatusPublished, sqlmock.AnyArg(), "v2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Publish(context.Background(), nil, "v2", "2026-fall"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryPublishMissingVersion(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec("UPDATE timetable_versions SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE timetable_versions SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Publish(context.Background(), nil, "missing", "2026-fall")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTimetableRepositoryDeleteCascadesPlacements(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec("DELETE FROM timetable_placements WHERE version_id").
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM timetable_versions WHERE id").
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "v1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListPlacements(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "version_id", "course_id", "classroom_id", "day", "time_range", "session_type", "session_hours", "hardcoded"}).
		AddRow("p1", "v1", "c1", "r1", "Monday", "09:00-11:00", "theory", 2, false)
	mock.ExpectQuery("SELECT id, version_id, course_id, classroom_id, day, time_range, session_type, session_hours, hardcoded").
		WithArgs("v1").
		WillReturnRows(rows)

	placements, err := repo.ListPlacements(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, "Monday", placements[0].Day)
	assert.NoError(t, mock.ExpectationsWereMet())
}
