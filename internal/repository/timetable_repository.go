package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// TimetableRepository persists versioned generated timetables.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a timetable assigning the next version for the term.
func (r *TimetableRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, version *models.TimetableVersion) error {
	if version == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if version.TermID == "" {
		return fmt.Errorf("term_id is required")
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.Status == "" {
		version.Status = models.TimetableStatusDraft
	}
	if len(version.Meta) == 0 {
		version.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if version.CreatedAt.IsZero() {
		version.CreatedAt = now
	}
	version.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_versions WHERE term_id = $1`
	if err := sqlx.GetContext(ctx, target, &version.Version, nextVersionQuery, version.TermID); err != nil {
		return fmt.Errorf("compute next timetable version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetable_versions (id, term_id, version, status, seed, soft_score, placed, unscheduled, meta, created_at, updated_at)
VALUES (:id, :term_id, :version, :status, :seed, :soft_score, :placed, :unscheduled, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, version); err != nil {
		return fmt.Errorf("insert timetable version: %w", err)
	}
	return nil
}

// InsertPlacements bulk-inserts the placements of a version.
func (r *TimetableRepository) InsertPlacements(ctx context.Context, exec sqlx.ExtContext, placements []models.TimetablePlacement) error {
	if len(placements) == 0 {
		return nil
	}
	target := r.exec(exec)
	const query = `
INSERT INTO timetable_placements (id, version_id, course_id, classroom_id, day, time_range, session_type, session_hours, hardcoded)
VALUES (:id, :version_id, :course_id, :classroom_id, :day, :time_range, :session_type, :session_hours, :hardcoded)`
	for i := range placements {
		if placements[i].ID == "" {
			placements[i].ID = uuid.NewString()
		}
	}
	if _, err := sqlx.NamedExecContext(ctx, target, query, placements); err != nil {
		return fmt.Errorf("insert timetable placements: %w", err)
	}
	return nil
}

// ListByTerm returns all versions for a term, newest first.
func (r *TimetableRepository) ListByTerm(ctx context.Context, termID string) ([]models.TimetableVersion, error) {
	const query = `SELECT id, term_id, version, status, seed, soft_score, placed, unscheduled, meta, created_at, updated_at
FROM timetable_versions WHERE term_id = $1 ORDER BY version DESC`
	var versions []models.TimetableVersion
	if err := r.db.SelectContext(ctx, &versions, query, termID); err != nil {
		return nil, fmt.Errorf("list timetable versions: %w", err)
	}
	return versions, nil
}

// FindByID loads a version by its identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableVersion, error) {
	const query = `SELECT id, term_id, version, status, seed, soft_score, placed, unscheduled, meta, created_at, updated_at
FROM timetable_versions WHERE id = $1`
	var version models.TimetableVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// ListPlacements returns the placements of a stored version ordered for display.
func (r *TimetableRepository) ListPlacements(ctx context.Context, versionID string) ([]models.TimetablePlacement, error) {
	const query = `SELECT id, version_id, course_id, classroom_id, day, time_range, session_type, session_hours, hardcoded
FROM timetable_placements WHERE version_id = $1 ORDER BY day, time_range, course_id`
	var placements []models.TimetablePlacement
	if err := r.db.SelectContext(ctx, &placements, query, versionID); err != nil {
		return nil, fmt.Errorf("list timetable placements: %w", err)
	}
	return placements, nil
}

// Publish marks a version published and archives any previously published
// version of the same term inside one transaction scope.
func (r *TimetableRepository) Publish(ctx context.Context, exec sqlx.ExtContext, id, termID string) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	const demoteQuery = `UPDATE timetable_versions SET status = $1, updated_at = $2 WHERE term_id = $3 AND status = $4 AND id <> $5`
	if _, err := target.ExecContext(ctx, demoteQuery, models.TimetableStatusArchived, now, termID, models.TimetableStatusPublished, id); err != nil {
		return fmt.Errorf("archive published timetable: %w", err)
	}

	const promoteQuery = `UPDATE timetable_versions SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := target.ExecContext(ctx, promoteQuery, models.TimetableStatusPublished, now, id)
	if err != nil {
		return fmt.Errorf("publish timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("publish timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a stored version and its placements.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	const placementsQuery = `DELETE FROM timetable_placements WHERE version_id = $1`
	if _, err := r.db.ExecContext(ctx, placementsQuery, id); err != nil {
		return fmt.Errorf("delete timetable placements: %w", err)
	}
	const query = `DELETE FROM timetable_versions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable version rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
