package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// defaultSettingsID pins the grid configuration to a single row.
const defaultSettingsID = "default"

// SettingsRepository manages the single-row timetable grid configuration.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get loads the settings row, falling back to defaults when none exists yet.
func (r *SettingsRepository) Get(ctx context.Context) (*models.TimetableSettings, error) {
	const query = `SELECT id, slot_duration, day_start, day_end, lunch_break_start, lunch_break_end, updated_at
FROM timetable_settings WHERE id = $1`
	var settings models.TimetableSettings
	if err := r.db.GetContext(ctx, &settings, query, defaultSettingsID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.TimetableSettings{
				ID:              defaultSettingsID,
				SlotDuration:    60,
				DayStart:        "08:00",
				DayEnd:          "18:00",
				LunchBreakStart: "12:00",
				LunchBreakEnd:   "13:00",
			}, nil
		}
		return nil, fmt.Errorf("load timetable settings: %w", err)
	}
	return &settings, nil
}

// Upsert stores the settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.TimetableSettings) error {
	settings.ID = defaultSettingsID
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO timetable_settings (id, slot_duration, day_start, day_end, lunch_break_start, lunch_break_end, updated_at)
VALUES (:id, :slot_duration, :day_start, :day_end, :lunch_break_start, :lunch_break_end, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	slot_duration = EXCLUDED.slot_duration, day_start = EXCLUDED.day_start, day_end = EXCLUDED.day_end,
	lunch_break_start = EXCLUDED.lunch_break_start, lunch_break_end = EXCLUDED.lunch_break_end, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert timetable settings: %w", err)
	}
	return nil
}
