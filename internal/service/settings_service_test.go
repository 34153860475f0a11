package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type settingsRepoStub struct {
	stored *models.TimetableSettings
}

func (s *settingsRepoStub) Get(ctx context.Context) (*models.TimetableSettings, error) {
	if s.stored != nil {
		return s.stored, nil
	}
	return &models.TimetableSettings{
		ID:              "default",
		SlotDuration:    60,
		DayStart:        "09:00",
		DayEnd:          "17:00",
		LunchBreakStart: "12:00",
		LunchBreakEnd:   "13:00",
	}, nil
}

func (s *settingsRepoStub) Upsert(ctx context.Context, settings *models.TimetableSettings) error {
	s.stored = settings
	return nil
}

func TestSettingsServiceUpdate(t *testing.T) {
	repo := &settingsRepoStub{}
	svc := NewSettingsService(repo, validator.New(), zap.NewNop())

	settings, err := svc.Update(context.Background(), UpdateSettingsRequest{
		SlotDuration:    90,
		DayStart:        "08:00",
		DayEnd:          "18:00",
		LunchBreakStart: "12:00",
		LunchBreakEnd:   "13:30",
	})
	require.NoError(t, err)
	assert.Equal(t, 90, settings.SlotDuration)
	require.NotNil(t, repo.stored)
	assert.Equal(t, "08:00", repo.stored.DayStart)
}

func TestSettingsServiceUpdateRejectsBadClock(t *testing.T) {
	svc := NewSettingsService(&settingsRepoStub{}, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), UpdateSettingsRequest{
		SlotDuration:    60,
		DayStart:        "morning",
		DayEnd:          "17:00",
		LunchBreakStart: "12:00",
		LunchBreakEnd:   "13:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSettingsServiceUpdateRejectsEmptyGrid(t *testing.T) {
	svc := NewSettingsService(&settingsRepoStub{}, validator.New(), zap.NewNop())

	// Day window shorter than one slot leaves no usable blocks.
	_, err := svc.Update(context.Background(), UpdateSettingsRequest{
		SlotDuration:    120,
		DayStart:        "09:00",
		DayEnd:          "10:00",
		LunchBreakStart: "09:00",
		LunchBreakEnd:   "10:00",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty scheduling grid")
}
