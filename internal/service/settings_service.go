package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context) (*models.TimetableSettings, error)
	Upsert(ctx context.Context, settings *models.TimetableSettings) error
}

// UpdateSettingsRequest represents payload for updating the scheduling grid.
type UpdateSettingsRequest struct {
	SlotDuration    int    `json:"slot_duration" validate:"required,min=30,max=240"`
	DayStart        string `json:"day_start" validate:"required"`
	DayEnd          string `json:"day_end" validate:"required"`
	LunchBreakStart string `json:"lunch_break_start" validate:"required"`
	LunchBreakEnd   string `json:"lunch_break_end" validate:"required"`
}

// SettingsService manages the institution-wide scheduling grid configuration.
type SettingsService struct {
	repo      settingsRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(repo settingsRepository, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, validator: validate, logger: logger}
}

// Get returns the current grid settings.
func (s *SettingsService) Get(ctx context.Context) (*models.TimetableSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	return settings, nil
}

// Update validates and stores new grid settings. The update is rejected when
// the resulting grid would have no usable blocks.
func (s *SettingsService) Update(ctx context.Context, req UpdateSettingsRequest) (*models.TimetableSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	if err := validateGrid(req); err != nil {
		return nil, err
	}

	settings := &models.TimetableSettings{
		SlotDuration:    req.SlotDuration,
		DayStart:        req.DayStart,
		DayEnd:          req.DayEnd,
		LunchBreakStart: req.LunchBreakStart,
		LunchBreakEnd:   req.LunchBreakEnd,
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store settings")
	}
	s.logger.Info("timetable settings updated",
		zap.Int("slot_duration", settings.SlotDuration),
		zap.String("day_start", settings.DayStart),
		zap.String("day_end", settings.DayEnd))
	return settings, nil
}

func validateGrid(req UpdateSettingsRequest) error {
	for field, value := range map[string]string{
		"day_start":         req.DayStart,
		"day_end":           req.DayEnd,
		"lunch_break_start": req.LunchBreakStart,
		"lunch_break_end":   req.LunchBreakEnd,
	} {
		if !validClock(value) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be HH:MM", field))
		}
	}
	grid := engine.BuildTimeGrid(engine.Settings{
		SlotDuration:    req.SlotDuration,
		DayStart:        req.DayStart,
		DayEnd:          req.DayEnd,
		LunchBreakStart: req.LunchBreakStart,
		LunchBreakEnd:   req.LunchBreakEnd,
	})
	if len(grid) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "settings produce an empty scheduling grid")
	}
	return nil
}

func validClock(value string) bool {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return false
	}
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}
