package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/engine"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

const timetableCachePattern = "timetables:*"

type timetableRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, version *models.TimetableVersion) error
	InsertPlacements(ctx context.Context, exec sqlx.ExtContext, placements []models.TimetablePlacement) error
	ListByTerm(ctx context.Context, termID string) ([]models.TimetableVersion, error)
	FindByID(ctx context.Context, id string) (*models.TimetableVersion, error)
	ListPlacements(ctx context.Context, versionID string) ([]models.TimetablePlacement, error)
	Publish(ctx context.Context, exec sqlx.ExtContext, id, termID string) error
	Delete(ctx context.Context, id string) error
}

type generationCourseSource interface {
	ListActive(ctx context.Context) ([]models.Course, error)
}

type generationClassroomSource interface {
	ListActive(ctx context.Context) ([]models.Classroom, error)
}

type generationTeacherSource interface {
	ListActive(ctx context.Context) ([]models.Teacher, error)
}

type gridSettingsSource interface {
	Get(ctx context.Context) (*models.TimetableSettings, error)
}

type timetableTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// GenerationDefaults carries the operator-configured fallbacks applied when a
// generation request leaves a knob unset.
type GenerationDefaults struct {
	Timeout                 time.Duration
	Attempts                int
	EnableSessionSplitting  bool
	EnableCombinedTheoryLab bool
	EnableBacktracking      bool
	QueueWorkers            int
}

func (d GenerationDefaults) withDefaults() GenerationDefaults {
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}
	if d.Attempts <= 0 {
		d.Attempts = 1
	}
	if d.QueueWorkers <= 0 {
		d.QueueWorkers = 1
	}
	return d
}

// TimetableService orchestrates generation runs and manages stored versions.
type TimetableService struct {
	repo       timetableRepository
	courses    generationCourseSource
	classrooms generationClassroomSource
	teachers   generationTeacherSource
	settings   gridSettingsSource
	tx         timetableTxProvider
	history    engine.HistoryStore
	cache      *CacheService
	metrics    *MetricsService
	defaults   GenerationDefaults
	validator  *validator.Validate
	logger     *zap.Logger

	queue  *jobs.Queue[dto.GenerateTimetableRequest]
	jobsMu sync.RWMutex
	runs   map[string]*dto.GenerationJobStatus
}

// NewTimetableService wires the generation pipeline. The history store learns
// engine parameters across runs; pass nil to disable learning.
func NewTimetableService(
	repo timetableRepository,
	courses generationCourseSource,
	classrooms generationClassroomSource,
	teachers generationTeacherSource,
	settings gridSettingsSource,
	tx timetableTxProvider,
	history engine.HistoryStore,
	cache *CacheService,
	metrics *MetricsService,
	defaults GenerationDefaults,
	validate *validator.Validate,
	logger *zap.Logger,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults = defaults.withDefaults()

	s := &TimetableService{
		repo:       repo,
		courses:    courses,
		classrooms: classrooms,
		teachers:   teachers,
		settings:   settings,
		tx:         tx,
		history:    history,
		cache:      cache,
		metrics:    metrics,
		defaults:   defaults,
		validator:  validate,
		logger:     logger,
		runs:       make(map[string]*dto.GenerationJobStatus),
	}
	s.queue = jobs.NewQueue("timetable-generation", s.handleGenerationJob, jobs.QueueConfig{
		Workers:    defaults.QueueWorkers,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Queue exposes the background queue so the caller controls its lifecycle.
func (s *TimetableService) Queue() *jobs.Queue[dto.GenerateTimetableRequest] {
	return s.queue
}

// Generate runs the engine synchronously and persists the outcome as a new
// draft version for the term.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	return s.generate(ctx, req, nil)
}

// Enqueue schedules an asynchronous generation run and returns its job handle.
func (s *TimetableService) Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationJobStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	status := &dto.GenerationJobStatus{
		JobID:      uuid.NewString(),
		TermID:     req.TermID,
		State:      dto.JobStateQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	s.jobsMu.Lock()
	s.runs[status.JobID] = status
	s.jobsMu.Unlock()

	job := jobs.Job[dto.GenerateTimetableRequest]{ID: status.JobID, Type: "timetable.generate", Payload: req}
	if err := s.queue.Enqueue(job); err != nil {
		s.jobsMu.Lock()
		delete(s.runs, status.JobID)
		s.jobsMu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}
	return s.jobSnapshot(status.JobID), nil
}

// Job returns the current state of an asynchronous generation run.
func (s *TimetableService) Job(id string) (*dto.GenerationJobStatus, error) {
	status := s.jobSnapshot(id)
	if status == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return status, nil
}

func (s *TimetableService) jobSnapshot(id string) *dto.GenerationJobStatus {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	status, ok := s.runs[id]
	if !ok {
		return nil
	}
	copied := *status
	return &copied
}

func (s *TimetableService) handleGenerationJob(ctx context.Context, job jobs.Job[dto.GenerateTimetableRequest]) error {
	req := job.Payload
	s.updateJob(job.ID, func(status *dto.GenerationJobStatus) {
		status.State = dto.JobStateRunning
	})

	response, err := s.generate(ctx, req, func(snapshot engine.Snapshot) {
		s.updateJob(job.ID, func(status *dto.GenerationJobStatus) {
			copied := snapshot
			status.Progress = &copied
		})
	})

	finished := time.Now().UTC()
	s.updateJob(job.ID, func(status *dto.GenerationJobStatus) {
		status.FinishedAt = &finished
		if err != nil {
			status.State = dto.JobStateFailed
			status.Error = err.Error()
			return
		}
		status.State = dto.JobStateCompleted
		status.Result = response
	})
	// Errors are already surfaced through the job status; retrying a failed
	// generation with identical inputs would fail the same way.
	return nil
}

func (s *TimetableService) updateJob(id string, apply func(*dto.GenerationJobStatus)) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if status, ok := s.runs[id]; ok {
		apply(status)
	}
}

func (s *TimetableService) generate(ctx context.Context, req dto.GenerateTimetableRequest, onProgress func(engine.Snapshot)) (*dto.GenerateTimetableResponse, error) {
	settings, engineCourses, engineRooms, err := s.loadProblem(ctx)
	if err != nil {
		return nil, err
	}
	if len(engineCourses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no active courses to schedule")
	}
	if len(engineRooms) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no active classrooms available")
	}

	opts := s.buildOptions(req)
	grid := engine.BuildTimeGrid(settings)
	profile := engine.Profile(engineCourses, engineRooms, grid)
	opts = engine.Tune(profile, opts, s.history)

	attempts := req.Attempts
	if attempts <= 0 {
		attempts = s.defaults.Attempts
	}

	result := s.run(ctx, attempts, settings, engineCourses, engineRooms, opts, onProgress)

	version, err := s.persist(ctx, req.TermID, attempts, profile, result)
	if err != nil {
		return nil, err
	}

	s.record(profile, opts, result, len(engineCourses))
	if s.metrics != nil {
		s.metrics.RecordGenerationRun(result.Elapsed, result.SoftScore, len(result.Unscheduled), result.TimedOut)
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, timetableCachePattern)
	}

	s.logger.Info("timetable generated",
		zap.String("term_id", req.TermID),
		zap.String("version_id", version.ID),
		zap.Int("version", version.Version),
		zap.Int("placed", len(result.Schedule)),
		zap.Int("unscheduled", len(result.Unscheduled)),
		zap.Bool("timed_out", result.TimedOut),
	)

	return &dto.GenerateTimetableResponse{
		VersionID:   version.ID,
		TermID:      version.TermID,
		Version:     version.Version,
		Seed:        result.Seed,
		SoftScore:   result.SoftScore,
		Placed:      len(result.Schedule),
		Unscheduled: result.Unscheduled,
		Metrics:     result.Metrics,
		Warnings:    result.Warnings,
		TimedOut:    result.TimedOut,
		ElapsedMs:   result.Elapsed.Milliseconds(),
	}, nil
}

// run executes either a single engine run with live progress or a parallel
// multi-attempt selection. Parallel attempts drain their progress internally.
func (s *TimetableService) run(
	ctx context.Context,
	attempts int,
	settings engine.Settings,
	courses []*engine.Course,
	rooms []*engine.Classroom,
	opts engine.Options,
	onProgress func(engine.Snapshot),
) *engine.Result {
	if attempts > 1 {
		parallel := engine.RunParallel(ctx, attempts, settings, courses, rooms, opts, s.logger)
		return parallel.Best.Result
	}

	eng := engine.New(settings, courses, rooms, opts, s.logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snapshot := range eng.Progress() {
			if onProgress != nil {
				onProgress(snapshot)
			}
		}
	}()
	result := eng.Run(ctx)
	<-done
	return result
}

func (s *TimetableService) loadProblem(ctx context.Context) (engine.Settings, []*engine.Course, []*engine.Classroom, error) {
	stored, err := s.settings.Get(ctx)
	if err != nil {
		return engine.Settings{}, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	settings := stored.ToEngine()

	teacherRows, err := s.teachers.ListActive(ctx)
	if err != nil {
		return engine.Settings{}, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	calendars := make(map[string]engine.Calendar, len(teacherRows))
	for i := range teacherRows {
		calendars[teacherRows[i].ID] = teacherRows[i].AvailabilityCalendar()
	}

	courseRows, err := s.courses.ListActive(ctx)
	if err != nil {
		return engine.Settings{}, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	engineCourses := make([]*engine.Course, 0, len(courseRows))
	for i := range courseRows {
		engineCourses = append(engineCourses, courseRows[i].ToEngine(calendars[courseRows[i].TeacherID]))
	}

	roomRows, err := s.classrooms.ListActive(ctx)
	if err != nil {
		return engine.Settings{}, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}
	engineRooms := make([]*engine.Classroom, 0, len(roomRows))
	for i := range roomRows {
		engineRooms = append(engineRooms, roomRows[i].ToEngine())
	}

	return settings, engineCourses, engineRooms, nil
}

func (s *TimetableService) buildOptions(req dto.GenerateTimetableRequest) engine.Options {
	opts := engine.Options{
		Seed:                    req.Seed,
		Timeout:                 s.defaults.Timeout,
		EnableSessionSplitting:  s.defaults.EnableSessionSplitting,
		EnableCombinedTheoryLab: s.defaults.EnableCombinedTheoryLab,
		EnableBacktracking:      s.defaults.EnableBacktracking,
	}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if req.EnableSessionSplitting != nil {
		opts.EnableSessionSplitting = *req.EnableSessionSplitting
	}
	if req.EnableCombinedTheoryLab != nil {
		opts.EnableCombinedTheoryLab = *req.EnableCombinedTheoryLab
	}
	if req.EnableBacktracking != nil {
		opts.EnableBacktracking = *req.EnableBacktracking
	}
	return opts
}

func (s *TimetableService) persist(ctx context.Context, termID string, attempts int, profile engine.ProblemProfile, result *engine.Result) (*models.TimetableVersion, error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	meta, err := json.Marshal(map[string]interface{}{
		"attempts":    attempts,
		"profile":     profile,
		"index_stats": result.IndexStats,
		"warnings":    result.Warnings,
		"timed_out":   result.TimedOut,
		"elapsed_ms":  result.Elapsed.Milliseconds(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run metadata")
	}

	version := &models.TimetableVersion{
		TermID:      termID,
		Seed:        result.Seed,
		SoftScore:   result.SoftScore,
		Placed:      len(result.Schedule),
		Unscheduled: len(result.Unscheduled),
		Meta:        meta,
	}

	start := time.Now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.CreateVersioned(ctx, tx, version); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable version")
		return nil, err
	}

	placements := make([]models.TimetablePlacement, 0, len(result.Schedule))
	for _, item := range result.Schedule {
		placements = append(placements, models.TimetablePlacement{
			VersionID:    version.ID,
			CourseID:     item.CourseID,
			ClassroomID:  item.ClassroomID,
			Day:          item.Day,
			TimeRange:    item.TimeRange,
			SessionType:  string(item.SessionType),
			SessionHours: item.SessionHours,
			Hardcoded:    item.Hardcoded,
		})
	}
	if err = s.repo.InsertPlacements(ctx, tx, placements); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable placements")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("persist_timetable", time.Since(start))
	}
	return version, nil
}

func (s *TimetableService) record(profile engine.ProblemProfile, opts engine.Options, result *engine.Result, totalCourses int) {
	if s.history == nil {
		return
	}
	successRate := 1.0
	if totalCourses > 0 {
		successRate = float64(totalCourses-len(result.Unscheduled)) / float64(totalCourses)
	}
	s.history.Record(engine.RunRecord{
		Signature:   profile.Signature(),
		Seed:        result.Seed,
		SuccessRate: successRate,
		SoftScore:   result.SoftScore,
		Elapsed:     result.Elapsed,
		Options:     opts,
		RecordedAt:  time.Now().UTC(),
	})
}

// List returns the stored versions of a term, newest first. The second return
// value reports whether the result was served from cache.
func (s *TimetableService) List(ctx context.Context, termID string) ([]models.TimetableVersion, bool, error) {
	if termID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "term_id is required")
	}

	cacheKey := "timetables:" + termID
	var cached []models.TimetableVersion
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return cached, true, nil
		}
	}

	versions, err := s.repo.ListByTerm(ctx, termID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable versions")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, versions, 0)
	}
	return versions, false, nil
}

// Get returns a stored version with its placements.
func (s *TimetableService) Get(ctx context.Context, id string) (*dto.TimetableDetail, error) {
	version, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable version")
	}
	placements, err := s.repo.ListPlacements(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable placements")
	}
	return &dto.TimetableDetail{Version: *version, Placements: placements}, nil
}

// Publish promotes a draft version; any previously published version of the
// same term is archived in the same transaction.
func (s *TimetableService) Publish(ctx context.Context, id string) (*models.TimetableVersion, error) {
	version, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable version")
	}
	if version.Status == models.TimetableStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "timetable version already published")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.Publish(ctx, tx, id, version.TermID); err != nil {
		if err == sql.ErrNoRows {
			err = appErrors.Clone(appErrors.ErrNotFound, "timetable version not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable version")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit publish transaction")
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, timetableCachePattern)
	}
	version.Status = models.TimetableStatusPublished
	return version, nil
}

// Delete removes a stored draft or archived version. Published versions must
// be replaced by publishing another version first.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	version, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable version not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable version")
	}
	if version.Status == models.TimetableStatusPublished {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "published timetable cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable version not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable version")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, timetableCachePattern)
	}
	return nil
}
