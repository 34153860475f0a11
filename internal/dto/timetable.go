package dto

import (
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/engine"
	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// GenerateTimetableRequest triggers a timetable generation run for a term.
type GenerateTimetableRequest struct {
	TermID                  string `json:"term_id" validate:"required"`
	Seed                    int64  `json:"seed"`
	Attempts                int    `json:"attempts" validate:"omitempty,min=1,max=16"`
	TimeoutSeconds          int    `json:"timeout_seconds" validate:"omitempty,min=1,max=600"`
	EnableSessionSplitting  *bool  `json:"enable_session_splitting"`
	EnableCombinedTheoryLab *bool  `json:"enable_combined_theory_lab"`
	EnableBacktracking      *bool  `json:"enable_backtracking"`
	Async                   bool   `json:"async"`
}

// GenerateTimetableResponse is the synchronous generation result.
type GenerateTimetableResponse struct {
	VersionID   string                     `json:"version_id"`
	TermID      string                     `json:"term_id"`
	Version     int                        `json:"version"`
	Seed        int64                      `json:"seed"`
	SoftScore   float64                    `json:"soft_score"`
	Placed      int                        `json:"placed"`
	Unscheduled []engine.UnscheduledCourse `json:"unscheduled,omitempty"`
	Metrics     engine.Metrics             `json:"metrics"`
	Warnings    []string                   `json:"warnings,omitempty"`
	TimedOut    bool                       `json:"timed_out"`
	ElapsedMs   int64                      `json:"elapsed_ms"`
}

// JobState tracks asynchronous generation lifecycle.
type JobState string

const (
	JobStateQueued    JobState = "QUEUED"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
)

// GenerationJobStatus reports an asynchronous run.
type GenerationJobStatus struct {
	JobID      string                     `json:"job_id"`
	TermID     string                     `json:"term_id"`
	State      JobState                   `json:"state"`
	Progress   *engine.Snapshot           `json:"progress,omitempty"`
	Result     *GenerateTimetableResponse `json:"result,omitempty"`
	Error      string                     `json:"error,omitempty"`
	EnqueuedAt time.Time                  `json:"enqueued_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
}

// TimetableDetail bundles a stored version with its placements.
type TimetableDetail struct {
	Version    models.TimetableVersion     `json:"version"`
	Placements []models.TimetablePlacement `json:"placements"`
}

// ImportSummary reports the outcome of a CSV catalog import.
type ImportSummary struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ExportResponse points at a rendered timetable artifact.
type ExportResponse struct {
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
