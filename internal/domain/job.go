package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrEmptyJobID    = errors.New("job ID cannot be empty")
	ErrEmptyOwnerID  = errors.New("owner ID cannot be empty")
	ErrUnknownStatus = errors.New("unknown job status")
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state. Terminal jobs
// are never transitioned again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether the status is one of the known values.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobCommand identifies the operation a job performs. Only the comment
// exchange run is supported in the current scope.
type JobCommand string

const JobCommandRunTasks JobCommand = "run_tasks"

// Bounds for per-job limits. Out-of-range requests are clamped, not
// rejected.
const (
	MinCommentsPerAccount = 1
	MaxCommentsPerAccount = 1000
	MinAccountLimit       = 1
	MaxAccountLimit       = 100
)

// AccountResult is the outcome of one managed account's contribution to
// a run.
type AccountResult struct {
	Account        string `json:"account"`
	CommentsPosted int    `json:"comments_posted"`
	Error          string `json:"error,omitempty"`
}

// JobSummary aggregates per-account results for a completed run.
type JobSummary struct {
	Accounts []AccountResult `json:"accounts"`
}

// CleanupResult records the outcome of post-run remote deprovisioning.
type CleanupResult struct {
	Removed int      `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

// Job represents one queued request to run the automation pipeline for a
// specific client.
type Job struct {
	ID                    uuid.UUID      `json:"id"`
	OwnerID               uuid.UUID      `json:"owner_id"`
	Command               JobCommand     `json:"command"`
	Status                JobStatus      `json:"status"`
	MaxCommentsPerAccount int            `json:"max_comments_per_account"`
	AccountLimit          int            `json:"account_limit"`
	EnqueuedAt            time.Time      `json:"enqueued_at"`
	StartedAt             *time.Time     `json:"started_at,omitempty"`
	FinishedAt            *time.Time     `json:"finished_at,omitempty"`
	DurationMs            int64          `json:"duration_ms"`
	CreditsConsumed       int            `json:"credits_consumed"`
	TotalComments         int            `json:"total_comments"`
	Summary               *JobSummary    `json:"summary,omitempty"`
	Cleanup               *CleanupResult `json:"cleanup,omitempty"`
	Error                 string         `json:"error,omitempty"`
}

// NewJob creates a pending Job for the given owner. Per-job limits are
// clamped to their bounds rather than rejected.
func NewJob(ownerID uuid.UUID, maxCommentsPerAccount, accountLimit int) (*Job, error) {
	if ownerID == uuid.Nil {
		return nil, ErrEmptyOwnerID
	}

	return &Job{
		ID:                    uuid.New(),
		OwnerID:               ownerID,
		Command:               JobCommandRunTasks,
		Status:                JobStatusPending,
		MaxCommentsPerAccount: clamp(maxCommentsPerAccount, MinCommentsPerAccount, MaxCommentsPerAccount),
		AccountLimit:          clamp(accountLimit, MinAccountLimit, MaxAccountLimit),
		EnqueuedAt:            time.Now().UTC(),
	}, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.OwnerID == uuid.Nil {
		return ErrEmptyOwnerID
	}
	if !j.Status.Valid() {
		return ErrUnknownStatus
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
