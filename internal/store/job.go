package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
)

// EnqueueResult reports the outcome of an enqueue attempt. When the
// owner already has a pending or running job, AlreadyQueued is true and
// Job is the existing row, unchanged.
type EnqueueResult struct {
	Job           *domain.Job
	AlreadyQueued bool
}

// CompleteParams carries the result payload for a successful job.
type CompleteParams struct {
	Summary         *domain.JobSummary
	Cleanup         *domain.CleanupResult
	CreditsConsumed int
	TotalComments   int
}

// QueueSnapshot is an operator view of the queue.
type QueueSnapshot struct {
	// Active holds pending and running jobs in enqueue order.
	Active []*domain.Job

	// RecentTerminal holds at most the ten most recently finished jobs.
	RecentTerminal []*domain.Job

	// AverageDuration is the moving average over the last twenty
	// completed jobs, zero when no history exists.
	AverageDuration time.Duration
}

// OwnerQueueStatus describes one owner's standing in the queue.
type OwnerQueueStatus struct {
	Job             *domain.Job
	Position        int
	JobsAhead       int
	AverageDuration time.Duration
	EstimatedWait   time.Duration
}

// JobStore defines the interface for durable job queue persistence.
//
// ClaimNext is the single synchronization primitive in the system: it
// must be implemented as one atomic conditional state transition so two
// concurrent callers can never claim the same job.
type JobStore interface {
	// Enqueue inserts a pending job unless the owner already has a
	// pending or running one, in which case the existing job is
	// returned with AlreadyQueued set.
	Enqueue(ctx context.Context, job *domain.Job) (*EnqueueResult, error)

	// Get retrieves a job by ID. Returns ErrJobNotFound if missing.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ClaimNext atomically transitions the oldest pending job to
	// running and returns it. Returns ErrNoPendingJobs when the queue
	// is empty or a concurrent claimer won.
	ClaimNext(ctx context.Context) (*domain.Job, error)

	// Complete performs the terminal transition to completed.
	Complete(ctx context.Context, id uuid.UUID, params CompleteParams) error

	// Fail performs the terminal transition to failed, recording the
	// error message.
	Fail(ctx context.Context, id uuid.UUID, message string) error

	// Cancel transitions a pending job to cancelled. Returns
	// ErrJobNotCancellable for a running job. For a job already in a
	// terminal state it returns (false, nil) without mutating anything.
	Cancel(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	// Snapshot returns the operator queue view.
	Snapshot(ctx context.Context) (*QueueSnapshot, error)

	// OwnerStatus returns the owner's queue position and estimated
	// wait. Returns ErrJobNotFound when the owner has no active job.
	OwnerStatus(ctx context.Context, ownerID uuid.UUID) (*OwnerQueueStatus, error)

	// PruneTerminal removes terminal jobs beyond the most recent keep,
	// returning how many rows were deleted.
	PruneTerminal(ctx context.Context, keep int) (int, error)
}
