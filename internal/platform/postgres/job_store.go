package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/platform/logger"
	"github.com/promoloop/exchange-api/internal/store"
)

// jobColumns is the scan list shared by every job query.
const jobColumns = `id, owner_id, command, status, max_comments_per_account, account_limit,
	enqueued_at, started_at, finished_at, duration_ms, credits_consumed, total_comments,
	summary, cleanup, error_message`

// PostgresJobStore implements the store.JobStore interface using
// PostgreSQL. The claim operation relies on a single conditional UPDATE
// with FOR UPDATE SKIP LOCKED, which is the system's only
// synchronization primitive.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Ensure PostgresJobStore implements store.JobStore
var _ store.JobStore = (*PostgresJobStore)(nil)

// Enqueue inserts a pending job unless the owner already has an active
// one. A partial unique index on (owner_id) for active statuses backs
// the invariant; a losing racer re-reads the winner's row.
func (s *PostgresJobStore) Enqueue(ctx context.Context, job *domain.Job) (*store.EnqueueResult, error) {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}

	if existing, err := s.activeJobForOwner(ctx, job.OwnerID); err != nil {
		return nil, err
	} else if existing != nil {
		return &store.EnqueueResult{Job: existing, AlreadyQueued: true}, nil
	}

	query := `
		INSERT INTO jobs (id, owner_id, command, status, max_comments_per_account, account_limit, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		job.Command,
		job.Status,
		job.MaxCommentsPerAccount,
		job.AccountLimit,
		job.EnqueuedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Concurrent enqueue for the same owner won; return theirs.
			existing, selErr := s.activeJobForOwner(ctx, job.OwnerID)
			if selErr != nil {
				return nil, selErr
			}
			if existing != nil {
				return &store.EnqueueResult{Job: existing, AlreadyQueued: true}, nil
			}
		}
		log.Error("failed to enqueue job", "job_id", job.ID, "owner_id", job.OwnerID, "error", err)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return &store.EnqueueResult{Job: job, AlreadyQueued: false}, nil
}

// Get retrieves a job by ID.
func (s *PostgresJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically claims the oldest pending job. A caller that
// loses the race observes zero rows and gets ErrNoPendingJobs.
func (s *PostgresJobStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1, started_at = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $3
			ORDER BY enqueued_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = $3
		RETURNING ` + jobColumns

	now := time.Now().UTC()
	job, err := scanJob(s.db.QueryRowContext(ctx, query, domain.JobStatusRunning, now, domain.JobStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoPendingJobs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}
	return job, nil
}

// Complete performs the terminal transition to completed.
func (s *PostgresJobStore) Complete(ctx context.Context, id uuid.UUID, params store.CompleteParams) error {
	summary, err := marshalNullable(params.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	cleanup, err := marshalNullable(params.Cleanup)
	if err != nil {
		return fmt.Errorf("failed to encode cleanup: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    finished_at = $2,
		    duration_ms = GREATEST(0, (EXTRACT(EPOCH FROM ($2::timestamptz - COALESCE(started_at, enqueued_at))) * 1000)::bigint),
		    credits_consumed = $3,
		    total_comments = $4,
		    summary = $5,
		    cleanup = $6
		WHERE id = $7 AND status = $8
	`
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCompleted, now,
		params.CreditsConsumed, params.TotalComments,
		summary, cleanup,
		id, domain.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return s.checkTerminalTransition(ctx, result, id)
}

// Fail performs the terminal transition to failed with the given
// message. Pending jobs may also be failed directly, which is how
// admission rejections are resolved.
func (s *PostgresJobStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    finished_at = $2,
		    duration_ms = GREATEST(0, (EXTRACT(EPOCH FROM ($2::timestamptz - COALESCE(started_at, enqueued_at))) * 1000)::bigint),
		    error_message = $3
		WHERE id = $4 AND status IN ($5, $6)
	`
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusFailed, now, message,
		id, domain.JobStatusPending, domain.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return s.checkTerminalTransition(ctx, result, id)
}

// Cancel transitions a pending job to cancelled. Running jobs error,
// terminal jobs report not-cancelled without mutation.
func (s *PostgresJobStore) Cancel(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1, finished_at = $2, duration_ms = 0, error_message = $3
		WHERE id = $4 AND status = $5
	`
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCancelled, now, reason,
		id, domain.JobStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status == domain.JobStatusRunning {
		return false, store.ErrJobNotCancellable
	}
	// Already terminal: not cancelled, nothing mutated.
	return false, nil
}

// Snapshot returns active jobs in enqueue order, recent terminal jobs,
// and the moving average duration over the last twenty completed runs.
func (s *PostgresJobStore) Snapshot(ctx context.Context) (*store.QueueSnapshot, error) {
	active, err := s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ($1, $2)
		ORDER BY enqueued_at ASC
	`, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		return nil, err
	}

	recent, err := s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ($1, $2, $3)
		ORDER BY finished_at DESC
		LIMIT 10
	`, domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled)
	if err != nil {
		return nil, err
	}

	avg, err := s.averageDuration(ctx)
	if err != nil {
		return nil, err
	}

	return &store.QueueSnapshot{
		Active:          active,
		RecentTerminal:  recent,
		AverageDuration: avg,
	}, nil
}

// OwnerStatus reports the owner's position and estimated wait.
func (s *PostgresJobStore) OwnerStatus(ctx context.Context, ownerID uuid.UUID) (*store.OwnerQueueStatus, error) {
	job, err := s.activeJobForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, store.ErrJobNotFound
	}

	var ahead int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE status = $1 OR (status = $2 AND enqueued_at < $3)
	`, domain.JobStatusRunning, domain.JobStatusPending, job.EnqueuedAt).Scan(&ahead)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs ahead: %w", err)
	}

	running := job.Status == domain.JobStatusRunning
	if running {
		// The owner's own running job is not ahead of itself.
		ahead--
	}

	avg, err := s.averageDuration(ctx)
	if err != nil {
		return nil, err
	}

	var elapsed time.Duration
	if running && job.StartedAt != nil {
		elapsed = time.Since(*job.StartedAt)
	}

	return &store.OwnerQueueStatus{
		Job:             job,
		Position:        ahead + 1,
		JobsAhead:       ahead,
		AverageDuration: avg,
		EstimatedWait:   domain.EstimateWait(ahead, avg, elapsed, running),
	}, nil
}

// PruneTerminal removes terminal jobs beyond the most recent keep.
func (s *PostgresJobStore) PruneTerminal(ctx context.Context, keep int) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ($1, $2, $3)
		AND id NOT IN (
			SELECT id FROM jobs
			WHERE status IN ($1, $2, $3)
			ORDER BY finished_at DESC
			LIMIT $4
		)
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune terminal jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// activeJobForOwner returns the owner's pending or running job, or nil.
func (s *PostgresJobStore) activeJobForOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE owner_id = $1 AND status IN ($2, $3)
		LIMIT 1
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, ownerID, domain.JobStatusPending, domain.JobStatusRunning))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active job for owner: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) averageDuration(ctx context.Context) (time.Duration, error) {
	var avgMs float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(duration_ms), 0) FROM (
			SELECT duration_ms FROM jobs
			WHERE status = $1
			ORDER BY finished_at DESC
			LIMIT 20
		) recent
	`, domain.JobStatusCompleted).Scan(&avgMs)
	if err != nil {
		return 0, fmt.Errorf("failed to compute average duration: %w", err)
	}
	return time.Duration(avgMs) * time.Millisecond, nil
}

// checkTerminalTransition verifies that exactly one row moved to a
// terminal state, distinguishing a missing job from a double terminal
// transition.
func (s *PostgresJobStore) checkTerminalTransition(ctx context.Context, result sql.Result, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return store.ErrJobTerminal
}

func (s *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job          domain.Job
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
		summaryRaw   []byte
		cleanupRaw   []byte
		errorMessage sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Command,
		&job.Status,
		&job.MaxCommentsPerAccount,
		&job.AccountLimit,
		&job.EnqueuedAt,
		&startedAt,
		&finishedAt,
		&job.DurationMs,
		&job.CreditsConsumed,
		&job.TotalComments,
		&summaryRaw,
		&cleanupRaw,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	if len(summaryRaw) > 0 {
		var summary domain.JobSummary
		if err := json.Unmarshal(summaryRaw, &summary); err != nil {
			return nil, fmt.Errorf("failed to decode job summary: %w", err)
		}
		job.Summary = &summary
	}
	if len(cleanupRaw) > 0 {
		var cleanup domain.CleanupResult
		if err := json.Unmarshal(cleanupRaw, &cleanup); err != nil {
			return nil, fmt.Errorf("failed to decode job cleanup: %w", err)
		}
		job.Cleanup = &cleanup
	}
	job.Error = errorMessage.String

	return &job, nil
}

// marshalNullable encodes v as JSON, returning nil for a nil pointer so
// the column stays NULL.
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *domain.JobSummary:
		if t == nil {
			return nil, nil
		}
	case *domain.CleanupResult:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
