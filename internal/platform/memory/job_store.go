// Package memory provides in-memory store implementations backing the
// embedded development mode. The job store mirrors the PostgreSQL
// semantics, replacing the conditional row update with a compare-and-swap
// under a single mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/store"
)

// MemoryJobStore implements store.JobStore with an in-process map.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

var _ store.JobStore = (*MemoryJobStore)(nil)

// Enqueue inserts a pending job unless the owner already has an active
// one.
func (s *MemoryJobStore) Enqueue(ctx context.Context, job *domain.Job) (*store.EnqueueResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.OwnerID == job.OwnerID && !existing.Status.Terminal() {
			return &store.EnqueueResult{Job: copyJob(existing), AlreadyQueued: true}, nil
		}
	}

	s.jobs[job.ID] = copyJob(job)
	return &store.EnqueueResult{Job: copyJob(job), AlreadyQueued: false}, nil
}

// Get retrieves a job by ID.
func (s *MemoryJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return copyJob(job), nil
}

// ClaimNext claims the oldest pending job via compare-and-swap under
// the store mutex.
func (s *MemoryJobStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusPending {
			continue
		}
		if oldest == nil || job.EnqueuedAt.Before(oldest.EnqueuedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, store.ErrNoPendingJobs
	}

	now := time.Now().UTC()
	oldest.Status = domain.JobStatusRunning
	oldest.StartedAt = &now
	return copyJob(oldest), nil
}

// Complete performs the terminal transition to completed.
func (s *MemoryJobStore) Complete(ctx context.Context, id uuid.UUID, params store.CompleteParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return store.ErrJobTerminal
	}

	finish(job)
	job.Status = domain.JobStatusCompleted
	job.CreditsConsumed = params.CreditsConsumed
	job.TotalComments = params.TotalComments
	job.Summary = params.Summary
	job.Cleanup = params.Cleanup
	return nil
}

// Fail performs the terminal transition to failed.
func (s *MemoryJobStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return store.ErrJobTerminal
	}

	finish(job)
	job.Status = domain.JobStatusFailed
	job.Error = message
	return nil
}

// Cancel transitions a pending job to cancelled.
func (s *MemoryJobStore) Cancel(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, store.ErrJobNotFound
	}
	switch job.Status {
	case domain.JobStatusRunning:
		return false, store.ErrJobNotCancellable
	case domain.JobStatusPending:
		now := time.Now().UTC()
		job.Status = domain.JobStatusCancelled
		job.FinishedAt = &now
		job.DurationMs = 0
		job.Error = reason
		return true, nil
	default:
		// Already terminal: nothing mutated.
		return false, nil
	}
}

// Snapshot returns the operator queue view.
func (s *MemoryJobStore) Snapshot(ctx context.Context) (*store.QueueSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active, terminal []*domain.Job
	for _, job := range s.jobs {
		if job.Status.Terminal() {
			terminal = append(terminal, job)
		} else {
			active = append(active, job)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].EnqueuedAt.Before(active[j].EnqueuedAt)
	})
	sort.Slice(terminal, func(i, j int) bool {
		return finishedAfter(terminal[i], terminal[j])
	})

	snapshot := &store.QueueSnapshot{
		AverageDuration: s.averageDurationLocked(),
	}
	for _, job := range active {
		snapshot.Active = append(snapshot.Active, copyJob(job))
	}
	for i, job := range terminal {
		if i == 10 {
			break
		}
		snapshot.RecentTerminal = append(snapshot.RecentTerminal, copyJob(job))
	}
	return snapshot, nil
}

// OwnerStatus reports the owner's queue position and estimated wait.
func (s *MemoryJobStore) OwnerStatus(ctx context.Context, ownerID uuid.UUID) (*store.OwnerQueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var own *domain.Job
	for _, job := range s.jobs {
		if job.OwnerID == ownerID && !job.Status.Terminal() {
			own = job
			break
		}
	}
	if own == nil {
		return nil, store.ErrJobNotFound
	}

	ahead := 0
	for _, job := range s.jobs {
		if job.ID == own.ID {
			continue
		}
		if job.Status == domain.JobStatusRunning ||
			(job.Status == domain.JobStatusPending && job.EnqueuedAt.Before(own.EnqueuedAt)) {
			ahead++
		}
	}

	running := own.Status == domain.JobStatusRunning
	var elapsed time.Duration
	if running && own.StartedAt != nil {
		elapsed = time.Since(*own.StartedAt)
	}

	avg := s.averageDurationLocked()
	return &store.OwnerQueueStatus{
		Job:             copyJob(own),
		Position:        ahead + 1,
		JobsAhead:       ahead,
		AverageDuration: avg,
		EstimatedWait:   domain.EstimateWait(ahead, avg, elapsed, running),
	}, nil
}

// PruneTerminal removes terminal jobs beyond the most recent keep.
func (s *MemoryJobStore) PruneTerminal(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var terminal []*domain.Job
	for _, job := range s.jobs {
		if job.Status.Terminal() {
			terminal = append(terminal, job)
		}
	}
	if len(terminal) <= keep {
		return 0, nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return finishedAfter(terminal[i], terminal[j])
	})

	pruned := 0
	for _, job := range terminal[keep:] {
		delete(s.jobs, job.ID)
		pruned++
	}
	return pruned, nil
}

func (s *MemoryJobStore) averageDurationLocked() time.Duration {
	var completed []*domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusCompleted {
			completed = append(completed, job)
		}
	}
	if len(completed) == 0 {
		return 0
	}
	sort.Slice(completed, func(i, j int) bool {
		return finishedAfter(completed[i], completed[j])
	})
	if len(completed) > 20 {
		completed = completed[:20]
	}

	var totalMs int64
	for _, job := range completed {
		totalMs += job.DurationMs
	}
	return time.Duration(totalMs/int64(len(completed))) * time.Millisecond
}

func finish(job *domain.Job) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	start := job.EnqueuedAt
	if job.StartedAt != nil {
		start = *job.StartedAt
	}
	ms := now.Sub(start).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	job.DurationMs = ms
}

func finishedAfter(a, b *domain.Job) bool {
	at, bt := time.Time{}, time.Time{}
	if a.FinishedAt != nil {
		at = *a.FinishedAt
	}
	if b.FinishedAt != nil {
		bt = *b.FinishedAt
	}
	return at.After(bt)
}

func copyJob(job *domain.Job) *domain.Job {
	dup := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		dup.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		dup.FinishedAt = &t
	}
	if job.Summary != nil {
		sum := *job.Summary
		sum.Accounts = append([]domain.AccountResult(nil), job.Summary.Accounts...)
		dup.Summary = &sum
	}
	if job.Cleanup != nil {
		cl := *job.Cleanup
		cl.Errors = append([]string(nil), job.Cleanup.Errors...)
		dup.Cleanup = &cl
	}
	return &dup
}
