package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/exchange"
	"github.com/promoloop/exchange-api/internal/notify"
	"github.com/promoloop/exchange-api/internal/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner simulates the pipeline: it "posts" up to tasksAvailable
// comments per run, consulting the completion hook after each one like
// the real execution loop does.
type fakeRunner struct {
	mu             sync.Mutex
	tasksAvailable int
	runs           []exchange.RunParams
	cleanups       [][]string
	runErr         error
}

var _ exchange.Runner = (*fakeRunner)(nil)

func (f *fakeRunner) Run(ctx context.Context, params exchange.RunParams) (*exchange.RunReport, error) {
	f.mu.Lock()
	f.runs = append(f.runs, params)
	f.mu.Unlock()

	if f.runErr != nil {
		return nil, f.runErr
	}

	limit := f.tasksAvailable
	if params.MaxCommentsPerAccount < limit {
		limit = params.MaxCommentsPerAccount
	}

	posted := 0
	for posted < limit {
		posted++
		if params.Hook != nil && !params.Hook() {
			break
		}
	}

	return &exchange.RunReport{
		Summary: &domain.JobSummary{
			Accounts: []domain.AccountResult{{Account: "worker1", CommentsPosted: posted}},
		},
		TotalComments: posted,
		ProfileIDs:    []string{"p1"},
	}, nil
}

func (f *fakeRunner) Cleanup(ctx context.Context, key string, profileIDs []string) *domain.CleanupResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, profileIDs)
	return &domain.CleanupResult{Removed: len(profileIDs)}
}

// fakeEmitter records every emitted event.
type fakeEmitter struct {
	mu     sync.Mutex
	events []*notify.Event
}

var _ notify.Emitter = (*fakeEmitter)(nil)

func (f *fakeEmitter) Emit(ctx context.Context, event *notify.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEmitter) byType(eventType notify.EventType) []*notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notify.Event
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type schedulerFixture struct {
	jobs     *memory.MemoryJobStore
	clients  *memory.MemoryClientStore
	runner   *fakeRunner
	emitter  *fakeEmitter
	schedule *Scheduler
}

func newFixture(operatorKey string, tasksAvailable int) *schedulerFixture {
	f := &schedulerFixture{
		jobs:    memory.NewMemoryJobStore(),
		clients: memory.NewMemoryClientStore(),
		runner:  &fakeRunner{tasksAvailable: tasksAvailable},
		emitter: &fakeEmitter{},
	}
	f.schedule = New(f.jobs, f.clients, f.runner, f.emitter, operatorKey, testLogger())
	return f
}

func (f *schedulerFixture) seedClient(t *testing.T, mutate func(*domain.Client)) *domain.Client {
	t.Helper()
	client := &domain.Client{
		ID:         uuid.New(),
		Name:       "acme",
		Role:       domain.RoleCustomer,
		Status:     domain.ClientActive,
		Credits:    10,
		PartnerKey: "acme-key",
	}
	if mutate != nil {
		mutate(client)
	}
	f.clients.Put(client)
	return client
}

func (f *schedulerFixture) enqueue(t *testing.T, owner uuid.UUID, enqueuedAt time.Time) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(owner, 100, 10)
	require.NoError(t, err)
	job.EnqueuedAt = enqueuedAt
	_, err = f.jobs.Enqueue(context.Background(), job)
	require.NoError(t, err)
	return job
}

func TestSchedulerAdmission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.Client)
		seed   bool
		reason string
	}{
		{"missing client", nil, false, "client not found"},
		{"blocked client", func(c *domain.Client) { c.Status = domain.ClientBlocked }, true, "client is blocked"},
		{"pending client", func(c *domain.Client) { c.Status = domain.ClientPending }, true, "client is not active"},
		{"no automation key", func(c *domain.Client) { c.PartnerKey = "" }, true, "client has no automation key"},
		{"no credits", func(c *domain.Client) { c.Credits = 0 }, true, "client has no credits"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture("", 5)

			owner := uuid.New()
			if tc.seed {
				owner = f.seedClient(t, tc.mutate).ID
			}
			job := f.enqueue(t, owner, time.Now().UTC())

			require.NoError(t, f.schedule.RunPass(ctx))

			got, err := f.jobs.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, got.Status)
			assert.Equal(t, tc.reason, got.Error)

			failed := f.emitter.byType(notify.EventJobFailed)
			require.Len(t, failed, 1)
			assert.Equal(t, tc.reason, failed[0].Error)
			assert.Empty(t, f.runner.runs, "rejected jobs never reach the pipeline")
		})
	}

	t.Run("admin with zero credits is still admitted", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 5)
		admin := f.seedClient(t, func(c *domain.Client) {
			c.Role = domain.RoleAdmin
			c.Credits = 0
		})
		job := f.enqueue(t, admin.ID, time.Now().UTC())

		require.NoError(t, f.schedule.RunPass(ctx))

		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
	})

	t.Run("installed filter can reject", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 5)
		f.schedule.SetClientFilter(func(client *domain.Client) bool { return false })
		client := f.seedClient(t, nil)
		job := f.enqueue(t, client.ID, time.Now().UTC())

		require.NoError(t, f.schedule.RunPass(ctx))

		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Equal(t, "client rejected by filter", got.Error)
	})
}

func TestSchedulerCreditMetering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("the balance caps the run and is debited", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 10)
		client := f.seedClient(t, func(c *domain.Client) { c.Credits = 5 })
		job := f.enqueue(t, client.ID, time.Now().UTC())

		require.NoError(t, f.schedule.RunPass(ctx))

		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		assert.Equal(t, 5, got.TotalComments)
		assert.Equal(t, 5, got.CreditsConsumed)
		require.NotNil(t, got.Cleanup)
		assert.Equal(t, 1, got.Cleanup.Removed)

		balance, err := f.clients.Get(ctx, client.ID)
		require.NoError(t, err)
		assert.Zero(t, balance.Credits)

		completed := f.emitter.byType(notify.EventJobCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, job.ID, completed[0].Job.ID)
	})

	t.Run("admins are never metered or debited", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 10)
		admin := f.seedClient(t, func(c *domain.Client) {
			c.Role = domain.RoleAdmin
			c.Credits = 3
		})
		job := f.enqueue(t, admin.ID, time.Now().UTC())

		require.NoError(t, f.schedule.RunPass(ctx))

		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.TotalComments, "run not stopped by the balance")
		assert.Zero(t, got.CreditsConsumed)

		balance, err := f.clients.Get(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, balance.Credits)
	})

	t.Run("a short run bills only the work done", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 2)
		client := f.seedClient(t, func(c *domain.Client) { c.Credits = 10 })
		job := f.enqueue(t, client.ID, time.Now().UTC())

		require.NoError(t, f.schedule.RunPass(ctx))

		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.TotalComments)
		assert.Equal(t, 2, got.CreditsConsumed)

		balance, err := f.clients.Get(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, 8, balance.Credits)
	})
}

func TestSchedulerDrain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("drains the queue in enqueue order", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 3)
		now := time.Now().UTC()
		first := f.seedClient(t, func(c *domain.Client) { c.PartnerKey = "first-key" })
		second := f.seedClient(t, func(c *domain.Client) { c.PartnerKey = "second-key" })
		f.enqueue(t, first.ID, now.Add(-time.Minute))
		f.enqueue(t, second.ID, now)

		require.NoError(t, f.schedule.RunPass(ctx))

		require.Len(t, f.runner.runs, 2)
		assert.Equal(t, "first-key", f.runner.runs[0].Key)
		assert.Equal(t, "second-key", f.runner.runs[1].Key)
	})

	t.Run("a pipeline failure fails the job and continues", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 3)
		f.runner.runErr = errors.New("failed to list managed accounts: connection refused")
		client := f.seedClient(t, nil)
		job := f.enqueue(t, client.ID, time.Now().UTC())

		require.NoError(t, f.schedule.RunPass(ctx))

		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Contains(t, got.Error, "connection refused")

		failed := f.emitter.byType(notify.EventJobFailed)
		require.Len(t, failed, 1)
	})

	t.Run("an empty queue is a clean pass", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 3)
		require.NoError(t, f.schedule.RunPass(ctx))
		assert.Empty(t, f.runner.runs)
	})
}

func TestSchedulerOperatorPass(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("runs unmetered with the maximum limits", func(t *testing.T) {
		t.Parallel()
		f := newFixture("op-key", 3)

		require.NoError(t, f.schedule.RunPass(ctx))

		require.Len(t, f.runner.runs, 1)
		run := f.runner.runs[0]
		assert.Equal(t, "op-key", run.Key)
		assert.Equal(t, domain.MaxCommentsPerAccount, run.MaxCommentsPerAccount)
		assert.Equal(t, domain.MaxAccountLimit, run.AccountLimit)
		assert.Nil(t, run.Hook, "the operator pool has no ceiling")

		events := f.emitter.byType(notify.EventOwnerCompleted)
		require.Len(t, events, 1)
		assert.NotNil(t, events[0].Summary)

		require.Len(t, f.runner.cleanups, 1)
		assert.Equal(t, []string{"p1"}, f.runner.cleanups[0])
	})

	t.Run("operator failure still drains the queue", func(t *testing.T) {
		t.Parallel()
		f := newFixture("op-key", 3)
		f.runner.runErr = errors.New("exchange unreachable")
		client := f.seedClient(t, nil)
		job := f.enqueue(t, client.ID, time.Now().UTC())

		require.NoError(t, f.schedule.RunPass(ctx))

		events := f.emitter.byType(notify.EventOwnerCompleted)
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Error, "exchange unreachable")

		// The client job also fails (same runner error) but it is
		// resolved, not skipped.
		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
	})

	t.Run("empty key disables the operator pass", func(t *testing.T) {
		t.Parallel()
		f := newFixture("", 3)
		require.NoError(t, f.schedule.RunPass(ctx))
		assert.Empty(t, f.emitter.byType(notify.EventOwnerCompleted))
	})
}
