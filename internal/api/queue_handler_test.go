package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/api/shared"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/notify"
	"github.com/promoloop/exchange-api/internal/platform/memory"
	"github.com/promoloop/exchange-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capturingEmitter records emitted events for assertions.
type capturingEmitter struct {
	mu     sync.Mutex
	events []*notify.Event
}

func (e *capturingEmitter) Emit(ctx context.Context, event *notify.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

type queueFixture struct {
	jobs    *memory.MemoryJobStore
	clients *memory.MemoryClientStore
	emitter *capturingEmitter
	handler *QueueHandler
}

func newQueueFixture() *queueFixture {
	f := &queueFixture{
		jobs:    memory.NewMemoryJobStore(),
		clients: memory.NewMemoryClientStore(),
		emitter: &capturingEmitter{},
	}
	f.handler = NewQueueHandler(f.jobs, f.clients, f.emitter, testLogger())
	return f
}

// router mounts the queue routes behind a stub that injects the given
// client ID, standing in for the JWT middleware.
func (f *queueFixture) router(clientID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), shared.ClientIDContextKey, clientID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/runs", f.handler.EnqueueRun)
	r.Get("/runs/{id}", f.handler.GetRun)
	r.Delete("/runs/{id}", f.handler.CancelRun)
	r.Get("/queue", f.handler.QueueStatus)
	r.Get("/queue/snapshot", f.handler.Snapshot)
	return r
}

func (f *queueFixture) seedClient(role domain.ClientRole) *domain.Client {
	client := &domain.Client{
		ID:         uuid.New(),
		Role:       role,
		Status:     domain.ClientActive,
		Credits:    10,
		PartnerKey: "key",
	}
	f.clients.Put(client)
	return client
}

func (f *queueFixture) enqueueJob(t *testing.T, owner uuid.UUID) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(owner, 10, 5)
	require.NoError(t, err)
	_, err = f.jobs.Enqueue(context.Background(), job)
	require.NoError(t, err)
	return job
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueRun(t *testing.T) {
	t.Parallel()

	t.Run("queues a run and reports it", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)

		rec := doJSON(t, f.router(client.ID), http.MethodPost, "/runs",
			EnqueueRunRequest{MaxCommentsPerAccount: 10, AccountLimit: 5})

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp EnqueueRunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.AlreadyQueued)
		assert.Equal(t, client.ID, resp.Job.OwnerID)
		assert.Equal(t, domain.JobStatusPending, resp.Job.Status)
	})

	t.Run("out-of-range limits are clamped", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)

		rec := doJSON(t, f.router(client.ID), http.MethodPost, "/runs",
			EnqueueRunRequest{MaxCommentsPerAccount: 99999, AccountLimit: 0})

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp EnqueueRunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, domain.MaxCommentsPerAccount, resp.Job.MaxCommentsPerAccount)
		assert.Equal(t, domain.MinAccountLimit, resp.Job.AccountLimit)
	})

	t.Run("a second enqueue reports the existing job", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)
		existing := f.enqueueJob(t, client.ID)

		rec := doJSON(t, f.router(client.ID), http.MethodPost, "/runs",
			EnqueueRunRequest{MaxCommentsPerAccount: 10, AccountLimit: 5})

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp EnqueueRunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.AlreadyQueued)
		assert.Equal(t, existing.ID, resp.Job.ID)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)

		req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader([]byte("{broken")))
		rec := httptest.NewRecorder()
		f.router(client.ID).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	t.Run("owner reads their job", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)
		job := f.enqueueJob(t, client.ID)

		rec := doJSON(t, f.router(client.ID), http.MethodGet, "/runs/"+job.ID.String(), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var got domain.Job
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("another client cannot see the job", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		owner := f.seedClient(domain.RoleCustomer)
		other := f.seedClient(domain.RoleCustomer)
		job := f.enqueueJob(t, owner.ID)

		rec := doJSON(t, f.router(other.ID), http.MethodGet, "/runs/"+job.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "existence is not leaked")
	})

	t.Run("an admin can see any job", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		owner := f.seedClient(domain.RoleCustomer)
		admin := f.seedClient(domain.RoleAdmin)
		job := f.enqueueJob(t, owner.ID)

		rec := doJSON(t, f.router(admin.ID), http.MethodGet, "/runs/"+job.ID.String(), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown job is not found", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)

		rec := doJSON(t, f.router(client.ID), http.MethodGet, "/runs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed job ID is rejected", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)

		rec := doJSON(t, f.router(client.ID), http.MethodGet, "/runs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancelRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancels a pending job and notifies", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)
		job := f.enqueueJob(t, client.ID)

		rec := doJSON(t, f.router(client.ID), http.MethodDelete, "/runs/"+job.ID.String(), nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, got.Status)

		require.Len(t, f.emitter.events, 1)
		assert.Equal(t, notify.EventJobCancelled, f.emitter.events[0].Type)
	})

	t.Run("a running job conflicts", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)
		job := f.enqueueJob(t, client.ID)
		_, err := f.jobs.ClaimNext(ctx)
		require.NoError(t, err)

		rec := doJSON(t, f.router(client.ID), http.MethodDelete, "/runs/"+job.ID.String(), nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("a finished job conflicts", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)
		job := f.enqueueJob(t, client.ID)
		_, err := f.jobs.ClaimNext(ctx)
		require.NoError(t, err)
		require.NoError(t, f.jobs.Complete(ctx, job.ID, store.CompleteParams{}))

		rec := doJSON(t, f.router(client.ID), http.MethodDelete, "/runs/"+job.ID.String(), nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, f.emitter.events)
	})

	t.Run("another client cannot cancel", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		owner := f.seedClient(domain.RoleCustomer)
		other := f.seedClient(domain.RoleCustomer)
		job := f.enqueueJob(t, owner.ID)

		rec := doJSON(t, f.router(other.ID), http.MethodDelete, "/runs/"+job.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		got, err := f.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, got.Status)
	})
}

func TestQueueStatus(t *testing.T) {
	t.Parallel()

	t.Run("reports position and estimated wait", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		ahead := f.seedClient(domain.RoleCustomer)
		client := f.seedClient(domain.RoleCustomer)

		aheadJob, err := domain.NewJob(ahead.ID, 10, 5)
		require.NoError(t, err)
		aheadJob.EnqueuedAt = time.Now().UTC().Add(-time.Minute)
		_, err = f.jobs.Enqueue(context.Background(), aheadJob)
		require.NoError(t, err)
		f.enqueueJob(t, client.ID)

		rec := doJSON(t, f.router(client.ID), http.MethodGet, "/queue", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp QueueStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 2, resp.Position)
		assert.Equal(t, 1, resp.JobsAhead)
		assert.Equal(t, domain.DefaultJobDuration.Milliseconds(), resp.EstimatedWaitMs)
	})

	t.Run("no active job is not found", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		client := f.seedClient(domain.RoleCustomer)

		rec := doJSON(t, f.router(client.ID), http.MethodGet, "/queue", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("admin sees the queue overview", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		admin := f.seedClient(domain.RoleAdmin)
		customer := f.seedClient(domain.RoleCustomer)
		f.enqueueJob(t, customer.ID)

		rec := doJSON(t, f.router(admin.ID), http.MethodGet, "/queue/snapshot", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp SnapshotResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Active, 1)
	})

	t.Run("customers are forbidden", func(t *testing.T) {
		t.Parallel()
		f := newQueueFixture()
		customer := f.seedClient(domain.RoleCustomer)

		rec := doJSON(t, f.router(customer.ID), http.MethodGet, "/queue/snapshot", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
