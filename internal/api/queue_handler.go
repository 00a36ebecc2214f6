// Package api exposes the queue and scheduler control surface over
// HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/api/middleware"
	"github.com/promoloop/exchange-api/internal/api/shared"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/notify"
	"github.com/promoloop/exchange-api/internal/store"
)

// QueueHandler serves job enqueue, inspection, and cancellation.
type QueueHandler struct {
	jobs     store.JobStore
	clients  store.ClientStore
	notifier notify.Emitter
	logger   *slog.Logger
}

// NewQueueHandler creates a QueueHandler.
func NewQueueHandler(
	jobs store.JobStore,
	clients store.ClientStore,
	notifier notify.Emitter,
	logger *slog.Logger,
) *QueueHandler {
	return &QueueHandler{
		jobs:     jobs,
		clients:  clients,
		notifier: notifier,
		logger:   logger.With("component", "queue_handler"),
	}
}

// EnqueueRun handles POST /runs: queue a pipeline run for the calling
// client. Limits outside their bounds are clamped, not rejected.
func (h *QueueHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req EnqueueRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := domain.NewJob(clientID, req.MaxCommentsPerAccount, req.AccountLimit)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.jobs.Enqueue(r.Context(), job)
	if err != nil {
		h.logger.Error("failed to enqueue job", "client_id", clientID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	shared.RespondWithJSON(w, http.StatusAccepted, EnqueueRunResponse{
		Job:           result.Job,
		AlreadyQueued: result.AlreadyQueued,
	})
}

// GetRun handles GET /runs/{id}: job detail for its owner or an admin.
func (h *QueueHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("failed to get job", "job_id", jobID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if job.OwnerID != clientID && !h.isAdmin(r, clientID) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	shared.RespondWithJSON(w, http.StatusOK, job)
}

// CancelRun handles DELETE /runs/{id}: cancel the owner's pending job.
// A running job reports a conflict; a finished one reports not
// cancellable.
func (h *QueueHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("failed to get job", "job_id", jobID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to cancel job")
		return
	}
	if job.OwnerID != clientID && !h.isAdmin(r, clientID) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	cancelled, err := h.jobs.Cancel(r.Context(), jobID, "cancelled by client")
	if err != nil {
		if errors.Is(err, store.ErrJobNotCancellable) {
			shared.RespondWithError(w, r, http.StatusConflict, "Job is running and cannot be cancelled")
			return
		}
		h.logger.Error("failed to cancel job", "job_id", jobID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to cancel job")
		return
	}
	if !cancelled {
		shared.RespondWithError(w, r, http.StatusConflict, "Job already finished")
		return
	}

	event := notify.NewEvent(notify.EventJobCancelled)
	event.Job = job
	event.Reason = "cancelled by client"
	h.notifier.Emit(r.Context(), event)

	shared.RespondWithJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// QueueStatus handles GET /queue: the calling client's position and
// estimated wait.
func (h *QueueHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	status, err := h.jobs.OwnerStatus(r.Context(), clientID)
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "No active job")
			return
		}
		h.logger.Error("failed to get queue status", "client_id", clientID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to get queue status")
		return
	}

	shared.RespondWithJSON(w, http.StatusOK, newQueueStatusResponse(status))
}

// Snapshot handles GET /queue/snapshot: the admin queue overview.
func (h *QueueHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientID(r)
	if !ok || !h.isAdmin(r, clientID) {
		shared.RespondWithError(w, r, http.StatusForbidden, "Admin access required")
		return
	}

	snapshot, err := h.jobs.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to get queue snapshot", "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}

	shared.RespondWithJSON(w, http.StatusOK, newSnapshotResponse(snapshot))
}

func (h *QueueHandler) isAdmin(r *http.Request, clientID uuid.UUID) bool {
	client, err := h.clients.Get(r.Context(), clientID)
	return err == nil && client.IsAdmin()
}
