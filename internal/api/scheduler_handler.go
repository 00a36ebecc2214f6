package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/api/middleware"
	"github.com/promoloop/exchange-api/internal/api/shared"
	"github.com/promoloop/exchange-api/internal/scheduler"
	"github.com/promoloop/exchange-api/internal/store"
)

// SchedulerHandler serves admin control of the keep-alive loop.
type SchedulerHandler struct {
	keepAlive *scheduler.KeepAlive
	clients   store.ClientStore
	logger    *slog.Logger
}

// NewSchedulerHandler creates a SchedulerHandler.
func NewSchedulerHandler(
	keepAlive *scheduler.KeepAlive,
	clients store.ClientStore,
	logger *slog.Logger,
) *SchedulerHandler {
	return &SchedulerHandler{
		keepAlive: keepAlive,
		clients:   clients,
		logger:    logger.With("component", "scheduler_handler"),
	}
}

// Start handles POST /scheduler/start.
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	if err := h.keepAlive.Start(); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			shared.RespondWithJSON(w, http.StatusOK, map[string]bool{"already_running": true})
			return
		}
		h.logger.Error("failed to start keep-alive loop", "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to start scheduler")
		return
	}

	shared.RespondWithJSON(w, http.StatusOK, map[string]bool{"started": true})
}

// Stop handles POST /scheduler/stop. It blocks until the in-flight
// pass finishes.
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	h.keepAlive.Stop()
	shared.RespondWithJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

// Status handles GET /scheduler/status.
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	shared.RespondWithJSON(w, http.StatusOK, h.keepAlive.Status())
}

func (h *SchedulerHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	clientID, ok := middleware.GetClientID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return false
	}
	if !h.isAdmin(r, clientID) {
		shared.RespondWithError(w, r, http.StatusForbidden, "Admin access required")
		return false
	}
	return true
}

func (h *SchedulerHandler) isAdmin(r *http.Request, clientID uuid.UUID) bool {
	client, err := h.clients.Get(r.Context(), clientID)
	return err == nil && client.IsAdmin()
}
