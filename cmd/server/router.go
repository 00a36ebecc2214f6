package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/promoloop/exchange-api/internal/api"
	"github.com/promoloop/exchange-api/internal/api/middleware"
	"github.com/promoloop/exchange-api/internal/config"
	"github.com/promoloop/exchange-api/internal/notify"
	"github.com/promoloop/exchange-api/internal/scheduler"
)

// newRouter assembles the control API.
func newRouter(
	cfg *config.Config,
	st *stores,
	keepAlive *scheduler.KeepAlive,
	notifier notify.Emitter,
	log *slog.Logger,
) http.Handler {
	queueHandler := api.NewQueueHandler(st.jobs, st.clients, notifier, log)
	schedulerHandler := api.NewSchedulerHandler(keepAlive, st.clients, log)
	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/runs", queueHandler.EnqueueRun)
		r.Get("/runs/{id}", queueHandler.GetRun)
		r.Delete("/runs/{id}", queueHandler.CancelRun)
		r.Get("/queue", queueHandler.QueueStatus)
		r.Get("/queue/snapshot", queueHandler.Snapshot)

		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/start", schedulerHandler.Start)
			r.Post("/stop", schedulerHandler.Stop)
			r.Get("/status", schedulerHandler.Status)
		})
	})

	return r
}
