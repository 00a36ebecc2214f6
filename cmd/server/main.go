// Command server runs the comment-exchange automation control plane:
// the job queue API, the scheduler, and its keep-alive loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/promoloop/exchange-api/internal/config"
	"github.com/promoloop/exchange-api/internal/exchange"
	"github.com/promoloop/exchange-api/internal/notify"
	"github.com/promoloop/exchange-api/internal/partner"
	"github.com/promoloop/exchange-api/internal/platform/logger"
	"github.com/promoloop/exchange-api/internal/platform/memory"
	"github.com/promoloop/exchange-api/internal/platform/postgres"
	"github.com/promoloop/exchange-api/internal/scheduler"
	"github.com/promoloop/exchange-api/internal/steamweb"
	"github.com/promoloop/exchange-api/internal/store"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"embedded_store", cfg.Database.URL == embeddedStoreURL)

	if migrateCmd != "" {
		return runMigrations(cfg, migrateCmd, log)
	}

	stores, cleanup, err := setupStores(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	app := buildApp(cfg, stores, log)

	if err := app.keepAlive.Start(); err != nil {
		return fmt.Errorf("failed to start keep-alive loop: %w", err)
	}
	defer app.keepAlive.Stop()

	return serve(cfg, app, log)
}

// appComponents holds the wired application graph.
type appComponents struct {
	handler   http.Handler
	keepAlive *scheduler.KeepAlive
}

// stores bundles the three persistence interfaces.
type stores struct {
	jobs     store.JobStore
	clients  store.ClientStore
	accounts store.AccountStore
}

// buildApp wires the pipeline, scheduler, notifier, and HTTP surface.
func buildApp(cfg *config.Config, st *stores, log *slog.Logger) *appComponents {
	notifier := notify.NewFanOutEmitter(log)
	notifier.Register(notify.NewLogSink(log))
	notifier.Register(notify.NewWebhookSink(cfg.Partner.NotifyURL))

	partnerClient := partner.NewClient(cfg.Partner.BaseURL, log)

	sessions := steamweb.SessionFactory(func() (steamweb.Session, error) {
		return steamweb.NewWebSession("")
	})

	auth := exchange.NewAuthenticator(
		st.accounts,
		steamweb.NewRuleClassifier(),
		log,
		cfg.Scheduler.LoginRetries,
		cfg.Scheduler.ThrottleWait,
	)
	pipeline := exchange.NewPipeline(
		st.accounts,
		partnerClient,
		sessions,
		auth,
		cfg.Scheduler.CommentDelay,
		log,
	)

	sched := scheduler.New(st.jobs, st.clients, pipeline, notifier, cfg.Partner.OperatorKey, log)
	keepAlive := scheduler.NewKeepAlive(sched, cfg.Scheduler.KeepAliveInterval, log)

	return &appComponents{
		handler:   newRouter(cfg, st, keepAlive, notifier, log),
		keepAlive: keepAlive,
	}
}

// setupStores selects between the embedded in-memory mode and
// PostgreSQL based on the configured database URL.
func setupStores(cfg *config.Config, log *slog.Logger) (*stores, func(), error) {
	if cfg.Database.URL == embeddedStoreURL {
		log.Warn("using embedded in-memory stores, state will not survive restarts")
		return &stores{
			jobs:     memory.NewMemoryJobStore(),
			clients:  memory.NewMemoryClientStore(),
			accounts: memory.NewMemoryAccountStore(),
		}, func() {}, nil
	}

	db, err := setupDatabase(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}
	return &stores{
		jobs:     postgres.NewPostgresJobStore(db),
		clients:  postgres.NewPostgresClientStore(db),
		accounts: postgres.NewPostgresAccountStore(db),
	}, cleanup, nil
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains.
func serve(cfg *config.Config, app *appComponents, log *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-stop:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
