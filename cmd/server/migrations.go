package main

import (
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/promoloop/exchange-api/internal/config"
	"github.com/promoloop/exchange-api/migrations"
)

// runMigrations executes the requested goose command against the
// configured database and returns.
func runMigrations(cfg *config.Config, command string, log *slog.Logger) error {
	if cfg.Database.URL == embeddedStoreURL {
		return fmt.Errorf("embedded store mode has no migrations")
	}

	db, err := setupDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	log.Info("running migrations", "command", command)
	switch command {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migration %q failed: %w", command, err)
	}
	return nil
}
