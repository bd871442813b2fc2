package pgstore

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var EmbedMigrations embed.FS

// MigrateUp runs all pending migrations against the given database URL.
func MigrateUp(log *slog.Logger, databaseURL string) error {
	db, err := openDB(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("pgstore: running migrations (up)")
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("pgstore: migrations completed")
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(log *slog.Logger, databaseURL string) error {
	db, err := openDB(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("pgstore: rolling back migration (down)")
	if err := goose.Down(db, "migrations"); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	log.Info("pgstore: migration rollback completed")
	return nil
}

// MigrateStatus prints the status of all migrations.
func MigrateStatus(log *slog.Logger, databaseURL string) error {
	db, err := openDB(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("pgstore: migration status")
	if err := goose.Status(db, "migrations"); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

func openDB(databaseURL string) (*sql.DB, error) {
	goose.SetBaseFS(EmbedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
