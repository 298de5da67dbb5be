// Package database handles database connections and migrations.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/veriscope/veriscope-api/internal/database/migrations"
)

// New opens a libsql database connection.
// DATABASE_URL accepts local files ("file:veriscope.db?...") or a
// running libsql server URL ("http://127.0.0.1:8080").
func New(dsn string) (*sql.DB, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate runs all pending schema migrations.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// SchemaVersion returns the latest applied migration version, or "" when
// no migration has run yet.
func SchemaVersion(db *sql.DB) (string, error) {
	return migrations.LatestVersion(db)
}
