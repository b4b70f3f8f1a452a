package internal

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Schema migrations ship inside the binary so a deploy needs nothing
// on disk beyond the executable.
//
//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies any pending schema migrations at startup.
// Goose records applied versions in its own table, so rerunning on an
// up-to-date database is a no-op.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
