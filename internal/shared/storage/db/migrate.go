package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// RunMigrations applies the embedded SQL migrations for dialect via goose.
// The migrations create the same tables the records store creates lazily,
// so running them is optional. A nil database is a no-op.
func RunMigrations(ctx context.Context, database *sql.DB, dialect Dialect) error {
	if database == nil {
		return nil
	}
	var gooseDialect, dir string
	switch dialect {
	case Postgres:
		gooseDialect, dir = "postgres", "migrations/postgres"
	case SQLite:
		gooseDialect, dir = "sqlite3", "migrations/sqlite"
	default:
		return fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, database, dir)
}
