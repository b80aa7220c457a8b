package main

// Apply the embedded migrations to DATABASE_URL:
//   go run ./cmd/migrate -timeout 2m

import (
	"context"
	"flag"
	"os"
	"time"

	"loan-intake/internal/shared/config"
	"loan-intake/internal/shared/storage/db"
	"loan-intake/internal/shared/telemetry"
)

func main() {
	timeout := flag.Duration("timeout", time.Minute, "give up after this long")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg.DatabaseURL); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string) error {
	start := time.Now()
	sqlDB, dialect, err := db.Connect(ctx, databaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
		return err
	}
	telemetry.Info("migrate.done", map[string]any{
		"dialect":    string(dialect),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
