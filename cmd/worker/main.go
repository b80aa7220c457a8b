package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"loan-intake/internal/bootstrap"
	"loan-intake/internal/shared/config"
	"loan-intake/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	w, err := app.Worker()
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	w.Run(ctx)
}
