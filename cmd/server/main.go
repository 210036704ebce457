// Package main implements the entry point for the matrix API server,
// an Eisenhower matrix task manager with AI-assisted prioritization.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/phrazzld/matrix-api/internal/config"
	"github.com/phrazzld/matrix-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	migrationsDir := flag.String("migrations-dir", "migrations", "directory containing SQL migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	if *migrateCmd != "" {
		if err := runMigrations(cfg, *migrateCmd, *migrationsDir); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	app, err := newApplication(context.Background(), cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.serve(context.Background()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
