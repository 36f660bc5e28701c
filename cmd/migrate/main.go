package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/logger"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence"
)

// migrate creates or updates the workflow state-store schema. The ERP
// database is never touched: its schema belongs to the upstream system.
func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.StateDB)
	if err != nil {
		log.Fatal("Failed to connect to state database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	log.Info("Migrating state-store schema",
		zap.String("database", cfg.StateDB.DBName),
		zap.String("host", cfg.StateDB.Host),
	)

	if err := db.Migrate(); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	log.Info("State-store schema is up to date")
}
