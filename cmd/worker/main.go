package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/application/reconcile"
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/erpdb"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/lock"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/logger"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/notify"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/radius"
	"github.com/FiveStarManagement/LWS-Workflow/internal/interfaces/http/handler"
	"github.com/FiveStarManagement/LWS-Workflow/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting LWS workflow worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Duration("run_interval", cfg.Scheduler.RunInterval),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// State database
	stateDB, err := persistence.NewDatabaseWithCustomLogger(&cfg.StateDB, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to state database", zap.Error(err))
	}
	defer func() {
		if err := stateDB.Close(); err != nil {
			log.Error("Error closing state database", zap.Error(err))
		}
	}()
	log.Info("State database connected")

	// ERP database sessions
	erpSessions, err := erpdb.Open(cfg.ERPDB)
	if err != nil {
		log.Fatal("Failed to connect to ERP database", zap.Error(err))
	}
	defer func() {
		if err := erpSessions.Close(); err != nil {
			log.Error("Error closing ERP sessions", zap.Error(err))
		}
	}()
	log.Info("ERP database sessions connected")

	// ERP gateway: database reads, REST-adapter writes, direct corrections
	reader := erpdb.NewReader(erpSessions.ReadOnly, erpSessions.ReadWrite, cfg.Workflow, log)
	corrector := erpdb.NewCorrector(erpSessions.ReadWrite, cfg.Workflow, log)
	client := radius.NewClient(cfg.Radius, log)
	writer := radius.NewWriter(client, reader, cfg.Workflow, cfg.Trading, log)
	gateway := erpdb.NewGateway(reader, writer, corrector)

	// State store, notifier, per-order lock
	store := persistence.NewStateStore(stateDB.DB)

	notifier, err := notify.New(cfg.Notify, stateDB.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize notifier", zap.Error(err))
	}

	locker, err := lock.New(cfg.Lock)
	if err != nil {
		log.Fatal("Failed to initialize order locker", zap.Error(err))
	}

	// Reconciliation components
	deduper := reconcile.NewDeduper(notifier)
	scanner := reconcile.NewScanner(reader, store, cfg.Scheduler.MaxOrdersPerRun, log)
	pipeline := reconcile.NewPipeline(gateway, store, deduper, reconcile.PipelineConfig{
		Prefixes: erp.ItemPrefixes{
			Purchase:    cfg.Workflow.PurchaseItemPrefix,
			Fulfillment: cfg.Workflow.FulfillmentItemPrefix,
		},
	}, log)
	detector := reconcile.NewDetector(gateway, store, deduper, log)
	watcher := reconcile.NewWatcher(gateway, store, log)
	aging := reconcile.NewHoldAgingMonitor(notifier, reconcile.HoldAgingConfig{
		ReminderAfter:    cfg.Hold.ReminderAfter,
		ReminderInterval: cfg.Hold.ReminderInterval,
		EscalateAfter:    cfg.Hold.EscalateAfter,
	}, log)

	orchestrator := reconcile.NewOrchestrator(
		scanner, pipeline, detector, watcher, aging, store, locker,
		reconcile.OrchestratorConfig{
			Env:            cfg.App.Env,
			MaxWorkers:     cfg.Scheduler.MaxWorkers,
			OrderTimeout:   cfg.Scheduler.OrderTimeout,
			ArchiveAfter:   time.Duration(cfg.Retention.ArchiveAfterDays) * 24 * time.Hour,
			PurgeRunsAfter: time.Duration(cfg.Retention.PurgeRunsAfterDays) * 24 * time.Hour,
		},
		log,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operations API
	var opsServer *http.Server
	if cfg.Ops.Enabled {
		engine := router.NewEngine(log)
		router.NewRouter(engine).
			Register(handler.NewOpsHandler(store)).
			Setup()

		opsServer = &http.Server{
			Addr:    ":" + cfg.Ops.Port,
			Handler: engine,
		}
		go func() {
			log.Info("Operations API listening", zap.String("port", cfg.Ops.Port))
			if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Operations API failed", zap.Error(err))
			}
		}()
	}

	runCycles(rootCtx, orchestrator, cfg.Scheduler, log)

	// Graceful shutdown
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Operations API shutdown failed", zap.Error(err))
		}
	}
	log.Info("Worker stopped")
}

// runCycles executes reconciliation cycles on the configured interval until
// the context is cancelled. A failed cycle is logged and the next tick tries
// again; one bad cycle never takes the worker down.
func runCycles(ctx context.Context, orchestrator *reconcile.Orchestrator, cfg config.SchedulerConfig, log *zap.Logger) {
	runOnce := func() {
		cycleCtx, cancel := context.WithTimeout(ctx, cfg.CycleTimeout)
		defer cancel()

		run, err := orchestrator.RunCycle(cycleCtx)
		if err != nil {
			log.Error("Reconciliation cycle failed", zap.Error(err))
			return
		}
		log.Info("Reconciliation cycle finished",
			zap.String("run_id", run.ID),
			zap.Int("eligible", run.EligibleCount),
			zap.Int("processed", run.ProcessedCount),
			zap.Int("held", run.HeldCount),
			zap.Int("failed", run.FailedCount),
		)
	}

	runOnce()

	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutdown signal received")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
