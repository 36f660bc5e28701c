package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// OrchestratorConfig holds the run-cycle settings
type OrchestratorConfig struct {
	Env string
	// MaxWorkers bounds how many orders process concurrently; orders are
	// independent units of work, steps within one order are sequential
	MaxWorkers int
	// OrderTimeout is the per-order deadline within a cycle
	OrderTimeout time.Duration
	// ArchiveAfter moves long-COMPLETE orders to the archive table
	ArchiveAfter time.Duration
	// PurgeRunsAfter deletes run history past the retention window
	PurgeRunsAfter time.Duration
}

// Orchestrator drives one reconciliation cycle: scan candidates, dispatch
// each order through Phase 1 or Phase 2 in isolation, record run and
// per-order outcomes, then perform retention maintenance. A fault in one
// order never aborts the cycle for others.
type Orchestrator struct {
	scanner  *Scanner
	pipeline *Pipeline
	detector *Detector
	watcher  *Watcher
	aging    *HoldAgingMonitor
	store    workflow.Store
	locker   workflow.OrderLocker
	cfg      OrchestratorConfig
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(
	scanner *Scanner,
	pipeline *Pipeline,
	detector *Detector,
	watcher *Watcher,
	aging *HoldAgingMonitor,
	store workflow.Store,
	locker workflow.OrderLocker,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	return &Orchestrator{
		scanner:  scanner,
		pipeline: pipeline,
		detector: detector,
		watcher:  watcher,
		aging:    aging,
		store:    store,
		locker:   locker,
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
	}
}

// cycleCounters aggregates per-order outcomes for the run record
type cycleCounters struct {
	mu        sync.Mutex
	processed int
	held      int
	failed    int
}

func (c *cycleCounters) record(status workflow.Status, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	if failed || status == workflow.StatusFailed {
		c.failed++
	} else if status == workflow.StatusHold {
		c.held++
	}
}

// RunCycle executes one full reconciliation cycle and returns its run record
func (o *Orchestrator) RunCycle(ctx context.Context) (*workflow.Run, error) {
	run := workflow.NewRun(o.cfg.Env)
	if err := o.store.Runs().Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	logger := o.logger.With(zap.String("run_id", run.ID))
	logger.Info("cycle started")

	candidates, eventIDs, err := o.scanner.Candidates(ctx)
	if err != nil {
		// A scan failure fails the whole cycle: without candidates there is
		// nothing safe to do.
		run.Close(0, 0, 0, 0)
		if cerr := o.store.Runs().Close(ctx, run); cerr != nil {
			logger.Error("close run record failed", zap.Error(cerr))
		}
		return run, fmt.Errorf("eligibility scan: %w", err)
	}

	counters := &cycleCounters{}
	queue := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < o.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for orderNum := range queue {
				o.processOrder(ctx, run, orderNum, counters, logger)
			}
		}()
	}

	for _, orderNum := range candidates {
		select {
		case <-ctx.Done():
			// Stop feeding; in-flight orders finish their current step.
			logger.Warn("cycle cancelled, draining in-flight orders")
			goto drain
		case queue <- orderNum:
		}
	}

drain:
	close(queue)
	wg.Wait()

	// Feed entries flip to processed only once the cycle's orders have all
	// been dispatched. A cancelled cycle leaves them pending for re-delivery.
	if ctx.Err() == nil {
		if err := o.scanner.MarkEventsProcessed(ctx, eventIDs); err != nil {
			logger.Error("marking change events processed failed", zap.Error(err))
		}
	}

	run.Close(len(candidates), counters.processed, counters.held, counters.failed)
	if err := o.store.Runs().Close(ctx, run); err != nil {
		logger.Error("close run record failed", zap.Error(err))
	}

	o.maintain(ctx, logger)

	logger.Info("cycle finished",
		zap.Int("eligible", run.EligibleCount),
		zap.Int("processed", run.ProcessedCount),
		zap.Int("held", run.HeldCount),
		zap.Int("failed", run.FailedCount))
	return run, nil
}

// processOrder dispatches one order under its lock with panic isolation
func (o *Orchestrator) processOrder(ctx context.Context, run *workflow.Run, orderNum int, counters *cycleCounters, logger *zap.Logger) {
	release, err := o.locker.Acquire(ctx, orderNum)
	if errors.Is(err, workflow.ErrOrderLocked) {
		logger.Debug("order locked by another worker, skipping", zap.Int("order_num", orderNum))
		return
	}
	if err != nil {
		logger.Error("lock acquire failed", zap.Int("order_num", orderNum), zap.Error(err))
		return
	}
	defer release()

	orderCtx := ctx
	if o.cfg.OrderTimeout > 0 {
		var cancel context.CancelFunc
		orderCtx, cancel = context.WithTimeout(ctx, o.cfg.OrderTimeout)
		defer cancel()
	}

	state, procErr := o.dispatch(orderCtx, run.ID, orderNum, logger)
	if state == nil {
		return
	}
	counters.record(state.Status, procErr != nil)

	// Read-only passes (a no-change detector sweep) never upsert, so the
	// correlation id is written explicitly. A brand-new order that failed
	// before its first state write has no row yet; that is fine.
	if err := o.store.Orders().SetLastRun(ctx, orderNum, run.ID); err != nil && !errors.Is(err, workflow.ErrOrderNotFound) {
		logger.Error("run correlation write failed", zap.Int("order_num", orderNum), zap.Error(err))
	}

	if err := o.store.Runs().MarkOrder(ctx, &workflow.RunOrder{
		RunID:     run.ID,
		OrderNum:  orderNum,
		Status:    state.Status,
		LastStep:  state.LastStep,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		logger.Error("run order record failed", zap.Int("order_num", orderNum), zap.Error(err))
	}
}

// dispatch routes one order to the pipeline, detector, or watcher and then
// applies hold aging. Panics are recovered and recorded against the order.
func (o *Orchestrator) dispatch(ctx context.Context, runID string, orderNum int, logger *zap.Logger) (state *workflow.OrderState, procErr error) {
	state, err := o.store.Orders().Get(ctx, orderNum)
	if errors.Is(err, workflow.ErrOrderNotFound) {
		state = workflow.NewOrderState(orderNum)
	} else if err != nil {
		logger.Error("order load failed", zap.Int("order_num", orderNum), zap.Error(err))
		return nil, err
	}
	if state.Status.IsTerminal() {
		return nil, nil
	}
	state.LastRunID = runID

	defer func() {
		if r := recover(); r != nil {
			procErr = fmt.Errorf("panic processing order %d: %v", orderNum, r)
			logger.Error("order processing panicked",
				zap.Int("order_num", orderNum),
				zap.Any("panic", r),
				zap.Stack("stacktrace"))
			state.LastErrorSummary = procErr.Error()
			if uerr := o.store.Orders().Upsert(ctx, state); uerr != nil {
				logger.Error("state write after panic failed", zap.Error(uerr))
			}
		}
	}()

	switch {
	case state.Status == workflow.StatusComplete:
		procErr = o.detector.Process(ctx, state)

	case state.Status == workflow.StatusHold && state.LastStep == workflow.StepQtyWaitFulfillReconfirm:
		procErr = o.watcher.Process(ctx, state)

	case state.Status == workflow.StatusHold && state.LastStep.IsPhase2Hold():
		// Source-reconfirm and manual-intervention holds keep diffing.
		procErr = o.detector.Process(ctx, state)

	default:
		procErr = o.pipeline.Process(ctx, state)
	}

	if procErr != nil {
		logger.Error("order processing failed",
			zap.Int("order_num", orderNum),
			zap.String("status", state.Status.String()),
			zap.Error(procErr))
	}

	if state.Status == workflow.StatusHold {
		changed, aerr := o.aging.Check(ctx, state)
		if aerr != nil {
			logger.Error("hold aging check failed", zap.Int("order_num", orderNum), zap.Error(aerr))
		}
		if changed {
			if uerr := o.store.Orders().Upsert(ctx, state); uerr != nil {
				logger.Error("hold aging write failed", zap.Int("order_num", orderNum), zap.Error(uerr))
			}
		}
	}

	return state, procErr
}

// maintain performs end-of-cycle retention work
func (o *Orchestrator) maintain(ctx context.Context, logger *zap.Logger) {
	if o.cfg.ArchiveAfter > 0 {
		archived, err := o.store.Orders().ArchiveCompleted(ctx, o.cfg.ArchiveAfter)
		if err != nil {
			logger.Error("archive maintenance failed", zap.Error(err))
		} else if archived > 0 {
			logger.Info("orders archived", zap.Int64("count", archived))
		}
	}
	if o.cfg.PurgeRunsAfter > 0 {
		purged, err := o.store.Runs().PurgeOlderThan(ctx, o.cfg.PurgeRunsAfter)
		if err != nil {
			logger.Error("run purge failed", zap.Error(err))
		} else if purged > 0 {
			logger.Info("run history purged", zap.Int64("count", purged))
		}
	}
}
