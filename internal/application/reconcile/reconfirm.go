package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// Watcher is the Phase 2C reconfirmation monitor. It applies only to orders
// parked awaiting fulfillment reconfirmation after a 2B propagation: once
// the fulfillment job's aggregated requirement quantity matches the pending
// target, the change cycle closes. An increase needs no further writes (2B
// already raised the sales order); a decrease performs the deferred
// fulfillment-side writes now that the reserved quantity allows them.
type Watcher struct {
	gateway erp.Gateway
	store   workflow.Store
	logger  *zap.Logger
}

// NewWatcher creates a Watcher
func NewWatcher(gateway erp.Gateway, store workflow.Store, logger *zap.Logger) *Watcher {
	return &Watcher{
		gateway: gateway,
		store:   store,
		logger:  logger.Named("reconfirm"),
	}
}

// Process checks one parked order. Inequality takes no action; the order is
// re-checked every cycle indefinitely.
func (w *Watcher) Process(ctx context.Context, o *workflow.OrderState) error {
	if o.Status != workflow.StatusHold || o.LastStep != workflow.StepQtyWaitFulfillReconfirm {
		return nil
	}
	if o.FulfillmentJobCode == "" {
		return fmt.Errorf("order %d awaiting reconfirmation without a fulfillment job: %w",
			o.OrderNum, workflow.ErrInvalidState)
	}

	total, err := w.gateway.GetFulfillmentJobReqTotal(ctx, o.FulfillmentJobCode)
	if err != nil {
		return err
	}
	if !total.Equal(o.PendingQty) {
		w.logger.Debug("reconfirmation pending",
			zap.Int("order_num", o.OrderNum),
			zap.String("target_qty", o.PendingQty.String()),
			zap.String("observed_qty", total.String()))
		return nil
	}

	if o.PendingDirection == workflow.DirectionDecrease {
		if err := w.applyDeferredDecrease(ctx, o); err != nil {
			return err
		}
	}

	direction := o.PendingDirection
	target := o.PendingQty

	entry := &workflow.ChangeLogEntry{
		Kind:      workflow.SnapshotReqQty,
		Key:       workflow.ReqKey(o.FulfillmentJobCode, "", ""),
		OrderNum:  o.OrderNum,
		OldValue:  string(direction),
		NewValue:  target.String(),
		Context:   "fulfillment reconfirmation observed, change cycle closed",
		CreatedAt: time.Now().UTC(),
	}

	o.ClearPendingChange()
	o.MarkComplete()

	if err := w.store.Transact(ctx, func(tx workflow.Store) error {
		if err := tx.ChangeLog().Append(ctx, entry); err != nil {
			return err
		}
		return tx.Orders().Upsert(ctx, o)
	}); err != nil {
		return err
	}

	w.logger.Info("order released after reconfirmation",
		zap.Int("order_num", o.OrderNum),
		zap.String("direction", string(direction)),
		zap.String("qty", target.String()))
	return nil
}

// applyDeferredDecrease performs the fulfillment-side writes a decrease had
// to defer: sales-order line, ship-request line, then force authorization
// since the quantity edit can re-hold the order upstream.
func (w *Watcher) applyDeferredDecrease(ctx context.Context, o *workflow.OrderState) error {
	soLines, err := w.gateway.GetFulfillmentSOLines(ctx, o.FulfillmentSONum)
	if err != nil {
		return err
	}
	if len(soLines) == 0 {
		return fmt.Errorf("fulfillment order %d has no lines: %w", o.FulfillmentSONum, workflow.ErrInvalidState)
	}
	line := soLines[0]

	if err := w.gateway.UpdateSOLineQty(ctx, erp.UpdateLineQtyRequest{
		Num:      o.FulfillmentSONum,
		LineNum:  line.LineNum,
		ItemCode: line.ItemCode,
		Qty:      o.PendingQty,
		ReqDate:  line.ReqDate,
	}); err != nil {
		return err
	}

	if o.ShipReqNum != "" {
		if err := w.gateway.UpdateShipReqLineQty(ctx, erp.UpdateShipReqLineRequest{
			ShipReqNum: o.ShipReqNum,
			LineNum:    line.LineNum,
			SONum:      o.FulfillmentSONum,
			SOLineNum:  line.LineNum,
			ItemCode:   line.ItemCode,
			Qty:        o.PendingQty,
		}); err != nil {
			return err
		}
	}

	return w.gateway.ForceAuthorizeSO(ctx, o.FulfillmentSONum)
}
