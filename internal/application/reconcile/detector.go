package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// Detector is the Phase 2 snapshot-diff engine for orders that finished
// Phase 1. It observes current source-side values, diffs them against the
// locally-owned snapshots, and propagates at most once per detected change:
//
//	2A  source line quantity changed → record intent, hold for the source
//	    side's own reconfirmation; no downstream write yet.
//	2B  derived requirement changed (the reconfirmation took effect) →
//	    update the purchase-order line via the cross-reference map; an
//	    increase also updates the fulfillment sales-order line, a decrease
//	    defers every fulfillment-side write and asks for a manual production
//	    estimate correction.
//	2D  header reference changed → transparent downstream sync, no hold.
//
// Snapshots update only after the propagation write succeeds, so a crash
// between detection and propagation re-detects the same change next cycle
// instead of losing it.
type Detector struct {
	gateway erp.Gateway
	store   workflow.Store
	deduper *Deduper
	logger  *zap.Logger
}

// NewDetector creates a Detector
func NewDetector(gateway erp.Gateway, store workflow.Store, deduper *Deduper, logger *zap.Logger) *Detector {
	return &Detector{
		gateway: gateway,
		store:   store,
		deduper: deduper,
		logger:  logger.Named("detector"),
	}
}

// Process runs one detection pass over a monitored order
func (d *Detector) Process(ctx context.Context, o *workflow.OrderState) error {
	if err := d.checkHeaderRef(ctx, o); err != nil {
		return err
	}
	if err := d.checkSourceLines(ctx, o); err != nil {
		return err
	}
	return d.checkRequirements(ctx, o)
}

// ---------------------------------------------------------------------------
// 2A — source line quantity
// ---------------------------------------------------------------------------

func (d *Detector) checkSourceLines(ctx context.Context, o *workflow.OrderState) error {
	lines, err := d.gateway.GetOrderLines(ctx, o.OrderNum)
	if err != nil {
		return err
	}

	for _, l := range lines {
		observed := &workflow.Snapshot{
			Kind:       workflow.SnapshotLineQty,
			Key:        workflow.LineKey(o.OrderNum, l.LineNum),
			OrderNum:   o.OrderNum,
			Qty:        l.OrderedQty,
			Date:       l.ReqDate,
			ObservedAt: time.Now().UTC(),
		}
		changed, old, err := d.store.Snapshots().Diff(ctx, observed)
		if err != nil {
			return err
		}
		if old == nil {
			// First observation seeds the baseline without triggering.
			if err := d.store.Snapshots().Record(ctx, observed); err != nil {
				return err
			}
			continue
		}
		if !changed {
			continue
		}

		// Intent detected. Record it, then wait for the derived requirement
		// to reflect the new quantity before propagating anything.
		o.EnterHold(workflow.StepQtyWaitSourceReconfirm,
			fmt.Sprintf("line %d quantity %s -> %s, awaiting source reconfirmation",
				l.LineNum, old.Qty.String(), l.OrderedQty.String()))

		entry := &workflow.ChangeLogEntry{
			Kind:      workflow.SnapshotLineQty,
			Key:       observed.Key,
			OrderNum:  o.OrderNum,
			OldValue:  fmt.Sprintf("%s @ %s", old.Qty.String(), old.Date),
			NewValue:  fmt.Sprintf("%s @ %s", l.OrderedQty.String(), l.ReqDate),
			Context:   "source line quantity change detected",
			CreatedAt: time.Now().UTC(),
		}
		if err := d.store.Transact(ctx, func(tx workflow.Store) error {
			if err := tx.ChangeLog().Append(ctx, entry); err != nil {
				return err
			}
			if err := tx.Snapshots().Record(ctx, observed); err != nil {
				return err
			}
			return tx.Orders().Upsert(ctx, o)
		}); err != nil {
			return err
		}

		d.logger.Info("source line change detected",
			zap.Int("order_num", o.OrderNum),
			zap.Int("line_num", l.LineNum),
			zap.String("old_qty", old.Qty.String()),
			zap.String("new_qty", l.OrderedQty.String()))
	}
	return nil
}

// ---------------------------------------------------------------------------
// 2B — derived requirement quantity / date
// ---------------------------------------------------------------------------

func (d *Detector) checkRequirements(ctx context.Context, o *workflow.OrderState) error {
	if o.SourceJobCode == "" {
		return nil
	}

	reqs, err := d.gateway.GetJobRequirements(ctx, o.SourceJobCode)
	if err != nil {
		return err
	}

	for _, r := range reqs {
		observed := &workflow.Snapshot{
			Kind:       workflow.SnapshotReqQty,
			Key:        workflow.ReqKey(r.JobCode, r.ReqGroupCode, r.ItemCode),
			OrderNum:   o.OrderNum,
			Qty:        r.RequiredQty,
			Date:       r.RequiredDate,
			ObservedAt: time.Now().UTC(),
		}
		changed, old, err := d.store.Snapshots().Diff(ctx, observed)
		if err != nil {
			return err
		}
		if old == nil {
			if err := d.store.Snapshots().Record(ctx, observed); err != nil {
				return err
			}
			continue
		}
		if !changed {
			continue
		}

		if err := d.propagateRequirementChange(ctx, o, r, old, observed); err != nil {
			return err
		}
	}
	return nil
}

// propagateRequirementChange pushes one confirmed requirement change to the
// downstream purchase order (and, on increase, the fulfillment sales order),
// then parks the order for Phase 2C reconfirmation. The snapshot updates in
// the same transaction as the order state, strictly after the upstream
// writes succeeded.
func (d *Detector) propagateRequirementChange(
	ctx context.Context,
	o *workflow.OrderState,
	r erp.Requirement,
	old, observed *workflow.Snapshot,
) error {
	xref, err := d.store.XRefs().FindBySourceLine(ctx, o.OrderNum, r.LineNum)
	if errors.Is(err, workflow.ErrXRefNotFound) {
		return d.holdManualIntervention(ctx, o, r, old, observed)
	}
	if err != nil {
		return err
	}

	direction := workflow.DirectionIncrease
	if observed.Qty.LessThan(old.Qty) {
		direction = workflow.DirectionDecrease
	}

	// Propagate to the purchase-order line in either direction.
	if err := d.gateway.UpdatePOLineQty(ctx, erp.UpdateLineQtyRequest{
		Num:      xref.PONum,
		LineNum:  xref.POLineNum,
		ItemCode: xref.ItemCode,
		Qty:      observed.Qty,
		ReqDate:  observed.Date,
	}); err != nil {
		return err
	}

	switch direction {
	case workflow.DirectionIncrease:
		// Safe to raise the fulfillment side immediately.
		soLines, err := d.gateway.GetFulfillmentSOLines(ctx, o.FulfillmentSONum)
		if err != nil {
			return err
		}
		if len(soLines) == 0 {
			return d.holdManualIntervention(ctx, o, r, old, observed)
		}
		if err := d.gateway.UpdateSOLineQty(ctx, erp.UpdateLineQtyRequest{
			Num:      o.FulfillmentSONum,
			LineNum:  soLines[0].LineNum,
			ItemCode: soLines[0].ItemCode,
			Qty:      observed.Qty,
			ReqDate:  observed.Date,
		}); err != nil {
			return err
		}
		o.EnterHold(workflow.StepQtyWaitFulfillReconfirm,
			fmt.Sprintf("quantity increased %s -> %s, awaiting fulfillment reconfirmation",
				old.Qty.String(), observed.Qty.String()))

	case workflow.DirectionDecrease:
		// Downstream reserved-quantity rules make touching the fulfillment
		// order or ship request unsafe until the fulfillment job has been
		// re-estimated. Ask for the manual correction and wait.
		n := workflow.Notification{
			Audience: workflow.AudienceCSR,
			Subject:  fmt.Sprintf("Order %d quantity decreased: production estimate correction needed", o.OrderNum),
			Body: fmt.Sprintf(
				"Requirement %s on job %s decreased %s -> %s. The purchase order was updated; "+
					"correct the fulfillment production estimate so the change can complete.",
				r.ItemCode, r.JobCode, old.Qty.String(), observed.Qty.String()),
			OrderNum: o.OrderNum,
			Step:     workflow.StepQtyWaitFulfillReconfirm,
		}
		if err := d.notifyDecrease(ctx, o, n, old, observed); err != nil {
			return err
		}
		o.EnterHold(workflow.StepQtyWaitFulfillReconfirm,
			fmt.Sprintf("quantity decreased %s -> %s, fulfillment writes deferred until reconfirmation",
				old.Qty.String(), observed.Qty.String()))
	}

	o.PendingQty = observed.Qty
	o.PendingDirection = direction
	o.PendingLineNum = r.LineNum

	entry := &workflow.ChangeLogEntry{
		Kind:      workflow.SnapshotReqQty,
		Key:       observed.Key,
		OrderNum:  o.OrderNum,
		OldValue:  fmt.Sprintf("%s @ %s", old.Qty.String(), old.Date),
		NewValue:  fmt.Sprintf("%s @ %s", observed.Qty.String(), observed.Date),
		Context:   fmt.Sprintf("requirement change propagated to PO %d line %d (%s)", xref.PONum, xref.POLineNum, direction),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.Transact(ctx, func(tx workflow.Store) error {
		if err := tx.ChangeLog().Append(ctx, entry); err != nil {
			return err
		}
		if err := tx.Snapshots().Record(ctx, observed); err != nil {
			return err
		}
		return tx.Orders().Upsert(ctx, o)
	}); err != nil {
		return err
	}

	d.logger.Info("requirement change propagated",
		zap.Int("order_num", o.OrderNum),
		zap.Int("po_num", xref.PONum),
		zap.String("direction", string(direction)),
		zap.String("old_qty", old.Qty.String()),
		zap.String("new_qty", observed.Qty.String()))
	return nil
}

// notifyDecrease emits the manual-correction notification through the
// deduper so a decrease stuck over many cycles alerts once.
func (d *Detector) notifyDecrease(ctx context.Context, o *workflow.OrderState, n workflow.Notification, old, observed *workflow.Snapshot) error {
	cond := workflow.FailureCondition{
		Step:    workflow.StepQtyWaitFulfillReconfirm,
		Message: fmt.Sprintf("decrease %s -> %s on %s", old.Qty.String(), observed.Qty.String(), observed.Key),
		Entity:  "Requirement",
	}
	_, err := d.deduper.NotifyIfChanged(ctx, o, cond, n)
	return err
}

// holdManualIntervention parks a change that cannot be propagated
// mechanically. The snapshot is left untouched so the condition re-detects
// every cycle; the deduper keeps the alert to one per distinct condition.
func (d *Detector) holdManualIntervention(ctx context.Context, o *workflow.OrderState, r erp.Requirement, old, observed *workflow.Snapshot) error {
	reason := fmt.Sprintf("requirement %s changed %s -> %s but no propagation target resolved",
		observed.Key, old.Qty.String(), observed.Qty.String())
	o.EnterHold(workflow.StepQtyManualIntervention, reason)

	cond := workflow.FailureCondition{
		Step:    workflow.StepQtyManualIntervention,
		Message: reason,
		Entity:  "Requirement",
	}
	n := workflow.Notification{
		Audience: workflow.AudienceAdmin,
		Subject:  fmt.Sprintf("Order %d requires manual change completion", o.OrderNum),
		Body:     reason,
		OrderNum: o.OrderNum,
		Step:     workflow.StepQtyManualIntervention,
	}
	if _, nerr := d.deduper.NotifyIfChanged(ctx, o, cond, n); nerr != nil {
		d.logger.Error("manual intervention notification failed", zap.Error(nerr))
	}

	if err := d.store.Orders().Upsert(ctx, o); err != nil {
		return err
	}
	d.logger.Warn("manual intervention required",
		zap.Int("order_num", o.OrderNum),
		zap.Int("line_num", r.LineNum),
		zap.String("key", observed.Key))
	return nil
}

// ---------------------------------------------------------------------------
// 2D — header reference
// ---------------------------------------------------------------------------

func (d *Detector) checkHeaderRef(ctx context.Context, o *workflow.OrderState) error {
	header, err := d.gateway.GetOrderHeader(ctx, o.OrderNum)
	if err != nil {
		return err
	}

	observed := &workflow.Snapshot{
		Kind:       workflow.SnapshotHeaderRef,
		Key:        workflow.HeaderKey(o.OrderNum),
		OrderNum:   o.OrderNum,
		Qty:        decimal.Zero,
		Ref:        header.CustRef,
		ObservedAt: time.Now().UTC(),
	}
	changed, old, err := d.store.Snapshots().Diff(ctx, observed)
	if err != nil {
		return err
	}
	if old == nil {
		return d.store.Snapshots().Record(ctx, observed)
	}
	if !changed {
		return nil
	}

	// Transparent sync: push downstream, re-authorize if the write held the
	// order, never HOLD.
	if err := d.gateway.UpdateSOHeaderRef(ctx, o.FulfillmentSONum, header.CustRef); err != nil {
		return err
	}
	status, err := d.gateway.GetFulfillmentSOStatus(ctx, o.FulfillmentSONum)
	if err != nil {
		return err
	}
	if status.IsHeld() {
		if err := d.gateway.ForceAuthorizeSO(ctx, o.FulfillmentSONum); err != nil {
			return err
		}
	}

	o.CustRef = header.CustRef
	entry := &workflow.ChangeLogEntry{
		Kind:      workflow.SnapshotHeaderRef,
		Key:       observed.Key,
		OrderNum:  o.OrderNum,
		OldValue:  old.Ref,
		NewValue:  header.CustRef,
		Context:   fmt.Sprintf("customer reference synced to fulfillment order %d", o.FulfillmentSONum),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.Transact(ctx, func(tx workflow.Store) error {
		if err := tx.ChangeLog().Append(ctx, entry); err != nil {
			return err
		}
		if err := tx.Snapshots().Record(ctx, observed); err != nil {
			return err
		}
		return tx.Orders().Upsert(ctx, o)
	}); err != nil {
		return err
	}

	n := workflow.Notification{
		Audience: workflow.AudienceCSR,
		Subject:  fmt.Sprintf("Order %d customer reference updated", o.OrderNum),
		Body: fmt.Sprintf("Customer reference changed %q -> %q and was synced to fulfillment order %d.",
			old.Ref, header.CustRef, o.FulfillmentSONum),
		OrderNum: o.OrderNum,
		Step:     o.LastStep,
	}
	if err := d.deduper.notifier.Send(ctx, n); err != nil {
		d.logger.Error("header sync notification failed", zap.Error(err))
	}

	d.logger.Info("header reference synced",
		zap.Int("order_num", o.OrderNum),
		zap.String("old_ref", old.Ref),
		zap.String("new_ref", header.CustRef))
	return nil
}
