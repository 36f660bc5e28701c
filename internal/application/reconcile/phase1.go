package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// PipelineConfig holds the business parameters of the creation pipeline
type PipelineConfig struct {
	Prefixes erp.ItemPrefixes
}

// Pipeline is the gated step-sequence state machine that creates the linked
// fulfillment artifacts for a new source order:
//
//	ELIGIBLE → ITEM_GATE → JOB_CREATE_SOURCE → FILM_VALIDATION → PO_CREATE
//	→ SO_CREATE_FULFILLMENT → SHIPREQ_CREATE → JOB_CREATE_FULFILLMENT
//	→ COMPLETE
//
// Each step either advances, parks the order in a step-specific HOLD, or
// fails it. Steps already completed in prior cycles never re-execute: every
// step's completion is witnessed by an artifact identifier on the order,
// and artifact identifiers are never cleared once set. The fulfillment-order
// step is the one exception: its number is assigned before the status gate
// clears, so an order parked in SO_STATUS_HOLD re-enters that step.
type Pipeline struct {
	gateway erp.Gateway
	store   workflow.Store
	deduper *Deduper
	cfg     PipelineConfig
	logger  *zap.Logger
}

// NewPipeline creates a Pipeline
func NewPipeline(gateway erp.Gateway, store workflow.Store, deduper *Deduper, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		gateway: gateway,
		store:   store,
		deduper: deduper,
		cfg:     cfg,
		logger:  logger.Named("phase1"),
	}
}

// pendingWrites collects the side-table rows a step produced so they commit
// in the same transaction as the order's state transition.
type pendingWrites struct {
	xrefs     []workflow.POLineXRef
	snapshots []workflow.Snapshot
}

func (p *pendingWrites) addXRef(x workflow.POLineXRef)   { p.xrefs = append(p.xrefs, x) }
func (p *pendingWrites) addSnapshot(s workflow.Snapshot) { p.snapshots = append(p.snapshots, s) }

// commit persists the order plus any side rows atomically
func (p *pendingWrites) commit(ctx context.Context, store workflow.Store, o *workflow.OrderState) error {
	return store.Transact(ctx, func(tx workflow.Store) error {
		for i := range p.xrefs {
			if err := tx.XRefs().Save(ctx, &p.xrefs[i]); err != nil {
				return err
			}
		}
		for i := range p.snapshots {
			if err := tx.Snapshots().Record(ctx, &p.snapshots[i]); err != nil {
				return err
			}
		}
		return tx.Orders().Upsert(ctx, o)
	})
}

type pipelineStep struct {
	step workflow.Step
	done func(o *workflow.OrderState) bool
	run  func(ctx context.Context, o *workflow.OrderState, w *pendingWrites) workflow.StepResult
}

// soCreateDone witnesses the fulfillment-order step. The order number alone
// is not enough: it is assigned before the status gate, so a SO_STATUS_HOLD
// resume must re-run the status check, force-authorize, and PO confirmation.
func soCreateDone(o *workflow.OrderState) bool {
	return o.FulfillmentSONum != 0 && o.LastStep != workflow.StepSOStatusHold
}

// Process drives one order through the remaining Phase 1 steps. Expected
// holds are recorded as state and return nil; business failures mark the
// order FAILED with a deduplicated admin alert and return the error;
// infrastructure errors propagate without changing the order's status so
// the next cycle retries.
func (p *Pipeline) Process(ctx context.Context, o *workflow.OrderState) error {
	steps := []pipelineStep{
		{workflow.StepItemGate, func(o *workflow.OrderState) bool { return o.BaseItemCode != "" }, p.itemGate},
		{workflow.StepJobCreateSource, func(o *workflow.OrderState) bool { return o.SourceJobCode != "" }, p.jobCreateSource},
		{workflow.StepFilmValidation, func(o *workflow.OrderState) bool { return o.PONum != 0 }, p.filmValidation},
		{workflow.StepPOCreate, func(o *workflow.OrderState) bool { return o.PONum != 0 }, p.poCreate},
		{workflow.StepSOCreateFulfill, soCreateDone, p.soCreateFulfillment},
		{workflow.StepShipReqCreate, func(o *workflow.OrderState) bool { return o.ShipReqNum != "" }, p.shipReqCreate},
		{workflow.StepJobCreateFulfill, func(o *workflow.OrderState) bool { return o.FulfillmentJobCode != "" }, p.jobCreateFulfillment},
	}

	wasHeld := o.Status == workflow.StatusHold
	o.Status = workflow.StatusInProgress

	for _, st := range steps {
		if st.done(o) {
			continue
		}

		writes := &pendingWrites{}
		res := st.run(ctx, o, writes)

		switch res.Outcome {
		case workflow.OutcomeAdvance:
			if wasHeld {
				o.ClearHold()
				wasHeld = false
			}
			o.LastStep = st.step
			o.LastErrorSummary = ""
			if err := writes.commit(ctx, p.store, o); err != nil {
				return err
			}

		case workflow.OutcomeHold:
			o.EnterHold(res.HoldStep, res.Reason)
			if err := writes.commit(ctx, p.store, o); err != nil {
				return err
			}
			p.logger.Info("order held",
				zap.Int("order_num", o.OrderNum),
				zap.String("step", res.HoldStep.String()),
				zap.String("reason", res.Reason))
			return nil

		case workflow.OutcomeComplete:
			if wasHeld {
				o.ClearHold()
			}
			o.MarkComplete()
			o.LastStep = res.HoldStep
			if err := writes.commit(ctx, p.store, o); err != nil {
				return err
			}
			p.logger.Info("order complete upstream, skipping remaining steps",
				zap.Int("order_num", o.OrderNum))
			return nil

		case workflow.OutcomeFail:
			return p.fail(ctx, o, st.step, res.Err)
		}
	}

	o.MarkComplete()
	if err := p.store.Orders().Upsert(ctx, o); err != nil {
		return err
	}
	p.logger.Info("phase 1 complete", zap.Int("order_num", o.OrderNum))
	return nil
}

// fail records a non-recoverable step failure. Upstream business rejections
// (after the gateway's retries) park the order in FAILED with a deduplicated
// admin alert; anything else is an infrastructure fault and leaves the order
// untouched for the next cycle to retry.
func (p *Pipeline) fail(ctx context.Context, o *workflow.OrderState, step workflow.Step, err error) error {
	apiErr, ok := erp.AsAPIError(err)
	if !ok {
		return fmt.Errorf("step %s: %w", step, err)
	}

	o.Status = workflow.StatusFailed
	o.LastStep = step
	o.LastErrorSummary = apiErr.Message
	o.LastAPIEntity = apiErr.Entity
	o.LastAPIStatus = apiErr.StatusCode
	o.LastAPIMessages = apiErr.Details

	cond := workflow.FailureCondition{
		Step:          step,
		Message:       apiErr.Message,
		Entity:        apiErr.Entity,
		UpstreamCode:  apiErr.StatusCode,
		UpstreamError: fmt.Sprintf("%v", apiErr.Details),
	}
	n := workflow.Notification{
		Audience: workflow.AudienceAdmin,
		Subject:  fmt.Sprintf("Order %d failed at %s", o.OrderNum, step),
		Body:     apiErr.Error(),
		OrderNum: o.OrderNum,
		Step:     step,
	}
	if _, nerr := p.deduper.NotifyIfChanged(ctx, o, cond, n); nerr != nil {
		p.logger.Error("failure notification failed", zap.Error(nerr))
	}

	if uerr := p.store.Orders().Upsert(ctx, o); uerr != nil {
		return uerr
	}
	p.logger.Error("order failed",
		zap.Int("order_num", o.OrderNum),
		zap.String("step", step.String()),
		zap.Error(apiErr))
	return err
}

// ---------------------------------------------------------------------------
// Steps
// ---------------------------------------------------------------------------

// itemGate verifies the base catalog item is approved and both derived item
// codes exist and are approved. Missing derived items are created in
// provisional status and the order holds pending manual approval.
func (p *Pipeline) itemGate(ctx context.Context, o *workflow.OrderState, _ *pendingWrites) workflow.StepResult {
	lines, err := p.gateway.GetOrderLines(ctx, o.OrderNum)
	if err != nil {
		return workflow.Fail(err)
	}
	if len(lines) == 0 {
		return workflow.Hold(workflow.StepBaseItemWait, "source order has no lines yet")
	}

	core := p.cfg.Prefixes.Core(lines[0].ItemCode)

	baseStatus, err := p.gateway.GetItemStatus(ctx, core)
	if err != nil {
		return workflow.Fail(err)
	}
	if baseStatus != erp.ItemStatusApproved {
		return workflow.Hold(workflow.StepBaseItemWait,
			fmt.Sprintf("base item %s not approved (status %q)", core, baseStatus))
	}

	purchaseItem := p.cfg.Prefixes.PurchaseItem(core)
	fulfillItem := p.cfg.Prefixes.FulfillmentItem(core)

	purchaseStatus, err := p.gateway.GetItemStatus(ctx, purchaseItem)
	if err != nil {
		return workflow.Fail(err)
	}
	fulfillStatus, err := p.gateway.GetItemStatus(ctx, fulfillItem)
	if err != nil {
		return workflow.Fail(err)
	}

	if purchaseStatus == "" || fulfillStatus == "" {
		if err := p.gateway.CreateDerivedItems(ctx, core, o.OrderNum); err != nil {
			return workflow.Fail(err)
		}
		return workflow.Hold(workflow.StepItemCreateWait,
			fmt.Sprintf("derived items %s / %s created, awaiting approval", purchaseItem, fulfillItem))
	}

	if purchaseStatus != erp.ItemStatusApproved || fulfillStatus != erp.ItemStatusApproved {
		return workflow.Hold(workflow.StepItemApprovalWait,
			fmt.Sprintf("derived items not approved yet (%s=%s, %s=%s)",
				purchaseItem, purchaseStatus, fulfillItem, fulfillStatus))
	}

	o.BaseItemCode = core
	return workflow.Advance()
}

// jobCreateSource creates the source-plant production job. The source order
// itself being held blocks the step; a job-level hold signalled by upstream
// does the same.
func (p *Pipeline) jobCreateSource(ctx context.Context, o *workflow.OrderState, _ *pendingWrites) workflow.StepResult {
	header, err := p.gateway.GetOrderHeader(ctx, o.OrderNum)
	if err != nil {
		return workflow.Fail(err)
	}
	o.CustRef = header.CustRef

	if header.Status.IsHeld() {
		return workflow.Hold(workflow.StepSourceJobHold,
			fmt.Sprintf("source order held (status %d)", header.Status))
	}

	// A prior cycle may have created the job before the state write landed;
	// re-read before resubmitting.
	jobCode, err := p.gateway.FindJobByOrder(ctx, o.OrderNum)
	if err != nil {
		return workflow.Fail(err)
	}
	if jobCode == "" {
		jobCode, err = p.gateway.CreateJob(ctx, erp.CreateJobRequest{OrderNum: o.OrderNum})
		if err != nil {
			if hold, ok := erp.AsHold(err); ok {
				return workflow.Hold(workflow.StepSourceJobHold, hold.Reason)
			}
			return workflow.Fail(err)
		}
	}

	o.SourceJobCode = jobCode
	return workflow.Advance()
}

// filmValidation compares the base item implied by the order line against
// the base item implied by the first derived requirement. A mismatch is a
// data-integrity condition, not a transient one: the order holds with a
// distinct step marker and a deduplicated notification.
func (p *Pipeline) filmValidation(ctx context.Context, o *workflow.OrderState, _ *pendingWrites) workflow.StepResult {
	reqs, err := p.gateway.GetJobRequirements(ctx, o.SourceJobCode)
	if err != nil {
		return workflow.Fail(err)
	}
	if len(reqs) == 0 {
		return workflow.Hold(workflow.StepSourceJobHold,
			fmt.Sprintf("job %s requirements not generated yet", o.SourceJobCode))
	}

	reqBase := p.cfg.Prefixes.Core(reqs[0].ItemCode)
	if reqBase != o.BaseItemCode {
		reason := fmt.Sprintf("film mismatch: order implies %s, requirement %s implies %s",
			o.BaseItemCode, reqs[0].ItemCode, reqBase)
		cond := workflow.FailureCondition{
			Step:    workflow.StepFilmMismatch,
			Message: reason,
			Entity:  "Requirement",
		}
		n := workflow.Notification{
			Audience: workflow.AudienceCSR,
			Subject:  fmt.Sprintf("Order %d film validation mismatch", o.OrderNum),
			Body:     reason,
			OrderNum: o.OrderNum,
			Step:     workflow.StepFilmMismatch,
		}
		if _, nerr := p.deduper.NotifyIfChanged(ctx, o, cond, n); nerr != nil {
			p.logger.Error("mismatch notification failed", zap.Error(nerr))
		}
		return workflow.Hold(workflow.StepFilmMismatch, reason)
	}

	return workflow.Advance()
}

// poCreate creates the downstream purchase order, one line per open
// requirement, and records the cross-reference map entry and the initial
// change snapshots in the same transaction as the state transition.
func (p *Pipeline) poCreate(ctx context.Context, o *workflow.OrderState, w *pendingWrites) workflow.StepResult {
	reqs, err := p.gateway.GetJobRequirements(ctx, o.SourceJobCode)
	if err != nil {
		return workflow.Fail(err)
	}
	if len(reqs) == 0 {
		return workflow.Hold(workflow.StepSourceJobHold,
			fmt.Sprintf("job %s requirements not generated yet", o.SourceJobCode))
	}

	// Verify upstream before resubmitting a non-idempotent create.
	poNum, err := p.gateway.FindPOByJob(ctx, o.SourceJobCode)
	if err != nil {
		return workflow.Fail(err)
	}

	var lineNums []int
	if poNum == 0 {
		poReq := erp.CreatePORequest{JobCode: o.SourceJobCode}
		for _, r := range reqs {
			poReq.Lines = append(poReq.Lines, erp.POLineRequest{
				ItemCode:      r.ItemCode,
				Qty:           r.RequiredQty,
				RequiredDate:  r.RequiredDate,
				DimA:          r.DimA,
				SourceLineNum: r.LineNum,
			})
		}
		result, err := p.gateway.CreatePurchaseOrder(ctx, poReq)
		if err != nil {
			if hold, ok := erp.AsHold(err); ok {
				return workflow.Hold(workflow.StepSourceJobHold, hold.Reason)
			}
			return workflow.Fail(err)
		}
		poNum = result.PONum
		lineNums = result.LineNums
	}

	now := time.Now().UTC()
	for i, r := range reqs {
		poLineNum := i + 1
		if i < len(lineNums) {
			poLineNum = lineNums[i]
		}
		w.addXRef(workflow.POLineXRef{
			OrderNum:  o.OrderNum,
			LineNum:   r.LineNum,
			PONum:     poNum,
			POLineNum: poLineNum,
			ItemCode:  r.ItemCode,
			CreatedAt: now,
		})
		w.addSnapshot(workflow.Snapshot{
			Kind:       workflow.SnapshotReqQty,
			Key:        workflow.ReqKey(r.JobCode, r.ReqGroupCode, r.ItemCode),
			OrderNum:   o.OrderNum,
			Qty:        r.RequiredQty,
			Date:       r.RequiredDate,
			ObservedAt: now,
		})
	}

	// Line snapshots seed here so Phase 2A diffs against creation-time
	// values, not first-monitor values.
	lines, err := p.gateway.GetOrderLines(ctx, o.OrderNum)
	if err != nil {
		return workflow.Fail(err)
	}
	for _, l := range lines {
		w.addSnapshot(workflow.Snapshot{
			Kind:       workflow.SnapshotLineQty,
			Key:        workflow.LineKey(o.OrderNum, l.LineNum),
			OrderNum:   o.OrderNum,
			Qty:        l.OrderedQty,
			Date:       l.ReqDate,
			ObservedAt: now,
		})
	}

	o.PONum = poNum
	return workflow.Advance()
}

// soCreateFulfillment creates the fulfillment sales order with the derived
// finished-good item, copying the customer reference from the source order.
// A known upstream defect can return the new order held despite authorization
// rules: the step issues a direct force-authorize and re-checks.
func (p *Pipeline) soCreateFulfillment(ctx context.Context, o *workflow.OrderState, w *pendingWrites) workflow.StepResult {
	soNum, err := p.gateway.FindSOByPO(ctx, o.PONum)
	if err != nil {
		return workflow.Fail(err)
	}

	if soNum == 0 {
		lines, err := p.gateway.GetOrderLines(ctx, o.OrderNum)
		if err != nil {
			return workflow.Fail(err)
		}
		if len(lines) == 0 {
			return workflow.Hold(workflow.StepBaseItemWait, "source order has no lines yet")
		}
		soNum, err = p.gateway.CreateSalesOrder(ctx, erp.CreateSORequest{
			PONum:        o.PONum,
			CustRef:      o.CustRef,
			ItemCode:     p.cfg.Prefixes.FulfillmentItem(o.BaseItemCode),
			Qty:          lines[0].OrderedQty,
			RequiredDate: lines[0].ReqDate,
		})
		if err != nil {
			if hold, ok := erp.AsHold(err); ok {
				return workflow.Hold(workflow.StepSOStatusHold, hold.Reason)
			}
			return workflow.Fail(err)
		}
	}
	o.FulfillmentSONum = soNum

	status, err := p.gateway.GetFulfillmentSOStatus(ctx, soNum)
	if err != nil {
		return workflow.Fail(err)
	}
	if status == erp.SOComplete {
		return workflow.Finish(workflow.StepSOAlreadyComplete,
			fmt.Sprintf("fulfillment order %d already complete upstream", soNum))
	}
	if status.IsHeld() {
		if err := p.gateway.ForceAuthorizeSO(ctx, soNum); err != nil {
			return workflow.Fail(err)
		}
		status, err = p.gateway.GetFulfillmentSOStatus(ctx, soNum)
		if err != nil {
			return workflow.Fail(err)
		}
		if status.IsHeld() {
			return workflow.Hold(workflow.StepSOStatusHold,
				fmt.Sprintf("fulfillment order %d still held (status %d) after force authorize", soNum, status))
		}
	}

	// The linked PO confirms once its fulfillment order is authorized.
	if err := p.gateway.ConfirmPO(ctx, o.PONum); err != nil {
		return workflow.Fail(err)
	}

	w.addSnapshot(workflow.Snapshot{
		Kind:       workflow.SnapshotHeaderRef,
		Key:        workflow.HeaderKey(o.OrderNum),
		OrderNum:   o.OrderNum,
		Ref:        o.CustRef,
		ObservedAt: time.Now().UTC(),
	})
	return workflow.Advance()
}

// shipReqCreate creates the shipping request for the fulfillment order's
// lines. Newly created orders may not have queryable lines yet (upstream
// propagation race); that is a plain next-cycle hold. The database is checked
// first because a prior cycle's create may have been accepted without an
// echoed number; the step only advances once the number is resolved.
func (p *Pipeline) shipReqCreate(ctx context.Context, o *workflow.OrderState, _ *pendingWrites) workflow.StepResult {
	shipReqNum, err := p.gateway.FindShipReqBySO(ctx, o.FulfillmentSONum)
	if err != nil {
		return workflow.Fail(err)
	}

	if shipReqNum == "" {
		shipReqNum, err = p.gateway.CreateShipRequest(ctx, o.FulfillmentSONum)
		if err != nil {
			if errors.Is(err, erp.ErrNoLinesVisible) {
				return workflow.Hold(workflow.StepShipReqWaitLines,
					fmt.Sprintf("fulfillment order %d lines not visible yet", o.FulfillmentSONum))
			}
			if hold, ok := erp.AsHold(err); ok {
				return workflow.Hold(workflow.StepShipReqWaitLines, hold.Reason)
			}
			return workflow.Fail(err)
		}
	}

	if shipReqNum == "" {
		return workflow.Hold(workflow.StepShipReqWaitLines,
			fmt.Sprintf("ship request for order %d accepted, number not assigned yet", o.FulfillmentSONum))
	}

	o.ShipReqNum = shipReqNum
	return workflow.Advance()
}

// jobCreateFulfillment creates the fulfillment-plant production job
func (p *Pipeline) jobCreateFulfillment(ctx context.Context, o *workflow.OrderState, _ *pendingWrites) workflow.StepResult {
	jobCode, err := p.gateway.FindFulfillmentJobBySO(ctx, o.FulfillmentSONum)
	if err != nil {
		return workflow.Fail(err)
	}
	if jobCode == "" {
		jobCode, err = p.gateway.CreateJob(ctx, erp.CreateJobRequest{
			OrderNum:    o.FulfillmentSONum,
			Fulfillment: true,
		})
		if err != nil {
			if hold, ok := erp.AsHold(err); ok {
				return workflow.Hold(workflow.StepFulfillmentJobHold, hold.Reason)
			}
			return workflow.Fail(err)
		}
	}

	o.FulfillmentJobCode = jobCode
	return workflow.Advance()
}
