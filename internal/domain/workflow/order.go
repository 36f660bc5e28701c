package workflow

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Order Status
// ---------------------------------------------------------------------------

// Status represents the lifecycle status of a tracked order
type Status string

const (
	// StatusNew indicates the order was detected but not yet processed
	StatusNew Status = "NEW"
	// StatusInProgress indicates a run currently owns the order
	StatusInProgress Status = "IN_PROGRESS"
	// StatusComplete indicates Phase 1 finished; the order is monitored in Phase 2
	StatusComplete Status = "COMPLETE"
	// StatusHold indicates a deliberate pause awaiting upstream or manual resolution
	StatusHold Status = "HOLD"
	// StatusFailed indicates a non-recoverable error; operator action required
	StatusFailed Status = "FAILED"
	// StatusRemoved indicates an operator permanently excluded the order
	StatusRemoved Status = "REMOVED"
)

// IsValid returns true if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusComplete, StatusHold, StatusFailed, StatusRemoved:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses the orchestrator never dispatches
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusRemoved
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Step Tokens
// ---------------------------------------------------------------------------

// Step names the last completed or blocking step of an order
type Step string

// Phase 1 pipeline steps, in required order.
const (
	StepEligible          Step = "ELIGIBLE"
	StepItemGate          Step = "ITEM_GATE"
	StepJobCreateSource   Step = "JOB_CREATE_SOURCE"
	StepFilmValidation    Step = "FILM_VALIDATION"
	StepPOCreate          Step = "PO_CREATE"
	StepSOCreateFulfill   Step = "SO_CREATE_FULFILLMENT"
	StepShipReqCreate     Step = "SHIPREQ_CREATE"
	StepJobCreateFulfill  Step = "JOB_CREATE_FULFILLMENT"
	StepComplete          Step = "COMPLETE"
	StepSOAlreadyComplete Step = "SO_ALREADY_COMPLETE"
)

// Phase 1 hold markers. Each names the specific reason an order is parked.
const (
	StepBaseItemWait       Step = "BASE_ITEM_WAIT"
	StepItemCreateWait     Step = "ITEM_CREATE_WAIT"
	StepItemApprovalWait   Step = "ITEM_APPROVAL_WAIT"
	StepSourceJobHold      Step = "SOURCE_JOB_HOLD"
	StepFilmMismatch       Step = "FILM_MISMATCH"
	StepSOStatusHold       Step = "SO_STATUS_HOLD"
	StepShipReqWaitLines   Step = "SHIPREQ_WAIT_LINES"
	StepFulfillmentJobHold Step = "FULFILLMENT_JOB_HOLD"
)

// Phase 2 hold markers.
const (
	StepQtyWaitSourceReconfirm  Step = "QTY_WAIT_SOURCE_RECONFIRM"
	StepQtyWaitFulfillReconfirm Step = "QTY_WAIT_FULFILLMENT_RECONFIRM"
	StepQtyManualIntervention   Step = "QTY_MANUAL_INTERVENTION"
)

// IsPhase2Hold returns true if the step parks the order in Phase 2 monitoring
func (s Step) IsPhase2Hold() bool {
	switch s {
	case StepQtyWaitSourceReconfirm, StepQtyWaitFulfillReconfirm, StepQtyManualIntervention:
		return true
	default:
		return false
	}
}

// String returns the string representation of Step
func (s Step) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Change Direction
// ---------------------------------------------------------------------------

// ChangeDirection classifies a detected quantity change
type ChangeDirection string

const (
	DirectionNone     ChangeDirection = ""
	DirectionIncrease ChangeDirection = "INCREASE"
	DirectionDecrease ChangeDirection = "DECREASE"
)

// ---------------------------------------------------------------------------
// OrderState
// ---------------------------------------------------------------------------

// OrderState is the durable per-order state tracked by the workflow.
// It is keyed by the source-plant sales-order number. Artifact identifiers
// are populated strictly in pipeline order and never cleared once set; they
// are the audit trail and the idempotency guard for completed steps.
type OrderState struct {
	OrderNum int
	Status   Status
	LastStep Step
	// LastRunID is the correlation id of the run that last touched the order
	LastRunID string

	// Artifact identifiers, append-only.
	BaseItemCode       string
	SourceJobCode      string
	PONum              int
	FulfillmentSONum   int
	ShipReqNum         string
	FulfillmentJobCode string
	CustRef            string

	// Pending Phase-2 change awaiting reconfirmation.
	PendingQty       decimal.Decimal
	PendingDirection ChangeDirection
	PendingLineNum   int

	// Hold aging.
	HoldSince      *time.Time
	LastReminderAt *time.Time
	EscalatedAt    *time.Time

	// Failure context for alert dedup and operator visibility.
	LastFailureSignature string
	LastErrorSummary     string
	LastAPIEntity        string
	LastAPIStatus        int
	LastAPIMessages      []string

	FirstSeenAt time.Time
	UpdatedAt   time.Time
}

// NewOrderState creates a freshly detected order in NEW status
func NewOrderState(orderNum int) *OrderState {
	now := time.Now().UTC()
	return &OrderState{
		OrderNum:    orderNum,
		Status:      StatusNew,
		LastStep:    StepEligible,
		FirstSeenAt: now,
		UpdatedAt:   now,
	}
}

// EnterHold moves the order to HOLD at the given step. The hold entry
// timestamp is recorded once per episode: it survives re-holds on later
// cycles and only ClearHold resets it.
func (o *OrderState) EnterHold(step Step, reason string) {
	if o.HoldSince == nil {
		now := time.Now().UTC()
		o.HoldSince = &now
		o.LastReminderAt = nil
		o.EscalatedAt = nil
	}
	o.Status = StatusHold
	o.LastStep = step
	o.LastErrorSummary = reason
}

// ClearHold resets the hold aging fields when the order leaves HOLD
func (o *OrderState) ClearHold() {
	o.HoldSince = nil
	o.LastReminderAt = nil
	o.EscalatedAt = nil
}

// MarkComplete moves the order to COMPLETE and clears hold aging
func (o *OrderState) MarkComplete() {
	o.Status = StatusComplete
	o.LastStep = StepComplete
	o.LastErrorSummary = ""
	o.ClearHold()
}

// ClearPendingChange resets the Phase-2 pending-change fields after a
// propagation cycle closes.
func (o *OrderState) ClearPendingChange() {
	o.PendingQty = decimal.Zero
	o.PendingDirection = DirectionNone
	o.PendingLineNum = 0
}

// HeldFor returns how long the order has been in its current hold episode
func (o *OrderState) HeldFor(now time.Time) time.Duration {
	if o.HoldSince == nil {
		return 0
	}
	return now.Sub(*o.HoldSince)
}
