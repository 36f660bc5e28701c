package erp

import (
	"context"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Gateway Ports
// ---------------------------------------------------------------------------

// Reader runs parameterized queries against the ERP database. Read
// operations have no side effects; predicates (company, plant, source,
// status, date) come from configuration, not hardcoded logic.
type Reader interface {
	// FindEligibleOrders returns new candidate source orders, newest first
	FindEligibleOrders(ctx context.Context, limit int) ([]int, error)

	// GetOrderHeader reads a source order header, or ErrNotFound
	GetOrderHeader(ctx context.Context, orderNum int) (*OrderHeader, error)

	// GetOrderLines reads a source order's lines in line order
	GetOrderLines(ctx context.Context, orderNum int) ([]OrderLine, error)

	// GetItemStatus returns an item's catalog status, or "" if the item
	// does not exist
	GetItemStatus(ctx context.Context, itemCode string) (string, error)

	// FindJobByOrder returns the source production job linked to an order,
	// or "" when none exists yet
	FindJobByOrder(ctx context.Context, orderNum int) (string, error)

	// GetJobRequirements returns the open requirements of a source job,
	// filtered by the configured requirement-group and status predicates
	GetJobRequirements(ctx context.Context, jobCode string) ([]Requirement, error)

	// FindPOByJob returns the purchase order created for a job, or 0
	FindPOByJob(ctx context.Context, jobCode string) (int, error)

	// FindSOByPO returns the fulfillment sales order referencing a PO, or 0
	FindSOByPO(ctx context.Context, poNum int) (int, error)

	// GetFulfillmentSOStatus reads the fulfillment sales-order status
	GetFulfillmentSOStatus(ctx context.Context, soNum int) (SOStatus, error)

	// GetFulfillmentSOLines reads the fulfillment order's lines;
	// ErrNoLinesVisible when the upstream view has not propagated yet
	GetFulfillmentSOLines(ctx context.Context, soNum int) ([]OrderLine, error)

	// FindShipReqBySO returns the newest shipping request recorded against a
	// fulfillment order, or "" when none is visible yet. The adapter does not
	// always echo the assigned number on create, so callers resolve it here.
	FindShipReqBySO(ctx context.Context, soNum int) (string, error)

	// FindFulfillmentJobBySO returns the fulfillment job for an order, or ""
	FindFulfillmentJobBySO(ctx context.Context, soNum int) (string, error)

	// GetFulfillmentJobReqTotal aggregates the fulfillment job's requirement
	// quantity; Phase 2C compares it to the propagated target
	GetFulfillmentJobReqTotal(ctx context.Context, jobCode string) (decimal.Decimal, error)

	// FetchPendingChangeEvents reads unprocessed change-capture feed entries
	FetchPendingChangeEvents(ctx context.Context, limit int) ([]ChangeEvent, error)

	// MarkChangeEventsProcessed flags feed entries as consumed
	MarkChangeEventsProcessed(ctx context.Context, ids []int64) error
}

// Writer performs entity create/update operations through the ERP REST
// adapter. Each call returns server-assigned identifiers on success or a
// structured *APIError; transient upstream statuses are retried with
// bounded exponential backoff inside the implementation.
type Writer interface {
	// CreateJob creates a production job; *HoldError when upstream signals
	// a job-level hold or no valid estimate
	CreateJob(ctx context.Context, req CreateJobRequest) (jobCode string, err error)

	// CreateDerivedItems creates both derived catalog items for a core item
	// code in provisional (WAIT) status
	CreateDerivedItems(ctx context.Context, coreItemCode string, orderNum int) error

	// CreatePurchaseOrder creates the downstream PO, one line per requirement
	CreatePurchaseOrder(ctx context.Context, req CreatePORequest) (*POResult, error)

	// UpdatePOLineQty updates one purchase-order line quantity
	UpdatePOLineQty(ctx context.Context, req UpdateLineQtyRequest) error

	// CreateSalesOrder creates the fulfillment sales order
	CreateSalesOrder(ctx context.Context, req CreateSORequest) (soNum int, err error)

	// UpdateSOLineQty updates one fulfillment sales-order line quantity
	UpdateSOLineQty(ctx context.Context, req UpdateLineQtyRequest) error

	// UpdateSOHeaderRef updates the fulfillment order's customer reference
	UpdateSOHeaderRef(ctx context.Context, soNum int, custRef string) error

	// CreateShipRequest creates a shipping request for the fulfillment
	// order's lines; ErrNoLinesVisible when lines are not queryable yet
	CreateShipRequest(ctx context.Context, soNum int) (shipReqNum string, err error)

	// UpdateShipReqLineQty updates a shipping-request line quantity
	UpdateShipReqLineQty(ctx context.Context, req UpdateShipReqLineRequest) error
}

// Corrector issues direct state-correction writes that work around known
// upstream defects (orders created held despite authorization rules).
type Corrector interface {
	// ForceAuthorizeSO forces a fulfillment sales order to authorized
	ForceAuthorizeSO(ctx context.Context, soNum int) error

	// ConfirmPO marks a purchase order confirmed after its linked
	// fulfillment order is authorized
	ConfirmPO(ctx context.Context, poNum int) error
}

// Gateway is the full abstract client to the two ERP systems
type Gateway interface {
	Reader
	Writer
	Corrector
}
