package erp

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Upstream Status Codes
// ---------------------------------------------------------------------------

// SOStatus is the sales-order status code used by both plants
type SOStatus int

const (
	// SOAuthorized means the order is released for production
	SOAuthorized SOStatus = 0
	// SOHeld means the order is on a manual hold
	SOHeld SOStatus = 1
	// SOCreditHeld means the order is blocked on credit review
	SOCreditHeld SOStatus = 2
	// SOComplete means the order already finished its lifecycle upstream
	SOComplete SOStatus = 9
	// SOUnknown means the status could not be read
	SOUnknown SOStatus = -1
)

// IsHeld returns true for the held and credit-held states
func (s SOStatus) IsHeld() bool {
	return s == SOHeld || s == SOCreditHeld
}

// ItemStatusApproved is the catalog status required before an item may be
// used on orders. Newly created derived items start in ItemStatusWait.
const (
	ItemStatusApproved = "APP"
	ItemStatusWait     = "WAIT"
)

// ---------------------------------------------------------------------------
// Read Models
// ---------------------------------------------------------------------------

// OrderHeader is a source-plant sales-order header
type OrderHeader struct {
	OrderNum int
	CustRef  string
	Status   SOStatus
}

// OrderLine is one sales-order line on either plant
type OrderLine struct {
	OrderNum   int
	LineNum    int
	ItemCode   string
	OrderedQty decimal.Decimal
	ReqDate    string
}

// Requirement is a manufacturing-material line generated by a production
// job; the source of truth for Phase 2B change detection.
type Requirement struct {
	JobCode      string
	ReqGroupCode string
	ItemCode     string
	RequiredQty  decimal.Decimal
	RequiredDate string
	DimA         decimal.Decimal
	OrderNum     int
	LineNum      int
}

// ChangeEventType classifies a change-capture feed entry
type ChangeEventType string

const (
	ChangeEventNewOrder  ChangeEventType = "NEW_ORDER"
	ChangeEventQtyChange ChangeEventType = "QTY_CHANGE"
)

// ChangeEvent identifies a source order the feed flagged as new or changed.
// Delivery is at-least-once; snapshot diffing provides idempotence.
type ChangeEvent struct {
	ID        int64
	Type      ChangeEventType
	OrderNum  int
	LineNum   int
	CreatedAt time.Time
}

// ---------------------------------------------------------------------------
// Write Requests / Results
// ---------------------------------------------------------------------------

// CreateJobRequest asks for a production job linked to an order's lines
type CreateJobRequest struct {
	OrderNum int
	// Fulfillment is false for the source plant job, true for the
	// fulfillment plant job
	Fulfillment bool
}

// CreatePORequest creates the downstream purchase order from job requirements
type CreatePORequest struct {
	JobCode string
	Lines   []POLineRequest
}

// POLineRequest is one purchase-order line derived from an open requirement
type POLineRequest struct {
	ItemCode     string
	Qty          decimal.Decimal
	RequiredDate string
	DimA         decimal.Decimal
	// SourceLineNum is the source order line this requirement traces to
	SourceLineNum int
}

// POResult carries the server-assigned purchase-order identifiers
type POResult struct {
	PONum int
	// LineNums are the created line numbers, parallel to the request lines
	LineNums []int
}

// CreateSORequest creates the fulfillment sales order
type CreateSORequest struct {
	PONum        int
	CustRef      string
	ItemCode     string
	Qty          decimal.Decimal
	RequiredDate string
}

// UpdateLineQtyRequest updates a single line quantity on an existing entity
type UpdateLineQtyRequest struct {
	Num      int
	LineNum  int
	ItemCode string
	Qty      decimal.Decimal
	ReqDate  string
}

// UpdateShipReqLineRequest updates a shipping-request line quantity
type UpdateShipReqLineRequest struct {
	ShipReqNum string
	LineNum    int
	SONum      int
	SOLineNum  int
	ItemCode   string
	Qty        decimal.Decimal
}
