package workflow

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Change Snapshots
// ---------------------------------------------------------------------------

// SnapshotKind identifies which tracked upstream field a snapshot baselines
type SnapshotKind string

const (
	// SnapshotLineQty tracks a source order line's quantity and required date
	SnapshotLineQty SnapshotKind = "LINE_QTY"
	// SnapshotHeaderRef tracks the source order header's customer reference
	SnapshotHeaderRef SnapshotKind = "HEADER_REF"
	// SnapshotReqQty tracks a derived requirement's quantity and required date
	SnapshotReqQty SnapshotKind = "REQ_QTY"
)

// IsValid returns true if the kind is a known value
func (k SnapshotKind) IsValid() bool {
	switch k {
	case SnapshotLineQty, SnapshotHeaderRef, SnapshotReqQty:
		return true
	default:
		return false
	}
}

// LineKey builds the natural key for a LINE_QTY snapshot
func LineKey(orderNum, lineNum int) string {
	return fmt.Sprintf("%d/%d", orderNum, lineNum)
}

// HeaderKey builds the natural key for a HEADER_REF snapshot
func HeaderKey(orderNum int) string {
	return fmt.Sprintf("%d", orderNum)
}

// ReqKey builds the natural key for a REQ_QTY snapshot
func ReqKey(jobCode, reqGroup, itemCode string) string {
	return fmt.Sprintf("%s/%s/%s", jobCode, reqGroup, itemCode)
}

// Snapshot is the last-observed value of one tracked upstream field.
// Exactly one snapshot exists per (kind, key); it is the baseline the next
// cycle diffs against and is updated in the same logical step that
// propagates a detected change, never before.
type Snapshot struct {
	Kind       SnapshotKind
	Key        string
	OrderNum   int
	Qty        decimal.Decimal
	Date       string
	Ref        string
	ObservedAt time.Time
}

// Equal reports whether the observed values match this baseline
func (s *Snapshot) Equal(observed *Snapshot) bool {
	return s.Qty.Equal(observed.Qty) && s.Date == observed.Date && s.Ref == observed.Ref
}

// ---------------------------------------------------------------------------
// Change Log
// ---------------------------------------------------------------------------

// ChangeLogEntry is an immutable audit record of one detected change
type ChangeLogEntry struct {
	ID        int64
	Kind      SnapshotKind
	Key       string
	OrderNum  int
	OldValue  string
	NewValue  string
	Context   string
	CreatedAt time.Time
}

// ---------------------------------------------------------------------------
// Artifact Cross-Reference
// ---------------------------------------------------------------------------

// POLineXRef records which downstream purchase-order line a source order
// line produced. Written once at PO creation; Phase 2B reads it to locate
// the line to update without re-deriving business rules.
type POLineXRef struct {
	OrderNum  int
	LineNum   int
	PONum     int
	POLineNum int
	ItemCode  string
	PlantCode string
	CreatedAt time.Time
}
