package workflow

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// State Store Ports
// ---------------------------------------------------------------------------

// OrderRepository persists per-order workflow state
type OrderRepository interface {
	// Get returns the tracked state for an order, or ErrOrderNotFound
	Get(ctx context.Context, orderNum int) (*OrderState, error)

	// Upsert creates or updates an order's state. Merge semantics are
	// last-write-wins on status/step/error fields and append-only on
	// artifact identifiers: a populated stored artifact is never cleared
	// or overwritten by an empty value.
	Upsert(ctx context.Context, o *OrderState) error

	// SetLastRun records the run that last touched an order. It writes only
	// the correlation id: the update timestamp stays put, so a read-only
	// pass does not reset the retention clock.
	SetLastRun(ctx context.Context, orderNum int, runID string) error

	// ListByStatus returns orders in any of the given statuses
	ListByStatus(ctx context.Context, statuses ...Status) ([]OrderState, error)

	// ListActiveHolds returns all orders currently in HOLD
	ListActiveHolds(ctx context.Context) ([]OrderState, error)

	// Requeue resets an order to NEW so the next cycle reprocesses it
	Requeue(ctx context.Context, orderNum int) error

	// Remove permanently excludes an order from processing
	Remove(ctx context.Context, orderNum int) error

	// ArchiveCompleted moves orders that have stayed COMPLETE with no open
	// Phase-2 episode for longer than the retention window into the archive
	// table. Returns the number of orders archived.
	ArchiveCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SnapshotRepository persists change snapshots, one row per (kind, key)
type SnapshotRepository interface {
	// Get returns the stored baseline, or ErrSnapshotNotFound
	Get(ctx context.Context, kind SnapshotKind, key string) (*Snapshot, error)

	// Record creates or replaces the baseline for the snapshot's (kind, key)
	Record(ctx context.Context, s *Snapshot) error

	// Diff compares an observed value against the stored baseline.
	// A missing baseline reports changed=false (first observation seeds the
	// snapshot without triggering propagation); the caller records it.
	Diff(ctx context.Context, observed *Snapshot) (changed bool, old *Snapshot, err error)
}

// XRefRepository persists the source-line to PO-line cross-reference map
type XRefRepository interface {
	Save(ctx context.Context, x *POLineXRef) error
	FindBySourceLine(ctx context.Context, orderNum, lineNum int) (*POLineXRef, error)
}

// ChangeLogRepository appends immutable audit records of detected changes
type ChangeLogRepository interface {
	Append(ctx context.Context, e *ChangeLogEntry) error
	ListByOrder(ctx context.Context, orderNum int, limit int) ([]ChangeLogEntry, error)
}

// RunRepository persists run and per-run order records
type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	Close(ctx context.Context, r *Run) error
	MarkOrder(ctx context.Context, ro *RunOrder) error
	List(ctx context.Context, limit int) ([]Run, error)
	ListOrders(ctx context.Context, runID string) ([]RunOrder, error)

	// PurgeOlderThan deletes run history past the retention window.
	// Returns the number of runs purged.
	PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Store bundles the state-store repositories behind one transactional
// boundary. Transact runs fn against repositories bound to a single
// database transaction: a step either fully commits its state transition
// or not at all.
type Store interface {
	Orders() OrderRepository
	Snapshots() SnapshotRepository
	XRefs() XRefRepository
	ChangeLog() ChangeLogRepository
	Runs() RunRepository

	Transact(ctx context.Context, fn func(Store) error) error
}

// ---------------------------------------------------------------------------
// Order Locking
// ---------------------------------------------------------------------------

// OrderLocker serializes processing of a single order. Concurrent cycles
// for the same order must never interleave.
type OrderLocker interface {
	// Acquire takes the lock for an order, or returns ErrOrderLocked.
	// The returned release function must be called when the step finishes.
	Acquire(ctx context.Context, orderNum int) (release func(), err error)
}
