package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// StateStore implements workflow.Store on top of GORM. Repositories returned
// by the accessor methods share the store's database handle, so repositories
// obtained inside Transact operate on the same transaction.
type StateStore struct {
	db *gorm.DB
}

// NewStateStore creates a StateStore
func NewStateStore(db *gorm.DB) *StateStore {
	return &StateStore{db: db}
}

// Orders returns the order-state repository
func (s *StateStore) Orders() workflow.OrderRepository {
	return &OrderStateRepository{db: s.db}
}

// Snapshots returns the snapshot repository
func (s *StateStore) Snapshots() workflow.SnapshotRepository {
	return &SnapshotRepository{db: s.db}
}

// XRefs returns the cross-reference repository
func (s *StateStore) XRefs() workflow.XRefRepository {
	return &XRefRepository{db: s.db}
}

// ChangeLog returns the change-log repository
func (s *StateStore) ChangeLog() workflow.ChangeLogRepository {
	return &ChangeLogRepository{db: s.db}
}

// Runs returns the run repository
func (s *StateStore) Runs() workflow.RunRepository {
	return &RunRepository{db: s.db}
}

// Transact executes fn against repositories bound to a single database
// transaction.
func (s *StateStore) Transact(ctx context.Context, fn func(workflow.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStateStore(tx))
	})
}

// Ensure StateStore implements workflow.Store
var _ workflow.Store = (*StateStore)(nil)
