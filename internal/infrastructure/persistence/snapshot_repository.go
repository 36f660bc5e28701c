package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence/models"
)

// SnapshotRepository implements workflow.SnapshotRepository using GORM
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new SnapshotRepository
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Get returns the stored baseline for a (kind, key)
func (r *SnapshotRepository) Get(ctx context.Context, kind workflow.SnapshotKind, key string) (*workflow.Snapshot, error) {
	var model models.SnapshotModel
	if err := r.db.WithContext(ctx).
		First(&model, "kind = ? AND key = ?", string(kind), key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrSnapshotNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Record creates or replaces the baseline for the snapshot's (kind, key)
func (r *SnapshotRepository) Record(ctx context.Context, s *workflow.Snapshot) error {
	model := models.SnapshotModelFromDomain(s)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "key"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// Diff compares an observed value against the stored baseline. A missing
// baseline reports changed=false so the first observation seeds without
// triggering propagation.
func (r *SnapshotRepository) Diff(ctx context.Context, observed *workflow.Snapshot) (bool, *workflow.Snapshot, error) {
	old, err := r.Get(ctx, observed.Kind, observed.Key)
	if errors.Is(err, workflow.ErrSnapshotNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return !old.Equal(observed), old, nil
}

// Ensure SnapshotRepository implements workflow.SnapshotRepository
var _ workflow.SnapshotRepository = (*SnapshotRepository)(nil)
