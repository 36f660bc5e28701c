package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence/models"
)

// ChangeLogRepository implements workflow.ChangeLogRepository using GORM
type ChangeLogRepository struct {
	db *gorm.DB
}

// NewChangeLogRepository creates a new ChangeLogRepository
func NewChangeLogRepository(db *gorm.DB) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

// Append records one detected change. The assigned id is written back.
func (r *ChangeLogRepository) Append(ctx context.Context, e *workflow.ChangeLogEntry) error {
	model := models.ChangeLogModelFromDomain(e)
	model.ID = 0
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	e.ID = model.ID
	return nil
}

// ListByOrder returns an order's change history, newest first
func (r *ChangeLogRepository) ListByOrder(ctx context.Context, orderNum int, limit int) ([]workflow.ChangeLogEntry, error) {
	query := r.db.WithContext(ctx).
		Where("order_num = ?", orderNum).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logModels []models.ChangeLogModel
	if err := query.Find(&logModels).Error; err != nil {
		return nil, err
	}

	entries := make([]workflow.ChangeLogEntry, len(logModels))
	for i, model := range logModels {
		entries[i] = *model.ToDomain()
	}
	return entries, nil
}

// Ensure ChangeLogRepository implements workflow.ChangeLogRepository
var _ workflow.ChangeLogRepository = (*ChangeLogRepository)(nil)
