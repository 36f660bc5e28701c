package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence/models"
)

// RunRepository implements workflow.RunRepository using GORM
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create persists a new run record
func (r *RunRepository) Create(ctx context.Context, run *workflow.Run) error {
	model := models.RunModelFromDomain(run)
	return r.db.WithContext(ctx).Create(model).Error
}

// Close persists the run's final counts and end time
func (r *RunRepository) Close(ctx context.Context, run *workflow.Run) error {
	model := models.RunModelFromDomain(run)
	return r.db.WithContext(ctx).Save(model).Error
}

// MarkOrder records one order's outcome within a run
func (r *RunRepository) MarkOrder(ctx context.Context, ro *workflow.RunOrder) error {
	model := models.RunOrderModelFromDomain(ro)
	return r.db.WithContext(ctx).Create(model).Error
}

// List returns the most recent runs, newest first
func (r *RunRepository) List(ctx context.Context, limit int) ([]workflow.Run, error) {
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runModels []models.RunModel
	if err := query.Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]workflow.Run, len(runModels))
	for i, model := range runModels {
		runs[i] = *model.ToDomain()
	}
	return runs, nil
}

// ListOrders returns the per-order outcomes of one run
func (r *RunRepository) ListOrders(ctx context.Context, runID string) ([]workflow.RunOrder, error) {
	var orderModels []models.RunOrderModel
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("order_num ASC").
		Find(&orderModels).Error; err != nil {
		return nil, err
	}

	orders := make([]workflow.RunOrder, len(orderModels))
	for i, model := range orderModels {
		orders[i] = *model.ToDomain()
	}
	return orders, nil
}

// PurgeOlderThan deletes run history past the retention window
func (r *RunRepository) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var purged int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.RunModel{}).
			Where("started_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("run_id IN ?", ids).Delete(&models.RunOrderModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.RunModel{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	return purged, err
}

// Ensure RunRepository implements workflow.RunRepository
var _ workflow.RunRepository = (*RunRepository)(nil)
