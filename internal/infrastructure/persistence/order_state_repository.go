package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence/models"
)

// OrderStateRepository implements workflow.OrderRepository using GORM
type OrderStateRepository struct {
	db *gorm.DB
}

// NewOrderStateRepository creates a new OrderStateRepository
func NewOrderStateRepository(db *gorm.DB) *OrderStateRepository {
	return &OrderStateRepository{db: db}
}

// Get returns the tracked state for an order
func (r *OrderStateRepository) Get(ctx context.Context, orderNum int) (*workflow.OrderState, error) {
	var model models.OrderStateModel
	if err := r.db.WithContext(ctx).First(&model, "order_num = ?", orderNum).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert creates or updates an order's state. Artifact identifiers are
// append-only: a populated stored value is never cleared or overwritten by
// an empty incoming value.
func (r *OrderStateRepository) Upsert(ctx context.Context, o *workflow.OrderState) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := models.OrderStateModelFromDomain(o)
		model.UpdatedAt = time.Now().UTC()

		var existing models.OrderStateModel
		err := tx.First(&existing, "order_num = ?", o.OrderNum).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(model).Error
		}
		if err != nil {
			return err
		}

		if model.BaseItemCode == "" {
			model.BaseItemCode = existing.BaseItemCode
		}
		if model.SourceJobCode == "" {
			model.SourceJobCode = existing.SourceJobCode
		}
		if model.PONum == 0 {
			model.PONum = existing.PONum
		}
		if model.FulfillmentSONum == 0 {
			model.FulfillmentSONum = existing.FulfillmentSONum
		}
		if model.ShipReqNum == "" {
			model.ShipReqNum = existing.ShipReqNum
		}
		if model.FulfillmentJobCode == "" {
			model.FulfillmentJobCode = existing.FulfillmentJobCode
		}
		model.FirstSeenAt = existing.FirstSeenAt

		return tx.Save(model).Error
	})
}

// SetLastRun records the run that last touched an order. Only the
// correlation id column is written; updated_at is left alone so read-only
// passes do not reset the archival clock.
func (r *OrderStateRepository) SetLastRun(ctx context.Context, orderNum int, runID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderStateModel{}).
		Where("order_num = ?", orderNum).
		Update("last_run_id", runID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return workflow.ErrOrderNotFound
	}
	return nil
}

// ListByStatus returns orders in any of the given statuses
func (r *OrderStateRepository) ListByStatus(ctx context.Context, statuses ...workflow.Status) ([]workflow.OrderState, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	var stateModels []models.OrderStateModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", values).
		Order("order_num ASC").
		Find(&stateModels).Error; err != nil {
		return nil, err
	}

	states := make([]workflow.OrderState, len(stateModels))
	for i, model := range stateModels {
		states[i] = *model.ToDomain()
	}
	return states, nil
}

// ListActiveHolds returns all orders currently in HOLD
func (r *OrderStateRepository) ListActiveHolds(ctx context.Context) ([]workflow.OrderState, error) {
	return r.ListByStatus(ctx, workflow.StatusHold)
}

// Requeue resets an order to NEW so the next cycle reprocesses it
func (r *OrderStateRepository) Requeue(ctx context.Context, orderNum int) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderStateModel{}).
		Where("order_num = ?", orderNum).
		Updates(map[string]interface{}{
			"status":           string(workflow.StatusNew),
			"last_step":        string(workflow.StepEligible),
			"hold_since":       nil,
			"last_reminder_at": nil,
			"escalated_at":     nil,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return workflow.ErrOrderNotFound
	}
	return nil
}

// Remove permanently excludes an order from processing
func (r *OrderStateRepository) Remove(ctx context.Context, orderNum int) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderStateModel{}).
		Where("order_num = ?", orderNum).
		Updates(map[string]interface{}{
			"status":     string(workflow.StatusRemoved),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return workflow.ErrOrderNotFound
	}
	return nil
}

// ArchiveCompleted moves long-COMPLETE orders into the archive table
func (r *OrderStateRepository) ArchiveCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var archived int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stateModels []models.OrderStateModel
		if err := tx.
			Where("status = ? AND updated_at < ?", string(workflow.StatusComplete), cutoff).
			Find(&stateModels).Error; err != nil {
			return err
		}
		if len(stateModels) == 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, model := range stateModels {
			archive := models.ArchivedOrderModel{OrderStateModel: model, ArchivedAt: now}
			if err := tx.Create(&archive).Error; err != nil {
				return err
			}
		}
		result := tx.
			Where("status = ? AND updated_at < ?", string(workflow.StatusComplete), cutoff).
			Delete(&models.OrderStateModel{})
		if result.Error != nil {
			return result.Error
		}
		archived = result.RowsAffected
		return nil
	})
	return archived, err
}

// Ensure OrderStateRepository implements workflow.OrderRepository
var _ workflow.OrderRepository = (*OrderStateRepository)(nil)
