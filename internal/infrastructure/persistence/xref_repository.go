package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence/models"
)

// XRefRepository implements workflow.XRefRepository using GORM
type XRefRepository struct {
	db *gorm.DB
}

// NewXRefRepository creates a new XRefRepository
func NewXRefRepository(db *gorm.DB) *XRefRepository {
	return &XRefRepository{db: db}
}

// Save creates or replaces the mapping for a source order line
func (r *XRefRepository) Save(ctx context.Context, x *workflow.POLineXRef) error {
	model := models.POLineXRefModelFromDomain(x)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_num"}, {Name: "line_num"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindBySourceLine returns the mapping for a source order line
func (r *XRefRepository) FindBySourceLine(ctx context.Context, orderNum, lineNum int) (*workflow.POLineXRef, error) {
	var model models.POLineXRefModel
	if err := r.db.WithContext(ctx).
		First(&model, "order_num = ? AND line_num = ?", orderNum, lineNum).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrXRefNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure XRefRepository implements workflow.XRefRepository
var _ workflow.XRefRepository = (*XRefRepository)(nil)
