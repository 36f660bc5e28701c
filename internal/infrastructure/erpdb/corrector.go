package erpdb

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
)

// poStatusConfirmed is the purchase-order status meaning "confirmed with
// the supplier"; the REST adapter has no operation for this transition.
const poStatusConfirmed = 2

// Corrector issues the two direct status corrections the upstream system
// needs: newly mirrored fulfillment orders come back held even though the
// account has no hold rules, and purchase orders stay unconfirmed after
// their fulfillment order is accepted. Both run on the read-write session.
type Corrector struct {
	db     *gorm.DB
	cfg    config.WorkflowConfig
	logger *zap.Logger
}

// NewCorrector creates a Corrector on the read-write ERP session
func NewCorrector(db *gorm.DB, cfg config.WorkflowConfig, logger *zap.Logger) *Corrector {
	return &Corrector{db: db, cfg: cfg, logger: logger}
}

// Ensure interface compliance at compile time
var _ erp.Corrector = (*Corrector)(nil)

// ForceAuthorizeSO forces a fulfillment sales order to authorized status
func (c *Corrector) ForceAuthorizeSO(ctx context.Context, soNum int) error {
	query := `
		UPDATE PUB."PV_SOrder"
		SET "SOrderStat" = ?
		WHERE "CompNum" = ? AND "PlantCode" = ? AND "SOrderNum" = ?`

	result := c.db.WithContext(ctx).
		Exec(query, int(erp.SOAuthorized), c.cfg.CompanyNum, c.cfg.FulfillmentPlant, soNum)
	if result.Error != nil {
		return fmt.Errorf("erpdb: force authorize SO %d: %w", soNum, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("force authorize SO %d: %w", soNum, erp.ErrNotFound)
	}

	c.logger.Info("forced fulfillment SO to authorized", zap.Int("so_num", soNum))
	return nil
}

// ConfirmPO marks a purchase order confirmed
func (c *Corrector) ConfirmPO(ctx context.Context, poNum int) error {
	query := `
		UPDATE PUB."PV_POrder"
		SET "POrderStat" = ?
		WHERE "CompNum" = ? AND "POrderNum" = ?`

	result := c.db.WithContext(ctx).
		Exec(query, poStatusConfirmed, c.cfg.CompanyNum, poNum)
	if result.Error != nil {
		return fmt.Errorf("erpdb: confirm PO %d: %w", poNum, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("confirm PO %d: %w", poNum, erp.ErrNotFound)
	}

	c.logger.Info("confirmed purchase order", zap.Int("po_num", poNum))
	return nil
}
