package erpdb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
)

// artItemTypeCode marks artwork lines, which never carry film demand and
// are excluded from eligibility and line reads on the source plant.
const artItemTypeCode = "P4ART"

// dateLayout is the date format the workflow exchanges with the ERP
const dateLayout = "2006-01-02"

// Reader answers ERP lookups with parameterized queries against the exposed
// order, item, job and requirement views. All scoping predicates (company,
// plants, source code, product/requirement groups) come from configuration.
type Reader struct {
	db *gorm.DB
	// feedDB is the read-write session; consuming the change-capture feed
	// flips entry statuses, which the read-only account cannot do
	feedDB *gorm.DB
	cfg    config.WorkflowConfig
	logger *zap.Logger
}

// NewReader creates a Reader. Lookups run on the read-only session; only
// the change-feed status updates touch the read-write one.
func NewReader(readOnly, readWrite *gorm.DB, cfg config.WorkflowConfig, logger *zap.Logger) *Reader {
	return &Reader{db: readOnly, feedDB: readWrite, cfg: cfg, logger: logger}
}

// Ensure interface compliance at compile time
var _ erp.Reader = (*Reader)(nil)

// ---------------------------------------------------------------------------
// Source Plant Reads
// ---------------------------------------------------------------------------

// FindEligibleOrders returns candidate source orders, newest first. A line
// on a non-artwork item in the configured product group qualifies the order;
// completed orders (status 9) never re-enter.
func (r *Reader) FindEligibleOrders(ctx context.Context, limit int) ([]int, error) {
	query := `
		SELECT DISTINCT so."SOrderNum"
		FROM PUB."PV_SOrder" so
		JOIN PUB."PV_SOrderLine" sol
		  ON sol."CompNum" = so."CompNum"
		 AND sol."PlantCode" = so."PlantCode"
		 AND sol."SOrderNum" = so."SOrderNum"
		 AND sol."SOItemTypeCode" <> ?
		JOIN PUB."PM_Item" it
		  ON it."CompNum" = so."CompNum"
		 AND it."ItemCode" = sol."ItemCode"
		WHERE so."CompNum" = ?
		  AND so."PlantCode" = ?
		  AND so."SOSourceCode" = ?
		  AND so."SOrderStat" IN (0, 1, 2)
		  AND it."ProdGroupCode" = ?
		  AND so."SOrderDate" >= ?
		ORDER BY so."SOrderNum" DESC`
	args := []interface{}{
		artItemTypeCode,
		r.cfg.CompanyNum,
		r.cfg.SourcePlant,
		r.cfg.SourceCode,
		r.cfg.ProdGroupCode,
		r.cfg.EligibilityStartDate,
	}
	if limit > 0 {
		query += `
		LIMIT ?`
		args = append(args, limit)
	}

	var nums []int
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&nums).Error; err != nil {
		return nil, fmt.Errorf("erpdb: find eligible orders: %w", err)
	}
	return nums, nil
}

type orderHeaderRow struct {
	OrderNum int            `gorm:"column:SOrderNum"`
	CustRef  sql.NullString `gorm:"column:CustRef"`
	Status   sql.NullInt64  `gorm:"column:SOrderStat"`
}

// GetOrderHeader reads a source order header
func (r *Reader) GetOrderHeader(ctx context.Context, orderNum int) (*erp.OrderHeader, error) {
	query := `
		SELECT so."SOrderNum", so."CustRef", so."SOrderStat"
		FROM PUB."PV_SOrder" so
		WHERE so."CompNum" = ? AND so."PlantCode" = ? AND so."SOrderNum" = ?`

	var row orderHeaderRow
	result := r.db.WithContext(ctx).Raw(query, r.cfg.CompanyNum, r.cfg.SourcePlant, orderNum).Scan(&row)
	if result.Error != nil {
		return nil, fmt.Errorf("erpdb: get order header %d: %w", orderNum, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("order %d: %w", orderNum, erp.ErrNotFound)
	}

	status := erp.SOUnknown
	if row.Status.Valid {
		status = erp.SOStatus(row.Status.Int64)
	}
	return &erp.OrderHeader{
		OrderNum: row.OrderNum,
		CustRef:  row.CustRef.String,
		Status:   status,
	}, nil
}

type orderLineRow struct {
	OrderNum   int             `gorm:"column:SOrderNum"`
	LineNum    int             `gorm:"column:SOrderLineNum"`
	ItemCode   sql.NullString  `gorm:"column:ItemCode"`
	OrderedQty decimal.Decimal `gorm:"column:OrderedQty"`
	ReqDate    sql.NullTime    `gorm:"column:ReqDate"`
}

func (row orderLineRow) toDomain() erp.OrderLine {
	line := erp.OrderLine{
		OrderNum:   row.OrderNum,
		LineNum:    row.LineNum,
		ItemCode:   row.ItemCode.String,
		OrderedQty: row.OrderedQty,
	}
	if row.ReqDate.Valid {
		line.ReqDate = row.ReqDate.Time.Format(dateLayout)
	}
	return line
}

// GetOrderLines reads a source order's non-artwork lines in line order
func (r *Reader) GetOrderLines(ctx context.Context, orderNum int) ([]erp.OrderLine, error) {
	query := `
		SELECT sol."SOrderNum", sol."SOrderLineNum", sol."ItemCode", sol."OrderedQty", sol."ReqDate"
		FROM PUB."PV_SOrderLine" sol
		WHERE sol."CompNum" = ? AND sol."PlantCode" = ? AND sol."SOrderNum" = ?
		  AND sol."SOItemTypeCode" <> ?
		ORDER BY sol."SOrderLineNum"`

	var rows []orderLineRow
	err := r.db.WithContext(ctx).
		Raw(query, r.cfg.CompanyNum, r.cfg.SourcePlant, orderNum, artItemTypeCode).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("erpdb: get order lines %d: %w", orderNum, err)
	}

	lines := make([]erp.OrderLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.toDomain())
	}
	return lines, nil
}

// GetItemStatus returns an item's catalog status, or "" when the item does
// not exist yet
func (r *Reader) GetItemStatus(ctx context.Context, itemCode string) (string, error) {
	query := `
		SELECT it."ItemStatusCode"
		FROM PUB."PM_Item" it
		WHERE it."CompNum" = ? AND it."ItemCode" = ?`

	var row struct {
		ItemStatusCode sql.NullString `gorm:"column:ItemStatusCode"`
	}
	result := r.db.WithContext(ctx).Raw(query, r.cfg.CompanyNum, itemCode).Scan(&row)
	if result.Error != nil {
		return "", fmt.Errorf("erpdb: get item status %s: %w", itemCode, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", nil
	}
	return row.ItemStatusCode.String, nil
}

// FindJobByOrder returns the newest source production job linked to an
// order, or "" when none exists yet
func (r *Reader) FindJobByOrder(ctx context.Context, orderNum int) (string, error) {
	job, err := r.findLinkedJob(ctx, r.cfg.SourcePlant, orderNum)
	if err != nil {
		return "", fmt.Errorf("erpdb: find job for order %d: %w", orderNum, err)
	}
	return job, nil
}

// findLinkedJob resolves the newest job link for an order on one plant.
// The link view keeps superseded links around, so the highest record wins.
func (r *Reader) findLinkedJob(ctx context.Context, plant string, orderNum int) (string, error) {
	query := `
		SELECT jl."JobCode"
		FROM PUB."PV_JobSOLink" jl
		WHERE jl."CompNum" = ? AND jl."PlantCode" = ? AND jl."SOPlantCode" = ?
		  AND jl."SOrderNum" = ?
		ORDER BY jl."TableRecId" DESC
		LIMIT 1`

	var row struct {
		JobCode sql.NullString `gorm:"column:JobCode"`
	}
	result := r.db.WithContext(ctx).Raw(query, r.cfg.CompanyNum, plant, plant, orderNum).Scan(&row)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", nil
	}
	return row.JobCode.String, nil
}

type requirementRow struct {
	JobCode      string          `gorm:"column:JobCode"`
	ReqGroupCode string          `gorm:"column:ReqGroupCode"`
	ItemCode     string          `gorm:"column:ItemCode"`
	RequiredQty  decimal.Decimal `gorm:"column:RequiredQty"`
	RequiredDate sql.NullTime    `gorm:"column:RequiredDate"`
	DimA         decimal.Decimal `gorm:"column:DimA"`
	OrderNum     int             `gorm:"column:SOrderNum"`
	LineNum      int             `gorm:"column:SOrderLineNum"`
}

// GetJobRequirements returns the source job's open film requirements.
// Status 10/11 are firm, 20/21 released; anything already covered by a
// purchase or in-production reservation is excluded.
func (r *Reader) GetJobRequirements(ctx context.Context, jobCode string) ([]erp.Requirement, error) {
	query := `
		SELECT rq."JobCode", rq."ReqGroupCode", rq."ItemCode", rq."RequiredQty",
		       rq."RequiredDate", rq."DimA", rq."SOrderNum", rq."SOrderLineNum"
		FROM PUB."PV_Req" rq
		WHERE rq."CompNum" = ? AND rq."PlantCode" = ? AND rq."JobCode" = ?
		  AND rq."ReqGroupCode" = ?
		  AND rq."ReqStatus" IN (10, 11, 20, 21)
		  AND COALESCE(rq."POResQty", 0) < 1
		  AND COALESCE(rq."InProdResQty", 0) < 1
		  AND rq."RequiredQty" > 0
		ORDER BY rq."RequiredDate" ASC`

	var rows []requirementRow
	err := r.db.WithContext(ctx).
		Raw(query, r.cfg.CompanyNum, r.cfg.SourcePlant, jobCode, r.cfg.ReqGroupCode).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("erpdb: get requirements for job %s: %w", jobCode, err)
	}

	reqs := make([]erp.Requirement, 0, len(rows))
	for _, row := range rows {
		req := erp.Requirement{
			JobCode:      row.JobCode,
			ReqGroupCode: row.ReqGroupCode,
			ItemCode:     row.ItemCode,
			RequiredQty:  row.RequiredQty,
			DimA:         row.DimA,
			OrderNum:     row.OrderNum,
			LineNum:      row.LineNum,
		}
		if row.RequiredDate.Valid {
			req.RequiredDate = row.RequiredDate.Time.Format(dateLayout)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// ---------------------------------------------------------------------------
// Cross-Plant Lookups
// ---------------------------------------------------------------------------

// FindPOByJob returns the purchase order raised for a source job, or 0.
// The PO carries the job code as its supplier reference.
func (r *Reader) FindPOByJob(ctx context.Context, jobCode string) (int, error) {
	query := `
		SELECT po."POrderNum"
		FROM PUB."PV_POrder" po
		WHERE po."CompNum" = ? AND po."SuppRef" = ?
		ORDER BY po."LastUpdatedDateTime" DESC
		LIMIT 1`

	var row struct {
		POrderNum int `gorm:"column:POrderNum"`
	}
	result := r.db.WithContext(ctx).Raw(query, r.cfg.CompanyNum, jobCode).Scan(&row)
	if result.Error != nil {
		return 0, fmt.Errorf("erpdb: find PO for job %s: %w", jobCode, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return row.POrderNum, nil
}

// FindSOByPO returns the fulfillment sales order referencing a purchase
// order, or 0. The SO carries the PO number as its additional customer ref.
func (r *Reader) FindSOByPO(ctx context.Context, poNum int) (int, error) {
	query := `
		SELECT so."SOrderNum"
		FROM PUB."PV_SOrder" so
		WHERE so."CompNum" = ? AND so."PlantCode" = ? AND so."AddtCustRef" = ?
		ORDER BY so."LastUpdatedDateTime" DESC
		LIMIT 1`

	var row struct {
		OrderNum int `gorm:"column:SOrderNum"`
	}
	result := r.db.WithContext(ctx).
		Raw(query, r.cfg.CompanyNum, r.cfg.FulfillmentPlant, strconv.Itoa(poNum)).
		Scan(&row)
	if result.Error != nil {
		return 0, fmt.Errorf("erpdb: find SO for PO %d: %w", poNum, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return row.OrderNum, nil
}

// ---------------------------------------------------------------------------
// Fulfillment Plant Reads
// ---------------------------------------------------------------------------

// GetFulfillmentSOStatus reads the fulfillment order's status
func (r *Reader) GetFulfillmentSOStatus(ctx context.Context, soNum int) (erp.SOStatus, error) {
	query := `
		SELECT so."SOrderStat"
		FROM PUB."PV_SOrder" so
		WHERE so."CompNum" = ? AND so."PlantCode" = ? AND so."SOrderNum" = ?`

	var row struct {
		Status sql.NullInt64 `gorm:"column:SOrderStat"`
	}
	result := r.db.WithContext(ctx).Raw(query, r.cfg.CompanyNum, r.cfg.FulfillmentPlant, soNum).Scan(&row)
	if result.Error != nil {
		return erp.SOUnknown, fmt.Errorf("erpdb: get fulfillment SO status %d: %w", soNum, result.Error)
	}
	if result.RowsAffected == 0 || !row.Status.Valid {
		return erp.SOUnknown, fmt.Errorf("fulfillment SO %d: %w", soNum, erp.ErrNotFound)
	}
	return erp.SOStatus(row.Status.Int64), nil
}

// GetFulfillmentSOLines reads the fulfillment order's lines. A freshly
// created order's lines lag behind the header in the exposed views, so an
// empty or item-less read maps to ErrNoLinesVisible rather than a result.
func (r *Reader) GetFulfillmentSOLines(ctx context.Context, soNum int) ([]erp.OrderLine, error) {
	query := `
		SELECT sol."SOrderNum", sol."SOrderLineNum", sol."ItemCode", sol."OrderedQty", sol."ReqDate"
		FROM PUB."PV_SOrderLine" sol
		WHERE sol."CompNum" = ? AND sol."PlantCode" = ? AND sol."SOrderNum" = ?
		ORDER BY sol."SOrderLineNum"`

	var rows []orderLineRow
	err := r.db.WithContext(ctx).
		Raw(query, r.cfg.CompanyNum, r.cfg.FulfillmentPlant, soNum).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("erpdb: get fulfillment SO lines %d: %w", soNum, err)
	}
	if len(rows) == 0 || !rows[0].ItemCode.Valid || rows[0].ItemCode.String == "" {
		return nil, fmt.Errorf("fulfillment SO %d: %w", soNum, erp.ErrNoLinesVisible)
	}

	lines := make([]erp.OrderLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.toDomain())
	}
	return lines, nil
}

// FindShipReqBySO returns the newest shipping request recorded against a
// fulfillment order, or "". The create call does not always echo the
// assigned number, so the pipeline resolves it from the line view.
func (r *Reader) FindShipReqBySO(ctx context.Context, soNum int) (string, error) {
	query := `
		SELECT srl."ShipReqNum"
		FROM PUB."PV_ShipReqLine" srl
		WHERE srl."CompNum" = ? AND srl."PlantCode" = ? AND srl."SOrderNum" = ?
		ORDER BY srl."ShipReqNum" DESC
		LIMIT 1`

	var row struct {
		ShipReqNum sql.NullString `gorm:"column:ShipReqNum"`
	}
	result := r.db.WithContext(ctx).
		Raw(query, r.cfg.CompanyNum, r.cfg.FulfillmentPlant, soNum).
		Scan(&row)
	if result.Error != nil {
		return "", fmt.Errorf("erpdb: find ship request for SO %d: %w", soNum, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", nil
	}
	return strings.TrimSpace(row.ShipReqNum.String), nil
}

// FindFulfillmentJobBySO returns the fulfillment job for an order, or ""
func (r *Reader) FindFulfillmentJobBySO(ctx context.Context, soNum int) (string, error) {
	job, err := r.findLinkedJob(ctx, r.cfg.FulfillmentPlant, soNum)
	if err != nil {
		return "", fmt.Errorf("erpdb: find fulfillment job for SO %d: %w", soNum, err)
	}
	return job, nil
}

// GetFulfillmentJobReqTotal aggregates the fulfillment job's requirement
// quantity across all of its lines
func (r *Reader) GetFulfillmentJobReqTotal(ctx context.Context, jobCode string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(rq."RequiredQty"), 0) AS total
		FROM PUB."PV_Req" rq
		WHERE rq."CompNum" = ? AND rq."PlantCode" = ? AND rq."JobCode" = ?`

	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err := r.db.WithContext(ctx).
		Raw(query, r.cfg.CompanyNum, r.cfg.FulfillmentPlant, jobCode).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("erpdb: get requirement total for job %s: %w", jobCode, err)
	}
	return row.Total, nil
}

// ---------------------------------------------------------------------------
// Change-Capture Feed
// ---------------------------------------------------------------------------

type changeEventRow struct {
	OutboxID   int64          `gorm:"column:OutboxId"`
	ChangeType string         `gorm:"column:ChangeType"`
	OrderNum   int            `gorm:"column:SOrderNum"`
	LineNum    int            `gorm:"column:SOrderLineNum"`
	CreatedAt  sql.NullTime   `gorm:"column:CreatedAt"`
	Status     sql.NullString `gorm:"column:Status"`
}

// FetchPendingChangeEvents reads unprocessed change-capture entries for the
// configured source plant, oldest first. Unknown change types are skipped
// with a warning so a feed schema addition cannot wedge the cycle.
func (r *Reader) FetchPendingChangeEvents(ctx context.Context, limit int) ([]erp.ChangeEvent, error) {
	query := `
		SELECT ob."OutboxId", ob."ChangeType", ob."SOrderNum", ob."SOrderLineNum", ob."CreatedAt"
		FROM PUB."LWS_Workflow_Outbox" ob
		WHERE ob."Status" = 'Pending'
		  AND ob."CompNum" = ? AND ob."PlantCode" = ?
		ORDER BY ob."OutboxId"
		LIMIT ?`

	var rows []changeEventRow
	err := r.db.WithContext(ctx).
		Raw(query, r.cfg.CompanyNum, r.cfg.SourcePlant, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("erpdb: fetch pending change events: %w", err)
	}

	events := make([]erp.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		eventType := erp.ChangeEventType(row.ChangeType)
		switch eventType {
		case erp.ChangeEventNewOrder, erp.ChangeEventQtyChange:
		default:
			r.logger.Warn("skipping change event with unknown type",
				zap.Int64("outbox_id", row.OutboxID),
				zap.String("change_type", row.ChangeType))
			continue
		}
		event := erp.ChangeEvent{
			ID:       row.OutboxID,
			Type:     eventType,
			OrderNum: row.OrderNum,
			LineNum:  row.LineNum,
		}
		if row.CreatedAt.Valid {
			event.CreatedAt = row.CreatedAt.Time
		}
		events = append(events, event)
	}
	return events, nil
}

// MarkChangeEventsProcessed flags feed entries as consumed
func (r *Reader) MarkChangeEventsProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE PUB."LWS_Workflow_Outbox"
		SET "Status" = 'Sent', "ProcessedAt" = CURRENT_TIMESTAMP
		WHERE "OutboxId" IN ?`

	if err := r.feedDB.WithContext(ctx).Exec(query, ids).Error; err != nil {
		return fmt.Errorf("erpdb: mark change events processed: %w", err)
	}
	return nil
}
