package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// OrderStateModel is the GORM model for per-order workflow state
type OrderStateModel struct {
	OrderNum  int    `gorm:"primaryKey"`
	Status    string `gorm:"type:varchar(20);not null;index"`
	LastStep  string `gorm:"type:varchar(40);not null"`
	LastRunID string `gorm:"type:varchar(64);index"`

	BaseItemCode       string `gorm:"type:varchar(60)"`
	SourceJobCode      string `gorm:"type:varchar(40)"`
	PONum              int
	FulfillmentSONum   int
	ShipReqNum         string `gorm:"type:varchar(40)"`
	FulfillmentJobCode string `gorm:"type:varchar(40)"`
	CustRef            string `gorm:"type:varchar(120)"`

	PendingQty       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PendingDirection string          `gorm:"type:varchar(10)"`
	PendingLineNum   int

	HoldSince      *time.Time
	LastReminderAt *time.Time
	EscalatedAt    *time.Time

	LastFailureSignature string `gorm:"type:varchar(64)"`
	LastErrorSummary     string `gorm:"type:text"`
	LastAPIEntity        string `gorm:"type:varchar(40)"`
	LastAPIStatus        int
	// LastAPIMessages stores the upstream detail messages as a JSON array
	LastAPIMessages string `gorm:"type:text"`

	FirstSeenAt time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null;index;autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (OrderStateModel) TableName() string {
	return "order_states"
}

// ToDomain converts the model to a domain OrderState
func (m *OrderStateModel) ToDomain() *workflow.OrderState {
	return &workflow.OrderState{
		OrderNum:             m.OrderNum,
		Status:               workflow.Status(m.Status),
		LastStep:             workflow.Step(m.LastStep),
		LastRunID:            m.LastRunID,
		BaseItemCode:         m.BaseItemCode,
		SourceJobCode:        m.SourceJobCode,
		PONum:                m.PONum,
		FulfillmentSONum:     m.FulfillmentSONum,
		ShipReqNum:           m.ShipReqNum,
		FulfillmentJobCode:   m.FulfillmentJobCode,
		CustRef:              m.CustRef,
		PendingQty:           m.PendingQty,
		PendingDirection:     workflow.ChangeDirection(m.PendingDirection),
		PendingLineNum:       m.PendingLineNum,
		HoldSince:            m.HoldSince,
		LastReminderAt:       m.LastReminderAt,
		EscalatedAt:          m.EscalatedAt,
		LastFailureSignature: m.LastFailureSignature,
		LastErrorSummary:     m.LastErrorSummary,
		LastAPIEntity:        m.LastAPIEntity,
		LastAPIStatus:        m.LastAPIStatus,
		LastAPIMessages:      unmarshalStrings(m.LastAPIMessages),
		FirstSeenAt:          m.FirstSeenAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// OrderStateModelFromDomain creates an OrderStateModel from a domain OrderState
func OrderStateModelFromDomain(o *workflow.OrderState) *OrderStateModel {
	return &OrderStateModel{
		OrderNum:             o.OrderNum,
		Status:               string(o.Status),
		LastStep:             string(o.LastStep),
		LastRunID:            o.LastRunID,
		BaseItemCode:         o.BaseItemCode,
		SourceJobCode:        o.SourceJobCode,
		PONum:                o.PONum,
		FulfillmentSONum:     o.FulfillmentSONum,
		ShipReqNum:           o.ShipReqNum,
		FulfillmentJobCode:   o.FulfillmentJobCode,
		CustRef:              o.CustRef,
		PendingQty:           o.PendingQty,
		PendingDirection:     string(o.PendingDirection),
		PendingLineNum:       o.PendingLineNum,
		HoldSince:            o.HoldSince,
		LastReminderAt:       o.LastReminderAt,
		EscalatedAt:          o.EscalatedAt,
		LastFailureSignature: o.LastFailureSignature,
		LastErrorSummary:     o.LastErrorSummary,
		LastAPIEntity:        o.LastAPIEntity,
		LastAPIStatus:        o.LastAPIStatus,
		LastAPIMessages:      marshalStrings(o.LastAPIMessages),
		FirstSeenAt:          o.FirstSeenAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

// ArchivedOrderModel is a finished order moved out of the active table after
// the retention window.
type ArchivedOrderModel struct {
	OrderStateModel `gorm:"embedded"`
	ArchivedAt      time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ArchivedOrderModel) TableName() string {
	return "archived_orders"
}

// SnapshotModel is the GORM model for change snapshots, one row per (kind, key)
type SnapshotModel struct {
	Kind       string          `gorm:"type:varchar(20);primaryKey"`
	Key        string          `gorm:"type:varchar(120);primaryKey"`
	OrderNum   int             `gorm:"index;not null"`
	Qty        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Date       string          `gorm:"type:varchar(20)"`
	Ref        string          `gorm:"type:varchar(120)"`
	ObservedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SnapshotModel) TableName() string {
	return "change_snapshots"
}

// ToDomain converts the model to a domain Snapshot
func (m *SnapshotModel) ToDomain() *workflow.Snapshot {
	return &workflow.Snapshot{
		Kind:       workflow.SnapshotKind(m.Kind),
		Key:        m.Key,
		OrderNum:   m.OrderNum,
		Qty:        m.Qty,
		Date:       m.Date,
		Ref:        m.Ref,
		ObservedAt: m.ObservedAt,
	}
}

// SnapshotModelFromDomain creates a SnapshotModel from a domain Snapshot
func SnapshotModelFromDomain(s *workflow.Snapshot) *SnapshotModel {
	return &SnapshotModel{
		Kind:       string(s.Kind),
		Key:        s.Key,
		OrderNum:   s.OrderNum,
		Qty:        s.Qty,
		Date:       s.Date,
		Ref:        s.Ref,
		ObservedAt: s.ObservedAt,
	}
}

// POLineXRefModel maps a source order line to the purchase-order line it
// produced.
type POLineXRefModel struct {
	OrderNum  int    `gorm:"primaryKey"`
	LineNum   int    `gorm:"primaryKey"`
	PONum     int    `gorm:"not null;index"`
	POLineNum int    `gorm:"not null"`
	ItemCode  string `gorm:"type:varchar(60)"`
	PlantCode string `gorm:"type:varchar(10)"`
	CreatedAt time.Time
}

// TableName returns the table name for GORM
func (POLineXRefModel) TableName() string {
	return "po_line_xrefs"
}

// ToDomain converts the model to a domain POLineXRef
func (m *POLineXRefModel) ToDomain() *workflow.POLineXRef {
	return &workflow.POLineXRef{
		OrderNum:  m.OrderNum,
		LineNum:   m.LineNum,
		PONum:     m.PONum,
		POLineNum: m.POLineNum,
		ItemCode:  m.ItemCode,
		PlantCode: m.PlantCode,
		CreatedAt: m.CreatedAt,
	}
}

// POLineXRefModelFromDomain creates a POLineXRefModel from a domain POLineXRef
func POLineXRefModelFromDomain(x *workflow.POLineXRef) *POLineXRefModel {
	return &POLineXRefModel{
		OrderNum:  x.OrderNum,
		LineNum:   x.LineNum,
		PONum:     x.PONum,
		POLineNum: x.POLineNum,
		ItemCode:  x.ItemCode,
		PlantCode: x.PlantCode,
		CreatedAt: x.CreatedAt,
	}
}

// ChangeLogModel is an immutable audit record of one detected change
type ChangeLogModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Kind      string    `gorm:"type:varchar(20);not null"`
	Key       string    `gorm:"type:varchar(120);not null"`
	OrderNum  int       `gorm:"index;not null"`
	OldValue  string    `gorm:"type:text"`
	NewValue  string    `gorm:"type:text"`
	Context   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChangeLogModel) TableName() string {
	return "change_log"
}

// ToDomain converts the model to a domain ChangeLogEntry
func (m *ChangeLogModel) ToDomain() *workflow.ChangeLogEntry {
	return &workflow.ChangeLogEntry{
		ID:        m.ID,
		Kind:      workflow.SnapshotKind(m.Kind),
		Key:       m.Key,
		OrderNum:  m.OrderNum,
		OldValue:  m.OldValue,
		NewValue:  m.NewValue,
		Context:   m.Context,
		CreatedAt: m.CreatedAt,
	}
}

// ChangeLogModelFromDomain creates a ChangeLogModel from a domain ChangeLogEntry
func ChangeLogModelFromDomain(e *workflow.ChangeLogEntry) *ChangeLogModel {
	return &ChangeLogModel{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Key:       e.Key,
		OrderNum:  e.OrderNum,
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
		Context:   e.Context,
		CreatedAt: e.CreatedAt,
	}
}

// RunModel is the GORM model for one orchestration cycle
type RunModel struct {
	ID             string    `gorm:"type:varchar(64);primaryKey"`
	StartedAt      time.Time `gorm:"not null;index"`
	EndedAt        *time.Time
	Env            string `gorm:"type:varchar(20)"`
	EligibleCount  int
	ProcessedCount int
	HeldCount      int
	FailedCount    int
}

// TableName returns the table name for GORM
func (RunModel) TableName() string {
	return "workflow_runs"
}

// ToDomain converts the model to a domain Run
func (m *RunModel) ToDomain() *workflow.Run {
	return &workflow.Run{
		ID:             m.ID,
		StartedAt:      m.StartedAt,
		EndedAt:        m.EndedAt,
		Env:            m.Env,
		EligibleCount:  m.EligibleCount,
		ProcessedCount: m.ProcessedCount,
		HeldCount:      m.HeldCount,
		FailedCount:    m.FailedCount,
	}
}

// RunModelFromDomain creates a RunModel from a domain Run
func RunModelFromDomain(r *workflow.Run) *RunModel {
	return &RunModel{
		ID:             r.ID,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		Env:            r.Env,
		EligibleCount:  r.EligibleCount,
		ProcessedCount: r.ProcessedCount,
		HeldCount:      r.HeldCount,
		FailedCount:    r.FailedCount,
	}
}

// RunOrderModel is the per-order outcome within one run
type RunOrderModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RunID     string    `gorm:"type:varchar(64);not null;index"`
	OrderNum  int       `gorm:"not null;index"`
	Status    string    `gorm:"type:varchar(20);not null"`
	LastStep  string    `gorm:"type:varchar(40);not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (RunOrderModel) TableName() string {
	return "run_orders"
}

// ToDomain converts the model to a domain RunOrder
func (m *RunOrderModel) ToDomain() *workflow.RunOrder {
	return &workflow.RunOrder{
		RunID:     m.RunID,
		OrderNum:  m.OrderNum,
		Status:    workflow.Status(m.Status),
		LastStep:  workflow.Step(m.LastStep),
		UpdatedAt: m.UpdatedAt,
	}
}

// RunOrderModelFromDomain creates a RunOrderModel from a domain RunOrder
func RunOrderModelFromDomain(ro *workflow.RunOrder) *RunOrderModel {
	return &RunOrderModel{
		RunID:     ro.RunID,
		OrderNum:  ro.OrderNum,
		Status:    string(ro.Status),
		LastStep:  string(ro.LastStep),
		UpdatedAt: ro.UpdatedAt,
	}
}

func marshalStrings(in []string) string {
	if len(in) == 0 {
		return ""
	}
	b, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalStrings(in string) []string {
	if in == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(in), &out); err != nil {
		return nil
	}
	return out
}
