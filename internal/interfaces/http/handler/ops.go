package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/interfaces/http/dto"
)

// defaultChangeLogLimit bounds the change-log slice returned with an order
const defaultChangeLogLimit = 50

// OpsHandler exposes the operator API: order-state inspection, hold
// triage, run history, and the requeue/remove interventions.
type OpsHandler struct {
	store workflow.Store
}

// NewOpsHandler creates an OpsHandler
func NewOpsHandler(store workflow.Store) *OpsHandler {
	return &OpsHandler{store: store}
}

// RegisterRoutes registers the operator endpoints
func (h *OpsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:num", h.GetOrder)
		orders.POST("/:num/requeue", h.RequeueOrder)
		orders.POST("/:num/remove", h.RemoveOrder)
	}

	rg.GET("/holds", h.ListHolds)

	runs := rg.Group("/runs")
	{
		runs.GET("", h.ListRuns)
		runs.GET("/:id", h.GetRun)
	}
}

// GetOrder returns one tracked order with its recent change log
func (h *OpsHandler) GetOrder(c *gin.Context) {
	orderNum, ok := orderNumParam(c)
	if !ok {
		return
	}

	order, err := h.store.Orders().Get(c.Request.Context(), orderNum)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	limit := intQuery(c, "changelog_limit", defaultChangeLogLimit)
	changes, err := h.store.ChangeLog().ListByOrder(c.Request.Context(), orderNum, limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(orderDetailResponse{
		Order:     toOrderResponse(*order),
		ChangeLog: toChangeLogResponses(changes),
	}))
}

// ListOrders returns tracked orders filtered by status
func (h *OpsHandler) ListOrders(c *gin.Context) {
	statusParam := c.Query("status")
	if statusParam == "" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_REQUEST", "status query parameter is required"))
		return
	}
	status := workflow.Status(statusParam)
	if !status.IsValid() {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_REQUEST", "unknown status "+statusParam))
		return
	}

	orders, err := h.store.Orders().ListByStatus(c.Request.Context(), status)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toOrderResponses(orders)))
}

// ListHolds returns every order currently parked in HOLD
func (h *OpsHandler) ListHolds(c *gin.Context) {
	orders, err := h.store.Orders().ListActiveHolds(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(toOrderResponses(orders)))
}

// RequeueOrder resets an order to NEW so the next cycle reprocesses it
func (h *OpsHandler) RequeueOrder(c *gin.Context) {
	orderNum, ok := orderNumParam(c)
	if !ok {
		return
	}

	if err := h.store.Orders().Requeue(c.Request.Context(), orderNum); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"order_num": orderNum, "status": string(workflow.StatusNew)}))
}

// RemoveOrder permanently excludes an order from processing
func (h *OpsHandler) RemoveOrder(c *gin.Context) {
	orderNum, ok := orderNumParam(c)
	if !ok {
		return
	}

	if err := h.store.Orders().Remove(c.Request.Context(), orderNum); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"order_num": orderNum, "status": string(workflow.StatusRemoved)}))
}

// ListRuns returns recent orchestration runs, newest first
func (h *OpsHandler) ListRuns(c *gin.Context) {
	limit := intQuery(c, "limit", 20)

	runs, err := h.store.Runs().List(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	responses := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		responses = append(responses, toRunResponse(r))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(responses))
}

// GetRun returns one run with its per-order outcomes
func (h *OpsHandler) GetRun(c *gin.Context) {
	runID := c.Param("id")

	orders, err := h.store.Runs().ListOrders(c.Request.Context(), runID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	outcomes := make([]runOrderResponse, 0, len(orders))
	for _, ro := range orders {
		outcomes = append(outcomes, runOrderResponse{
			OrderNum:  ro.OrderNum,
			Status:    string(ro.Status),
			LastStep:  string(ro.LastStep),
			UpdatedAt: ro.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(runDetailResponse{RunID: runID, Orders: outcomes}))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func orderNumParam(c *gin.Context) (int, bool) {
	orderNum, err := strconv.Atoi(c.Param("num"))
	if err != nil || orderNum <= 0 {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_REQUEST", "order number must be a positive integer"))
		return 0, false
	}
	return orderNum, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func respondDomainError(c *gin.Context, err error) {
	var domainErr *workflow.DomainError
	if errors.As(err, &domainErr) {
		status := http.StatusConflict
		switch domainErr {
		case workflow.ErrOrderNotFound, workflow.ErrRunNotFound, workflow.ErrSnapshotNotFound, workflow.ErrXRefNotFound:
			status = http.StatusNotFound
		}
		c.JSON(status, dto.NewErrorResponse(domainErr.Code, domainErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("INTERNAL_ERROR", err.Error()))
}

// ---------------------------------------------------------------------------
// Response Shapes
// ---------------------------------------------------------------------------

type orderResponse struct {
	OrderNum  int    `json:"order_num"`
	Status    string `json:"status"`
	LastStep  string `json:"last_step"`
	LastRunID string `json:"last_run_id,omitempty"`

	BaseItemCode       string `json:"base_item_code,omitempty"`
	SourceJobCode      string `json:"source_job_code,omitempty"`
	PONum              int    `json:"po_num,omitempty"`
	FulfillmentSONum   int    `json:"fulfillment_so_num,omitempty"`
	ShipReqNum         string `json:"ship_req_num,omitempty"`
	FulfillmentJobCode string `json:"fulfillment_job_code,omitempty"`
	CustRef            string `json:"cust_ref,omitempty"`

	PendingQty       string `json:"pending_qty,omitempty"`
	PendingDirection string `json:"pending_direction,omitempty"`
	PendingLineNum   int    `json:"pending_line_num,omitempty"`

	HoldSince      *time.Time `json:"hold_since,omitempty"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`
	EscalatedAt    *time.Time `json:"escalated_at,omitempty"`

	LastErrorSummary string   `json:"last_error_summary,omitempty"`
	LastAPIEntity    string   `json:"last_api_entity,omitempty"`
	LastAPIStatus    int      `json:"last_api_status,omitempty"`
	LastAPIMessages  []string `json:"last_api_messages,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type orderDetailResponse struct {
	Order     orderResponse       `json:"order"`
	ChangeLog []changeLogResponse `json:"change_log"`
}

type changeLogResponse struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	OrderNum  int       `json:"order_num"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toChangeLogResponses(entries []workflow.ChangeLogEntry) []changeLogResponse {
	responses := make([]changeLogResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, changeLogResponse{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Key:       e.Key,
			OrderNum:  e.OrderNum,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Context:   e.Context,
			CreatedAt: e.CreatedAt,
		})
	}
	return responses
}

type runResponse struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Env            string     `json:"env,omitempty"`
	EligibleCount  int        `json:"eligible_count"`
	ProcessedCount int        `json:"processed_count"`
	HeldCount      int        `json:"held_count"`
	FailedCount    int        `json:"failed_count"`
}

type runDetailResponse struct {
	RunID  string             `json:"run_id"`
	Orders []runOrderResponse `json:"orders"`
}

type runOrderResponse struct {
	OrderNum  int       `json:"order_num"`
	Status    string    `json:"status"`
	LastStep  string    `json:"last_step"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrderResponse(o workflow.OrderState) orderResponse {
	resp := orderResponse{
		OrderNum:           o.OrderNum,
		Status:             string(o.Status),
		LastStep:           string(o.LastStep),
		LastRunID:          o.LastRunID,
		BaseItemCode:       o.BaseItemCode,
		SourceJobCode:      o.SourceJobCode,
		PONum:              o.PONum,
		FulfillmentSONum:   o.FulfillmentSONum,
		ShipReqNum:         o.ShipReqNum,
		FulfillmentJobCode: o.FulfillmentJobCode,
		CustRef:            o.CustRef,
		PendingDirection:   string(o.PendingDirection),
		PendingLineNum:     o.PendingLineNum,
		HoldSince:          o.HoldSince,
		LastReminderAt:     o.LastReminderAt,
		EscalatedAt:        o.EscalatedAt,
		LastErrorSummary:   o.LastErrorSummary,
		LastAPIEntity:      o.LastAPIEntity,
		LastAPIStatus:      o.LastAPIStatus,
		LastAPIMessages:    o.LastAPIMessages,
		FirstSeenAt:        o.FirstSeenAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if !o.PendingQty.IsZero() {
		resp.PendingQty = o.PendingQty.String()
	}
	return resp
}

func toOrderResponses(orders []workflow.OrderState) []orderResponse {
	responses := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		responses = append(responses, toOrderResponse(o))
	}
	return responses
}

func toRunResponse(r workflow.Run) runResponse {
	return runResponse{
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
