package radius

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
)

// lastUserCode is stamped on every document the workflow writes
const lastUserCode = "radius"

// Writer implements erp.Writer against the XLink adapter. Document payloads
// carry the trading-partner identities and plant codes from configuration;
// the ship-request builder reads the fulfillment order's lines through the
// injected Reader because the adapter has no read side.
type Writer struct {
	client   *Client
	reader   erp.Reader
	wf       config.WorkflowConfig
	trading  config.TradingConfig
	prefixes erp.ItemPrefixes
	logger   *zap.Logger
	now      func() time.Time
}

// NewWriter creates an adapter-backed Writer
func NewWriter(client *Client, reader erp.Reader, wf config.WorkflowConfig, trading config.TradingConfig, logger *zap.Logger) *Writer {
	return &Writer{
		client:  client,
		reader:  reader,
		wf:      wf,
		trading: trading,
		prefixes: erp.ItemPrefixes{
			Purchase:    wf.PurchaseItemPrefix,
			Fulfillment: wf.FulfillmentItemPrefix,
		},
		logger: logger,
		now:    time.Now,
	}
}

// apiError builds the structured failure for a rejected adapter call
func apiError(entity string, d *decodedResponse, details []string) *erp.APIError {
	msg := d.ErrorMessage
	if msg == "" && len(details) > 0 {
		msg = details[0]
	}
	if msg == "" {
		msg = "upstream rejected the request"
	}
	return &erp.APIError{
		Entity:     entity,
		HTTPStatus: d.HTTPStatus,
		StatusCode: d.StatusCode,
		Message:    msg,
		Details:    details,
	}
}

// parseDate parses a YYYY-MM-DD (or longer timestamp) string, returning
// fallback when unparseable. Upstream views return both bare dates and
// full timestamps.
func parseDate(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		if t, err := time.Parse(dateLayout, s[:10]); err == nil {
			return t
		}
	}
	return fallback
}

// leadTimeReqDate pulls the internal request date forward of the required
// date by the supplier lead time, never scheduling in the past.
func leadTimeReqDate(required, now time.Time) time.Time {
	req := required.AddDate(0, 0, -14)
	if !req.After(now) {
		req = now.AddDate(0, 0, 1)
	}
	return req
}

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// CreateJob triggers job creation for an order through the advanced
// order-processing engine. Engine-reported reasons (order on hold, no valid
// estimate) surface as *erp.HoldError.
func (w *Writer) CreateJob(ctx context.Context, req erp.CreateJobRequest) (string, error) {
	const entity = "AdvancedOrderProcessing"

	plant := w.wf.SourcePlant
	if req.Fulfillment {
		plant = w.wf.FulfillmentPlant
	}

	payload := aopRequest{
		Grouping: aopGrouping{
			UserCode:            "Radius",
			GroupingMode:        2,
			ShowLoadingMessages: false,
		},
		Criteria: []aopCriteria{
			{CompNum: w.wf.CompanyNum, SOPlantCode: plant, SOrderNum: req.OrderNum},
		},
	}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return "", err
	}
	if !d.OK() {
		return "", apiError(entity, d, d.messages())
	}

	var out aopResponse
	if err := json.Unmarshal(d.Payload, &out); err != nil {
		return "", apiError(entity, d, []string{fmt.Sprintf("unparseable engine payload: %v", err)})
	}

	if len(out.Output.Results) == 0 {
		detail := fmt.Sprintf("engine returned no results (requirements=%d groups=%d/%d failed=%d)",
			out.Output.Requirements.Total, out.Output.Groups.Successful,
			out.Output.Groups.Total, out.Output.Groups.Failed)
		return "", apiError(entity, d, []string{detail})
	}

	r0 := out.Output.Results[0]
	if reason := strings.TrimSpace(r0.Errors); reason != "" {
		return "", &erp.HoldError{Reason: reason}
	}

	jobCode := strings.TrimSpace(r0.jobCode())
	if jobCode == "" {
		return "", apiError(entity, d, []string{"engine result carried no job code"})
	}

	w.logger.Info("job created",
		zap.Int("order_num", req.OrderNum),
		zap.String("plant", plant),
		zap.String("job_code", jobCode))
	return jobCode, nil
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// CreateDerivedItems creates both derived catalog items for a core item
// code, in provisional WAIT status pending catalog approval.
func (w *Writer) CreateDerivedItems(ctx context.Context, coreItemCode string, orderNum int) error {
	const entity = "XLinkAPIItem"

	payload := itemEnvelope{XLItems: itemList{XLItem: []xlItem{
		{
			CompNum:        w.wf.CompanyNum,
			ItemCode:       w.prefixes.PurchaseItem(coreItemCode),
			ItemStatusCode: erp.ItemStatusWait,
			PlantCode:      w.wf.SourcePlant,
			LastUserCode:   lastUserCode,
		},
		{
			CompNum:        w.wf.CompanyNum,
			ItemCode:       w.prefixes.FulfillmentItem(coreItemCode),
			ItemStatusCode: erp.ItemStatusWait,
			PlantCode:      w.wf.FulfillmentPlant,
			LastUserCode:   lastUserCode,
		},
	}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return err
	}
	if !d.OK() {
		return apiError(entity, d, d.messages())
	}

	var out itemResponsePayload
	if len(d.Payload) > 0 {
		if err := json.Unmarshal(d.Payload, &out); err == nil {
			var details []string
			for _, item := range out.items() {
				if m := strings.TrimSpace(item.ErrorMessage); m != "" {
					details = append(details, fmt.Sprintf("item %s: %s", item.ItemCode, m))
				}
			}
			if len(details) > 0 {
				return apiError(entity, d, details)
			}
		}
	}

	w.logger.Info("derived items created",
		zap.Int("order_num", orderNum),
		zap.String("core_item", coreItemCode))
	return nil
}

// ---------------------------------------------------------------------------
// Purchase Orders
// ---------------------------------------------------------------------------

// CreatePurchaseOrder raises the downstream PO against the supplier account,
// one line per open requirement.
func (w *Writer) CreatePurchaseOrder(ctx context.Context, req erp.CreatePORequest) (*erp.POResult, error) {
	const entity = "XLinkAPIPOrder"

	if len(req.Lines) == 0 {
		return nil, &erp.APIError{Entity: entity, Message: "no requirement lines to order"}
	}

	now := w.now()
	required := parseDate(req.Lines[0].RequiredDate, now.AddDate(0, 0, 1))
	internalReq := leadTimeReqDate(required, now)

	order := poCreateOrder{
		CompNum:      w.wf.CompanyNum,
		PlantCode:    w.wf.SourcePlant,
		SuppCode:     w.trading.SupplierCode,
		SuppRef:      req.JobCode,
		POAddrNum:    w.trading.SupplierAddrNum,
		TermsCode:    w.trading.SupplierTerms,
		WHouseCode:   w.trading.SupplierWarehouse,
		POStatus:     2,
		RequiredDate: required.Format(dateLayout),
		ReqDate:      internalReq.Format(dateLayout),
		POrderNum:    "",
	}

	for i, line := range req.Lines {
		lineRequired := parseDate(line.RequiredDate, now.AddDate(0, 0, 1))
		order.Lines = append(order.Lines, poCreateLine{
			CompNum:       w.wf.CompanyNum,
			PlantCode:     w.wf.SourcePlant,
			SuppCode:      w.trading.SupplierCode,
			WhouseCode:    w.trading.SupplierWarehouse,
			POrderLineNum: i + 1,
			ItemCode:      line.ItemCode,
			DimA:          line.DimA.InexactFloat64(),
			OrderedQty:    line.Qty.InexactFloat64(),
			ReqDate:       lineRequired.Format(dateLayout),
			PriceGroupNo:  w.trading.PriceGroupNo,
			PriceUnitCode: w.trading.PriceUnitCode,
			FCUnitPrice:   w.trading.UnitPrice,
			UnitPrice:     w.trading.UnitPrice,
			POLineStatus:  10,
			LastUserCode:  lastUserCode,
		})
		order.Prices = append(order.Prices, poPrice{
			CompNum:       w.wf.CompanyNum,
			ItemCode:      line.ItemCode,
			LastUserCode:  lastUserCode,
			PriceDate:     now.Format(dateLayout),
			PriceGroupNo:  w.trading.PriceGroupNo,
			PriceUnitCode: w.trading.PriceUnitCode,
			FCUnitPrice:   w.trading.UnitPrice,
			PriceStatus:   0,
		})
	}

	payload := poCreateEnvelope{XLPOrders: poCreateList{XLPOrder: []poCreateOrder{order}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return nil, err
	}
	if !d.OK() {
		return nil, apiError(entity, d, d.messages())
	}

	var out poResponsePayload
	if err := json.Unmarshal(d.Payload, &out); err != nil {
		return nil, apiError(entity, d, []string{fmt.Sprintf("unparseable PO payload: %v", err)})
	}
	orders := out.orders()
	if len(orders) == 0 {
		return nil, apiError(entity, d, []string{"accepted but no purchase order echoed back"})
	}

	poNum := int(orders[0].POrderNum)
	if poNum == 0 {
		return nil, apiError(entity, d, []string{"accepted but POrderNum missing"})
	}

	result := &erp.POResult{PONum: poNum}
	for i := range req.Lines {
		lineNum := i + 1
		if i < len(orders[0].Lines) && int(orders[0].Lines[i].POrderLineNum) != 0 {
			lineNum = int(orders[0].Lines[i].POrderLineNum)
		}
		result.LineNums = append(result.LineNums, lineNum)
	}

	w.logger.Info("purchase order created",
		zap.String("job_code", req.JobCode),
		zap.Int("po_num", poNum),
		zap.Int("lines", len(result.LineNums)))
	return result, nil
}

// UpdatePOLineQty updates one purchase-order line quantity in place
func (w *Writer) UpdatePOLineQty(ctx context.Context, req erp.UpdateLineQtyRequest) error {
	const entity = "XLinkAPIPOrder"

	payload := poUpdateEnvelope{XLPOrders: poUpdateList{XLPOrder: []poUpdateOrder{{
		CompNum:   w.wf.CompanyNum,
		CurrCode:  w.trading.CurrencyCode,
		POrderNum: req.Num,
		Lines: []poUpdateLine{{
			CompNum:       w.wf.CompanyNum,
			ItemCode:      req.ItemCode,
			OrderedQty:    req.Qty.InexactFloat64(),
			POrderLineNum: req.LineNum,
			POrderNum:     req.Num,
			PlantCode:     w.wf.SourcePlant,
		}},
	}}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return err
	}
	if !d.OK() {
		return apiError(entity, d, d.messages())
	}

	w.logger.Info("purchase order line updated",
		zap.Int("po_num", req.Num),
		zap.Int("line_num", req.LineNum),
		zap.String("qty", req.Qty.String()))
	return nil
}

// ---------------------------------------------------------------------------
// Sales Orders
// ---------------------------------------------------------------------------

// CreateSalesOrder raises the fulfillment sales order against the customer
// account. AddtCustRef carries the PO number so the order can be traced
// back without a separate link table upstream.
func (w *Writer) CreateSalesOrder(ctx context.Context, req erp.CreateSORequest) (int, error) {
	const entity = "XLinkAPISOrder"

	now := w.now()
	reqDate := parseDate(req.RequiredDate, now.AddDate(0, 0, 7))

	payload := soCreateEnvelope{XLSOrders: soCreateList{XLSOrder: []soCreateOrder{{
		CompNum:      w.wf.CompanyNum,
		PlantCode:    w.wf.FulfillmentPlant,
		CustCode:     w.trading.CustomerCode,
		CustRef:      req.CustRef,
		AddtCustRef:  strconv.Itoa(req.PONum),
		SOrderDate:   now.Format(dateLayout),
		CustReqDate:  reqDate.Format(dateLayout),
		SOSourceCode: w.wf.SourceCode,
		CurrCode:     w.trading.CurrencyCode,
		TermsCode:    w.trading.CustomerTerms,
		Lines: []soCreateLine{{
			SOrderLineNum: 1,
			PlantCode:     w.wf.FulfillmentPlant,
			CompNum:       w.wf.CompanyNum,
			ItemCode:      req.ItemCode,
			OrderedQty:    req.Qty.InexactFloat64(),
			ReqDate:       reqDate.Format(dateLayout),
			PriceUnitCode: w.trading.PriceUnitCode,
			UnitPrice:     w.trading.UnitPrice,
		}},
	}}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return 0, err
	}

	var out soResponsePayload
	if len(d.Payload) > 0 {
		// Best effort: the SO payload carries line-level detail worth
		// surfacing even when the envelope already failed.
		_ = json.Unmarshal(d.Payload, &out)
	}

	if !d.OK() {
		details := out.messages()
		if len(details) == 0 {
			details = d.messages()
		}
		return 0, apiError(entity, d, details)
	}

	orders := out.orders()
	if len(orders) == 0 || int(orders[0].SOrderNum) == 0 {
		return 0, apiError(entity, d, []string{"accepted but SOrderNum missing"})
	}

	soNum := int(orders[0].SOrderNum)
	w.logger.Info("fulfillment sales order created",
		zap.Int("po_num", req.PONum),
		zap.Int("so_num", soNum))
	return soNum, nil
}

// UpdateSOLineQty updates one fulfillment sales-order line quantity
func (w *Writer) UpdateSOLineQty(ctx context.Context, req erp.UpdateLineQtyRequest) error {
	const entity = "XLinkAPISOrder"

	payload := soUpdateEnvelope{XLSOrders: soUpdateList{XLSOrder: []soUpdateOrder{{
		CompNum:      w.wf.CompanyNum,
		PlantCode:    w.wf.FulfillmentPlant,
		SOSourceCode: w.wf.SourceCode,
		CurrCode:     w.trading.CurrencyCode,
		SOrderStat:   int(erp.SOAuthorized),
		SOrderNum:    req.Num,
		Lines: []soUpdateLine{{
			SOrderLineNum: req.LineNum,
			PlantCode:     w.wf.FulfillmentPlant,
			CompNum:       w.wf.CompanyNum,
			SOrderNum:     req.Num,
			ItemCode:      req.ItemCode,
			OrderedQty:    req.Qty.InexactFloat64(),
			ReqDate:       req.ReqDate,
		}},
	}}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return err
	}
	if !d.OK() {
		var out soResponsePayload
		if len(d.Payload) > 0 {
			_ = json.Unmarshal(d.Payload, &out)
		}
		details := out.messages()
		if len(details) == 0 {
			details = d.messages()
		}
		return apiError(entity, d, details)
	}

	w.logger.Info("fulfillment sales order line updated",
		zap.Int("so_num", req.Num),
		zap.Int("line_num", req.LineNum),
		zap.String("qty", req.Qty.String()))
	return nil
}

// UpdateSOHeaderRef updates the fulfillment order's customer reference
func (w *Writer) UpdateSOHeaderRef(ctx context.Context, soNum int, custRef string) error {
	const entity = "XLinkAPISOrder"

	payload := soHeaderRefEnvelope{XLSOrders: soHeaderRefList{XLSOrder: []soHeaderRefOrder{{
		CompNum:   w.wf.CompanyNum,
		PlantCode: w.wf.FulfillmentPlant,
		SOrderNum: soNum,
		CustRef:   custRef,
	}}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return err
	}
	if !d.OK() {
		return apiError(entity, d, d.messages())
	}

	w.logger.Info("fulfillment sales order reference updated",
		zap.Int("so_num", soNum),
		zap.String("cust_ref", custRef))
	return nil
}

// ---------------------------------------------------------------------------
// Ship Requests
// ---------------------------------------------------------------------------

// CreateShipRequest creates the shipping request for a fulfillment order's
// first line. Propagates erp.ErrNoLinesVisible when the order's lines are
// not queryable yet so the pipeline can park and retry.
func (w *Writer) CreateShipRequest(ctx context.Context, soNum int) (string, error) {
	const entity = "XLinkAPIShipReq"

	lines, err := w.reader.GetFulfillmentSOLines(ctx, soNum)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", erp.ErrNoLinesVisible
	}

	line := lines[0]
	now := w.now()
	shipDate := parseDate(line.ReqDate, now.AddDate(0, 0, 1))
	externalRef := fmt.Sprintf("SO:%d", soNum)

	payload := shipReqCreateEnvelope{XLShipReqs: shipReqCreateList{XLShipReq: []shipReqCreate{{
		CustCode:       w.trading.CustomerCode,
		CompNum:        w.wf.CompanyNum,
		BillAddrNum:    w.trading.BillAddrNum,
		ShipAddrNum:    w.trading.ShipAddrNum,
		DeliveryTerms:  w.trading.DeliveryTerms,
		EstArrivalDate: shipDate.AddDate(0, 0, 1).Format(dateLayout),
		ExternalRef:    externalRef,
		PickStatus:     0,
		PlantCode:      w.wf.FulfillmentPlant,
		ShipDate:       shipDate.Format(dateLayout),
		ShipReqNum:     "",
		ShipReqStat:    1,
		Lines: []shipReqCreateLine{{
			CompNum:        w.wf.CompanyNum,
			ItemCode:       line.ItemCode,
			PlantCode:      w.wf.FulfillmentPlant,
			SOPlantCode:    w.wf.FulfillmentPlant,
			SOrderLineNum:  line.LineNum,
			SOrderNum:      soNum,
			ShipQty:        line.OrderedQty.InexactFloat64(),
			ShipReqLineNum: 1,
			ShipReqNum:     "",
			ShippingRef:    externalRef,
		}},
	}}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return "", err
	}
	if !d.OK() {
		return "", apiError(entity, d, d.messages())
	}

	var out shipReqResponsePayload
	if len(d.Payload) > 0 {
		_ = json.Unmarshal(d.Payload, &out)
	}

	var shipReqNum string
	for _, sr := range out.requests() {
		reason := strings.TrimSpace(sr.ErrorMessage)
		if reason == "" {
			reason = strings.TrimSpace(sr.Errors)
		}
		if reason != "" {
			return "", apiError(entity, d, []string{reason})
		}
		if sr.ShipReqNum != "" {
			shipReqNum = string(sr.ShipReqNum)
		}
	}
	if shipReqNum == "" {
		// The adapter sometimes accepts the request without echoing the
		// assigned number; re-read it from the database before reporting back.
		shipReqNum, err = w.reader.FindShipReqBySO(ctx, soNum)
		if err != nil {
			return "", err
		}
		if shipReqNum == "" {
			// View lag; the caller holds the order until the number resolves.
			w.logger.Warn("ship request accepted without ShipReqNum",
				zap.Int("so_num", soNum))
		}
	}

	w.logger.Info("ship request created",
		zap.Int("so_num", soNum),
		zap.String("ship_req_num", shipReqNum))
	return shipReqNum, nil
}

// UpdateShipReqLineQty updates a shipping-request line quantity
func (w *Writer) UpdateShipReqLineQty(ctx context.Context, req erp.UpdateShipReqLineRequest) error {
	const entity = "XLinkAPIShipReq"

	shipReqNum, err := strconv.Atoi(strings.TrimSpace(req.ShipReqNum))
	if err != nil {
		return &erp.APIError{Entity: entity, Message: fmt.Sprintf("invalid ship request number %q", req.ShipReqNum)}
	}

	payload := shipReqUpdateEnvelope{XLShipReqs: shipReqUpdateList{XLShipReq: []shipReqUpdate{{
		CompNum:     w.wf.CompanyNum,
		PlantCode:   w.wf.FulfillmentPlant,
		ShipReqNum:  shipReqNum,
		ShipReqStat: 1,
		Lines: []shipReqUpdateLine{{
			CompNum:        w.wf.CompanyNum,
			PlantCode:      w.wf.FulfillmentPlant,
			ShipReqNum:     shipReqNum,
			ShipReqLineNum: req.LineNum,
			ItemCode:       req.ItemCode,
			SOPlantCode:    w.wf.FulfillmentPlant,
			SOrderNum:      req.SONum,
			SOrderLineNum:  req.SOLineNum,
			ShipQty:        req.Qty.InexactFloat64(),
		}},
	}}}}

	d, err := w.client.post(ctx, entity, payload)
	if err != nil {
		return err
	}
	if !d.OK() {
		return apiError(entity, d, d.messages())
	}

	w.logger.Info("ship request line updated",
		zap.String("ship_req_num", req.ShipReqNum),
		zap.Int("line_num", req.LineNum),
		zap.String("qty", req.Qty.String()))
	return nil
}

// Ensure Writer implements erp.Writer
var _ erp.Writer = (*Writer)(nil)
