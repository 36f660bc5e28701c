package radius

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Adapter Envelope
// ---------------------------------------------------------------------------

// requestEnvelope is the outer wrapper every adapter call is posted in. The
// entity payload travels base64-encoded inside it.
type requestEnvelope struct {
	Request requestBody `json:"efiRadiusRequest"`
}

type requestBody struct {
	EntityName string `json:"entityName"`
	Payload    string `json:"payload"`
}

// responseEnvelope is the adapter's reply wrapper. statusCode 1 means the
// upstream accepted the payload; anything else is a failure and
// errorMessage / the decoded payload carry the detail.
type responseEnvelope struct {
	Response responseBody `json:"efiRadiusResponse"`
}

type responseBody struct {
	StatusCode   int    `json:"statusCode"`
	EntityName   string `json:"entityName"`
	ErrorMessage string `json:"errorMessage"`
	Payload      string `json:"payload"`
}

// ---------------------------------------------------------------------------
// Tolerant Field Types
// ---------------------------------------------------------------------------

// flexInt decodes a numeric field the adapter returns as either a JSON
// number or a quoted string.
type flexInt int

// UnmarshalJSON implements json.Unmarshaler
func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("radius: invalid numeric field %q", s)
	}
	*f = flexInt(int(v))
	return nil
}

// flexString decodes a text field the adapter returns as either a JSON
// string or a bare number.
type flexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("radius: invalid text field %s", string(b))
}

// ---------------------------------------------------------------------------
// XLinkAPIPOrder
// ---------------------------------------------------------------------------

type poCreateEnvelope struct {
	XLPOrders poCreateList `json:"XLPOrders"`
}

type poCreateList struct {
	XLPOrder []poCreateOrder `json:"XLPOrder"`
}

// poCreateOrder is the purchase-order create payload. An empty POrderNum
// forces the adapter to assign a new order number.
type poCreateOrder struct {
	CompNum      int            `json:"CompNum"`
	PlantCode    string         `json:"PlantCode"`
	SuppCode     string         `json:"SuppCode"`
	SuppRef      string         `json:"SuppRef"`
	POAddrNum    string         `json:"POAddrNum"`
	TermsCode    string         `json:"TermsCode"`
	WHouseCode   string         `json:"WHouseCode"`
	POStatus     int            `json:"POStatus"`
	RequiredDate string         `json:"RequiredDate"`
	ReqDate      string         `json:"ReqDate"`
	POrderNum    string         `json:"POrderNum"`
	Lines        []poCreateLine `json:"XLPOrderLine"`
	Prices       []poPrice      `json:"XLPOrderPrice"`
}

type poCreateLine struct {
	CompNum       int     `json:"CompNum"`
	PlantCode     string  `json:"PlantCode"`
	SuppCode      string  `json:"SuppCode"`
	WhouseCode    string  `json:"WhouseCode"`
	POrderLineNum int     `json:"POrderLineNum"`
	ItemCode      string  `json:"ItemCode"`
	DimA          float64 `json:"DimA"`
	DimB          float64 `json:"DimB"`
	DimC          float64 `json:"DimC"`
	OrderedQty    float64 `json:"OrderedQty"`
	ReqDate       string  `json:"ReqDate"`
	PriceGroupNo  int     `json:"PriceGroupNo"`
	PriceUnitCode string  `json:"PriceUnitCode"`
	FCUnitPrice   float64 `json:"FCUnitPrice"`
	UnitPrice     float64 `json:"UnitPrice"`
	POLineStatus  int     `json:"POLineStatus"`
	LastUserCode  string  `json:"LastUserCode"`
	MaxRollWeight float64 `json:"MaxRollWeight"`
	NumberOfRolls int     `json:"NumberOfRolls"`
}

type poPrice struct {
	CompNum       int     `json:"CompNum"`
	ItemCode      string  `json:"ItemCode"`
	LastUserCode  string  `json:"LastUserCode"`
	PriceDate     string  `json:"PriceDate"`
	PriceGroupNo  int     `json:"PriceGroupNo"`
	PriceUnitCode string  `json:"PriceUnitCode"`
	FCUnitPrice   float64 `json:"FCUnitPrice"`
	PriceStatus   int     `json:"PriceStatus"`
}

type poUpdateEnvelope struct {
	XLPOrders poUpdateList `json:"XLPOrders"`
}

type poUpdateList struct {
	XLPOrder []poUpdateOrder `json:"XLPOrder"`
}

// poUpdateOrder is the minimal line-quantity update payload
type poUpdateOrder struct {
	CompNum   int            `json:"CompNum"`
	CurrCode  string         `json:"CurrCode"`
	POrderNum int            `json:"POrderNum"`
	Lines     []poUpdateLine `json:"XLPOrderLine"`
}

type poUpdateLine struct {
	CompNum       int     `json:"CompNum"`
	ItemCode      string  `json:"ItemCode"`
	OrderedQty    float64 `json:"OrderedQty"`
	POrderLineNum int     `json:"POrderLineNum"`
	POrderNum     int     `json:"POrderNum"`
	PlantCode     string  `json:"PlantCode"`
}

// poResponsePayload tolerates both the enveloped and the bare response
// shapes the adapter produces.
type poResponsePayload struct {
	XLPOrders *poResponseList  `json:"XLPOrders"`
	XLPOrder  []poResponseItem `json:"XLPOrder"`
}

type poResponseList struct {
	XLPOrder []poResponseItem `json:"XLPOrder"`
}

type poResponseItem struct {
	POrderNum    flexInt          `json:"POrderNum"`
	ErrorMessage string           `json:"ErrorMessage"`
	Lines        []poResponseLine `json:"XLPOrderLine"`
}

type poResponseLine struct {
	POrderLineNum flexInt `json:"POrderLineNum"`
	ItemCode      string  `json:"ItemCode"`
	ErrorMessage  string  `json:"ErrorMessage"`
}

func (p *poResponsePayload) orders() []poResponseItem {
	if p.XLPOrders != nil {
		return p.XLPOrders.XLPOrder
	}
	return p.XLPOrder
}

// ---------------------------------------------------------------------------
// XLinkAPISOrder
// ---------------------------------------------------------------------------

type soCreateEnvelope struct {
	XLSOrders soCreateList `json:"XLSOrders"`
}

type soCreateList struct {
	XLSOrder []soCreateOrder `json:"XLSOrder"`
}

type soCreateOrder struct {
	CompNum      int            `json:"CompNum"`
	PlantCode    string         `json:"PlantCode"`
	CustCode     string         `json:"CustCode"`
	CustRef      string         `json:"CustRef"`
	AddtCustRef  string         `json:"AddtCustRef"`
	SOrderDate   string         `json:"SOrderDate"`
	CustReqDate  string         `json:"CustReqDate"`
	SOSourceCode string         `json:"SOSourceCode"`
	CurrCode     string         `json:"CurrCode"`
	TermsCode    string         `json:"TermsCode"`
	Lines        []soCreateLine `json:"XLSOrderLine"`
}

type soCreateLine struct {
	SOrderLineNum int     `json:"SOrderLineNum"`
	PlantCode     string  `json:"PlantCode"`
	CompNum       int     `json:"CompNum"`
	ItemCode      string  `json:"ItemCode"`
	OrderedQty    float64 `json:"OrderedQty"`
	ReqDate       string  `json:"ReqDate"`
	PriceUnitCode string  `json:"PriceUnitCode"`
	UnitPrice     float64 `json:"UnitPrice"`
}

type soUpdateEnvelope struct {
	XLSOrders soUpdateList `json:"XLSOrders"`
}

type soUpdateList struct {
	XLSOrder []soUpdateOrder `json:"XLSOrder"`
}

// soUpdateOrder is the minimal line-quantity update payload. SOrderStat 0
// keeps the order authorized through the write.
type soUpdateOrder struct {
	CompNum      int            `json:"CompNum"`
	PlantCode    string         `json:"PlantCode"`
	SOSourceCode string         `json:"SOSourceCode"`
	CurrCode     string         `json:"CurrCode"`
	SOrderStat   int            `json:"SOrderStat"`
	SOrderNum    int            `json:"SOrderNum"`
	Lines        []soUpdateLine `json:"XLSOrderLine"`
}

type soUpdateLine struct {
	SOrderLineNum int     `json:"SOrderLineNum"`
	PlantCode     string  `json:"PlantCode"`
	CompNum       int     `json:"CompNum"`
	SOrderNum     int     `json:"SOrderNum"`
	ItemCode      string  `json:"ItemCode"`
	OrderedQty    float64 `json:"OrderedQty"`
	ReqDate       string  `json:"ReqDate"`
}

type soHeaderRefEnvelope struct {
	XLSOrders soHeaderRefList `json:"XLSOrders"`
}

type soHeaderRefList struct {
	XLSOrder []soHeaderRefOrder `json:"XLSOrder"`
}

// soHeaderRefOrder is the header-only customer-reference update payload
type soHeaderRefOrder struct {
	CompNum   int    `json:"CompNum"`
	PlantCode string `json:"PlantCode"`
	SOrderNum int    `json:"SOrderNum"`
	CustRef   string `json:"CustRef"`
}

type soResponsePayload struct {
	XLSOrders *soResponseList  `json:"XLSOrders"`
	XLSOrder  []soResponseItem `json:"XLSOrder"`
}

type soResponseList struct {
	XLSOrder []soResponseItem `json:"XLSOrder"`
}

type soResponseItem struct {
	SOrderNum    flexInt           `json:"SOrderNum"`
	ErrorMessage string            `json:"ErrorMessage"`
	Prices       []soResponsePrice `json:"XLSOrderPrice"`
}

type soResponsePrice struct {
	ItemCode     string `json:"ItemCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

func (p *soResponsePayload) orders() []soResponseItem {
	if p.XLSOrders != nil {
		return p.XLSOrders.XLSOrder
	}
	return p.XLSOrder
}

// messages collects the header and line level errors of an SO response
func (p *soResponsePayload) messages() []string {
	var msgs []string
	for _, so := range p.orders() {
		if m := strings.TrimSpace(so.ErrorMessage); m != "" {
			msgs = append(msgs, fmt.Sprintf("SO %d: %s", int(so.SOrderNum), m))
		}
		for _, price := range so.Prices {
			if m := strings.TrimSpace(price.ErrorMessage); m != "" {
				msgs = append(msgs, fmt.Sprintf("SO %d item %s: %s", int(so.SOrderNum), price.ItemCode, m))
			}
		}
	}
	return msgs
}

// ---------------------------------------------------------------------------
// XLinkAPIShipReq
// ---------------------------------------------------------------------------

type shipReqCreateEnvelope struct {
	XLShipReqs shipReqCreateList `json:"XLShipReqs"`
}

type shipReqCreateList struct {
	XLShipReq []shipReqCreate `json:"XLShipReq"`
}

type shipReqCreate struct {
	CustCode        string              `json:"CustCode"`
	CompNum         int                 `json:"CompNum"`
	BillAddrNum     int                 `json:"BillAddrNum"`
	ShipAddrNum     int                 `json:"ShipAddrNum"`
	CustContactCode string              `json:"CustContactCode"`
	DeliveryTerms   string              `json:"DeliveryTerms"`
	EstArrivalDate  string              `json:"EstArrivalDate"`
	EstArrivalTime  string              `json:"EstArrivalTime"`
	ExternalRef     string              `json:"ExternalRef"`
	PickStatus      int                 `json:"PickStatus"`
	PlantCode       string              `json:"PlantCode"`
	ShipDate        string              `json:"ShipDate"`
	ShipReqNum      string              `json:"ShipReqNum"`
	ShipReqStat     int                 `json:"ShipReqStat"`
	Lines           []shipReqCreateLine `json:"XLShipReqLine"`
}

type shipReqCreateLine struct {
	CompNum        int     `json:"CompNum"`
	ItemCode       string  `json:"ItemCode"`
	PlantCode      string  `json:"PlantCode"`
	SOPlantCode    string  `json:"SOPlantCode"`
	SOrderLineNum  int     `json:"SOrderLineNum"`
	SOrderNum      int     `json:"SOrderNum"`
	ShipQty        float64 `json:"ShipQty"`
	ShipReqLineNum int     `json:"ShipReqLineNum"`
	ShipReqNum     string  `json:"ShipReqNum"`
	ShippingRef    string  `json:"ShippingRef"`
	WhouseCode     string  `json:"WhouseCode"`
}

type shipReqUpdateEnvelope struct {
	XLShipReqs shipReqUpdateList `json:"XLShipReqs"`
}

type shipReqUpdateList struct {
	XLShipReq []shipReqUpdate `json:"XLShipReq"`
}

// shipReqUpdate is the minimal line-quantity update payload
type shipReqUpdate struct {
	CompNum     int                 `json:"CompNum"`
	PlantCode   string              `json:"PlantCode"`
	ShipReqNum  int                 `json:"ShipReqNum"`
	ShipReqStat int                 `json:"ShipReqStat"`
	Lines       []shipReqUpdateLine `json:"XLShipReqLine"`
}

type shipReqUpdateLine struct {
	CompNum        int     `json:"CompNum"`
	PlantCode      string  `json:"PlantCode"`
	ShipReqNum     int     `json:"ShipReqNum"`
	ShipReqLineNum int     `json:"ShipReqLineNum"`
	ItemCode       string  `json:"ItemCode"`
	SOPlantCode    string  `json:"SOPlantCode"`
	SOrderNum      int     `json:"SOrderNum"`
	SOrderLineNum  int     `json:"SOrderLineNum"`
	ShipQty        float64 `json:"ShipQty"`
}

type shipReqResponsePayload struct {
	XLShipReqs *shipReqResponseList  `json:"XLShipReqs"`
	XLShipReq  []shipReqResponseItem `json:"XLShipReq"`
}

type shipReqResponseList struct {
	XLShipReq []shipReqResponseItem `json:"XLShipReq"`
}

type shipReqResponseItem struct {
	ShipReqNum   flexString `json:"ShipReqNum"`
	ErrorMessage string     `json:"ErrorMessage"`
	Errors       string     `json:"Errors"`
}

func (p *shipReqResponsePayload) requests() []shipReqResponseItem {
	if p.XLShipReqs != nil {
		return p.XLShipReqs.XLShipReq
	}
	return p.XLShipReq
}

// ---------------------------------------------------------------------------
// XLinkAPIItem
// ---------------------------------------------------------------------------

type itemEnvelope struct {
	XLItems itemList `json:"XLItems"`
}

type itemList struct {
	XLItem []xlItem `json:"XLItem"`
}

type xlItem struct {
	CompNum        int    `json:"CompNum"`
	ItemCode       string `json:"ItemCode"`
	ItemStatusCode string `json:"ItemStatusCode"`
	PlantCode      string `json:"PlantCode"`
	UnitCode       string `json:"UnitCode,omitempty"`
	Description    string `json:"Description,omitempty"`
	LastUserCode   string `json:"LastUserCode"`
}

type itemResponsePayload struct {
	XLItems *itemResponseList `json:"XLItems"`
	XLItem  []itemResponse    `json:"XLItem"`
}

type itemResponseList struct {
	XLItem []itemResponse `json:"XLItem"`
}

type itemResponse struct {
	ItemCode     string `json:"ItemCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

func (p *itemResponsePayload) items() []itemResponse {
	if p.XLItems != nil {
		return p.XLItems.XLItem
	}
	return p.XLItem
}

// ---------------------------------------------------------------------------
// AdvancedOrderProcessing
// ---------------------------------------------------------------------------

// aopRequest triggers job creation for a sales order through the advanced
// order-processing engine.
type aopRequest struct {
	Grouping aopGrouping   `json:"AdvancedGroupingParameters"`
	Criteria []aopCriteria `json:"OrderProcessingLoadCriteria"`
}

type aopGrouping struct {
	UserCode            string `json:"UserCode"`
	GroupingMode        int    `json:"GroupingMode"`
	ShowLoadingMessages bool   `json:"ShowLoadingMessages"`
}

type aopCriteria struct {
	CompNum     int    `json:"CompNum"`
	SOPlantCode string `json:"SOPlantCode"`
	SOrderNum   int    `json:"SOrderNum"`
}

type aopResponse struct {
	Output aopOutput `json:"Output"`
}

type aopOutput struct {
	Results      []aopResult `json:"Results"`
	Groups       aopCounts   `json:"Groups"`
	Requirements aopCounts   `json:"Requirements"`
}

// aopResult carries the created job code, or the engine's reason for not
// creating one. The engine has emitted the code under both spellings.
type aopResult struct {
	JobCode       string `json:"JobCode"`
	JobCodeSpaced string `json:"Job Code"`
	Errors        string `json:"Errors"`
}

func (r *aopResult) jobCode() string {
	if r.JobCode != "" {
		return r.JobCode
	}
	return r.JobCodeSpaced
}

type aopCounts struct {
	Total      int `json:"Total"`
	Successful int `json:"Successful"`
	Failed     int `json:"Failed"`
}
