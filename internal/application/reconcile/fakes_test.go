package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// ---------------------------------------------------------------------------
// In-memory state store
// ---------------------------------------------------------------------------

type memStore struct {
	mu        sync.Mutex
	orders    map[int]*workflow.OrderState
	archived  map[int]*workflow.OrderState
	snapshots map[string]*workflow.Snapshot
	xrefs     map[string]*workflow.POLineXRef
	changelog []workflow.ChangeLogEntry
	runs      map[string]*workflow.Run
	runOrders []workflow.RunOrder
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[int]*workflow.OrderState),
		archived:  make(map[int]*workflow.OrderState),
		snapshots: make(map[string]*workflow.Snapshot),
		xrefs:     make(map[string]*workflow.POLineXRef),
		runs:      make(map[string]*workflow.Run),
	}
}

func (m *memStore) Orders() workflow.OrderRepository       { return &memOrders{m} }
func (m *memStore) Snapshots() workflow.SnapshotRepository { return &memSnapshots{m} }
func (m *memStore) XRefs() workflow.XRefRepository         { return &memXRefs{m} }
func (m *memStore) ChangeLog() workflow.ChangeLogRepository {
	return &memChangeLog{m}
}
func (m *memStore) Runs() workflow.RunRepository { return &memRuns{m} }

func (m *memStore) Transact(ctx context.Context, fn func(workflow.Store) error) error {
	return fn(m)
}

func snapKey(kind workflow.SnapshotKind, key string) string {
	return string(kind) + "|" + key
}

func xrefKey(orderNum, lineNum int) string {
	return fmt.Sprintf("%d/%d", orderNum, lineNum)
}

func cloneOrder(o *workflow.OrderState) *workflow.OrderState {
	c := *o
	return &c
}

type memOrders struct{ s *memStore }

func (r *memOrders) Get(ctx context.Context, orderNum int) (*workflow.OrderState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderNum]
	if !ok {
		return nil, workflow.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrders) Upsert(ctx context.Context, o *workflow.OrderState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	merged := cloneOrder(o)
	if prev, ok := r.s.orders[o.OrderNum]; ok {
		// Append-only artifact identifiers.
		if merged.BaseItemCode == "" {
			merged.BaseItemCode = prev.BaseItemCode
		}
		if merged.SourceJobCode == "" {
			merged.SourceJobCode = prev.SourceJobCode
		}
		if merged.PONum == 0 {
			merged.PONum = prev.PONum
		}
		if merged.FulfillmentSONum == 0 {
			merged.FulfillmentSONum = prev.FulfillmentSONum
		}
		if merged.ShipReqNum == "" {
			merged.ShipReqNum = prev.ShipReqNum
		}
		if merged.FulfillmentJobCode == "" {
			merged.FulfillmentJobCode = prev.FulfillmentJobCode
		}
	}
	merged.UpdatedAt = time.Now().UTC()
	r.s.orders[o.OrderNum] = merged
	return nil
}

func (r *memOrders) SetLastRun(ctx context.Context, orderNum int, runID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderNum]
	if !ok {
		return workflow.ErrOrderNotFound
	}
	// Correlation id only; UpdatedAt stays put.
	o.LastRunID = runID
	return nil
}

func (r *memOrders) ListByStatus(ctx context.Context, statuses ...workflow.Status) ([]workflow.OrderState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []workflow.OrderState
	for _, o := range r.s.orders {
		for _, st := range statuses {
			if o.Status == st {
				out = append(out, *cloneOrder(o))
				break
			}
		}
	}
	return out, nil
}

func (r *memOrders) ListActiveHolds(ctx context.Context) ([]workflow.OrderState, error) {
	return r.ListByStatus(ctx, workflow.StatusHold)
}

func (r *memOrders) Requeue(ctx context.Context, orderNum int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderNum]
	if !ok {
		return workflow.ErrOrderNotFound
	}
	o.Status = workflow.StatusNew
	o.LastStep = workflow.StepEligible
	o.ClearHold()
	return nil
}

func (r *memOrders) Remove(ctx context.Context, orderNum int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderNum]
	if !ok {
		return workflow.ErrOrderNotFound
	}
	o.Status = workflow.StatusRemoved
	return nil
}

func (r *memOrders) ArchiveCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for num, o := range r.s.orders {
		if o.Status == workflow.StatusComplete && o.UpdatedAt.Before(cutoff) {
			r.s.archived[num] = o
			delete(r.s.orders, num)
			n++
		}
	}
	return n, nil
}

type memSnapshots struct{ s *memStore }

func (r *memSnapshots) Get(ctx context.Context, kind workflow.SnapshotKind, key string) (*workflow.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.snapshots[snapKey(kind, key)]
	if !ok {
		return nil, workflow.ErrSnapshotNotFound
	}
	c := *snap
	return &c, nil
}

func (r *memSnapshots) Record(ctx context.Context, snap *workflow.Snapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *snap
	r.s.snapshots[snapKey(snap.Kind, snap.Key)] = &c
	return nil
}

func (r *memSnapshots) Diff(ctx context.Context, observed *workflow.Snapshot) (bool, *workflow.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.snapshots[snapKey(observed.Kind, observed.Key)]
	if !ok {
		return false, nil, nil
	}
	c := *old
	return !old.Equal(observed), &c, nil
}

type memXRefs struct{ s *memStore }

func (r *memXRefs) Save(ctx context.Context, x *workflow.POLineXRef) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *x
	r.s.xrefs[xrefKey(x.OrderNum, x.LineNum)] = &c
	return nil
}

func (r *memXRefs) FindBySourceLine(ctx context.Context, orderNum, lineNum int) (*workflow.POLineXRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.xrefs[xrefKey(orderNum, lineNum)]
	if !ok {
		return nil, workflow.ErrXRefNotFound
	}
	c := *x
	return &c, nil
}

type memChangeLog struct{ s *memStore }

func (r *memChangeLog) Append(ctx context.Context, e *workflow.ChangeLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = int64(len(r.s.changelog) + 1)
	r.s.changelog = append(r.s.changelog, *e)
	return nil
}

func (r *memChangeLog) ListByOrder(ctx context.Context, orderNum int, limit int) ([]workflow.ChangeLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []workflow.ChangeLogEntry
	for _, e := range r.s.changelog {
		if e.OrderNum == orderNum {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memRuns struct{ s *memStore }

func (r *memRuns) Create(ctx context.Context, run *workflow.Run) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *run
	r.s.runs[run.ID] = &c
	return nil
}

func (r *memRuns) Close(ctx context.Context, run *workflow.Run) error {
	return r.Create(ctx, run)
}

func (r *memRuns) MarkOrder(ctx context.Context, ro *workflow.RunOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.runOrders = append(r.s.runOrders, *ro)
	return nil
}

func (r *memRuns) List(ctx context.Context, limit int) ([]workflow.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []workflow.Run
	for _, run := range r.s.runs {
		out = append(out, *run)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memRuns) ListOrders(ctx context.Context, runID string) ([]workflow.RunOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []workflow.RunOrder
	for _, ro := range r.s.runOrders {
		if ro.RunID == runID {
			out = append(out, ro)
		}
	}
	return out, nil
}

func (r *memRuns) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for id, run := range r.s.runs {
		if run.StartedAt.Before(cutoff) {
			delete(r.s.runs, id)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Fake ERP gateway
// ---------------------------------------------------------------------------

// fakeGateway is a scriptable in-memory stand-in for both ERP systems.
// Read state is set up by tests; every write is recorded for assertions.
type fakeGateway struct {
	mu sync.Mutex

	// Read-side state.
	eligible       []int
	events         []erp.ChangeEvent
	headers        map[int]*erp.OrderHeader
	lines          map[int][]erp.OrderLine
	itemStatus     map[string]string
	jobsByOrder    map[int]string
	reqsByJob      map[string][]erp.Requirement
	poByJob        map[string]int
	soByPO         map[int]int
	soStatus       map[int]erp.SOStatus
	soLines        map[int][]erp.OrderLine
	shipReqBySO    map[int]string
	fulfillJobBySO map[int]string
	jobReqTotal    map[string]decimal.Decimal

	// Write recordings.
	createdItems     []string
	createdJobs      []erp.CreateJobRequest
	createdPOs       []erp.CreatePORequest
	createdSOs       []erp.CreateSORequest
	poLineUpdates    []erp.UpdateLineQtyRequest
	soLineUpdates    []erp.UpdateLineQtyRequest
	headerRefUpdates []string
	shipReqCreates   []int
	shipReqUpdates   []erp.UpdateShipReqLineRequest
	forceAuthorized  []int
	confirmedPOs     []int
	processedEvents  []int64

	// Behaviour knobs.
	nextJobCode      string
	nextFulfillJob   string
	nextPONum        int
	nextPOLineNums   []int
	nextSONum        int
	nextShipReq      string
	soStatusOnCreate erp.SOStatus
	forceAuthClears  bool
	createJobErr     error
	createSOErr      error
	createShipReqErr error
	updatePOLineErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		headers:          make(map[int]*erp.OrderHeader),
		lines:            make(map[int][]erp.OrderLine),
		itemStatus:       make(map[string]string),
		jobsByOrder:      make(map[int]string),
		reqsByJob:        make(map[string][]erp.Requirement),
		poByJob:          make(map[string]int),
		soByPO:           make(map[int]int),
		soStatus:         make(map[int]erp.SOStatus),
		soLines:          make(map[int][]erp.OrderLine),
		shipReqBySO:      make(map[int]string),
		fulfillJobBySO:   make(map[int]string),
		jobReqTotal:      make(map[string]decimal.Decimal),
		nextJobCode:      "J-4001",
		nextFulfillJob:   "J-2001",
		nextPONum:        7001,
		nextSONum:        8001,
		nextShipReq:      "SR-9001",
		soStatusOnCreate: erp.SOAuthorized,
		forceAuthClears:  true,
	}
}

// writeCount returns the total number of upstream write calls recorded
func (g *fakeGateway) writeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.createdItems) + len(g.createdJobs) + len(g.createdPOs) +
		len(g.createdSOs) + len(g.poLineUpdates) + len(g.soLineUpdates) +
		len(g.headerRefUpdates) + len(g.shipReqCreates) + len(g.shipReqUpdates) +
		len(g.forceAuthorized) + len(g.confirmedPOs)
}

func (g *fakeGateway) FindEligibleOrders(ctx context.Context, limit int) ([]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit > 0 && len(g.eligible) > limit {
		return append([]int(nil), g.eligible[:limit]...), nil
	}
	return append([]int(nil), g.eligible...), nil
}

func (g *fakeGateway) GetOrderHeader(ctx context.Context, orderNum int) (*erp.OrderHeader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.headers[orderNum]
	if !ok {
		return nil, erp.ErrNotFound
	}
	c := *h
	return &c, nil
}

func (g *fakeGateway) GetOrderLines(ctx context.Context, orderNum int) ([]erp.OrderLine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]erp.OrderLine(nil), g.lines[orderNum]...), nil
}

func (g *fakeGateway) GetItemStatus(ctx context.Context, itemCode string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.itemStatus[itemCode], nil
}

func (g *fakeGateway) FindJobByOrder(ctx context.Context, orderNum int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.jobsByOrder[orderNum], nil
}

func (g *fakeGateway) GetJobRequirements(ctx context.Context, jobCode string) ([]erp.Requirement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]erp.Requirement(nil), g.reqsByJob[jobCode]...), nil
}

func (g *fakeGateway) FindPOByJob(ctx context.Context, jobCode string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poByJob[jobCode], nil
}

func (g *fakeGateway) FindSOByPO(ctx context.Context, poNum int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.soByPO[poNum], nil
}

func (g *fakeGateway) GetFulfillmentSOStatus(ctx context.Context, soNum int) (erp.SOStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.soStatus[soNum]
	if !ok {
		return erp.SOUnknown, erp.ErrNotFound
	}
	return st, nil
}

func (g *fakeGateway) GetFulfillmentSOLines(ctx context.Context, soNum int) ([]erp.OrderLine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]erp.OrderLine(nil), g.soLines[soNum]...), nil
}

func (g *fakeGateway) FindShipReqBySO(ctx context.Context, soNum int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shipReqBySO[soNum], nil
}

func (g *fakeGateway) FindFulfillmentJobBySO(ctx context.Context, soNum int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fulfillJobBySO[soNum], nil
}

func (g *fakeGateway) GetFulfillmentJobReqTotal(ctx context.Context, jobCode string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.jobReqTotal[jobCode], nil
}

func (g *fakeGateway) FetchPendingChangeEvents(ctx context.Context, limit int) ([]erp.ChangeEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]erp.ChangeEvent(nil), g.events...), nil
}

func (g *fakeGateway) MarkChangeEventsProcessed(ctx context.Context, ids []int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processedEvents = append(g.processedEvents, ids...)
	g.events = nil
	return nil
}

func (g *fakeGateway) CreateJob(ctx context.Context, req erp.CreateJobRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createJobErr != nil {
		return "", g.createJobErr
	}
	g.createdJobs = append(g.createdJobs, req)
	if req.Fulfillment {
		g.fulfillJobBySO[req.OrderNum] = g.nextFulfillJob
		return g.nextFulfillJob, nil
	}
	g.jobsByOrder[req.OrderNum] = g.nextJobCode
	return g.nextJobCode, nil
}

func (g *fakeGateway) CreateDerivedItems(ctx context.Context, coreItemCode string, orderNum int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdItems = append(g.createdItems, coreItemCode)
	g.itemStatus["16P4-"+coreItemCode] = erp.ItemStatusWait
	g.itemStatus["1600-"+coreItemCode] = erp.ItemStatusWait
	return nil
}

func (g *fakeGateway) CreatePurchaseOrder(ctx context.Context, req erp.CreatePORequest) (*erp.POResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdPOs = append(g.createdPOs, req)
	g.poByJob[req.JobCode] = g.nextPONum
	lineNums := g.nextPOLineNums
	if lineNums == nil {
		for i := range req.Lines {
			lineNums = append(lineNums, i+1)
		}
	}
	return &erp.POResult{PONum: g.nextPONum, LineNums: lineNums}, nil
}

func (g *fakeGateway) UpdatePOLineQty(ctx context.Context, req erp.UpdateLineQtyRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updatePOLineErr != nil {
		return g.updatePOLineErr
	}
	g.poLineUpdates = append(g.poLineUpdates, req)
	return nil
}

func (g *fakeGateway) CreateSalesOrder(ctx context.Context, req erp.CreateSORequest) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createSOErr != nil {
		return 0, g.createSOErr
	}
	g.createdSOs = append(g.createdSOs, req)
	g.soByPO[req.PONum] = g.nextSONum
	g.soStatus[g.nextSONum] = g.soStatusOnCreate
	return g.nextSONum, nil
}

func (g *fakeGateway) UpdateSOLineQty(ctx context.Context, req erp.UpdateLineQtyRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.soLineUpdates = append(g.soLineUpdates, req)
	return nil
}

func (g *fakeGateway) UpdateSOHeaderRef(ctx context.Context, soNum int, custRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.headerRefUpdates = append(g.headerRefUpdates, custRef)
	return nil
}

func (g *fakeGateway) CreateShipRequest(ctx context.Context, soNum int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createShipReqErr != nil {
		return "", g.createShipReqErr
	}
	g.shipReqCreates = append(g.shipReqCreates, soNum)
	if g.nextShipReq != "" {
		g.shipReqBySO[soNum] = g.nextShipReq
	}
	return g.nextShipReq, nil
}

func (g *fakeGateway) UpdateShipReqLineQty(ctx context.Context, req erp.UpdateShipReqLineRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shipReqUpdates = append(g.shipReqUpdates, req)
	return nil
}

func (g *fakeGateway) ForceAuthorizeSO(ctx context.Context, soNum int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forceAuthorized = append(g.forceAuthorized, soNum)
	if g.forceAuthClears {
		g.soStatus[soNum] = erp.SOAuthorized
	}
	return nil
}

func (g *fakeGateway) ConfirmPO(ctx context.Context, poNum int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmedPOs = append(g.confirmedPOs, poNum)
	return nil
}

var _ erp.Gateway = (*fakeGateway)(nil)

// ---------------------------------------------------------------------------
// Fake notifier / locker
// ---------------------------------------------------------------------------

type fakeNotifier struct {
	mu   sync.Mutex
	sent []workflow.Notification
}

func (n *fakeNotifier) Send(ctx context.Context, notification workflow.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) all() []workflow.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]workflow.Notification(nil), n.sent...)
}

type fakeLocker struct {
	mu     sync.Mutex
	locked map[int]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locked: make(map[int]bool)}
}

func (l *fakeLocker) Acquire(ctx context.Context, orderNum int) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[orderNum] {
		return nil, workflow.ErrOrderLocked
	}
	l.locked[orderNum] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locked, orderNum)
	}, nil
}
