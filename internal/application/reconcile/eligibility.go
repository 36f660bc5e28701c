package reconcile

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// Scanner produces the set of candidate order numbers for one cycle:
// new eligible source orders not yet tracked, orders flagged by the
// change-capture feed, and every order currently monitored (COMPLETE or
// held). The feed is at-least-once; duplicates are harmless because the
// detector diffs against its own snapshots.
type Scanner struct {
	reader erp.Reader
	store  workflow.Store
	logger *zap.Logger
	// maxBatch bounds how many orders one cycle may touch
	maxBatch int
}

// NewScanner creates a Scanner bounded to maxBatch candidates per cycle
func NewScanner(reader erp.Reader, store workflow.Store, maxBatch int, logger *zap.Logger) *Scanner {
	return &Scanner{
		reader:   reader,
		store:    store,
		logger:   logger.Named("scanner"),
		maxBatch: maxBatch,
	}
}

// Candidates returns the bounded, deduplicated candidate set for a cycle
// plus the ids of the feed events folded into it. The events are NOT marked
// processed here: the orchestrator calls MarkEventsProcessed after the
// cycle's orders have been dispatched, so a crash mid-cycle re-delivers the
// events instead of dropping a feed-only order the eligibility query's
// predicates would not recover.
func (s *Scanner) Candidates(ctx context.Context) ([]int, []int64, error) {
	seen := make(map[int]bool)
	var out []int

	add := func(orderNum int) {
		if orderNum == 0 || seen[orderNum] {
			return
		}
		seen[orderNum] = true
		out = append(out, orderNum)
	}

	// Monitored set first: active orders must never be starved by a burst
	// of new candidates.
	tracked, err := s.store.Orders().ListByStatus(ctx,
		workflow.StatusNew, workflow.StatusInProgress, workflow.StatusHold, workflow.StatusComplete)
	if err != nil {
		return nil, nil, err
	}
	for i := range tracked {
		add(tracked[i].OrderNum)
	}

	// Change-capture feed.
	events, err := s.reader.FetchPendingChangeEvents(ctx, s.maxBatch)
	if err != nil {
		return nil, nil, err
	}
	var eventIDs []int64
	for _, ev := range events {
		add(ev.OrderNum)
		eventIDs = append(eventIDs, ev.ID)
	}
	if len(events) > 0 {
		s.logger.Debug("folded change events", zap.Int("count", len(events)))
	}

	// Direct eligibility query for new orders the feed may have missed.
	fresh, err := s.reader.FindEligibleOrders(ctx, s.maxBatch)
	if err != nil {
		return nil, nil, err
	}
	for _, orderNum := range fresh {
		add(orderNum)
	}

	// Drop orders an operator removed or that failed and await requeue.
	filtered := out[:0]
	for _, orderNum := range out {
		o, err := s.store.Orders().Get(ctx, orderNum)
		if errors.Is(err, workflow.ErrOrderNotFound) {
			filtered = append(filtered, orderNum)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if o.Status.IsTerminal() {
			continue
		}
		filtered = append(filtered, orderNum)
	}

	sort.Ints(filtered)
	if len(filtered) > s.maxBatch {
		filtered = filtered[:s.maxBatch]
	}
	return filtered, eventIDs, nil
}

// MarkEventsProcessed flags the feed entries a finished cycle consumed. The
// feed is at-least-once, so marking after dispatch trades duplicate
// deliveries (harmless, the detector diffs snapshots) for never losing one.
func (s *Scanner) MarkEventsProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.reader.MarkChangeEventsProcessed(ctx, ids)
}
