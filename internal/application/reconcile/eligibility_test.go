package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

func TestScanner_MergesTrackedFeedAndFreshOrders(t *testing.T) {
	g := newFakeGateway()
	store := newMemStore()
	ctx := context.Background()

	// A held order already tracked.
	held := workflow.NewOrderState(250001)
	held.EnterHold(workflow.StepItemApprovalWait, "waiting")
	require.NoError(t, store.Orders().Upsert(ctx, held))

	// A change-feed event for a monitored order.
	g.events = []erp.ChangeEvent{
		{ID: 11, Type: erp.ChangeEventQtyChange, OrderNum: 250002, CreatedAt: time.Now()},
	}
	monitored := completedOrder(250002)
	require.NoError(t, store.Orders().Upsert(ctx, monitored))

	// Fresh eligible orders, one overlapping with the feed.
	g.eligible = []int{250003, 250002}

	s := NewScanner(g, store, 100, zap.NewNop())
	got, eventIDs, err := s.Candidates(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{250001, 250002, 250003}, got)
	assert.Equal(t, []int64{11}, eventIDs, "feed entries reported for end-of-cycle consumption")
	assert.Empty(t, g.processedEvents, "scanning alone must not consume feed entries")
}

func TestScanner_ExcludesTerminalOrders(t *testing.T) {
	g := newFakeGateway()
	store := newMemStore()
	ctx := context.Background()

	failed := workflow.NewOrderState(250001)
	failed.Status = workflow.StatusFailed
	require.NoError(t, store.Orders().Upsert(ctx, failed))

	removed := workflow.NewOrderState(250002)
	removed.Status = workflow.StatusRemoved
	require.NoError(t, store.Orders().Upsert(ctx, removed))

	g.eligible = []int{250001, 250002, 250003}

	s := NewScanner(g, store, 100, zap.NewNop())
	got, _, err := s.Candidates(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{250003}, got)
}

func TestScanner_BoundsBatchSize(t *testing.T) {
	g := newFakeGateway()
	store := newMemStore()

	g.eligible = []int{250010, 250011, 250012, 250013, 250014}

	s := NewScanner(g, store, 3, zap.NewNop())
	got, _, err := s.Candidates(context.Background())
	require.NoError(t, err)

	assert.Len(t, got, 3)
	assert.Equal(t, []int{250010, 250011, 250012}, got)
}

func TestScanner_DuplicateFeedEntriesFoldedOnce(t *testing.T) {
	g := newFakeGateway()
	store := newMemStore()

	// At-least-once delivery: the same order can appear multiple times.
	g.events = []erp.ChangeEvent{
		{ID: 1, Type: erp.ChangeEventQtyChange, OrderNum: 250001},
		{ID: 2, Type: erp.ChangeEventQtyChange, OrderNum: 250001},
	}

	s := NewScanner(g, store, 100, zap.NewNop())
	got, eventIDs, err := s.Candidates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{250001}, got)
	assert.Equal(t, []int64{1, 2}, eventIDs)
}

func TestScanner_MarkEventsProcessed(t *testing.T) {
	g := newFakeGateway()
	store := newMemStore()
	ctx := context.Background()

	g.events = []erp.ChangeEvent{
		{ID: 7, Type: erp.ChangeEventNewOrder, OrderNum: 250001},
	}

	s := NewScanner(g, store, 100, zap.NewNop())
	_, eventIDs, err := s.Candidates(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, eventIDs)
	require.Empty(t, g.processedEvents)

	require.NoError(t, s.MarkEventsProcessed(ctx, eventIDs))
	assert.Equal(t, []int64{7}, g.processedEvents)

	// Nothing consumed is a no-op, not an upstream call.
	require.NoError(t, s.MarkEventsProcessed(ctx, nil))
	assert.Equal(t, []int64{7}, g.processedEvents)
}
