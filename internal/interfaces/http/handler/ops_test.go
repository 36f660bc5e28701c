package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence/models"
	"github.com/FiveStarManagement/LWS-Workflow/internal/interfaces/http/router"
)

func setupOpsAPI(t *testing.T) (workflow.Store, http.Handler) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.OrderStateModel{},
		&models.ArchivedOrderModel{},
		&models.SnapshotModel{},
		&models.POLineXRefModel{},
		&models.ChangeLogModel{},
		&models.RunModel{},
		&models.RunOrderModel{},
	)
	require.NoError(t, err)

	store := persistence.NewStateStore(db)

	engine := router.NewEngine(zap.NewNop())
	router.NewRouter(engine).
		Register(NewOpsHandler(store)).
		Setup()

	return store, engine
}

func doRequest(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func seedOrder(t *testing.T, store workflow.Store, o *workflow.OrderState) {
	require.NoError(t, store.Orders().Upsert(context.Background(), o))
}

func TestOpsHandler_GetOrder(t *testing.T) {
	t.Run("returns the order with its change log", func(t *testing.T) {
		store, api := setupOpsAPI(t)

		order := workflow.NewOrderState(3101)
		order.BaseItemCode = "LWS-CORE-01"
		order.SourceJobCode = "J4-0042"
		order.PONum = 7001
		seedOrder(t, store, order)

		require.NoError(t, store.ChangeLog().Append(context.Background(), &workflow.ChangeLogEntry{
			Kind:      workflow.SnapshotLineQty,
			Key:       "3101:1",
			OrderNum:  3101,
			OldValue:  "100",
			NewValue:  "125.5",
			CreatedAt: time.Now().UTC(),
		}))

		rec, body := doRequest(t, api, http.MethodGet, "/api/v1/orders/3101")

		require.Equal(t, http.StatusOK, rec.Code)

		var data struct {
			Order struct {
				OrderNum      int    `json:"order_num"`
				Status        string `json:"status"`
				BaseItemCode  string `json:"base_item_code"`
				SourceJobCode string `json:"source_job_code"`
				PONum         int    `json:"po_num"`
			} `json:"order"`
			ChangeLog []struct {
				Key      string `json:"key"`
				NewValue string `json:"new_value"`
			} `json:"change_log"`
		}
		require.NoError(t, json.Unmarshal(body["data"], &data))
		assert.Equal(t, 3101, data.Order.OrderNum)
		assert.Equal(t, "NEW", data.Order.Status)
		assert.Equal(t, "LWS-CORE-01", data.Order.BaseItemCode)
		assert.Equal(t, 7001, data.Order.PONum)
		require.Len(t, data.ChangeLog, 1)
		assert.Equal(t, "3101:1", data.ChangeLog[0].Key)
		assert.Equal(t, "125.5", data.ChangeLog[0].NewValue)
	})

	t.Run("returns 404 for an untracked order", func(t *testing.T) {
		_, api := setupOpsAPI(t)

		rec, body := doRequest(t, api, http.MethodGet, "/api/v1/orders/9999")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, string(body["error"]), "ORDER_NOT_FOUND")
	})

	t.Run("rejects a non-numeric order number", func(t *testing.T) {
		_, api := setupOpsAPI(t)

		rec, _ := doRequest(t, api, http.MethodGet, "/api/v1/orders/abc")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOpsHandler_ListOrders(t *testing.T) {
	t.Run("filters by status", func(t *testing.T) {
		store, api := setupOpsAPI(t)

		seedOrder(t, store, workflow.NewOrderState(3101))
		complete := workflow.NewOrderState(3102)
		complete.MarkComplete()
		seedOrder(t, store, complete)

		rec, body := doRequest(t, api, http.MethodGet, "/api/v1/orders?status=NEW")

		require.Equal(t, http.StatusOK, rec.Code)

		var data []struct {
			OrderNum int `json:"order_num"`
		}
		require.NoError(t, json.Unmarshal(body["data"], &data))
		require.Len(t, data, 1)
		assert.Equal(t, 3101, data[0].OrderNum)
	})

	t.Run("requires a status parameter", func(t *testing.T) {
		_, api := setupOpsAPI(t)

		rec, _ := doRequest(t, api, http.MethodGet, "/api/v1/orders")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		_, api := setupOpsAPI(t)

		rec, _ := doRequest(t, api, http.MethodGet, "/api/v1/orders?status=SIDEWAYS")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOpsHandler_ListHolds(t *testing.T) {
	store, api := setupOpsAPI(t)

	held := workflow.NewOrderState(3101)
	held.EnterHold(workflow.StepItemApprovalWait, "derived items still in WAIT status")
	seedOrder(t, store, held)
	seedOrder(t, store, workflow.NewOrderState(3102))

	rec, body := doRequest(t, api, http.MethodGet, "/api/v1/holds")

	require.Equal(t, http.StatusOK, rec.Code)

	var data []struct {
		OrderNum  int        `json:"order_num"`
		LastStep  string     `json:"last_step"`
		HoldSince *time.Time `json:"hold_since"`
	}
	require.NoError(t, json.Unmarshal(body["data"], &data))
	require.Len(t, data, 1)
	assert.Equal(t, 3101, data[0].OrderNum)
	assert.Equal(t, "ITEM_APPROVAL_WAIT", data[0].LastStep)
	assert.NotNil(t, data[0].HoldSince)
}

func TestOpsHandler_RequeueOrder(t *testing.T) {
	t.Run("resets a held order to NEW", func(t *testing.T) {
		store, api := setupOpsAPI(t)

		held := workflow.NewOrderState(3101)
		held.EnterHold(workflow.StepFilmMismatch, "film requirement does not match ordered quantity")
		seedOrder(t, store, held)

		rec, _ := doRequest(t, api, http.MethodPost, "/api/v1/orders/3101/requeue")

		require.Equal(t, http.StatusOK, rec.Code)

		got, err := store.Orders().Get(context.Background(), 3101)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusNew, got.Status)
		assert.Nil(t, got.HoldSince)
	})

	t.Run("returns 404 for an untracked order", func(t *testing.T) {
		_, api := setupOpsAPI(t)

		rec, _ := doRequest(t, api, http.MethodPost, "/api/v1/orders/9999/requeue")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestOpsHandler_RemoveOrder(t *testing.T) {
	store, api := setupOpsAPI(t)

	seedOrder(t, store, workflow.NewOrderState(3101))

	rec, _ := doRequest(t, api, http.MethodPost, "/api/v1/orders/3101/remove")

	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.Orders().Get(context.Background(), 3101)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRemoved, got.Status)
}

func TestOpsHandler_Runs(t *testing.T) {
	store, api := setupOpsAPI(t)
	ctx := context.Background()

	run := workflow.NewRun("test")
	require.NoError(t, store.Runs().Create(ctx, run))
	require.NoError(t, store.Runs().MarkOrder(ctx, &workflow.RunOrder{
		RunID:     run.ID,
		OrderNum:  3101,
		Status:    workflow.StatusComplete,
		LastStep:  workflow.StepComplete,
		UpdatedAt: time.Now().UTC(),
	}))
	run.Close(1, 1, 0, 0)
	require.NoError(t, store.Runs().Close(ctx, run))

	t.Run("lists recent runs", func(t *testing.T) {
		rec, body := doRequest(t, api, http.MethodGet, "/api/v1/runs?limit=5")

		require.Equal(t, http.StatusOK, rec.Code)

		var data []struct {
			ID             string     `json:"id"`
			EndedAt        *time.Time `json:"ended_at"`
			ProcessedCount int        `json:"processed_count"`
		}
		require.NoError(t, json.Unmarshal(body["data"], &data))
		require.Len(t, data, 1)
		assert.Equal(t, run.ID, data[0].ID)
		assert.NotNil(t, data[0].EndedAt)
		assert.Equal(t, 1, data[0].ProcessedCount)
	})

	t.Run("returns per-order outcomes for a run", func(t *testing.T) {
		rec, body := doRequest(t, api, http.MethodGet, "/api/v1/runs/"+run.ID)

		require.Equal(t, http.StatusOK, rec.Code)

		var data struct {
			RunID  string `json:"run_id"`
			Orders []struct {
				OrderNum int    `json:"order_num"`
				Status   string `json:"status"`
			} `json:"orders"`
		}
		require.NoError(t, json.Unmarshal(body["data"], &data))
		assert.Equal(t, run.ID, data.RunID)
		require.Len(t, data.Orders, 1)
		assert.Equal(t, 3101, data.Orders[0].OrderNum)
		assert.Equal(t, "COMPLETE", data.Orders[0].Status)
	})
}

func TestHealthEndpoint(t *testing.T) {
	_, api := setupOpsAPI(t)

	rec, _ := doRequest(t, api, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
}
