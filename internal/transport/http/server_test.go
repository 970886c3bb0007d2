package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asquebay/pautabot/internal/lib/logger"
	"github.com/asquebay/pautabot/internal/model"
	"github.com/asquebay/pautabot/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusHandler(t *testing.T) *Handler {
	t.Helper()
	store := memory.NewStateStore()
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Commit(context.Background(), model.StateCommit{
		Snapshot: model.Snapshot{"La Nueva": {VendorID: "La Nueva", CumulativeAmount: decimal.NewFromInt(1500), AsOf: at}},
		NewSeen: []model.SeenOrder{
			{FiscalYear: 2026, OrderID: "10", VendorID: "La Nueva", Amount: decimal.NewFromInt(500), NotifiedAt: at},
			{FiscalYear: 2026, OrderID: "11", VendorID: "La Nueva", Amount: decimal.NewFromInt(100), NotifiedAt: at.Add(time.Hour)},
		},
	}))
	return NewHandler(store, logger.Discard())
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_ListOrders(t *testing.T) {
	h := newStatusHandler(t)

	rec := get(h, "/orders?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []model.SeenOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "11", orders[0].OrderID)

	assert.Equal(t, http.StatusBadRequest, get(h, "/orders?limit=abc").Code)
}

func TestHandler_GetOrder(t *testing.T) {
	h := newStatusHandler(t)

	rec := get(h, "/orders/2026/10")
	require.Equal(t, http.StatusOK, rec.Code)
	var order model.SeenOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(500)))

	assert.Equal(t, http.StatusNotFound, get(h, "/orders/2025/10").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, "/orders/abc/10").Code)
}

func TestHandler_GetVendor(t *testing.T) {
	h := newStatusHandler(t)

	rec := get(h, "/vendors/La%20Nueva")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cumulative_amount":"1500"`)

	assert.Equal(t, http.StatusNotFound, get(h, "/vendors/nobody").Code)
}

func TestHandler_ListPendingEmpty(t *testing.T) {
	h := newStatusHandler(t)

	rec := get(h, "/pending")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
