package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/asquebay/pautabot/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *StateStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStore_EmptyOnFirstOpen(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)

	seen, err := store.LoadSeenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, seen)

	pending, err := store.LoadPendingOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStateStore_CommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	order := model.PurchaseOrder{
		OrderID: "77", VendorID: "V1", VendorName: "Diario", Amount: decimal.RequireFromString("500.25"),
		Description: "publicidad", IssueDate: at.AddDate(0, 0, -3), FiscalYear: 2026, Department: "Prensa",
	}
	require.NoError(t, store.Commit(ctx, model.StateCommit{
		Snapshot: model.Snapshot{
			"V1": {VendorID: "V1", VendorName: "Diario", CumulativeAmount: decimal.RequireFromString("1500.10"), AsOf: at},
			"V2": {VendorID: "V2", CumulativeAmount: decimal.NewFromInt(7)},
		},
		NewSeen:   []model.SeenOrder{{FiscalYear: 2026, OrderID: "76", VendorID: "V1", Amount: decimal.NewFromInt(1), NotifiedAt: at}},
		Pending:   []model.PendingOrder{{Order: order, Attempts: 2, LastError: "boom", FirstFailedAt: at}},
		Committed: at.Add(time.Minute),
	}))

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.True(t, snap["V1"].CumulativeAmount.Equal(decimal.RequireFromString("1500.10")))
	assert.True(t, snap["V1"].AsOf.Equal(at))
	assert.True(t, snap["V2"].AsOf.Equal(at.Add(time.Minute)), "zero as_of falls back to commit time")

	seen, err := store.LoadSeenOrders(ctx)
	require.NoError(t, err)
	assert.True(t, seen.Has("2026/76"))

	pending, err := store.LoadPendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	got := pending[0]
	assert.Equal(t, "Prensa", got.Order.Department)
	assert.True(t, got.Order.Amount.Equal(order.Amount))
	assert.True(t, got.Order.IssueDate.Equal(order.IssueDate))
	assert.Equal(t, 2, got.Attempts)
}

func TestStateStore_AmountsKeepFullPrecision(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	precise := decimal.RequireFromString("1234.5600000000002")

	require.NoError(t, store.Commit(ctx, model.StateCommit{
		Snapshot: model.Snapshot{"V1": {VendorID: "V1", CumulativeAmount: precise, AsOf: at}},
		NewSeen:  []model.SeenOrder{{FiscalYear: 2026, OrderID: "78", VendorID: "V1", Amount: precise, NotifiedAt: at}},
		Pending: []model.PendingOrder{{
			Order:    model.PurchaseOrder{OrderID: "79", VendorID: "V1", Amount: precise, IssueDate: at, FiscalYear: 2026},
			Attempts: 1, FirstFailedAt: at,
		}},
		Committed: at,
	}))

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap["V1"].CumulativeAmount.Equal(precise), "got %s", snap["V1"].CumulativeAmount)

	seen, err := store.GetSeenOrder(ctx, 2026, "78")
	require.NoError(t, err)
	assert.True(t, seen.Amount.Equal(precise))

	pending, err := store.LoadPendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Order.Amount.Equal(precise))
}

func TestStateStore_CommitReplacesSnapshotAndAppendsSeen(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Commit(ctx, model.StateCommit{
		Snapshot: model.Snapshot{"V1": {VendorID: "V1", CumulativeAmount: decimal.NewFromInt(1), AsOf: at}},
		NewSeen:  []model.SeenOrder{{FiscalYear: 2026, OrderID: "1", VendorID: "V1", Amount: decimal.NewFromInt(1), NotifiedAt: at}},
		Pending:  []model.PendingOrder{{Order: model.PurchaseOrder{OrderID: "9", VendorID: "V1", FiscalYear: 2026, IssueDate: at}, FirstFailedAt: at}},
	}))
	require.NoError(t, store.Commit(ctx, model.StateCommit{
		Snapshot: model.Snapshot{"V2": {VendorID: "V2", CumulativeAmount: decimal.NewFromInt(2), AsOf: at}},
		NewSeen: []model.SeenOrder{
			{FiscalYear: 2026, OrderID: "1", VendorID: "V1", Amount: decimal.NewFromInt(1), NotifiedAt: at.Add(time.Hour)},
			{FiscalYear: 2026, OrderID: "2", VendorID: "V2", Amount: decimal.NewFromInt(2), NotifiedAt: at.Add(time.Hour)},
		},
	}))

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "V2")

	seen, err := store.LoadSeenOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, seen, 2)
	assert.True(t, seen["2026/1"].NotifiedAt.Equal(at), "seen orders are never rewritten")

	pending, err := store.LoadPendingOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStateStore_CommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Commit(ctx, model.StateCommit{
		Snapshot: model.Snapshot{"V1": {VendorID: "V1", CumulativeAmount: decimal.NewFromInt(1), AsOf: at}},
	}))

	// дубликат ключа в списке ожидания валит транзакцию целиком
	dup := model.PendingOrder{Order: model.PurchaseOrder{OrderID: "9", VendorID: "V1", FiscalYear: 2026, IssueDate: at}, FirstFailedAt: at}
	err := store.Commit(ctx, model.StateCommit{
		Snapshot: model.Snapshot{"V1": {VendorID: "V1", CumulativeAmount: decimal.NewFromInt(5), AsOf: at}},
		NewSeen:  []model.SeenOrder{{FiscalYear: 2026, OrderID: "1", VendorID: "V1", Amount: decimal.NewFromInt(1), NotifiedAt: at}},
		Pending:  []model.PendingOrder{dup, dup},
	})
	require.Error(t, err)

	snap, _ := store.LoadSnapshot(ctx)
	assert.True(t, snap["V1"].CumulativeAmount.Equal(decimal.NewFromInt(1)))
	seen, _ := store.LoadSeenOrders(ctx)
	assert.Empty(t, seen)
}

func TestStateStore_ReadPaths(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Commit(ctx, model.StateCommit{
		Snapshot: model.Snapshot{"V1": {VendorID: "V1", VendorName: "Diario", CumulativeAmount: decimal.NewFromInt(1), AsOf: at}},
		NewSeen: []model.SeenOrder{
			{FiscalYear: 2026, OrderID: "1", VendorID: "V1", Amount: decimal.NewFromInt(1), NotifiedAt: at},
			{FiscalYear: 2026, OrderID: "2", VendorID: "V1", Amount: decimal.NewFromInt(1), NotifiedAt: at.Add(time.Hour)},
		},
	}))

	list, err := store.ListSeenOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2", list[0].OrderID)

	got, err := store.GetSeenOrder(ctx, 2026, "1")
	require.NoError(t, err)
	assert.Equal(t, "V1", got.VendorID)

	_, err = store.GetSeenOrder(ctx, 2025, "1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	v, err := store.GetVendor(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "Diario", v.VendorName)

	_, err = store.GetVendor(ctx, "V9")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
