package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrder() PurchaseOrder {
	return PurchaseOrder{
		OrderID:    "1234",
		VendorID:   "V1",
		Amount:     decimal.NewFromInt(500),
		FiscalYear: 2026,
	}
}

func TestPurchaseOrder_Validate(t *testing.T) {
	o := validOrder()
	require.NoError(t, o.Validate())

	negative := validOrder()
	negative.Amount = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())

	noVendor := validOrder()
	noVendor.VendorID = ""
	assert.Error(t, noVendor.Validate())

	noYear := validOrder()
	noYear.FiscalYear = 0
	assert.Error(t, noYear.Validate())
}

func TestVendorTotal_Validate(t *testing.T) {
	v := VendorTotal{VendorID: "V1", CumulativeAmount: decimal.Zero}
	require.NoError(t, v.Validate())

	v.CumulativeAmount = decimal.RequireFromString("-0.01")
	assert.Error(t, v.Validate())

	v = VendorTotal{CumulativeAmount: decimal.NewFromInt(10)}
	assert.Error(t, v.Validate())
}

func TestOrderKey(t *testing.T) {
	assert.Equal(t, "2026/1234", validOrder().Key())
	assert.Equal(t, "2025/1234", OrderKey(2025, "1234"))
	assert.Equal(t, validOrder().Key(), SeenOrder{FiscalYear: 2026, OrderID: "1234"}.Key())
}

func TestSnapshot_Merge(t *testing.T) {
	prev := Snapshot{
		"V1": {VendorID: "V1", CumulativeAmount: decimal.NewFromInt(1000)},
		"V2": {VendorID: "V2", CumulativeAmount: decimal.NewFromInt(300)},
	}
	merged := prev.Merge([]VendorTotal{
		{VendorID: "V1", CumulativeAmount: decimal.NewFromInt(1500)},
		{VendorID: "V3", CumulativeAmount: decimal.NewFromInt(10)},
	})

	require.Len(t, merged, 3)
	assert.True(t, merged["V1"].CumulativeAmount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, merged["V2"].CumulativeAmount.Equal(decimal.NewFromInt(300)))
	assert.True(t, merged["V3"].CumulativeAmount.Equal(decimal.NewFromInt(10)))
	// исходный снапшот не меняется
	assert.True(t, prev["V1"].CumulativeAmount.Equal(decimal.NewFromInt(1000)))
	assert.Len(t, prev, 2)
}

func TestDeltaRecord_Delta(t *testing.T) {
	d := DeltaRecord{PreviousAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.RequireFromString("1500.25")}
	assert.True(t, d.Delta().Equal(decimal.RequireFromString("500.25")))
}

func TestSeenOrderSet(t *testing.T) {
	set := SeenOrderSet{}
	at := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	assert.False(t, set.Has("2026/1234"))
	seen := set.Add(validOrder(), at)
	assert.True(t, set.Has("2026/1234"))
	assert.Equal(t, at, seen.NotifiedAt)
	assert.Equal(t, "V1", seen.VendorID)
}

func TestRunState(t *testing.T) {
	assert.Equal(t, "FETCHING_AGGREGATES", StateFetchingAggregates.String())
	assert.Equal(t, "COMMITTING", StateCommitting.String())
	assert.Equal(t, "UNKNOWN", RunState(42).String())
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateNotifying.Terminal())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")

	var fetchErr *FetchError
	assert.True(t, errors.As(errors.Join(&FetchError{Source: "orders", Err: cause}), &fetchErr))
	assert.ErrorIs(t, &FetchError{Source: "orders", Err: cause}, cause)
	assert.ErrorIs(t, &NotifyError{OrderKey: "2026/1", Err: cause}, cause)
	assert.Equal(t, `bad record "V1": negative amount`, (&DataError{Record: "V1", Reason: "negative amount"}).Error())
}
