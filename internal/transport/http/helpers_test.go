package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/asquebay/pautabot/internal/model"
	"github.com/asquebay/pautabot/internal/notify"

	"github.com/shopspring/decimal"
)

func notifyBuilder() *notify.Builder {
	return notify.NewBuilder("https://www.bahia.gob.ar/compras/data/oc/{year}/{order}")
}

func testOrder() model.PurchaseOrder {
	return model.PurchaseOrder{
		OrderID:     "1234",
		VendorID:    "V1",
		Amount:      decimal.NewFromInt(500),
		Description: "publicidad",
		IssueDate:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		FiscalYear:  2026,
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
